package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Strob0t/simgate/internal/adapter/engine"
	cfhttp "github.com/Strob0t/simgate/internal/adapter/http"
	simmcp "github.com/Strob0t/simgate/internal/adapter/mcp"
	cfnats "github.com/Strob0t/simgate/internal/adapter/nats"
	"github.com/Strob0t/simgate/internal/adapter/natskv"
	cfotel "github.com/Strob0t/simgate/internal/adapter/otel"
	"github.com/Strob0t/simgate/internal/adapter/ristretto"
	"github.com/Strob0t/simgate/internal/adapter/tiered"
	"github.com/Strob0t/simgate/internal/config"
	"github.com/Strob0t/simgate/internal/logger"
	"github.com/Strob0t/simgate/internal/middleware"
	"github.com/Strob0t/simgate/internal/port/cache"
	"github.com/Strob0t/simgate/internal/port/events"
	"github.com/Strob0t/simgate/internal/resilience"
	"github.com/Strob0t/simgate/internal/secrets"
	"github.com/Strob0t/simgate/internal/service"
	"github.com/Strob0t/simgate/internal/session"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"config_file", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"engine_url", cfg.Engine.URL,
		"viewer_base_url", cfg.Viewer.BaseURL,
		"rate_capacity", cfg.Rate.Capacity,
		"rate_window", cfg.Rate.Window,
	)

	ctx := context.Background()

	// --- Telemetry ---

	shutdownTelemetry, err := cfotel.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()
	var outcomeCache cache.Cache = l1

	var publisher events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		pub, err := cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = pub.Close() }()
		publisher = pub

		if cfg.Cache.L2Bucket != "" && cfg.Cache.TTL > 0 {
			kv, err := pub.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.TTL)
			if err != nil {
				return fmt.Errorf("nats kv: %w", err)
			}
			outcomeCache = tiered.New(l1, natskv.New(kv), cfg.Cache.TTL)
			slog.Info("shared outcome cache enabled", "bucket", cfg.Cache.L2Bucket)
		}
	}

	// Engine credential, re-read on SIGHUP.
	const engineKey = "engine_api_key"
	vault, err := secrets.NewVault(secrets.Merge(
		func() (map[string]string, error) { return map[string]string{engineKey: cfg.Engine.APIKey}, nil },
		secrets.FileLoader(map[string]string{engineKey: cfg.Engine.APIKeyFile}),
	))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	reloadCtx, stopReload := context.WithCancel(ctx)
	defer stopReload()
	vault.ReloadOnSignal(reloadCtx, syscall.SIGHUP)
	slog.Info("engine credential loaded", "api_key", vault.Redacted(engineKey))

	engineClient := engine.NewClient(cfg.Engine.URL, "", cfg.Engine.Timeout)
	engineClient.SetKeySource(vault.Getter(engineKey))
	engineClient.SetBreaker(resilience.NewBreaker("engine", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---

	simulations := service.NewSimulationService(service.SimulationDeps{
		Engine:    engineClient,
		Fragments: service.NewFragmentEncoder(cfg.Viewer.BaseURL, cfg.Viewer.MaxFragmentBytes),
		Cache:     outcomeCache,
		CacheTTL:  cfg.Cache.TTL,
		Events:    publisher,
		Subject:   cfg.NATS.Subject,
		Metrics:   metrics,
	})

	mcpServer := simmcp.NewServer(simmcp.ServerConfig{
		Name:      cfg.Server.Name,
		Version:   cfg.Server.Version,
		StaticDir: cfg.Server.StaticDir,
	}, simmcp.ServerDeps{Simulations: simulations})

	sessions := session.NewRegistry()
	sessions.OnChange(func(delta int64) { metrics.OpenSessions.Add(context.Background(), delta) })

	limiter := middleware.NewRateLimiter(cfg.Rate.Capacity, cfg.Rate.Window, cfg.Rate.TrustedHeader)
	limiter.OnReject(func(ctx context.Context) { metrics.RateLimited.Add(ctx, 1) })
	stopSweeper := limiter.StartSweeper()
	defer stopSweeper()

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		MCP:       mcpServer,
		Sessions:  sessions,
		KeepAlive: cfg.Server.KeepAlive,
		StaticDir: cfg.Server.StaticDir,
		Name:      cfg.Server.Name,
		Version:   cfg.Server.Version,
	}

	r := cfhttp.NewRouter(handlers, cfhttp.RouterDeps{
		RateLimiter: limiter,
		// Session streams are not traced.
		Observe: cfotel.HTTPMiddleware(cfg.Logging.Service, "/mcp"),
	})

	addr := ":" + cfg.Server.Port

	// No ReadTimeout or WriteTimeout: session streams are long-lived.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-done:
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server", "open_sessions", sessions.Len())

	// Streams never finish on their own; end them so Shutdown can drain.
	sessions.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
