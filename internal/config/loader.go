package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "simgate.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("SIMGATE_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	// PORT is what most hosting platforms inject; SIMGATE_PORT wins over it.
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.Port, "SIMGATE_PORT")
	setString(&cfg.Server.StaticDir, "SIMGATE_STATIC_DIR")
	setDuration(&cfg.Server.KeepAlive, "SIMGATE_KEEPALIVE")

	setString(&cfg.Viewer.BaseURL, "SIMGATE_VIEWER_BASE_URL")
	setInt(&cfg.Viewer.MaxFragmentBytes, "SIMGATE_MAX_FRAGMENT_BYTES")

	setString(&cfg.Engine.URL, "SIMGATE_ENGINE_URL")
	setString(&cfg.Engine.APIKey, "SIMGATE_ENGINE_API_KEY")
	setString(&cfg.Engine.APIKeyFile, "SIMGATE_ENGINE_API_KEY_FILE")
	setDuration(&cfg.Engine.Timeout, "SIMGATE_ENGINE_TIMEOUT")

	setDuration(&cfg.Rate.Window, "SIMGATE_RATE_WINDOW")
	setInt(&cfg.Rate.Capacity, "SIMGATE_RATE_CAPACITY")
	setString(&cfg.Rate.TrustedHeader, "SIMGATE_RATE_TRUSTED_HEADER")

	setInt(&cfg.Breaker.MaxFailures, "SIMGATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SIMGATE_BREAKER_TIMEOUT")

	setInt64(&cfg.Cache.L1MaxSizeMB, "SIMGATE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "SIMGATE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.TTL, "SIMGATE_CACHE_TTL")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Subject, "SIMGATE_NATS_SUBJECT")

	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "SIMGATE_OTLP_INSECURE")

	setString(&cfg.Logging.Level, "SIMGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SIMGATE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SIMGATE_LOG_ASYNC")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Engine.URL == "" {
		return errors.New("engine.url is required")
	}
	if cfg.Rate.Capacity < 1 {
		return errors.New("rate.capacity must be >= 1")
	}
	if cfg.Rate.Window <= 0 {
		return errors.New("rate.window must be positive")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Viewer.BaseURL != "" {
		u, err := url.Parse(cfg.Viewer.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("viewer.base_url must be an absolute URL")
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
