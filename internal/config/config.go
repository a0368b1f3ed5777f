// Package config provides hierarchical configuration loading for simgate.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the gateway.
type Config struct {
	Server    Server    `yaml:"server"`
	Viewer    Viewer    `yaml:"viewer"`
	Engine    Engine    `yaml:"engine"`
	Rate      Rate      `yaml:"rate"`
	Breaker   Breaker   `yaml:"breaker"`
	Cache     Cache     `yaml:"cache"`
	NATS      NATS      `yaml:"nats"`
	Telemetry Telemetry `yaml:"telemetry"`
	Logging   Logging   `yaml:"logging"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port      string        `yaml:"port"`
	Name      string        `yaml:"name"`
	Version   string        `yaml:"version"`
	StaticDir string        `yaml:"static_dir"`
	KeepAlive time.Duration `yaml:"keep_alive"` // SSE ping interval
}

// Viewer holds configuration of the client-only visualization link.
type Viewer struct {
	BaseURL          string `yaml:"base_url"`
	MaxFragmentBytes int    `yaml:"max_fragment_bytes"` // compressed payload budget; 0 disables links
}

// Engine holds the simulation engine client configuration.
type Engine struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"` // read on start and on SIGHUP; wins over api_key
	Timeout    time.Duration `yaml:"timeout"`
}

// Rate holds admission control configuration.
type Rate struct {
	Window        time.Duration `yaml:"window"`
	Capacity      int           `yaml:"capacity"`
	TrustedHeader string        `yaml:"trusted_header"` // edge-proxy client IP header
}

// Breaker holds circuit breaker configuration for engine calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Cache holds outcome cache configuration. A zero TTL disables caching.
// L2Bucket names the NATS KV bucket shared between replicas; it is used only
// when NATS is configured.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L2Bucket    string        `yaml:"l2_bucket"`
	TTL         time.Duration `yaml:"ttl"`
}

// NATS holds run-event publishing configuration. An empty URL disables it.
type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Telemetry holds OpenTelemetry exporter configuration. An empty endpoint
// keeps the global no-op providers.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:      "8000",
			Name:      "simgate",
			Version:   "0.1.0",
			StaticDir: "public",
			KeepAlive: 25 * time.Second,
		},
		Viewer: Viewer{
			BaseURL:          "http://localhost:8000",
			MaxFragmentBytes: 8000,
		},
		Engine: Engine{
			URL:     "http://localhost:8787",
			Timeout: 30 * time.Second,
		},
		Rate: Rate{
			Window:        60 * time.Second,
			Capacity:      100,
			TrustedHeader: "CF-Connecting-IP",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Cache: Cache{
			L1MaxSizeMB: 64,
			L2Bucket:    "simgate-outcomes",
			TTL:         10 * time.Minute,
		},
		NATS: NATS{
			Subject: "simgate.runs.completed",
		},
		Logging: Logging{
			Level:   "info",
			Service: "simgate",
		},
	}
}
