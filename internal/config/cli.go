package config

import (
	"flag"
	"fmt"
	"io"
)

// CLIFlags holds command-line overrides. Nil fields were not set and leave
// the loaded configuration untouched.
type CLIFlags struct {
	ConfigPath    *string
	Port          *string
	LogLevel      *string
	EngineURL     *string
	ViewerBaseURL *string
}

// ParseFlags parses command-line arguments into CLIFlags.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("simgate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configPath, port, logLevel, engineURL, viewerURL string
	)
	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	fs.StringVar(&configPath, "c", "", "path to YAML config file (shorthand)")
	fs.StringVar(&port, "port", "", "HTTP listen port")
	fs.StringVar(&port, "p", "", "HTTP listen port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&engineURL, "engine-url", "", "simulation engine base URL")
	fs.StringVar(&viewerURL, "viewer-base-url", "", "public base URL of the viewer page")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, fmt.Errorf("parse flags: %w", err)
	}

	var out CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			out.ConfigPath = &configPath
		case "port", "p":
			out.Port = &port
		case "log-level":
			out.LogLevel = &logLevel
		case "engine-url":
			out.EngineURL = &engineURL
		case "viewer-base-url":
			out.ViewerBaseURL = &viewerURL
		}
	})
	return out, nil
}

// LoadWithCLI loads configuration with the full hierarchy
// defaults < YAML < ENV < CLI. It returns the YAML path that was consulted.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil && *flags.ConfigPath != "" {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, path, fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, path, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.EngineURL != nil {
		cfg.Engine.URL = *flags.EngineURL
	}
	if flags.ViewerBaseURL != nil {
		cfg.Viewer.BaseURL = *flags.ViewerBaseURL
	}
}
