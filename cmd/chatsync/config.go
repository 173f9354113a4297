package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"chatsync/internal/platform/otel"
	"chatsync/internal/transport/grpcremote"

	"github.com/caarlos0/env/v11"
)

const (
	envConfigFile             = "CHATSYNC_CONFIG_FILE"
	defaultConfigFilePath     = "config/chatsync.json"
	alternateConfigFilePath   = "bin/config/chatsync.json"
	defaultShutdownTimeout    = 10 * time.Second
	defaultLoginTimeout       = 15 * time.Second
	defaultLookupTimeout      = 10 * time.Second
	defaultHydrateConcurrency = 1
	defaultChangeBuffer       = 256
)

type appConfig struct {
	logLevel slog.Level

	dial        grpcremote.DialConfig
	callTimeout time.Duration

	username     string
	password     string
	loginTimeout time.Duration

	hydrateConcurrency int
	lookupTimeout      time.Duration
	changeBuffer       int
	shutdownTimeout    time.Duration

	otel otel.Config
}

type fileConfig struct {
	LogLevel string           `json:"log_level"`
	Server   fileServerConfig `json:"server"`
	Login    fileLoginConfig  `json:"login"`
	Engine   fileEngineConfig `json:"engine"`
	OTel     fileOTelConfig   `json:"otel"`
}

type fileServerConfig struct {
	Addr        string `json:"addr"`
	CAFile      string `json:"ca_file"`
	ServerName  string `json:"server_name"`
	Insecure    *bool  `json:"insecure"`
	CallTimeout string `json:"call_timeout"`
}

type fileLoginConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Timeout  string `json:"timeout"`
}

type fileEngineConfig struct {
	HydrateConcurrency *int   `json:"hydrate_concurrency"`
	LookupTimeout      string `json:"lookup_timeout"`
	ChangeBuffer       *int   `json:"change_buffer"`
	ShutdownTimeout    string `json:"shutdown_timeout"`
}

type fileOTelConfig struct {
	Endpoint string `json:"endpoint"`
	Enabled  *bool  `json:"enabled"`
}

// envConfig holds environment overrides applied after the config file.
type envConfig struct {
	ServerAddr   string `env:"CHATSYNC_SERVER_ADDR"`
	Username     string `env:"CHATSYNC_USERNAME"`
	Password     string `env:"CHATSYNC_PASSWORD"`
	LogLevel     string `env:"CHATSYNC_LOG_LEVEL"`
	OTelEndpoint string `env:"CHATSYNC_OTEL_ENDPOINT"`
	OTelEnabled  string `env:"CHATSYNC_OTEL_ENABLED"`
}

func loadConfig() (appConfig, error) {
	cfg := defaultAppConfig()

	configFile, err := resolveConfigFilePath()
	if err != nil {
		return appConfig{}, err
	}
	if configFile != "" {
		if err := applyConfigFile(&cfg, configFile); err != nil {
			return appConfig{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// resolveConfigFilePath returns the explicit config file, the first default candidate
// that exists, or "" when none does. The environment alone can configure a session.
func resolveConfigFilePath() (string, error) {
	if configFile := strings.TrimSpace(os.Getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", nil
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		callTimeout:  grpcremote.DefaultCallTimeout,
		loginTimeout: defaultLoginTimeout,

		hydrateConcurrency: defaultHydrateConcurrency,
		lookupTimeout:      defaultLookupTimeout,
		changeBuffer:       defaultChangeBuffer,
		shutdownTimeout:    defaultShutdownTimeout,

		otel: otel.Config{Enabled: true},
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	cfg.dial.Addr = strings.TrimSpace(parsed.Server.Addr)
	cfg.dial.CAFile = strings.TrimSpace(parsed.Server.CAFile)
	cfg.dial.ServerName = strings.TrimSpace(parsed.Server.ServerName)
	if parsed.Server.Insecure != nil {
		cfg.dial.Insecure = *parsed.Server.Insecure
	}
	if err := parsePositiveDuration(parsed.Server.CallTimeout, "server.call_timeout", &cfg.callTimeout); err != nil {
		return err
	}

	cfg.username = strings.TrimSpace(parsed.Login.Username)
	cfg.password = parsed.Login.Password
	if err := parsePositiveDuration(parsed.Login.Timeout, "login.timeout", &cfg.loginTimeout); err != nil {
		return err
	}

	if parsed.Engine.HydrateConcurrency != nil {
		if *parsed.Engine.HydrateConcurrency <= 0 {
			return fmt.Errorf("parse engine.hydrate_concurrency: must be > 0")
		}
		cfg.hydrateConcurrency = *parsed.Engine.HydrateConcurrency
	}
	if parsed.Engine.ChangeBuffer != nil {
		if *parsed.Engine.ChangeBuffer <= 0 {
			return fmt.Errorf("parse engine.change_buffer: must be > 0")
		}
		cfg.changeBuffer = *parsed.Engine.ChangeBuffer
	}
	if err := parsePositiveDuration(parsed.Engine.LookupTimeout, "engine.lookup_timeout", &cfg.lookupTimeout); err != nil {
		return err
	}
	if err := parsePositiveDuration(parsed.Engine.ShutdownTimeout, "engine.shutdown_timeout", &cfg.shutdownTimeout); err != nil {
		return err
	}

	cfg.otel.Endpoint = strings.TrimSpace(parsed.OTel.Endpoint)
	if parsed.OTel.Enabled != nil {
		cfg.otel.Enabled = *parsed.OTel.Enabled
	}

	return nil
}

func parsePositiveDuration(raw string, field string, target *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	timeout, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("parse %s: must be > 0", field)
	}
	*target = timeout

	return nil
}

func applyEnv(cfg *appConfig) error {
	var overrides envConfig
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if value := strings.TrimSpace(overrides.ServerAddr); value != "" {
		cfg.dial.Addr = value
	}
	if value := strings.TrimSpace(overrides.Username); value != "" {
		cfg.username = value
	}
	if overrides.Password != "" {
		cfg.password = overrides.Password
	}
	if value := strings.TrimSpace(overrides.LogLevel); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return fmt.Errorf("parse CHATSYNC_LOG_LEVEL: %w", err)
		}
		cfg.logLevel = level
	}
	if value := strings.TrimSpace(overrides.OTelEndpoint); value != "" {
		cfg.otel.Endpoint = value
	}
	if value := strings.TrimSpace(overrides.OTelEnabled); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parse CHATSYNC_OTEL_ENABLED: %w", err)
		}
		cfg.otel.Enabled = enabled
	}

	return nil
}

func validateAppConfig(cfg *appConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if cfg.dial.Addr == "" {
		return fmt.Errorf("server.addr is required (or set CHATSYNC_SERVER_ADDR)")
	}
	if cfg.dial.Insecure && cfg.dial.CAFile != "" {
		return fmt.Errorf("server.insecure and server.ca_file are mutually exclusive")
	}
	if cfg.username == "" {
		return fmt.Errorf("login.username is required (or set CHATSYNC_USERNAME)")
	}
	if cfg.password == "" {
		return fmt.Errorf("login.password is required (or set CHATSYNC_PASSWORD)")
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
