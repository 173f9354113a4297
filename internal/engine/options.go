package engine

import (
	"context"
	"log/slog"
	"time"

	"chatsync/internal/notify"
	"chatsync/pkg/chatsync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultHydrateConcurrency = 1
	defaultLookupTimeout      = 10 * time.Second
	tracerName                = "chatsync/internal/engine"
)

// config stores resolved engine settings after option application.
type config struct {
	logger             *slog.Logger
	onListenerError    func(context.Context, *chatsync.ListenerError)
	hydrateConcurrency int
	lookupTimeout      time.Duration
	changeBuffer       int
	tracerProvider     trace.TracerProvider
}

// Option mutates engine construction configuration.
type Option func(*config)

func defaultConfig() config {
	return config{
		logger:             slog.Default(),
		hydrateConcurrency: defaultHydrateConcurrency,
		lookupTimeout:      defaultLookupTimeout,
		changeBuffer:       notify.DefaultBuffer,
		tracerProvider:     otel.GetTracerProvider(),
	}
}

// resolveConfig applies options in order and fills defaults that depend on other settings.
func resolveConfig(options []Option) config {
	cfg := defaultConfig()
	for _, option := range options {
		if option != nil {
			option(&cfg)
		}
	}
	if cfg.onListenerError == nil {
		cfg.onListenerError = logListenerError(cfg.logger)
	}

	return cfg
}

func logListenerError(logger *slog.Logger) func(context.Context, *chatsync.ListenerError) {
	return func(ctx context.Context, err *chatsync.ListenerError) {
		logger.ErrorContext(ctx, "chatsync listener stopped",
			"scope", err.Scope,
			"room_id", err.RoomID,
			"error", err.Err,
		)
	}
}

// WithLogger configures the logger used by the engine and the default listener error sink.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithListenerErrorHandler configures how listener-fatal failures are reported.
func WithListenerErrorHandler(handler func(context.Context, *chatsync.ListenerError)) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onListenerError = handler
		}
	}
}

// WithHydrateConcurrency configures how many rooms hydrate in parallel.
func WithHydrateConcurrency(rooms int) Option {
	return func(cfg *config) {
		if rooms > 0 {
			cfg.hydrateConcurrency = rooms
		}
	}
}

// WithLookupTimeout bounds one remote sender lookup.
func WithLookupTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.lookupTimeout = timeout
		}
	}
}

// WithChangeBuffer configures the default queue depth of change subscriptions.
func WithChangeBuffer(size int) Option {
	return func(cfg *config) {
		if size > 0 {
			cfg.changeBuffer = size
		}
	}
}

// WithTracerProvider configures the tracer provider used for engine spans.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(cfg *config) {
		if provider != nil {
			cfg.tracerProvider = provider
		}
	}
}
