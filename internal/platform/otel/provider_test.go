package otel_test

import (
	"context"
	"testing"

	"chatsync/internal/platform/otel"
)

func TestSetupNoop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  otel.Config
	}{
		{name: "empty endpoint", cfg: otel.Config{Enabled: true}},
		{name: "explicitly disabled", cfg: otel.Config{Enabled: false, Endpoint: "http://localhost:4318"}},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			shutdown, err := otel.Setup(context.Background(), "chatsync-test", testCase.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if err := shutdown(ctx); err != nil {
				t.Fatalf("noop shutdown should not error: %v", err)
			}
		})
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address so no export happens.
	shutdown, err := otel.Setup(context.Background(), "chatsync-test", otel.Config{
		Enabled:  true,
		Endpoint: "http://192.0.2.1:4318",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
