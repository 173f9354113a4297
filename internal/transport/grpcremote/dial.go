package grpcremote

import (
	"crypto/tls"
	"fmt"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// DialStage describes where a dial attempt failed.
type DialStage string

const (
	// DialStageCredentials indicates transport credentials could not be loaded.
	DialStageCredentials DialStage = "credentials"
	// DialStageConnect indicates the client connection could not be created.
	DialStageConnect DialStage = "connect"
)

// DialError wraps dial failures with a stage indicator.
type DialError struct {
	Stage DialStage
	Err   error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e == nil {
		return "chat dial error"
	}
	return fmt.Sprintf("chat dial %s error: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DialConfig describes how to reach the chat service.
type DialConfig struct {
	// Addr is the gRPC target, for example "chat.example.com:443".
	Addr string
	// CAFile is an optional PEM bundle used instead of the system roots.
	CAFile string
	// ServerName overrides the TLS server name.
	ServerName string
	// Insecure disables transport security.
	Insecure bool
}

// Dial creates a lazily connecting client for the chat service.
//
// Every call carries the token of auth when one is set, is traced through the otelgrpc
// stats handler, and uses the JSON codec.
func Dial(cfg DialConfig, auth *TokenAuth, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, &DialError{Stage: DialStageConnect, Err: fmt.Errorf("missing address")}
	}

	creds, err := transportCredentials(cfg)
	if err != nil {
		return nil, &DialError{Stage: DialStageCredentials, Err: err}
	}

	opts := append(ClientDialOptions(auth), grpc.WithTransportCredentials(creds))
	opts = append(opts, extra...)
	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, &DialError{Stage: DialStageConnect, Err: err}
	}

	return conn, nil
}

// ClientDialOptions returns the codec, tracing, and auth options shared by every
// chat connection. Transport credentials are left to the caller.
func ClientDialOptions(auth *TokenAuth) []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	if auth != nil {
		opts = append(opts,
			grpc.WithChainUnaryInterceptor(auth.UnaryInterceptor()),
			grpc.WithChainStreamInterceptor(auth.StreamInterceptor()),
		)
	}

	return opts
}

func transportCredentials(cfg DialConfig) (credentials.TransportCredentials, error) {
	if cfg.Insecure {
		return insecure.NewCredentials(), nil
	}
	if cfg.CAFile != "" {
		creds, err := credentials.NewClientTLSFromFile(cfg.CAFile, cfg.ServerName)
		if err != nil {
			return nil, fmt.Errorf("load ca file: %w", err)
		}
		return creds, nil
	}

	return credentials.NewTLS(&tls.Config{
		ServerName: cfg.ServerName,
		MinVersion: tls.VersionTLS12,
	}), nil
}
