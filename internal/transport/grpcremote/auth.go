package grpcremote

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const authorizationHeader = "authorization"

// TokenAuth attaches the session bearer token to every outgoing call.
//
// The token is set after login, so one connection serves both the login exchange and
// the authenticated chat calls.
type TokenAuth struct {
	mu    sync.RWMutex
	token string
}

// NewTokenAuth creates an authenticator without a token.
func NewTokenAuth() *TokenAuth {
	return &TokenAuth{}
}

// SetToken replaces the bearer token.
func (a *TokenAuth) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

func (a *TokenAuth) authorize(ctx context.Context) context.Context {
	a.mu.RLock()
	token := a.token
	a.mu.RUnlock()

	if token == "" {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx, authorizationHeader, "Bearer "+token)
}

// UnaryInterceptor authorizes unary calls.
func (a *TokenAuth) UnaryInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(a.authorize(ctx), method, req, reply, cc, opts...)
	}
}

// StreamInterceptor authorizes streaming calls.
func (a *TokenAuth) StreamInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(a.authorize(ctx), desc, cc, method, opts...)
	}
}
