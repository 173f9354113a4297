package grpcremote

import (
	"context"
	"fmt"
	"strings"

	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
)

// Login exchanges credentials for an authenticated session.
//
// The returned user id and token are validated before a session is produced.
func Login(ctx context.Context, conn grpc.ClientConnInterface, username, password string) (chatsync.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return chatsync.Session{}, fmt.Errorf("login: missing username")
	}

	var resp loginResponse
	req := &loginRequest{Username: username, Password: password}
	if err := conn.Invoke(ctx, methodLoginAsUser, req, &resp, grpc.CallContentSubtype(CodecName)); err != nil {
		return chatsync.Session{}, fmt.Errorf("login %s: %w", username, err)
	}

	if len(resp.UserID) == 0 {
		return chatsync.Session{}, fmt.Errorf("login %s: %w", username,
			&chatsync.PayloadError{Entity: "login", Field: "user_id", Err: chatsync.ErrMalformedPayload})
	}
	userID, err := uuid.FromBytes(resp.UserID)
	if err != nil || userID == uuid.Nil {
		return chatsync.Session{}, fmt.Errorf("login %s: %w", username,
			&chatsync.PayloadError{Entity: "login", Field: "user_id", Err: chatsync.ErrInvalidIdentifier})
	}
	if strings.TrimSpace(resp.Token) == "" {
		return chatsync.Session{}, fmt.Errorf("login %s: %w", username,
			&chatsync.PayloadError{Entity: "login", Field: "token", Err: chatsync.ErrMalformedPayload})
	}

	session := chatsync.Session{UserID: userID, Username: username, Token: resp.Token}
	if err := session.Validate(); err != nil {
		return chatsync.Session{}, fmt.Errorf("login %s: %w", username, err)
	}

	return session, nil
}
