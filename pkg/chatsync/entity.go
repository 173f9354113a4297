package chatsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the public metadata cached for a chat participant.
type User struct {
	// ID identifies the user.
	ID uuid.UUID
	// Username is the display name chosen by the user.
	Username string
}

// Room is a chat room the session owner belongs to.
type Room struct {
	// ID identifies the room.
	ID uuid.UUID
	// Name is the room display name.
	Name string
}

// Message is one chat message posted in a room.
type Message struct {
	// ID identifies the message.
	ID uuid.UUID
	// RoomID identifies the room the message belongs to.
	RoomID uuid.UUID
	// SenderID identifies the user who posted the message.
	SenderID uuid.UUID
	// Text is the message body.
	Text string
	// CreatedAt is the service-assigned creation time.
	CreatedAt time.Time
}

// Session describes the authenticated local owner produced by login.
//
// The token is attached to every remote call by transport adapters. The owner's own
// User record is derived from the session and never looked up remotely.
type Session struct {
	// UserID identifies the session owner.
	UserID uuid.UUID
	// Username is the owner's login name.
	Username string
	// Token authenticates remote calls.
	Token string
}

// Validate checks that mandatory session fields are present.
func (s Session) Validate() error {
	if s.UserID == uuid.Nil {
		return fmt.Errorf("validate session: missing user id")
	}
	if strings.TrimSpace(s.Username) == "" {
		return fmt.Errorf("validate session: missing username")
	}
	if strings.TrimSpace(s.Token) == "" {
		return fmt.Errorf("validate session: missing token")
	}

	return nil
}

// Self returns the owner's public user record.
func (s Session) Self() User {
	return User{ID: s.UserID, Username: s.Username}
}

// IsSelf reports whether id identifies the session owner.
func (s Session) IsSelf(id uuid.UUID) bool {
	return id != uuid.Nil && id == s.UserID
}
