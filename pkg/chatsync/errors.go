package chatsync

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrMalformedPayload indicates a service payload missing a mandatory field.
	ErrMalformedPayload = errors.New("chatsync: malformed payload")
	// ErrInvalidIdentifier indicates an identifier that cannot be decoded.
	ErrInvalidIdentifier = errors.New("chatsync: invalid identifier")
	// ErrInvalidTimestamp indicates a timestamp that cannot be converted to local time.
	ErrInvalidTimestamp = errors.New("chatsync: invalid timestamp")
	// ErrRoomMismatch indicates a message delivered for a room other than the requested one.
	ErrRoomMismatch = errors.New("chatsync: message room mismatch")
	// ErrUserMismatch indicates a user lookup answered with a different user.
	ErrUserMismatch = errors.New("chatsync: looked up user mismatch")
	// ErrMissingEvent indicates a stream event without any payload branch.
	ErrMissingEvent = errors.New("chatsync: event without payload")
	// ErrEngineClosed indicates an operation on a closed engine.
	ErrEngineClosed = errors.New("chatsync: engine closed")
	// ErrAlreadyHydrated indicates a second hydration attempt on one engine.
	ErrAlreadyHydrated = errors.New("chatsync: engine already hydrated")
	// ErrInvalidSubscription indicates that a change subscription configuration is invalid.
	ErrInvalidSubscription = errors.New("chatsync: invalid subscription")
	// ErrSubscriptionClosed indicates that a change subscription is no longer active.
	ErrSubscriptionClosed = errors.New("chatsync: subscription closed")
	// ErrEmptyMessage indicates an attempt to post a message without text.
	ErrEmptyMessage = errors.New("chatsync: empty message")
	// ErrChangeDropped indicates a non-blocking backpressure drop.
	ErrChangeDropped = errors.New("chatsync: change dropped due to backpressure")
)

// PayloadError describes one rejected field of a service payload.
//
// Err is one of ErrMalformedPayload, ErrInvalidIdentifier, ErrInvalidTimestamp,
// or ErrRoomMismatch, so callers can match with errors.Is.
type PayloadError struct {
	Entity string
	Field  string
	Err    error
}

// Error implements the error interface.
func (e *PayloadError) Error() string {
	if e == nil {
		return "chatsync: payload error"
	}
	return fmt.Sprintf("%s.%s: %v", e.Entity, e.Field, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *PayloadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HydrationStage names the bootstrap step that failed.
type HydrationStage string

const (
	// HydrationStageListRooms covers the room listing call and room decoding.
	HydrationStageListRooms HydrationStage = "list_rooms"
	// HydrationStageListMessages covers history fetching and message decoding.
	HydrationStageListMessages HydrationStage = "list_messages"
	// HydrationStageResolveSender covers sender lookups during history load.
	HydrationStageResolveSender HydrationStage = "resolve_sender"
	// HydrationStageSubscribe covers opening room and user event streams.
	HydrationStageSubscribe HydrationStage = "subscribe"
)

// HydrationError reports why bootstrap hydration aborted.
//
// Hydration is not transactional: state written before the failure stays cached and
// callers should retry from a fresh engine.
type HydrationError struct {
	Stage  HydrationStage
	RoomID uuid.UUID
	Err    error
}

// Error implements the error interface.
func (e *HydrationError) Error() string {
	if e == nil {
		return "chatsync: hydration error"
	}
	if e.RoomID == uuid.Nil {
		return fmt.Sprintf("hydrate %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("hydrate %s room %s: %v", e.Stage, e.RoomID, e.Err)
}

// Unwrap returns the underlying error.
func (e *HydrationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LookupError reports a failed sender resolution.
type LookupError struct {
	UserID uuid.UUID
	Err    error
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	if e == nil {
		return "chatsync: lookup error"
	}
	return fmt.Sprintf("lookup user %s: %v", e.UserID, e.Err)
}

// Unwrap returns the underlying error.
func (e *LookupError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ListenerScope identifies the listener class that failed.
type ListenerScope string

const (
	// ListenerScopeMembership is the session-scoped room-membership listener.
	ListenerScopeMembership ListenerScope = "membership"
	// ListenerScopeRoom is a per-room message listener.
	ListenerScopeRoom ListenerScope = "room"
)

// ListenerError is a listener-fatal failure. It terminates exactly one listener.
type ListenerError struct {
	Scope  ListenerScope
	RoomID uuid.UUID
	Err    error
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	if e == nil {
		return "chatsync: listener error"
	}
	if e.Scope == ListenerScopeRoom {
		return fmt.Sprintf("room listener %s: %v", e.RoomID, e.Err)
	}
	return fmt.Sprintf("%s listener: %v", e.Scope, e.Err)
}

// Unwrap returns the underlying error.
func (e *ListenerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
