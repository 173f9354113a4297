package chatsync

import (
	"context"

	"github.com/google/uuid"
)

// ChangeKind identifies what changed in the caches.
type ChangeKind string

const (
	// ChangeRoomUpserted is published after a room is written to the Room cache.
	ChangeRoomUpserted ChangeKind = "room.upserted"
	// ChangeMessageUpserted is published after a message is written to the Message cache.
	ChangeMessageUpserted ChangeKind = "message.upserted"
	// ChangeUserUpserted is published after a user is written to the User cache.
	ChangeUserUpserted ChangeKind = "user.upserted"
	// ChangeListenerStopped is published when any listener terminates.
	ChangeListenerStopped ChangeKind = "listener.stopped"
)

// Change notifies presentation code that cached state moved.
//
// Changes are hints: consumers read the caches for the authoritative state.
type Change struct {
	Kind ChangeKind
	// RoomID is set for room, message, and room listener changes.
	RoomID uuid.UUID
	// EntityID identifies the upserted entity.
	EntityID uuid.UUID
	// Err carries the terminal listener error, nil for a clean stop.
	Err error
}

// ChangeHandler consumes one change notification.
type ChangeHandler func(ctx context.Context, change Change) error

// BackpressurePolicy defines how change queues behave when subscriber buffers are full.
type BackpressurePolicy string

const (
	// BackpressureDropNewest drops the incoming change when full.
	BackpressureDropNewest BackpressurePolicy = "drop_newest"
	// BackpressureDropOldest evicts the oldest queued change before enqueue.
	BackpressureDropOldest BackpressurePolicy = "drop_oldest"
	// BackpressureBlock blocks the publisher until queue space is available or context is canceled.
	BackpressureBlock BackpressurePolicy = "block"
)

// SubscriptionSpec configures one change consumer.
type SubscriptionSpec struct {
	Name         string
	Kinds        []ChangeKind
	Buffer       int
	Backpressure BackpressurePolicy
}

// Matches reports whether the subscription wants change.
func (s SubscriptionSpec) Matches(change Change) bool {
	if len(s.Kinds) == 0 {
		return true
	}
	for _, kind := range s.Kinds {
		if kind == change.Kind {
			return true
		}
	}

	return false
}

// Subscription controls an active change registration.
type Subscription interface {
	// Name returns the subscription identifier.
	Name() string
	// Close stops delivery for this subscription.
	Close(ctx context.Context) error
}

// ListenerStatus is a diagnostic snapshot of one supervised listener.
type ListenerStatus struct {
	Scope   ListenerScope
	RoomID  uuid.UUID
	Running bool
	// Err is the terminal error of a stopped listener, nil for a clean stop.
	Err error
}
