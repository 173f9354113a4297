// Package cache holds the in-memory mirrors of the chat service's users, rooms, and
// messages.
package cache

import (
	"slices"

	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
)

// Caches groups the three independently locked entity stores of one session.
//
// Operations on one store never block operations on another.
type Caches struct {
	Users    *Store[chatsync.User]
	Rooms    *Store[chatsync.Room]
	Messages *Store[chatsync.Message]
}

// New creates empty session caches.
func New() *Caches {
	return &Caches{
		Users:    NewStore[chatsync.User](),
		Rooms:    NewStore[chatsync.Room](),
		Messages: NewStore[chatsync.Message](),
	}
}

// RoomMessages returns the cached messages of one room in insertion order.
func RoomMessages(messages *Store[chatsync.Message], roomID uuid.UUID) []chatsync.Message {
	return messages.Filter(func(message chatsync.Message) bool {
		return message.RoomID == roomID
	})
}

// RoomTimeline returns the cached messages of one room ordered by creation time.
//
// Messages with equal timestamps keep their insertion order.
func RoomTimeline(messages *Store[chatsync.Message], roomID uuid.UUID) []chatsync.Message {
	timeline := RoomMessages(messages, roomID)
	slices.SortStableFunc(timeline, func(a, b chatsync.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return timeline
}
