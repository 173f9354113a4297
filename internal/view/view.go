// Package view renders read-only console snapshots of the session caches.
package view

import (
	"fmt"
	"io"
	"slices"

	"chatsync/internal/cache"
	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
)

const (
	// UnknownSender labels messages whose sender is not cached yet.
	UnknownSender = "unknown"
	// SelfSender labels messages posted by the session owner.
	SelfSender = "you"
)

// SenderLabel returns the display name of senderID.
func SenderLabel(users *cache.Store[chatsync.User], senderID, selfID uuid.UUID) string {
	user, ok := users.Get(senderID)
	if !ok {
		return UnknownSender
	}
	if senderID == selfID {
		return SelfSender
	}

	return user.Username
}

// MessageLine formats one timeline entry.
func MessageLine(users *cache.Store[chatsync.User], message chatsync.Message, selfID uuid.UUID) string {
	return fmt.Sprintf(" (%s) %s", SenderLabel(users, message.SenderID, selfID), message.Text)
}

// RoomLines lists rooms in cache order.
func RoomLines(rooms []chatsync.Room) []string {
	lines := make([]string, 0, len(rooms))
	for _, room := range rooms {
		lines = append(lines, fmt.Sprintf(" %s ", room.Name))
	}

	return lines
}

// TimelineLines lists the messages of roomID newest first.
func TimelineLines(caches *cache.Caches, roomID, selfID uuid.UUID) []string {
	messages := cache.RoomMessages(caches.Messages, roomID)
	slices.Reverse(messages)

	lines := make([]string, 0, len(messages))
	for _, message := range messages {
		lines = append(lines, MessageLine(caches.Users, message, selfID))
	}

	return lines
}

// Render writes the room list followed by the timeline of every room.
func Render(w io.Writer, caches *cache.Caches, selfID uuid.UUID) error {
	rooms := caches.Rooms.Snapshot()
	if _, err := fmt.Fprintln(w, "Rooms"); err != nil {
		return fmt.Errorf("render rooms: %w", err)
	}
	for _, line := range RoomLines(rooms) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("render rooms: %w", err)
		}
	}

	for _, room := range rooms {
		if _, err := fmt.Fprintf(w, "\nMessages in %s\n", room.Name); err != nil {
			return fmt.Errorf("render room %s: %w", room.ID, err)
		}
		for _, line := range TimelineLines(caches, room.ID, selfID) {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return fmt.Errorf("render room %s: %w", room.ID, err)
			}
		}
	}

	return nil
}
