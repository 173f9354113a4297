package engine

import (
	"fmt"
	"time"

	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func payloadError(entity, field string, err error) error {
	return &chatsync.PayloadError{Entity: entity, Field: field, Err: err}
}

// parseID decodes an untrusted wire identifier. Absent and all-zero identifiers are rejected.
func parseID(entity, field string, raw chatsync.WireID) (uuid.UUID, error) {
	if len(raw) == 0 {
		return uuid.Nil, payloadError(entity, field, chatsync.ErrMalformedPayload)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, payloadError(entity, field, fmt.Errorf("%w: %v", chatsync.ErrInvalidIdentifier, err))
	}
	if id == uuid.Nil {
		return uuid.Nil, payloadError(entity, field, fmt.Errorf("%w: nil uuid", chatsync.ErrInvalidIdentifier))
	}

	return id, nil
}

func parseTimestamp(entity, field string, raw *timestamppb.Timestamp) (time.Time, error) {
	if raw == nil {
		return time.Time{}, payloadError(entity, field, chatsync.ErrMalformedPayload)
	}
	if err := raw.CheckValid(); err != nil {
		return time.Time{}, payloadError(entity, field, fmt.Errorf("%w: %v", chatsync.ErrInvalidTimestamp, err))
	}

	return raw.AsTime(), nil
}

func decodeRoom(wire chatsync.WireRoom) (chatsync.Room, error) {
	id, err := parseID("room", "id", wire.ID)
	if err != nil {
		return chatsync.Room{}, err
	}

	return chatsync.Room{ID: id, Name: wire.Name}, nil
}

// decodeMessage validates a wire message delivered for roomID.
func decodeMessage(wire chatsync.WireMessage, roomID uuid.UUID) (chatsync.Message, error) {
	id, err := parseID("message", "id", wire.ID)
	if err != nil {
		return chatsync.Message{}, err
	}
	messageRoomID, err := parseID("message", "room_id", wire.RoomID)
	if err != nil {
		return chatsync.Message{}, err
	}
	if messageRoomID != roomID {
		return chatsync.Message{}, payloadError("message", "room_id",
			fmt.Errorf("%w: got %s, want %s", chatsync.ErrRoomMismatch, messageRoomID, roomID))
	}
	senderID, err := parseID("message", "sender_id", wire.SenderID)
	if err != nil {
		return chatsync.Message{}, err
	}
	createdAt, err := parseTimestamp("message", "timestamp", wire.Timestamp)
	if err != nil {
		return chatsync.Message{}, err
	}

	return chatsync.Message{
		ID:        id,
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      wire.Text,
		CreatedAt: createdAt,
	}, nil
}

// decodeUser validates a lookup answer for wantID.
func decodeUser(wire chatsync.WireUser, wantID uuid.UUID) (chatsync.User, error) {
	id, err := parseID("user", "id", wire.ID)
	if err != nil {
		return chatsync.User{}, err
	}
	if id != wantID {
		return chatsync.User{}, payloadError("user", "id",
			fmt.Errorf("%w: got %s, want %s", chatsync.ErrUserMismatch, id, wantID))
	}

	return chatsync.User{ID: id, Username: wire.Username}, nil
}
