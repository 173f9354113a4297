package chatsync

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// WireID is an untrusted identifier as received from the service.
//
// A nil WireID means the field was absent from the payload. Valid identifiers are
// exactly 16 bytes.
type WireID []byte

// WireIDFrom encodes a local identifier for outbound requests.
func WireIDFrom(id uuid.UUID) WireID {
	encoded := make(WireID, len(id))
	copy(encoded, id[:])

	return encoded
}

// WireUser is the service representation of a user.
type WireUser struct {
	ID       WireID `json:"id,omitempty"`
	Username string `json:"username"`
}

// WireRoom is the service representation of a room.
type WireRoom struct {
	ID   WireID `json:"id,omitempty"`
	Name string `json:"name"`
}

// WireMessage is the service representation of a message.
type WireMessage struct {
	ID        WireID                 `json:"id,omitempty"`
	RoomID    WireID                 `json:"room_id,omitempty"`
	SenderID  WireID                 `json:"sender_id,omitempty"`
	Text      string                 `json:"text"`
	Timestamp *timestamppb.Timestamp `json:"timestamp,omitempty"`
}

// WireAddedToRoom notifies the session owner that they joined a room.
type WireAddedToRoom struct {
	RoomID WireID `json:"room_id,omitempty"`
}

// WireUserEvent is one event on the session-scoped stream.
//
// Exactly one payload branch is expected; a nil branch set is a protocol violation.
type WireUserEvent struct {
	AddedToRoom *WireAddedToRoom `json:"added_to_room,omitempty"`
}

// WireRoomEvent is one event on a room-scoped stream.
type WireRoomEvent struct {
	NewMessage *WireMessage `json:"new_message,omitempty"`
}

// UserEventStream yields session-scoped events.
//
// Recv blocks until the next event arrives. It returns io.EOF when the service ends
// the stream and the stream context error after cancellation.
type UserEventStream interface {
	Recv() (WireUserEvent, error)
}

// RoomEventStream yields events for one room. Recv follows UserEventStream semantics.
type RoomEventStream interface {
	Recv() (WireRoomEvent, error)
}

// Remote is the RPC surface of the chat service as seen by one authenticated session.
//
// Implementations must be safe for concurrent use: hydration and every listener call
// into the same Remote.
type Remote interface {
	// ListRooms returns every room the session owner belongs to.
	ListRooms(ctx context.Context) ([]WireRoom, error)
	// ListMessages returns the room history, oldest first.
	ListMessages(ctx context.Context, roomID uuid.UUID) ([]WireMessage, error)
	// LookupUser returns public metadata of one user.
	LookupUser(ctx context.Context, userID uuid.UUID) (WireUser, error)
	// LookupRoom returns metadata of one room.
	LookupRoom(ctx context.Context, roomID uuid.UUID) (WireRoom, error)
	// SubscribeUserEvents opens the session-scoped event stream.
	SubscribeUserEvents(ctx context.Context) (UserEventStream, error)
	// SubscribeRoomEvents opens the event stream of one room.
	SubscribeRoomEvents(ctx context.Context, roomID uuid.UUID) (RoomEventStream, error)
}

// MessagePoster posts messages on behalf of the session owner.
//
// Posting never touches the caches. The posted message reaches the Message cache
// through the room's event stream like every other message.
type MessagePoster interface {
	SendMessage(ctx context.Context, roomID uuid.UUID, text string) error
}
