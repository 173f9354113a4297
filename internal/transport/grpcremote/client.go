package grpcremote

import (
	"context"
	"fmt"
	"time"

	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
)

// DefaultCallTimeout bounds one unary chat call.
const DefaultCallTimeout = 15 * time.Second

var eventStreamDesc = grpc.StreamDesc{ServerStreams: true}

// Client implements chatsync.Remote on top of one gRPC connection.
// It is safe for concurrent use.
type Client struct {
	conn        grpc.ClientConnInterface
	callTimeout time.Duration
	callOptions []grpc.CallOption
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallTimeout bounds every unary call. Non-positive values disable the bound.
func WithCallTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.callTimeout = timeout
	}
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface, options ...ClientOption) *Client {
	client := &Client{
		conn:        conn,
		callTimeout: DefaultCallTimeout,
		callOptions: []grpc.CallOption{grpc.CallContentSubtype(CodecName)},
	}
	for _, option := range options {
		option(client)
	}

	return client
}

var (
	_ chatsync.Remote        = (*Client)(nil)
	_ chatsync.MessagePoster = (*Client)(nil)
)

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	return c.conn.Invoke(ctx, method, req, reply, c.callOptions...)
}

// ListRooms returns every room the session owner belongs to.
func (c *Client) ListRooms(ctx context.Context) ([]chatsync.WireRoom, error) {
	var resp listRoomsResponse
	if err := c.invoke(ctx, methodListRooms, &listRoomsRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	return resp.Rooms, nil
}

// ListMessages returns the history of roomID, oldest first.
func (c *Client) ListMessages(ctx context.Context, roomID uuid.UUID) ([]chatsync.WireMessage, error) {
	var resp listMessagesResponse
	req := &listMessagesRequest{RoomID: chatsync.WireIDFrom(roomID)}
	if err := c.invoke(ctx, methodListMessages, req, &resp); err != nil {
		return nil, fmt.Errorf("list messages %s: %w", roomID, err)
	}

	return resp.Messages, nil
}

// LookupUser returns public metadata of userID.
func (c *Client) LookupUser(ctx context.Context, userID uuid.UUID) (chatsync.WireUser, error) {
	var resp lookupUserResponse
	req := &lookupUserRequest{UserID: chatsync.WireIDFrom(userID)}
	if err := c.invoke(ctx, methodLookupUser, req, &resp); err != nil {
		return chatsync.WireUser{}, fmt.Errorf("lookup user %s: %w", userID, err)
	}

	return resp.User, nil
}

// LookupRoom returns metadata of roomID.
func (c *Client) LookupRoom(ctx context.Context, roomID uuid.UUID) (chatsync.WireRoom, error) {
	var resp lookupRoomResponse
	req := &lookupRoomRequest{RoomID: chatsync.WireIDFrom(roomID)}
	if err := c.invoke(ctx, methodLookupRoom, req, &resp); err != nil {
		return chatsync.WireRoom{}, fmt.Errorf("lookup room %s: %w", roomID, err)
	}

	return resp.Room, nil
}

// SendMessage posts text to roomID as the session owner.
func (c *Client) SendMessage(ctx context.Context, roomID uuid.UUID, text string) error {
	if text == "" {
		return fmt.Errorf("send message %s: %w", roomID, chatsync.ErrEmptyMessage)
	}

	req := &sendMessageRequest{RoomID: chatsync.WireIDFrom(roomID), Text: text}
	if err := c.invoke(ctx, methodSendMessage, req, &sendMessageResponse{}); err != nil {
		return fmt.Errorf("send message %s: %w", roomID, err)
	}

	return nil
}

// SubscribeUserEvents opens the session-scoped event stream. The stream lives until
// ctx is cancelled or the service ends it.
func (c *Client) SubscribeUserEvents(ctx context.Context) (chatsync.UserEventStream, error) {
	stream, err := c.openStream(ctx, methodSubscribeToUser, &subscribeToUserRequest{})
	if err != nil {
		return nil, fmt.Errorf("subscribe user events: %w", err)
	}

	return &eventStream[chatsync.WireUserEvent]{stream: stream}, nil
}

// SubscribeRoomEvents opens the event stream of roomID.
func (c *Client) SubscribeRoomEvents(ctx context.Context, roomID uuid.UUID) (chatsync.RoomEventStream, error) {
	req := &subscribeToRoomRequest{RoomID: chatsync.WireIDFrom(roomID)}
	stream, err := c.openStream(ctx, methodSubscribeToRoom, req)
	if err != nil {
		return nil, fmt.Errorf("subscribe room events %s: %w", roomID, err)
	}

	return &eventStream[chatsync.WireRoomEvent]{stream: stream}, nil
}

func (c *Client) openStream(ctx context.Context, method string, req any) (grpc.ClientStream, error) {
	stream, err := c.conn.NewStream(ctx, &eventStreamDesc, method, c.callOptions...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close send: %w", err)
	}

	return stream, nil
}

// eventStream adapts a server stream to the chatsync stream interfaces.
// RecvMsg already reports io.EOF on a clean end.
type eventStream[E any] struct {
	stream grpc.ClientStream
}

func (s *eventStream[E]) Recv() (E, error) {
	var event E
	if err := s.stream.RecvMsg(&event); err != nil {
		var zero E
		return zero, err
	}

	return event, nil
}
