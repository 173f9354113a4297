package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
)

// roomOpener subscribes to one room stream and returns its receive loop.
func (e *Engine) roomOpener(roomID uuid.UUID) listenerOpener {
	return func(ctx context.Context) (listenerRun, error) {
		stream, err := e.remote.SubscribeRoomEvents(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("subscribe room events: %w", err)
		}

		return func(ctx context.Context) error {
			return e.consumeRoomEvents(ctx, roomID, stream)
		}, nil
	}
}

// consumeRoomEvents applies room events in delivery order until the stream ends,
// the listener is cancelled, or an event fails.
func (e *Engine) consumeRoomEvents(ctx context.Context, roomID uuid.UUID, stream chatsync.RoomEventStream) error {
	for {
		event, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive room event: %w", err)
		}
		if err := e.handleRoomEvent(ctx, roomID, event); err != nil {
			return err
		}
	}
}

func (e *Engine) handleRoomEvent(ctx context.Context, roomID uuid.UUID, event chatsync.WireRoomEvent) error {
	if event.NewMessage == nil {
		return fmt.Errorf("room event: %w", chatsync.ErrMissingEvent)
	}

	message, err := decodeMessage(*event.NewMessage, roomID)
	if err != nil {
		return fmt.Errorf("room event: %w", err)
	}
	if err := e.storeMessage(ctx, message); err != nil {
		return fmt.Errorf("room event: %w", err)
	}

	return nil
}
