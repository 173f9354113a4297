package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (e *Engine) openMembership(ctx context.Context) (listenerRun, error) {
	stream, err := e.remote.SubscribeUserEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe user events: %w", err)
	}

	return func(ctx context.Context) error {
		return e.consumeUserEvents(ctx, stream)
	}, nil
}

// consumeUserEvents processes membership events sequentially. Any handling failure,
// including a failed bootstrap of a newly joined room, stops the membership listener.
func (e *Engine) consumeUserEvents(ctx context.Context, stream chatsync.UserEventStream) error {
	for {
		event, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive user event: %w", err)
		}
		if err := e.handleUserEvent(ctx, event); err != nil {
			return err
		}
	}
}

func (e *Engine) handleUserEvent(ctx context.Context, event chatsync.WireUserEvent) error {
	if event.AddedToRoom == nil {
		return fmt.Errorf("user event: %w", chatsync.ErrMissingEvent)
	}
	roomID, err := parseID("added_to_room", "room_id", event.AddedToRoom.RoomID)
	if err != nil {
		return fmt.Errorf("user event: %w", err)
	}

	return e.addedToRoom(ctx, roomID)
}

// addedToRoom bootstraps a newly joined room exactly like hydration does. A room that
// is already cached is left untouched so duplicate notifications never resubscribe.
func (e *Engine) addedToRoom(ctx context.Context, roomID uuid.UUID) (err error) {
	if e.caches.Rooms.Contains(roomID) {
		e.cfg.logger.DebugContext(ctx, "chatsync room already cached", "room_id", roomID)
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "chatsync.membership.added_to_room",
		trace.WithAttributes(attribute.String("chatsync.room_id", roomID.String())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	wire, err := e.remote.LookupRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("lookup room %s: %w", roomID, err)
	}
	room, err := decodeRoom(wire)
	if err != nil {
		return fmt.Errorf("lookup room %s: %w", roomID, err)
	}
	if room.ID != roomID {
		return fmt.Errorf("lookup room %s: %w", roomID,
			&chatsync.PayloadError{Entity: "room", Field: "id", Err: chatsync.ErrRoomMismatch})
	}

	e.upsertRoom(ctx, room)
	if err := e.loadRoom(ctx, roomID); err != nil {
		return fmt.Errorf("bootstrap room %s: %w", roomID, err)
	}
	e.cfg.logger.InfoContext(ctx, "chatsync joined room", "room_id", roomID, "name", room.Name)

	return nil
}
