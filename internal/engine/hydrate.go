package engine

import (
	"context"
	"fmt"

	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Hydrate performs the one-shot bootstrap of the session caches.
//
// It clears the Room cache, lists the owner's rooms, loads each room's history in
// service order, starts one room listener per room, and finally starts the membership
// listener. Hydrate returns only once every listener subscription is open. On failure
// it returns a *chatsync.HydrationError and leaves already written state in place;
// callers should retry with a fresh Engine.
func (e *Engine) Hydrate(ctx context.Context) (err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("hydrate: %w", chatsync.ErrEngineClosed)
	}
	if e.hydrated {
		e.mu.Unlock()
		return fmt.Errorf("hydrate: %w", chatsync.ErrAlreadyHydrated)
	}
	e.hydrated = true
	e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "chatsync.hydrate")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	e.seedSelf(ctx)
	e.caches.Rooms.Clear()

	wireRooms, err := e.remote.ListRooms(ctx)
	if err != nil {
		return &chatsync.HydrationError{
			Stage: chatsync.HydrationStageListRooms,
			Err:   fmt.Errorf("list rooms: %w", err),
		}
	}
	span.SetAttributes(attribute.Int("chatsync.rooms", len(wireRooms)))

	if e.cfg.hydrateConcurrency <= 1 {
		for _, wire := range wireRooms {
			room, err := decodeRoom(wire)
			if err != nil {
				return &chatsync.HydrationError{Stage: chatsync.HydrationStageListRooms, Err: err}
			}
			e.upsertRoom(ctx, room)
			if err := e.loadRoom(ctx, room.ID); err != nil {
				return err
			}
		}
	} else if err := e.loadRoomsConcurrently(ctx, wireRooms); err != nil {
		return err
	}

	if _, err := e.supervisor.startMembership(e.openMembership); err != nil {
		return &chatsync.HydrationError{Stage: chatsync.HydrationStageSubscribe, Err: err}
	}
	e.cfg.logger.InfoContext(ctx, "chatsync hydrated",
		"rooms", e.caches.Rooms.Len(),
		"messages", e.caches.Messages.Len(),
		"users", e.caches.Users.Len(),
	)

	return nil
}

// loadRoomsConcurrently upserts every room in listing order, then loads histories with
// bounded parallelism. Each room's history is still inserted in service order.
func (e *Engine) loadRoomsConcurrently(ctx context.Context, wireRooms []chatsync.WireRoom) error {
	rooms := make([]chatsync.Room, 0, len(wireRooms))
	for _, wire := range wireRooms {
		room, err := decodeRoom(wire)
		if err != nil {
			return &chatsync.HydrationError{Stage: chatsync.HydrationStageListRooms, Err: err}
		}
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		e.upsertRoom(ctx, room)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.hydrateConcurrency)
	for _, room := range rooms {
		roomID := room.ID
		group.Go(func() error {
			return e.loadRoom(groupCtx, roomID)
		})
	}

	return group.Wait()
}

// loadRoom fetches the history of one cached room and starts its listener.
// Errors are *chatsync.HydrationError.
func (e *Engine) loadRoom(ctx context.Context, roomID uuid.UUID) (err error) {
	ctx, span := e.tracer.Start(ctx, "chatsync.load_room",
		trace.WithAttributes(attribute.String("chatsync.room_id", roomID.String())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := e.loadHistory(ctx, roomID); err != nil {
		return err
	}

	started, err := e.supervisor.startRoom(roomID, e.roomOpener(roomID))
	if err != nil {
		return &chatsync.HydrationError{Stage: chatsync.HydrationStageSubscribe, RoomID: roomID, Err: err}
	}
	if !started {
		e.cfg.logger.DebugContext(ctx, "chatsync room listener already registered", "room_id", roomID)
	}

	return nil
}

// loadHistory inserts the room history in the order returned by the service.
// Every message is decoded before it is written, so a malformed entry never reaches
// the Message cache.
func (e *Engine) loadHistory(ctx context.Context, roomID uuid.UUID) error {
	wireMessages, err := e.remote.ListMessages(ctx, roomID)
	if err != nil {
		return &chatsync.HydrationError{
			Stage:  chatsync.HydrationStageListMessages,
			RoomID: roomID,
			Err:    fmt.Errorf("list messages: %w", err),
		}
	}

	for _, wire := range wireMessages {
		message, err := decodeMessage(wire, roomID)
		if err != nil {
			return &chatsync.HydrationError{Stage: chatsync.HydrationStageListMessages, RoomID: roomID, Err: err}
		}
		if err := e.storeMessage(ctx, message); err != nil {
			return &chatsync.HydrationError{Stage: chatsync.HydrationStageResolveSender, RoomID: roomID, Err: err}
		}
	}

	return nil
}
