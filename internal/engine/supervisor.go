package engine

import (
	"context"
	"fmt"
	"sync"

	"chatsync/internal/safe"
	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
)

// listenerRun is the receive loop of one opened subscription.
type listenerRun func(ctx context.Context) error

// listenerOpener opens the subscription of one listener under the listener context
// and returns its receive loop.
type listenerOpener func(ctx context.Context) (listenerRun, error)

// listenerHandle tracks one supervised listener goroutine.
type listenerHandle struct {
	scope  chatsync.ListenerScope
	roomID uuid.UUID
	done   chan struct{}

	mu      sync.Mutex
	running bool
	err     *chatsync.ListenerError
}

// name identifies the listener in recovered panics and logs.
func (h *listenerHandle) name() string {
	if h.scope == chatsync.ListenerScopeRoom {
		return "room listener " + h.roomID.String()
	}
	return string(h.scope) + " listener"
}

func (h *listenerHandle) finish(err *chatsync.ListenerError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	h.err = err
}

func (h *listenerHandle) status() chatsync.ListenerStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := chatsync.ListenerStatus{
		Scope:   h.scope,
		RoomID:  h.roomID,
		Running: h.running,
	}
	if h.err != nil {
		status.Err = h.err
	}

	return status
}

// supervisor owns every listener of one engine.
//
// A room is registered at most once for the lifetime of the engine, whether its
// listener is still running or has stopped, so no room is ever double-subscribed.
// All listener contexts derive from the supervisor context; shutdown cancels it and
// waits for every goroutine.
type supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	onStop func(*listenerHandle, *chatsync.ListenerError)

	mu         sync.Mutex
	closed     bool
	membership *listenerHandle
	rooms      map[uuid.UUID]*listenerHandle
	roomOrder  []uuid.UUID
	wg         sync.WaitGroup
}

func newSupervisor(onStop func(*listenerHandle, *chatsync.ListenerError)) *supervisor {
	ctx, cancel := context.WithCancel(context.Background())

	return &supervisor{
		ctx:    ctx,
		cancel: cancel,
		onStop: onStop,
		rooms:  make(map[uuid.UUID]*listenerHandle),
	}
}

// startRoom registers and starts the listener of roomID.
//
// It returns false without subscribing when the room is already registered. The
// subscription is opened before startRoom returns.
func (s *supervisor) startRoom(roomID uuid.UUID, open listenerOpener) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, chatsync.ErrEngineClosed
	}
	if _, exists := s.rooms[roomID]; exists {
		s.mu.Unlock()
		return false, nil
	}
	handle := s.newHandleLocked(chatsync.ListenerScopeRoom, roomID)
	s.rooms[roomID] = handle
	s.roomOrder = append(s.roomOrder, roomID)
	s.mu.Unlock()

	if err := s.launch(handle, open); err != nil {
		return false, fmt.Errorf("start room listener %s: %w", roomID, err)
	}

	return true, nil
}

// startMembership registers and starts the session-scoped listener once.
func (s *supervisor) startMembership(open listenerOpener) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, chatsync.ErrEngineClosed
	}
	if s.membership != nil {
		s.mu.Unlock()
		return false, nil
	}
	handle := s.newHandleLocked(chatsync.ListenerScopeMembership, uuid.Nil)
	s.membership = handle
	s.mu.Unlock()

	if err := s.launch(handle, open); err != nil {
		return false, fmt.Errorf("start membership listener: %w", err)
	}

	return true, nil
}

// newHandleLocked creates a running handle and reserves its goroutine slot.
// The caller must hold s.mu and have checked s.closed.
func (s *supervisor) newHandleLocked(scope chatsync.ListenerScope, roomID uuid.UUID) *listenerHandle {
	s.wg.Add(1)

	return &listenerHandle{
		scope:   scope,
		roomID:  roomID,
		done:    make(chan struct{}),
		running: true,
	}
}

// launch opens the subscription synchronously and runs its loop in a goroutine.
// On open failure the handle is recorded as stopped with the error.
func (s *supervisor) launch(handle *listenerHandle, open listenerOpener) error {
	ctx, cancel := context.WithCancel(s.ctx)

	run, err := open(ctx)
	if err != nil {
		cancel()
		listenerErr := &chatsync.ListenerError{Scope: handle.scope, RoomID: handle.roomID, Err: err}
		handle.finish(listenerErr)
		close(handle.done)
		s.wg.Done()
		return err
	}

	go func() {
		defer s.wg.Done()
		defer close(handle.done)
		defer cancel()

		runErr := safe.Run(handle.name(), func() error {
			return run(ctx)
		})
		// Failures observed after cancellation are shutdown noise, not listener faults.
		if runErr != nil && ctx.Err() != nil {
			runErr = nil
		}

		var listenerErr *chatsync.ListenerError
		if runErr != nil {
			listenerErr = &chatsync.ListenerError{Scope: handle.scope, RoomID: handle.roomID, Err: runErr}
		}
		handle.finish(listenerErr)
		if s.onStop != nil {
			s.onStop(handle, listenerErr)
		}
	}()

	return nil
}

// statuses returns the membership listener first, then rooms in registration order.
func (s *supervisor) statuses() []chatsync.ListenerStatus {
	s.mu.Lock()
	handles := make([]*listenerHandle, 0, len(s.roomOrder)+1)
	if s.membership != nil {
		handles = append(handles, s.membership)
	}
	for _, roomID := range s.roomOrder {
		handles = append(handles, s.rooms[roomID])
	}
	s.mu.Unlock()

	statuses := make([]chatsync.ListenerStatus, 0, len(handles))
	for _, handle := range handles {
		statuses = append(statuses, handle.status())
	}

	return statuses
}

// shutdown cancels every listener and waits for exit or ctx expiry.
func (s *supervisor) shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown listeners: %w", ctx.Err())
	}
}
