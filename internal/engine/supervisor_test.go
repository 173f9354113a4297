package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatsync/internal/safe"
	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
)

func blockingOpener(started chan<- struct{}) listenerOpener {
	return func(context.Context) (listenerRun, error) {
		return func(ctx context.Context) error {
			if started != nil {
				started <- struct{}{}
			}
			<-ctx.Done()
			return ctx.Err()
		}, nil
	}
}

func TestSupervisorRegistersRoomOnce(t *testing.T) {
	t.Parallel()

	sup := newSupervisor(nil)
	t.Cleanup(func() {
		_ = sup.shutdown(context.Background())
	})

	roomID := uuid.New()
	opens := 0
	open := func(ctx context.Context) (listenerRun, error) {
		opens++
		return blockingOpener(nil)(ctx)
	}

	started, err := sup.startRoom(roomID, open)
	if err != nil || !started {
		t.Fatalf("first start = %v, %v; want true, nil", started, err)
	}
	started, err = sup.startRoom(roomID, open)
	if err != nil || started {
		t.Fatalf("second start = %v, %v; want false, nil", started, err)
	}
	if opens != 1 {
		t.Fatalf("opens = %d, want 1", opens)
	}
}

func TestSupervisorReportsFailuresPerListener(t *testing.T) {
	t.Parallel()

	stopped := make(chan *chatsync.ListenerError, 2)
	sup := newSupervisor(func(_ *listenerHandle, err *chatsync.ListenerError) {
		stopped <- err
	})
	t.Cleanup(func() {
		_ = sup.shutdown(context.Background())
	})

	healthy := uuid.New()
	if _, err := sup.startRoom(healthy, blockingOpener(nil)); err != nil {
		t.Fatalf("start healthy room failed: %v", err)
	}

	boom := errors.New("boom")
	failing := uuid.New()
	if _, err := sup.startRoom(failing, func(context.Context) (listenerRun, error) {
		return func(context.Context) error { return boom }, nil
	}); err != nil {
		t.Fatalf("start failing room failed: %v", err)
	}

	panicking := uuid.New()
	if _, err := sup.startRoom(panicking, func(context.Context) (listenerRun, error) {
		return func(context.Context) error { panic("listener bug") }, nil
	}); err != nil {
		t.Fatalf("start panicking room failed: %v", err)
	}

	failures := map[uuid.UUID]*chatsync.ListenerError{}
	for len(failures) < 2 {
		select {
		case err := <-stopped:
			failures[err.RoomID] = err
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for listener failures")
		}
	}
	if !errors.Is(failures[failing], boom) {
		t.Fatalf("failing room error = %v, want boom", failures[failing])
	}
	var panicErr *safe.PanicError
	if !errors.As(failures[panicking], &panicErr) {
		t.Fatalf("panicking room error = %v, want recovered panic", failures[panicking])
	}
	if want := "room listener " + panicking.String(); panicErr.Scope != want {
		t.Fatalf("panic scope = %q, want %q", panicErr.Scope, want)
	}

	statuses := sup.statuses()
	if len(statuses) != 3 {
		t.Fatalf("statuses = %d, want 3", len(statuses))
	}
	if !statuses[0].Running || statuses[0].RoomID != healthy {
		t.Fatalf("healthy status = %+v", statuses[0])
	}
}

func TestSupervisorOpenFailureIsRecorded(t *testing.T) {
	t.Parallel()

	sup := newSupervisor(nil)
	t.Cleanup(func() {
		_ = sup.shutdown(context.Background())
	})

	refused := errors.New("refused")
	roomID := uuid.New()
	if _, err := sup.startRoom(roomID, func(context.Context) (listenerRun, error) {
		return nil, refused
	}); !errors.Is(err, refused) {
		t.Fatalf("start error = %v, want refused", err)
	}

	statuses := sup.statuses()
	if len(statuses) != 1 || statuses[0].Running || !errors.Is(statuses[0].Err, refused) {
		t.Fatalf("statuses = %+v", statuses)
	}
	if started, err := sup.startRoom(roomID, blockingOpener(nil)); started || err != nil {
		t.Fatalf("restart = %v, %v; want stopped room to stay registered", started, err)
	}
}

func TestSupervisorShutdownCancelsListeners(t *testing.T) {
	t.Parallel()

	clean := make(chan bool, 2)
	sup := newSupervisor(func(_ *listenerHandle, err *chatsync.ListenerError) {
		clean <- err == nil
	})

	started := make(chan struct{}, 2)
	if _, err := sup.startMembership(blockingOpener(started)); err != nil {
		t.Fatalf("start membership failed: %v", err)
	}
	if _, err := sup.startRoom(uuid.New(), blockingOpener(started)); err != nil {
		t.Fatalf("start room failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		<-started
	}

	if err := sup.shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if !<-clean {
			t.Fatal("cancelled listener reported a failure")
		}
	}
	for _, status := range sup.statuses() {
		if status.Running {
			t.Fatalf("listener %s still running", status.Scope)
		}
	}
	if _, err := sup.startRoom(uuid.New(), blockingOpener(nil)); !errors.Is(err, chatsync.ErrEngineClosed) {
		t.Fatalf("start after shutdown = %v, want ErrEngineClosed", err)
	}
}
