// Package engine keeps the session caches synchronized with the chat service.
//
// An Engine hydrates rooms and their history once, then supervises one listener per
// room plus one session-scoped membership listener. Listeners mutate the shared caches
// concurrently with any number of readers; a failing listener stops only itself.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chatsync/internal/cache"
	"chatsync/internal/notify"
	"chatsync/pkg/chatsync"

	"go.opentelemetry.io/otel/trace"
)

// Engine is the live cache synchronization engine of one authenticated session.
type Engine struct {
	cfg     config
	remote  chatsync.Remote
	session chatsync.Session
	caches  *cache.Caches
	tracer  trace.Tracer

	resolver   *SenderResolver
	supervisor *supervisor
	bus        *notify.Bus

	mu       sync.Mutex
	hydrated bool
	closed   bool
}

// New creates an engine bound to remote and session. Nothing is fetched until Hydrate.
func New(remote chatsync.Remote, session chatsync.Session, options ...Option) (*Engine, error) {
	if remote == nil {
		return nil, fmt.Errorf("new engine: nil remote")
	}
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}

	cfg := resolveConfig(options)

	e := &Engine{
		cfg:     cfg,
		remote:  remote,
		session: session,
		caches:  cache.New(),
		tracer:  cfg.tracerProvider.Tracer(tracerName),
	}
	e.bus = notify.NewBus(cfg.changeBuffer, func(ctx context.Context, scope string, err error) {
		cfg.logger.WarnContext(ctx, "chatsync change delivery failed", "subscription", scope, "error", err)
	})
	e.supervisor = newSupervisor(e.listenerStopped)
	e.resolver = newSenderResolver(
		e.supervisor.ctx,
		remote,
		e.caches.Users,
		session,
		cfg.lookupTimeout,
		e.tracer,
		func(ctx context.Context, user chatsync.User) {
			e.publish(ctx, chatsync.Change{Kind: chatsync.ChangeUserUpserted, EntityID: user.ID})
		},
	)

	return e, nil
}

// Caches exposes the session caches for read-mostly consumers such as rendering.
func (e *Engine) Caches() *cache.Caches {
	return e.caches
}

// Session returns the session the engine synchronizes for.
func (e *Engine) Session() chatsync.Session {
	return e.session
}

// Self returns the session owner's user record.
func (e *Engine) Self() chatsync.User {
	return e.session.Self()
}

// Resolver returns the shared sender resolver.
func (e *Engine) Resolver() *SenderResolver {
	return e.resolver
}

// Listeners returns a diagnostic snapshot of every supervised listener.
func (e *Engine) Listeners() []chatsync.ListenerStatus {
	return e.supervisor.statuses()
}

// Subscribe registers a consumer of cache-change notifications.
func (e *Engine) Subscribe(
	ctx context.Context,
	spec chatsync.SubscriptionSpec,
	handler chatsync.ChangeHandler,
) (chatsync.Subscription, error) {
	subscription, err := e.bus.Subscribe(ctx, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("subscribe changes: %w", err)
	}

	return subscription, nil
}

// Close cancels every listener, waits for them to exit, and closes change delivery.
// It is idempotent.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var closeErr error
	if err := e.supervisor.shutdown(ctx); err != nil {
		closeErr = errors.Join(closeErr, err)
	}
	if err := e.bus.Close(ctx); err != nil {
		closeErr = errors.Join(closeErr, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close engine: %w", closeErr)
	}

	return nil
}

func (e *Engine) upsertRoom(ctx context.Context, room chatsync.Room) {
	e.caches.Rooms.Upsert(room.ID, room)
	e.publish(ctx, chatsync.Change{Kind: chatsync.ChangeRoomUpserted, RoomID: room.ID, EntityID: room.ID})
}

// storeMessage writes message to the Message cache and resolves its sender.
// The message change is published only after resolution has finished, so a
// subscriber that sees it can already look the sender up when the lookup succeeded.
func (e *Engine) storeMessage(ctx context.Context, message chatsync.Message) error {
	e.caches.Messages.Upsert(message.ID, message)
	resolveErr := e.resolver.EnsureUserCached(ctx, message.SenderID)
	e.publish(ctx, chatsync.Change{Kind: chatsync.ChangeMessageUpserted, RoomID: message.RoomID, EntityID: message.ID})

	return resolveErr
}

func (e *Engine) seedSelf(ctx context.Context) {
	self := e.session.Self()
	e.caches.Users.Upsert(self.ID, self)
	e.publish(ctx, chatsync.Change{Kind: chatsync.ChangeUserUpserted, EntityID: self.ID})
}

// publish never fails the caller; delivery problems are logged.
func (e *Engine) publish(ctx context.Context, change chatsync.Change) {
	if err := e.bus.Publish(ctx, change); err != nil {
		e.cfg.logger.DebugContext(ctx, "chatsync change not published", "kind", change.Kind, "error", err)
	}
}

func (e *Engine) listenerStopped(handle *listenerHandle, err *chatsync.ListenerError) {
	ctx := context.Background()
	change := chatsync.Change{Kind: chatsync.ChangeListenerStopped, RoomID: handle.roomID}
	if err != nil {
		change.Err = err
		e.cfg.onListenerError(ctx, err)
	} else {
		e.cfg.logger.InfoContext(ctx, "chatsync listener finished", "scope", handle.scope, "room_id", handle.roomID)
	}
	e.publish(ctx, change)
}
