package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"chatsync/internal/engine"
	"chatsync/internal/platform/otel"
	"chatsync/internal/transport/grpcremote"
	"chatsync/internal/view"
	"chatsync/pkg/chatsync"
)

const serviceName = "chatsync"

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logs go to stderr so the console view owns stdout.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, serviceName, cfg.otel)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("flush traces failed", "error", err)
		}
	}()

	auth := grpcremote.NewTokenAuth()
	conn, err := grpcremote.Dial(cfg.dial, auth)
	if err != nil {
		return fmt.Errorf("dial chat service: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("close chat connection failed", "error", err)
		}
	}()

	loginCtx, cancelLogin := context.WithTimeout(ctx, cfg.loginTimeout)
	session, err := grpcremote.Login(loginCtx, conn, cfg.username, cfg.password)
	cancelLogin()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	auth.SetToken(session.Token)
	logger.Info("chatsync logged in", "username", session.Username, "user_id", session.UserID)

	client := grpcremote.NewClient(conn, grpcremote.WithCallTimeout(cfg.callTimeout))
	eng, err := engine.New(
		client,
		session,
		engine.WithLogger(logger),
		engine.WithHydrateConcurrency(cfg.hydrateConcurrency),
		engine.WithLookupTimeout(cfg.lookupTimeout),
		engine.WithChangeBuffer(cfg.changeBuffer),
	)
	if err != nil {
		return fmt.Errorf("new engine: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
		defer cancel()
		if err := eng.Close(shutdownCtx); err != nil {
			logger.Warn("close engine failed", "error", err)
		}
	}()

	if err := eng.Hydrate(ctx); err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}
	if err := view.Render(os.Stdout, eng.Caches(), session.UserID); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	out := newConsole(os.Stdout, eng)
	if _, err := eng.Subscribe(ctx, chatsync.SubscriptionSpec{
		Name: "console",
		Kinds: []chatsync.ChangeKind{
			chatsync.ChangeRoomUpserted,
			chatsync.ChangeMessageUpserted,
			chatsync.ChangeListenerStopped,
		},
	}, out.handle); err != nil {
		return fmt.Errorf("subscribe console: %w", err)
	}

	// Stdin blocks past shutdown, so the reader is not joined.
	input := newComposer(client, eng.Caches().Rooms, os.Stdout)
	go func() {
		if err := input.run(ctx, os.Stdin); err != nil {
			logger.Warn("console input stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("chatsync shutting down")

	return nil
}

// console prints live cache changes.
type console struct {
	mu  sync.Mutex
	w   io.Writer
	eng *engine.Engine
}

func newConsole(w io.Writer, eng *engine.Engine) *console {
	return &console{w: w, eng: eng}
}

func (c *console) handle(_ context.Context, change chatsync.Change) error {
	line, ok := c.format(change)
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.w, line); err != nil {
		return fmt.Errorf("write console: %w", err)
	}

	return nil
}

func (c *console) format(change chatsync.Change) (string, bool) {
	caches := c.eng.Caches()

	switch change.Kind {
	case chatsync.ChangeRoomUpserted:
		room, ok := caches.Rooms.Get(change.RoomID)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("joined room %s", room.Name), true
	case chatsync.ChangeMessageUpserted:
		message, ok := caches.Messages.Get(change.EntityID)
		if !ok {
			return "", false
		}
		roomName := change.RoomID.String()
		if room, ok := caches.Rooms.Get(change.RoomID); ok {
			roomName = room.Name
		}
		return fmt.Sprintf("[%s]%s", roomName, view.MessageLine(caches.Users, message, c.eng.Self().ID)), true
	case chatsync.ChangeListenerStopped:
		if change.Err == nil {
			return "", false
		}
		return fmt.Sprintf("stopped syncing: %v", change.Err), true
	default:
		return "", false
	}
}
