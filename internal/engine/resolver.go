package engine

import (
	"context"
	"fmt"
	"time"

	"chatsync/internal/cache"
	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// SenderResolver lazily populates the User cache from message sender identifiers.
//
// The cache lock is taken only for the membership check and for the final upsert,
// never across the remote lookup. Concurrent callers for one unseen sender share a
// single lookup; the shared call runs under the engine lifetime context so one caller
// giving up never fails the others.
type SenderResolver struct {
	remote   chatsync.Remote
	users    *cache.Store[chatsync.User]
	session  chatsync.Session
	base     context.Context
	timeout  time.Duration
	tracer   trace.Tracer
	onUpsert func(context.Context, chatsync.User)

	lookups singleflight.Group
}

func newSenderResolver(
	base context.Context,
	remote chatsync.Remote,
	users *cache.Store[chatsync.User],
	session chatsync.Session,
	timeout time.Duration,
	tracer trace.Tracer,
	onUpsert func(context.Context, chatsync.User),
) *SenderResolver {
	return &SenderResolver{
		remote:   remote,
		users:    users,
		session:  session,
		base:     base,
		timeout:  timeout,
		tracer:   tracer,
		onUpsert: onUpsert,
	}
}

// EnsureUserCached makes sure senderID has a User cache entry.
//
// The session owner is never looked up remotely.
func (r *SenderResolver) EnsureUserCached(ctx context.Context, senderID uuid.UUID) error {
	if r.session.IsSelf(senderID) {
		return nil
	}
	if r.users.Contains(senderID) {
		return nil
	}

	span := trace.SpanFromContext(ctx)
	resultCh := r.lookups.DoChan(senderID.String(), func() (any, error) {
		if r.users.Contains(senderID) {
			return nil, nil
		}
		lookupCtx, cancel := context.WithTimeout(trace.ContextWithSpan(r.base, span), r.timeout)
		defer cancel()

		return nil, r.fetch(lookupCtx, senderID)
	})

	select {
	case result := <-resultCh:
		if result.Err != nil {
			return &chatsync.LookupError{UserID: senderID, Err: result.Err}
		}
		return nil
	case <-ctx.Done():
		return &chatsync.LookupError{UserID: senderID, Err: ctx.Err()}
	}
}

func (r *SenderResolver) fetch(ctx context.Context, senderID uuid.UUID) (err error) {
	ctx, span := r.tracer.Start(ctx, "chatsync.lookup_user",
		trace.WithAttributes(attribute.String("chatsync.user_id", senderID.String())),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	wire, err := r.remote.LookupUser(ctx, senderID)
	if err != nil {
		return fmt.Errorf("remote lookup: %w", err)
	}
	user, err := decodeUser(wire, senderID)
	if err != nil {
		return fmt.Errorf("decode user: %w", err)
	}

	r.users.Upsert(user.ID, user)
	if r.onUpsert != nil {
		r.onUpsert(ctx, user)
	}

	return nil
}
