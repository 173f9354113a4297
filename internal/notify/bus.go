// Package notify delivers cache-change notifications from the synchronization engine
// to presentation code through bounded, independently drained subscriptions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"chatsync/internal/safe"
	"chatsync/pkg/chatsync"
)

// DefaultBuffer is the queue depth used when a subscription omits Buffer.
const DefaultBuffer = 64

// Bus is an asynchronous change pub/sub with one ordered worker per subscription.
type Bus struct {
	mu            sync.RWMutex
	nextID        int64
	closed        bool
	subscriptions map[int64]*subscription
	defaultBuffer int
	onAsyncError  func(context.Context, string, error)
}

// NewBus creates a change bus with bounded queues.
func NewBus(defaultBuffer int, onAsyncError func(context.Context, string, error)) *Bus {
	if defaultBuffer <= 0 {
		defaultBuffer = DefaultBuffer
	}

	return &Bus{
		subscriptions: make(map[int64]*subscription),
		defaultBuffer: defaultBuffer,
		onAsyncError:  onAsyncError,
	}
}

// Publish dispatches change to all matching subscribers.
//
// Drops and closed subscribers are reported to the async error sink rather than
// returned, so publishers are never failed by slow consumers.
func (b *Bus) Publish(ctx context.Context, change chatsync.Change) error {
	subs, err := b.snapshotSubscriptions()
	if err != nil {
		return fmt.Errorf("publish change %s: %w", change.Kind, err)
	}

	var publishErrs []error
	for _, sub := range subs {
		if !sub.spec.Matches(change) {
			continue
		}
		if err := sub.enqueue(ctx, change); err != nil {
			if errors.Is(err, chatsync.ErrChangeDropped) || errors.Is(err, chatsync.ErrSubscriptionClosed) {
				b.reportAsyncError(ctx, sub.spec.Name, err)
				continue
			}
			publishErrs = append(publishErrs, err)
		}
	}

	if len(publishErrs) > 0 {
		return fmt.Errorf("publish change %s: %w", change.Kind, errors.Join(publishErrs...))
	}

	return nil
}

// Subscribe registers a bounded asynchronous consumer.
func (b *Bus) Subscribe(
	ctx context.Context,
	spec chatsync.SubscriptionSpec,
	handler chatsync.ChangeHandler,
) (chatsync.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", spec.Name)
	}
	if spec.Buffer < 0 {
		return nil, fmt.Errorf("subscribe %s: negative buffer: %w", spec.Name, chatsync.ErrInvalidSubscription)
	}

	subID := atomic.AddInt64(&b.nextID, 1)
	spec = b.normalizeSpec(spec, subID)
	switch spec.Backpressure {
	case chatsync.BackpressureDropNewest, chatsync.BackpressureDropOldest, chatsync.BackpressureBlock:
	default:
		return nil, fmt.Errorf("subscribe %s: backpressure %q: %w", spec.Name, spec.Backpressure, chatsync.ErrInvalidSubscription)
	}
	sub := newSubscription(subID, spec, handler, b)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.signalClose()
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, chatsync.ErrSubscriptionClosed)
	}
	b.subscriptions[subID] = sub

	return sub, nil
}

// Close stops all active subscriptions and rejects further publishes/subscribes.
func (b *Bus) Close(ctx context.Context) error {
	subs := make([]*subscription, 0)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.subscriptions = make(map[int64]*subscription)
	b.mu.Unlock()

	var closeErrs []error
	for _, sub := range subs {
		if err := sub.shutdown(ctx); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}

	if len(closeErrs) > 0 {
		return fmt.Errorf("close change bus: %w", errors.Join(closeErrs...))
	}

	return nil
}

// snapshotSubscriptions returns a stable copy for lock-free publish fan-out.
func (b *Bus) snapshotSubscriptions() ([]*subscription, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, chatsync.ErrSubscriptionClosed
	}

	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}

	return subs, nil
}

func (b *Bus) normalizeSpec(spec chatsync.SubscriptionSpec, subID int64) chatsync.SubscriptionSpec {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("changes-%d", subID)
	}
	if spec.Buffer == 0 {
		spec.Buffer = b.defaultBuffer
	}
	if spec.Backpressure == "" {
		spec.Backpressure = chatsync.BackpressureDropNewest
	}
	if len(spec.Kinds) > 0 {
		spec.Kinds = append([]chatsync.ChangeKind(nil), spec.Kinds...)
	}

	return spec
}

func (b *Bus) unsubscribe(ctx context.Context, subID int64) error {
	b.mu.Lock()
	sub, found := b.subscriptions[subID]
	if found {
		delete(b.subscriptions, subID)
	}
	b.mu.Unlock()

	if !found {
		return nil
	}

	if err := sub.shutdown(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub.spec.Name, err)
	}

	return nil
}

func (b *Bus) reportAsyncError(ctx context.Context, scope string, err error) {
	if b.onAsyncError != nil {
		b.onAsyncError(ctx, scope, err)
	}
}

// subscription owns the queue and worker lifecycle of one consumer.
// Queue closure is driven by context cancellation rather than channel close.
type subscription struct {
	id      int64
	spec    chatsync.SubscriptionSpec
	handler chatsync.ChangeHandler
	queue   chan chatsync.Change
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	closed  atomic.Bool
	once    sync.Once
	bus     *Bus
}

func newSubscription(subID int64, spec chatsync.SubscriptionSpec, handler chatsync.ChangeHandler, bus *Bus) *subscription {
	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:      subID,
		spec:    spec,
		handler: handler,
		queue:   make(chan chatsync.Change, spec.Buffer),
		ctx:     subCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
		bus:     bus,
	}

	go sub.run()

	return sub
}

// Name returns the stable subscription name.
func (s *subscription) Name() string {
	return s.spec.Name
}

// Close unregisters this subscription from its parent bus.
func (s *subscription) Close(ctx context.Context) error {
	return s.bus.unsubscribe(ctx, s.id)
}

func (s *subscription) enqueue(ctx context.Context, change chatsync.Change) error {
	if s.closed.Load() {
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, chatsync.ErrSubscriptionClosed)
	}

	switch s.spec.Backpressure {
	case chatsync.BackpressureDropNewest:
		return s.enqueueDropNewest(change)
	case chatsync.BackpressureDropOldest:
		return s.enqueueDropOldest(change)
	case chatsync.BackpressureBlock:
		return s.enqueueBlock(ctx, change)
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, chatsync.ErrInvalidSubscription)
	}
}

func (s *subscription) enqueueDropNewest(change chatsync.Change) error {
	select {
	case s.queue <- change:
		return nil
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, chatsync.ErrChangeDropped)
	}
}

func (s *subscription) enqueueDropOldest(change chatsync.Change) error {
	select {
	case s.queue <- change:
		return nil
	default:
	}

	select {
	case <-s.queue:
	default:
	}

	select {
	case s.queue <- change:
		return nil
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, chatsync.ErrChangeDropped)
	}
}

func (s *subscription) enqueueBlock(ctx context.Context, change chatsync.Change) error {
	select {
	case s.queue <- change:
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, chatsync.ErrSubscriptionClosed)
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, ctx.Err())
	}
}

// run drains the queue in order until the subscription is closed.
func (s *subscription) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case change := <-s.queue:
			scope := "change subscription " + s.spec.Name
			if err := safe.Run(scope, func() error {
				return s.handler(s.ctx, change)
			}); err != nil {
				s.bus.reportAsyncError(s.ctx, s.spec.Name, fmt.Errorf("handle change %s: %w", change.Kind, err))
			}
		}
	}
}

func (s *subscription) signalClose() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

// shutdown waits for worker exit or returns when the supplied context expires.
func (s *subscription) shutdown(ctx context.Context) error {
	s.signalClose()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown subscription %s: %w", s.spec.Name, ctx.Err())
	}
}
