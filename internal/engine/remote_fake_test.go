package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/timestamppb"
)

type streamItem[E any] struct {
	event E
	err   error
}

// fakeStream replays queued items and blocks on the subscription context otherwise.
// A closed item channel ends the stream with io.EOF.
type fakeStream[E any] struct {
	ctx   context.Context
	items <-chan streamItem[E]
}

func (s *fakeStream[E]) Recv() (E, error) {
	var zero E
	select {
	case item, ok := <-s.items:
		if !ok {
			return zero, io.EOF
		}
		return item.event, item.err
	case <-s.ctx.Done():
		return zero, s.ctx.Err()
	}
}

// fakeRemote is an in-memory chat service with call accounting.
type fakeRemote struct {
	mu sync.Mutex

	rooms    []chatsync.WireRoom
	roomMeta map[uuid.UUID]chatsync.WireRoom
	history  map[uuid.UUID][]chatsync.WireMessage
	users    map[uuid.UUID]chatsync.WireUser

	listRoomsErr error
	subscribeErr map[uuid.UUID]error
	lookupHook   func(uuid.UUID)

	lookupUserCalls map[uuid.UUID]int
	roomSubscribes  map[uuid.UUID]int
	userSubscribes  int

	roomStreams map[uuid.UUID]chan streamItem[chatsync.WireRoomEvent]
	userStream  chan streamItem[chatsync.WireUserEvent]
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		roomMeta:        make(map[uuid.UUID]chatsync.WireRoom),
		history:         make(map[uuid.UUID][]chatsync.WireMessage),
		users:           make(map[uuid.UUID]chatsync.WireUser),
		subscribeErr:    make(map[uuid.UUID]error),
		lookupUserCalls: make(map[uuid.UUID]int),
		roomSubscribes:  make(map[uuid.UUID]int),
		roomStreams:     make(map[uuid.UUID]chan streamItem[chatsync.WireRoomEvent]),
		userStream:      make(chan streamItem[chatsync.WireUserEvent], 16),
	}
}

// addRoom registers a room the session owner already belongs to.
func (r *fakeRemote) addRoom(name string, messages ...chatsync.WireMessage) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID := uuid.New()
	wire := chatsync.WireRoom{ID: chatsync.WireIDFrom(roomID), Name: name}
	r.rooms = append(r.rooms, wire)
	r.roomMeta[roomID] = wire
	r.history[roomID] = messages

	return roomID
}

// addJoinableRoom registers a room that is only reachable through LookupRoom.
func (r *fakeRemote) addJoinableRoom(roomID uuid.UUID, name string, messages ...chatsync.WireMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.roomMeta[roomID] = chatsync.WireRoom{ID: chatsync.WireIDFrom(roomID), Name: name}
	r.history[roomID] = messages
}

func (r *fakeRemote) setHistory(roomID uuid.UUID, messages ...chatsync.WireMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[roomID] = messages
}

func (r *fakeRemote) addUser(username string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID := uuid.New()
	r.users[userID] = chatsync.WireUser{ID: chatsync.WireIDFrom(userID), Username: username}

	return userID
}

func (r *fakeRemote) roomChannelLocked(roomID uuid.UUID) chan streamItem[chatsync.WireRoomEvent] {
	ch, ok := r.roomStreams[roomID]
	if !ok {
		ch = make(chan streamItem[chatsync.WireRoomEvent], 16)
		r.roomStreams[roomID] = ch
	}

	return ch
}

func (r *fakeRemote) pushRoomEvent(roomID uuid.UUID, event chatsync.WireRoomEvent) {
	r.mu.Lock()
	ch := r.roomChannelLocked(roomID)
	r.mu.Unlock()
	ch <- streamItem[chatsync.WireRoomEvent]{event: event}
}

func (r *fakeRemote) endRoomStream(roomID uuid.UUID) {
	r.mu.Lock()
	ch := r.roomChannelLocked(roomID)
	r.mu.Unlock()
	close(ch)
}

func (r *fakeRemote) pushUserEvent(event chatsync.WireUserEvent) {
	r.userStream <- streamItem[chatsync.WireUserEvent]{event: event}
}

func (r *fakeRemote) lookups(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupUserCalls[userID]
}

func (r *fakeRemote) subscribes(roomID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomSubscribes[roomID]
}

func (r *fakeRemote) ListRooms(context.Context) ([]chatsync.WireRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listRoomsErr != nil {
		return nil, r.listRoomsErr
	}

	return append([]chatsync.WireRoom(nil), r.rooms...), nil
}

func (r *fakeRemote) ListMessages(_ context.Context, roomID uuid.UUID) ([]chatsync.WireMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]chatsync.WireMessage(nil), r.history[roomID]...), nil
}

func (r *fakeRemote) LookupUser(_ context.Context, userID uuid.UUID) (chatsync.WireUser, error) {
	r.mu.Lock()
	r.lookupUserCalls[userID]++
	hook := r.lookupHook
	user, ok := r.users[userID]
	r.mu.Unlock()

	if hook != nil {
		hook(userID)
	}
	if !ok {
		return chatsync.WireUser{}, io.ErrUnexpectedEOF
	}

	return user, nil
}

func (r *fakeRemote) LookupRoom(_ context.Context, roomID uuid.UUID) (chatsync.WireRoom, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.roomMeta[roomID]
	if !ok {
		return chatsync.WireRoom{}, io.ErrUnexpectedEOF
	}

	return room, nil
}

func (r *fakeRemote) SubscribeUserEvents(ctx context.Context) (chatsync.UserEventStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userSubscribes++

	return &fakeStream[chatsync.WireUserEvent]{ctx: ctx, items: r.userStream}, nil
}

func (r *fakeRemote) SubscribeRoomEvents(ctx context.Context, roomID uuid.UUID) (chatsync.RoomEventStream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.roomSubscribes[roomID]++
	if err := r.subscribeErr[roomID]; err != nil {
		return nil, err
	}

	return &fakeStream[chatsync.WireRoomEvent]{ctx: ctx, items: r.roomChannelLocked(roomID)}, nil
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func wireMessage(roomID, senderID uuid.UUID, text string, offset time.Duration) chatsync.WireMessage {
	return chatsync.WireMessage{
		ID:        chatsync.WireIDFrom(uuid.New()),
		RoomID:    chatsync.WireIDFrom(roomID),
		SenderID:  chatsync.WireIDFrom(senderID),
		Text:      text,
		Timestamp: timestamppb.New(baseTime.Add(offset)),
	}
}

func testSession() chatsync.Session {
	return chatsync.Session{UserID: uuid.New(), Username: "alice", Token: "token-alice"}
}

func newTestEngine(t *testing.T, remote chatsync.Remote, session chatsync.Session, options ...Option) *Engine {
	t.Helper()

	eng, err := New(remote, session, append([]Option{WithLogger(quietLogger())}, options...)...)
	if err != nil {
		t.Fatalf("new engine failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Close(ctx); err != nil {
			t.Errorf("close engine failed: %v", err)
		}
	})

	return eng
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatal("condition not met before timeout")
}
