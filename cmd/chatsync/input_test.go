package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"chatsync/internal/cache"
	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
)

type postedMessage struct {
	roomID uuid.UUID
	text   string
}

type recordingPoster struct {
	mu     sync.Mutex
	posted []postedMessage
	err    error
}

func (p *recordingPoster) SendMessage(_ context.Context, roomID uuid.UUID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.posted = append(p.posted, postedMessage{roomID: roomID, text: text})
	return nil
}

func TestComposerPostsToSelectedRoom(t *testing.T) {
	t.Parallel()

	general := chatsync.Room{ID: uuid.New(), Name: "general"}
	random := chatsync.Room{ID: uuid.New(), Name: "random"}

	tests := []struct {
		name       string
		rooms      []chatsync.Room
		input      string
		posterErr  error
		wantPosted []postedMessage
		wantOutput string
	}{
		{
			name:       "first room is the default target",
			rooms:      []chatsync.Room{general, random},
			input:      "hello\n",
			wantPosted: []postedMessage{{roomID: general.ID, text: "hello"}},
		},
		{
			name:  "room command switches target",
			rooms: []chatsync.Room{general, random},
			input: "/room random\nhi random\n",
			wantPosted: []postedMessage{
				{roomID: random.ID, text: "hi random"},
			},
			wantOutput: "posting to room random",
		},
		{
			name:       "blank lines are ignored",
			rooms:      []chatsync.Room{general},
			input:      "\n   \n",
			wantPosted: nil,
		},
		{
			name:       "unknown room keeps previous target",
			rooms:      []chatsync.Room{general},
			input:      "/room nope\nstill here\n",
			wantPosted: []postedMessage{{roomID: general.ID, text: "still here"}},
			wantOutput: `error: no room named "nope"`,
		},
		{
			name:       "no rooms",
			input:      "hello\n",
			wantOutput: "error: no room to post to",
		},
		{
			name:       "post failure is reported and input continues",
			rooms:      []chatsync.Room{general},
			input:      "one\ntwo\n",
			posterErr:  errors.New("unavailable"),
			wantOutput: "error: post to general: unavailable",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			caches := cache.New()
			for _, room := range testCase.rooms {
				caches.Rooms.Upsert(room.ID, room)
			}
			poster := &recordingPoster{err: testCase.posterErr}
			var out bytes.Buffer

			input := newComposer(poster, caches.Rooms, &out)
			if err := input.run(context.Background(), strings.NewReader(testCase.input)); err != nil {
				t.Fatalf("run failed: %v", err)
			}

			if len(poster.posted) != len(testCase.wantPosted) {
				t.Fatalf("posted = %+v, want %+v", poster.posted, testCase.wantPosted)
			}
			for i, want := range testCase.wantPosted {
				if poster.posted[i] != want {
					t.Fatalf("posted[%d] = %+v, want %+v", i, poster.posted[i], want)
				}
			}
			if testCase.wantOutput != "" && !strings.Contains(out.String(), testCase.wantOutput) {
				t.Fatalf("output = %q, want substring %q", out.String(), testCase.wantOutput)
			}
			if testCase.posterErr != nil && strings.Count(out.String(), "error:") != 2 {
				t.Fatalf("output = %q, want one error per line", out.String())
			}
			if caches.Messages.Len() != 0 {
				t.Fatal("posting wrote to the message cache")
			}
		})
	}
}
