package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"chatsync/internal/cache"
	"chatsync/pkg/chatsync"

	"github.com/google/uuid"
)

const roomCommand = "/room"

// composer turns console input lines into posted messages.
//
// "/room <name>" selects the target room; any other non-empty line is posted to it.
// Until a room is selected, the first cached room is the target. Posted messages are
// not written to the caches; they appear once the room listener receives them.
type composer struct {
	poster chatsync.MessagePoster
	rooms  *cache.Store[chatsync.Room]
	out    io.Writer

	mu       sync.Mutex
	selected uuid.UUID
}

func newComposer(poster chatsync.MessagePoster, rooms *cache.Store[chatsync.Room], out io.Writer) *composer {
	return &composer{poster: poster, rooms: rooms, out: out}
}

// run reads lines from in until EOF or ctx cancellation. Failed posts are reported
// on out and do not stop input.
func (c *composer) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.handleLine(ctx, scanner.Text()); err != nil {
			if _, writeErr := fmt.Fprintf(c.out, "error: %v\n", err); writeErr != nil {
				return fmt.Errorf("write console: %w", writeErr)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	return nil
}

func (c *composer) handleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if name, ok := strings.CutPrefix(line, roomCommand); ok && (name == "" || name[0] == ' ') {
		return c.selectRoom(strings.TrimSpace(name))
	}

	room, err := c.target()
	if err != nil {
		return err
	}
	if err := c.poster.SendMessage(ctx, room.ID, line); err != nil {
		return fmt.Errorf("post to %s: %w", room.Name, err)
	}

	return nil
}

func (c *composer) selectRoom(name string) error {
	if name == "" {
		return errors.New("usage: /room <name>")
	}

	for _, room := range c.rooms.Snapshot() {
		if room.Name != name {
			continue
		}

		c.mu.Lock()
		c.selected = room.ID
		c.mu.Unlock()
		if _, err := fmt.Fprintf(c.out, "posting to room %s\n", room.Name); err != nil {
			return fmt.Errorf("write console: %w", err)
		}
		return nil
	}

	return fmt.Errorf("no room named %q", name)
}

func (c *composer) target() (chatsync.Room, error) {
	c.mu.Lock()
	selected := c.selected
	c.mu.Unlock()

	if selected != uuid.Nil {
		if room, ok := c.rooms.Get(selected); ok {
			return room, nil
		}
	}

	rooms := c.rooms.Snapshot()
	if len(rooms) == 0 {
		return chatsync.Room{}, errors.New("no room to post to")
	}

	return rooms[0], nil
}
