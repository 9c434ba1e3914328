//go:generate go run go.uber.org/mock/mockgen -source=coordinator.go -destination=../mocks/mock_typing.go -package=mocks
package typing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/models"

	"github.com/samber/lo"
)

// DefaultExpiry is slightly longer than the 1.5s client ping throttle.
const DefaultExpiry = 3 * time.Second

type Authorizer interface {
	IsMember(ctx context.Context, roomID, userID int) (bool, error)
}

type Broadcaster interface {
	Broadcast(roomID int, env models.Envelope) error
}

type entry struct {
	userID      int
	displayName string
	sessionID   string
	since       time.Time
	expiresAt   time.Time
	timer       *time.Timer
}

type roomTyping struct {
	mu      sync.Mutex
	entries map[int]*entry
}

// Coordinator keeps at most one typing entry, and one timer, per (room, user).
// Each change broadcasts the full list for the room.
type Coordinator struct {
	mu     sync.Mutex
	rooms  map[int]*roomTyping
	expiry time.Duration
	auth   Authorizer
	out    Broadcaster
	log    *slog.Logger
}

func NewCoordinator(auth Authorizer, out Broadcaster, expiry time.Duration, log *slog.Logger) *Coordinator {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Coordinator{
		rooms:  make(map[int]*roomTyping),
		expiry: expiry,
		auth:   auth,
		out:    out,
		log:    log,
	}
}

func (c *Coordinator) room(roomID int) *roomTyping {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.rooms[roomID]
	if !ok {
		rt = &roomTyping{entries: make(map[int]*entry)}
		c.rooms[roomID] = rt
	}
	return rt
}

func (c *Coordinator) existing(roomID int) (*roomTyping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt, ok := c.rooms[roomID]
	return rt, ok
}

// Ping creates or refreshes the caller's entry. A refresh re-arms the same
// timer and leaves the list untouched.
func (c *Coordinator) Ping(ctx context.Context, roomID int, sessionID string, who models.Identity) error {
	rt := c.room(roomID)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	// checked under the room lock so a concurrent DropUser cannot be undone
	ok, err := c.auth.IsMember(ctx, roomID, who.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("typing in room %d: %w", roomID, apperr.ErrNotAMember)
	}

	now := time.Now()
	if e, ok := rt.entries[who.ID]; ok {
		e.sessionID = sessionID
		e.expiresAt = now.Add(c.expiry)
		e.timer.Reset(c.expiry)
		return nil
	}

	e := &entry{
		userID:      who.ID,
		displayName: who.DisplayName,
		sessionID:   sessionID,
		since:       now,
		expiresAt:   now.Add(c.expiry),
	}
	e.timer = time.AfterFunc(c.expiry, func() { c.expire(roomID, e) })
	rt.entries[who.ID] = e
	c.broadcastLocked(roomID, rt)
	return nil
}

func (c *Coordinator) expire(roomID int, e *entry) {
	rt, ok := c.existing(roomID)
	if !ok {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.entries[e.userID] != e {
		return
	}
	// a ping re-armed the timer while this callback was pending
	if time.Now().Before(e.expiresAt) {
		return
	}
	delete(rt.entries, e.userID)
	c.log.Debug("Typing expired", "room", roomID, "user", e.userID)
	c.broadcastLocked(roomID, rt)
}

// Stop removes the user's entry immediately.
func (c *Coordinator) Stop(roomID, userID int) {
	rt, ok := c.existing(roomID)
	if !ok {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	e, ok := rt.entries[userID]
	if !ok {
		return
	}
	e.timer.Stop()
	delete(rt.entries, userID)
	c.broadcastLocked(roomID, rt)
}

// DropUser is Stop for a user who lost access to the room.
func (c *Coordinator) DropUser(roomID, userID int) {
	c.Stop(roomID, userID)
}

// DropSession removes every entry last refreshed by the session.
func (c *Coordinator) DropSession(sessionID string) {
	c.mu.Lock()
	rooms := lo.Entries(c.rooms)
	c.mu.Unlock()

	for _, kv := range rooms {
		rt := kv.Value
		rt.mu.Lock()
		changed := false
		for userID, e := range rt.entries {
			if e.sessionID == sessionID {
				e.timer.Stop()
				delete(rt.entries, userID)
				changed = true
			}
		}
		if changed {
			c.broadcastLocked(kv.Key, rt)
		}
		rt.mu.Unlock()
	}
}

// List returns the current typers of a room, oldest first.
func (c *Coordinator) List(roomID int) []models.Typer {
	rt, ok := c.existing(roomID)
	if !ok {
		return []models.Typer{}
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return listLocked(rt)
}

func listLocked(rt *roomTyping) []models.Typer {
	entries := lo.Values(rt.entries)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].since.Equal(entries[j].since) {
			return entries[i].userID < entries[j].userID
		}
		return entries[i].since.Before(entries[j].since)
	})
	return lo.Map(entries, func(e *entry, _ int) models.Typer {
		return models.Typer{ID: e.userID, Username: e.displayName}
	})
}

func (c *Coordinator) broadcastLocked(roomID int, rt *roomTyping) {
	env := models.NewEnvelope(models.EventTypingList, models.TypingListPayload{
		RoomID: roomID,
		Typers: listLocked(rt),
	})
	if err := c.out.Broadcast(roomID, env); err != nil {
		c.log.Debug("Typing list not delivered", "room", roomID, "error", err)
	}
}
