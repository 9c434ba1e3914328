// Package presence derives online/offline status from live session counts.
//
// Presence is not persisted: after a restart every user is offline until
// they reconnect.
package presence

import (
	"context"
	"log/slog"
	"sync"

	"chat-realtime/internal/models"

	"github.com/samber/lo"
)

const shardCount = 32

// Audience resolves who should hear about a user's presence transitions.
type Audience interface {
	Audience(ctx context.Context, userID int) []int
}

type Notifier interface {
	NotifyUsers(userIDs []int, env models.Envelope)
}

type shard struct {
	mu       sync.Mutex
	sessions map[int]int
}

// Tracker reference-counts sessions per user. Users are spread over lock
// shards so a user's count is only ever serialized with its shard peers.
type Tracker struct {
	shards   [shardCount]shard
	audience Audience
	notifier Notifier
	log      *slog.Logger
}

func NewTracker(audience Audience, notifier Notifier, log *slog.Logger) *Tracker {
	t := &Tracker{audience: audience, notifier: notifier, log: log}
	for i := range t.shards {
		t.shards[i].sessions = make(map[int]int)
	}
	return t
}

func (t *Tracker) shard(userID int) *shard {
	idx := userID % shardCount
	if idx < 0 {
		idx = -idx
	}
	return &t.shards[idx]
}

// Connect counts a new session and reports whether the user just came online.
func (t *Tracker) Connect(ctx context.Context, userID int) bool {
	audience := t.resolve(ctx, userID)

	s := t.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID]++
	if s.sessions[userID] != 1 {
		return false
	}
	t.publish(audience, userID, models.StatusOnline)
	return true
}

// Disconnect releases a session and reports whether it was the user's last.
func (t *Tracker) Disconnect(ctx context.Context, userID int) bool {
	audience := t.resolve(ctx, userID)

	s := t.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.sessions[userID]
	if !ok {
		return false
	}
	if count > 1 {
		s.sessions[userID] = count - 1
		return false
	}
	delete(s.sessions, userID)
	t.publish(audience, userID, models.StatusOffline)
	return true
}

// Status returns the current status of a user.
func (t *Tracker) Status(userID int) models.PresenceStatus {
	if t.Sessions(userID) > 0 {
		return models.StatusOnline
	}
	return models.StatusOffline
}

// Sessions returns the live session count of a user.
func (t *Tracker) Sessions(userID int) int {
	s := t.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID]
}

// Online filters userIDs down to the ones currently online.
func (t *Tracker) Online(userIDs []int) []int {
	return lo.Filter(userIDs, func(id int, _ int) bool {
		return t.Sessions(id) > 0
	})
}

func (t *Tracker) resolve(ctx context.Context, userID int) []int {
	if t.audience == nil {
		return nil
	}
	return t.audience.Audience(ctx, userID)
}

// publish runs under the user's shard lock so transitions leave in the order
// they happened.
func (t *Tracker) publish(audience []int, userID int, status models.PresenceStatus) {
	t.log.Debug("Presence changed", "user", userID, "status", status)
	if t.notifier == nil || len(audience) == 0 {
		return
	}
	t.notifier.NotifyUsers(audience, models.NewEnvelope(models.EventPresenceChanged, models.PresencePayload{
		UserID: userID,
		Status: status,
	}))
}
