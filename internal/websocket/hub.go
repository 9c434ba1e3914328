package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"chat-realtime/internal/models"
	"chat-realtime/internal/presence"
	"chat-realtime/internal/rooms"
	"chat-realtime/internal/typing"
	"chat-realtime/internal/voice"

	"github.com/go-playground/validator/v10"
)

type Options struct {
	Registry     *rooms.Registry
	Store        MessageStore
	Audience     presence.Audience
	TypingExpiry time.Duration
	Log          *slog.Logger
}

// Hub owns every live session of the process and routes inbound events
// to the room, typing, voice and presence components.
type Hub struct {
	rooms    *rooms.Registry
	presence *presence.Tracker
	typing   *typing.Coordinator
	voice    *voice.Manager
	store    MessageStore
	validate *validator.Validate
	log      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Client
	byUser   map[int]map[string]*Client
}

func NewHub(opts Options) *Hub {
	h := &Hub{
		rooms:    opts.Registry,
		store:    opts.Store,
		validate: validator.New(),
		log:      opts.Log,
		sessions: make(map[string]*Client),
		byUser:   make(map[int]map[string]*Client),
	}
	h.typing = typing.NewCoordinator(opts.Registry, opts.Registry, opts.TypingExpiry, opts.Log)
	h.voice = voice.NewManager(opts.Registry, opts.Registry, opts.Log)
	h.presence = presence.NewTracker(opts.Audience, h, opts.Log)

	opts.Registry.SetNotifier(h)
	opts.Registry.OnEvict(h.evicted)
	return h
}

func (h *Hub) Presence() *presence.Tracker {
	return h.presence
}

func (h *Hub) Typing() *typing.Coordinator {
	return h.typing
}

func (h *Hub) Voice() *voice.Manager {
	return h.voice
}

// Register makes the session addressable and counts it for presence.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.sessions[c.sessionID] = c
	if h.byUser[c.UserID()] == nil {
		h.byUser[c.UserID()] = make(map[string]*Client)
	}
	h.byUser[c.UserID()][c.sessionID] = c
	h.mu.Unlock()

	h.presence.Connect(c.ctx, c.UserID())
	h.log.Info("Session opened", "session", c.sessionID, "user", c.UserID())
}

// Unregister tears down everything the session held. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.sessions[c.sessionID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, c.sessionID)
	if set := h.byUser[c.UserID()]; set != nil {
		delete(set, c.sessionID)
		if len(set) == 0 {
			delete(h.byUser, c.UserID())
		}
	}
	h.mu.Unlock()

	h.rooms.LeaveAll(c.sessionID, c.Rooms())
	h.typing.DropSession(c.sessionID)
	h.voice.LeaveSession(c.sessionID)
	// presence runs on a fresh context, the session one is about to be cancelled
	h.presence.Disconnect(context.Background(), c.UserID())
	c.close()
	h.log.Info("Session closed", "session", c.sessionID, "user", c.UserID())
}

// Disconnect force-closes a session. The normal teardown follows from the
// read pump noticing the closed transport.
func (h *Hub) Disconnect(sessionID string) bool {
	h.mu.RLock()
	c, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	c.conn.Close()
	return true
}

// Sessions lists the open session ids of a user.
func (h *Hub) Sessions(userID int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.byUser[userID]))
	for id := range h.byUser[userID] {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) session(sessionID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.sessions[sessionID]
	return c, ok
}

// NotifyUsers delivers env to every session of the listed users, whatever
// rooms those sessions joined.
func (h *Hub) NotifyUsers(userIDs []int, env models.Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		h.log.Error("Encoding user event", "type", env.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(userIDs))
	for _, userID := range userIDs {
		for _, c := range h.byUser[userID] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Deliver(frame)
	}
}

// evicted runs after the registry dropped a member's subscriptions.
func (h *Hub) evicted(roomID, userID int, sessionIDs []string) {
	for _, id := range sessionIDs {
		if c, ok := h.session(id); ok {
			c.forget(roomID)
		}
	}
	h.typing.DropUser(roomID, userID)
	h.voice.DropUser(roomID, userID)
}
