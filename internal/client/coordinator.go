package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

const (
	DefaultMinBackoff = 250 * time.Millisecond
	DefaultMaxBackoff = 10 * time.Second

	defaultOutboxSize = 64
	writeWait         = 10 * time.Second
)

var ErrOutboxFull = errors.New("outbox full")

type Options struct {
	URL        string // ws://host:port/ws
	Token      string
	UserID     int
	Rooms      RoomLister
	Aggregator *UnreadAggregator
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
	OutboxSize int
	// RefreshInterval, when set, re-applies the REST room list periodically
	// while connected.
	RefreshInterval time.Duration
	Log             *slog.Logger
}

// Coordinator keeps one live session open, re-dialing with backoff. Every
// new connection starts from fresh state: the outbox is discarded, the room
// list is refetched, every room is re-joined and a snapshot is requested.
type Coordinator struct {
	opts   Options
	outbox chan models.Envelope

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	handlers []func(models.Envelope)
	ready    []func()
	typers   map[int][]models.Typer
	rosters  map[int][]models.VoiceParticipant
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(DefaultMaxBackoff, opts.MinBackoff)
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaultOutboxSize
	}
	if opts.Aggregator == nil {
		opts.Aggregator = NewUnreadAggregator(opts.UserID)
	}
	if opts.Log == nil {
		opts.Log = logs.GetLoggerFromString("INFO")
	}
	return &Coordinator{
		opts:    opts,
		outbox:  make(chan models.Envelope, opts.OutboxSize),
		typers:  make(map[int][]models.Typer),
		rosters: make(map[int][]models.VoiceParticipant),
	}
}

// OnEvent registers a handler for every inbound event, after the coordinator
// has applied it to its own state.
func (c *Coordinator) OnEvent(fn func(models.Envelope)) {
	c.mu.Lock()
	c.handlers = append(c.handlers, fn)
	c.mu.Unlock()
}

// OnReady registers a handler run each time a connection has rejoined its
// rooms and is ready to carry intents, whether or not the user has any room.
func (c *Coordinator) OnReady(fn func()) {
	c.mu.Lock()
	c.ready = append(c.ready, fn)
	c.mu.Unlock()
}

func (c *Coordinator) Aggregator() *UnreadAggregator {
	return c.opts.Aggregator
}

func (c *Coordinator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Typers returns the last typing list seen for the room.
func (c *Coordinator) Typers(roomID int) []models.Typer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Typer{}, c.typers[roomID]...)
}

// Roster returns the last voice roster seen for the room.
func (c *Coordinator) Roster(roomID int) []models.VoiceParticipant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.VoiceParticipant{}, c.rosters[roomID]...)
}

// Send queues an event for the current connection and returns its request
// id. Queued events are dropped, not replayed, if the connection is replaced.
func (c *Coordinator) Send(t models.EventType, payload any) (string, error) {
	env := models.NewEnvelope(t, payload)
	env.RequestID = uuid.NewString()
	select {
	case c.outbox <- env:
		return env.RequestID, nil
	default:
		return "", fmt.Errorf("send %s: %w", t, ErrOutboxFull)
	}
}

// Run dials and serves connections until ctx is done or the server rejects
// the credential.
func (c *Coordinator) Run(ctx context.Context) error {
	delay := c.opts.MinBackoff
	for {
		connected, err := c.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, apperr.ErrAuthenticationFailed) {
			return err
		}
		if connected {
			delay = c.opts.MinBackoff
		}
		c.opts.Log.Info("Connection ended, retrying", "in", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = nextBackoff(delay, c.opts.MaxBackoff)
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit {
		return limit
	}
	return next
}

func (c *Coordinator) dialURL() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("userId", strconv.Itoa(c.opts.UserID))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// serve runs one connection to completion. connected reports whether the
// dial succeeded and the credential was accepted.
func (c *Coordinator) serve(ctx context.Context) (connected bool, err error) {
	target, err := c.dialURL()
	if err != nil {
		return false, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.opts.Token)

	conn, _, err := c.opts.Dialer.DialContext(ctx, target, header)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sessCtx, cancel := c.replace(ctx, conn)
	defer func() {
		cancel()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	if dropped := c.discardOutbox(); dropped > 0 {
		c.opts.Log.Debug("Discarded stale intents", "count", dropped)
	}

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(conn) }()

	if err := c.resync(sessCtx, conn); err != nil {
		conn.Close()
		if rerr := <-readErr; errors.Is(rerr, apperr.ErrAuthenticationFailed) {
			return false, rerr
		}
		return true, err
	}
	go c.writeLoop(sessCtx, conn)
	if c.opts.RefreshInterval > 0 {
		go c.refreshLoop(sessCtx)
	}

	c.mu.Lock()
	ready := append([]func(){}, c.ready...)
	c.mu.Unlock()
	for _, fn := range ready {
		fn()
	}

	select {
	case err := <-readErr:
		return !errors.Is(err, apperr.ErrAuthenticationFailed), err
	case <-ctx.Done():
		conn.Close()
		<-readErr
		return true, ctx.Err()
	}
}

// replace installs conn as the live connection, cancelling whatever recovery
// the previous one still had in flight.
func (c *Coordinator) replace(ctx context.Context, conn *websocket.Conn) (context.Context, context.CancelFunc) {
	sessCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.conn = conn
	c.typers = make(map[int][]models.Typer)
	c.rosters = make(map[int][]models.VoiceParticipant)
	return sessCtx, cancel
}

func (c *Coordinator) discardOutbox() int {
	n := 0
	for {
		select {
		case <-c.outbox:
			n++
		default:
			return n
		}
	}
}

// resync re-joins every room and asks for a snapshot. The REST room list
// supersedes the cached one; if it cannot be fetched the cached list is used.
func (c *Coordinator) resync(ctx context.Context, conn *websocket.Conn) error {
	var roomIDs []int
	if rooms, err := c.opts.Rooms.ListRooms(ctx); err != nil {
		c.opts.Log.Warn("Room list unavailable, rejoining cached rooms", "error", err)
		roomIDs = c.opts.Aggregator.Rooms()
	} else {
		c.opts.Aggregator.ApplySnapshot(rooms)
		roomIDs = lo.Map(rooms, func(r models.RoomSummary, _ int) int { return r.ID })
	}

	for _, id := range roomIDs {
		if err := c.write(conn, models.NewEnvelope(models.EventJoinRoom, models.RoomPayload{RoomID: id})); err != nil {
			return fmt.Errorf("rejoin room %d: %w", id, err)
		}
	}
	if len(roomIDs) == 0 {
		return nil
	}

	req := models.NewEnvelope(models.EventSync, models.SyncPayload{RoomIDs: roomIDs})
	req.RequestID = uuid.NewString()
	return c.write(conn, req)
}

func (c *Coordinator) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rooms, err := c.opts.Rooms.ListRooms(ctx)
			if err != nil {
				c.opts.Log.Debug("Periodic room list refresh failed", "error", err)
				continue
			}
			c.opts.Aggregator.ApplySnapshot(rooms)
		}
	}
}

func (c *Coordinator) write(conn *websocket.Conn, env models.Envelope) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

func (c *Coordinator) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.outbox:
			if ctx.Err() != nil {
				return
			}
			if err := c.write(conn, env); err != nil {
				c.opts.Log.Debug("Write failed", "type", env.Type, "error", err)
				conn.Close()
				return
			}
		}
	}
}

func (c *Coordinator) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, apperr.CloseAuthenticationFailed) {
				return fmt.Errorf("%v: %w", err, apperr.ErrAuthenticationFailed)
			}
			return errors.Join(apperr.ErrTransportLost, err)
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.opts.Log.Warn("Malformed frame", "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Coordinator) dispatch(env models.Envelope) {
	if err := c.opts.Aggregator.Apply(env); err != nil {
		c.opts.Log.Warn("Unread update failed", "error", err)
	}

	switch env.Type {
	case models.EventTypingList:
		var p models.TypingListPayload
		if err := env.Decode(&p); err == nil {
			c.mu.Lock()
			c.typers[p.RoomID] = p.Typers
			c.mu.Unlock()
		}
	case models.EventVoiceRoster:
		var p models.VoiceRosterPayload
		if err := env.Decode(&p); err == nil {
			c.mu.Lock()
			c.rosters[p.RoomID] = p.Participants
			c.mu.Unlock()
		}
	case models.EventSnapshot:
		var p models.SnapshotPayload
		if err := env.Decode(&p); err == nil {
			c.opts.Aggregator.ApplyRoomStates(p.Rooms)
			c.mu.Lock()
			for _, s := range p.Rooms {
				c.typers[s.RoomID] = s.Typers
				c.rosters[s.RoomID] = s.Participants
			}
			c.mu.Unlock()
		}
	case models.EventRoomDeleted, models.EventRoomMemberRemoved:
		var p models.RoomChangePayload
		if err := env.Decode(&p); err == nil && (env.Type == models.EventRoomDeleted || lo.Contains(p.UserIDs, c.opts.UserID)) {
			c.mu.Lock()
			delete(c.typers, p.RoomID)
			delete(c.rosters, p.RoomID)
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	handlers := append([]func(models.Envelope){}, c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(env)
	}
}
