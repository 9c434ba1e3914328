package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/config"
	"chat-realtime/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Client is one ConnectionSession: an authenticated duplex channel for one
// device or tab. Its joined rooms are a cached view; the registry is canonical.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	identity  models.Identity
	sessionID string
	cfg       config.RealtimeConfig
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	rooms   map[int]struct{}
	closed  bool
	dropped int
}

func NewClient(hub *Hub, conn *websocket.Conn, identity models.Identity, cfg config.RealtimeConfig) *Client {
	sessionID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, cfg.SessionBufferSize),
		identity:  identity,
		sessionID: sessionID,
		cfg:       cfg,
		log:       hub.log.With("session", sessionID, "user", identity.ID),
		ctx:       ctx,
		cancel:    cancel,
		rooms:     make(map[int]struct{}),
	}
}

func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) UserID() int {
	return c.identity.ID
}

func (c *Client) Identity() models.Identity {
	return c.identity
}

// Rooms returns the rooms this session believes it has joined.
func (c *Client) Rooms() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Keys(c.rooms)
}

func (c *Client) remember(roomID int) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) forget(roomID int) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

// Deliver queues a frame without blocking. When the buffer is full the
// oldest queued frame is dropped.
func (c *Client) Deliver(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.send <- frame:
			return
		default:
		}
		select {
		case <-c.send:
			c.dropped++
			if c.dropped == 1 || c.dropped%100 == 0 {
				c.log.Debug("Outbound buffer full, dropping oldest", "dropped", c.dropped)
			}
		default:
		}
	}
}

// close stops delivery and lets WritePump send the close frame.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
}

func (c *Client) reply(env models.Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		c.log.Error("Encoding reply", "type", env.Type, "error", err)
		return
	}
	c.Deliver(frame)
}

func (c *Client) ack(req models.Envelope) {
	env := models.NewEnvelope(models.EventAck, models.AckPayload{Type: req.Type, SessionID: c.sessionID})
	env.RequestID = req.RequestID
	c.reply(env)
}

// fail reports an error to this session only. The session stays open.
func (c *Client) fail(requestID string, err error) {
	env := models.NewEnvelope(models.EventError, models.ErrorPayload{
		Code:    apperr.Code(err),
		Message: err.Error(),
	})
	env.RequestID = requestID
	c.reply(env)
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("Connection lost", "error", errors.Join(apperr.ErrTransportLost, err))
			}
			break
		}

		var env models.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.fail("", errors.Join(apperr.ErrInvalidEvent, err))
			continue
		}

		if err := c.hub.Handle(c.ctx, c, env); err != nil {
			c.log.Debug("Event rejected", "type", env.Type, "error", err)
			c.fail(env.RequestID, err)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("Write error", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
