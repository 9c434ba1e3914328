package websocket

import (
	"context"
	"fmt"
	"time"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/models"

	"github.com/go-playground/validator/v10"
)

func decode[T any](v *validator.Validate, env models.Envelope) (T, error) {
	var p T
	if err := env.Decode(&p); err != nil {
		return p, fmt.Errorf("%s: %v: %w", env.Type, err, apperr.ErrInvalidEvent)
	}
	if err := v.Struct(p); err != nil {
		return p, fmt.Errorf("%s: %v: %w", env.Type, err, apperr.ErrInvalidEvent)
	}
	return p, nil
}

// Handle applies one inbound event for the session. A nil error means the
// event was accepted; the caller reports any error to the session only.
func (h *Hub) Handle(ctx context.Context, c *Client, env models.Envelope) error {
	var err error
	switch env.Type {
	case models.EventJoinRoom:
		err = h.joinRoom(ctx, c, env)
	case models.EventLeaveRoom:
		err = h.leaveRoom(c, env)
	case models.EventSendMessage:
		err = h.sendMessage(ctx, c, env)
	case models.EventTypingPing:
		err = h.typingPing(ctx, c, env)
	case models.EventTypingStop:
		err = h.typingStop(c, env)
	case models.EventVoiceJoin:
		err = h.voiceJoin(ctx, c, env)
	case models.EventVoiceLeave:
		err = h.voiceLeave(c, env)
	case models.EventSetMic, models.EventSetDeafen, models.EventStartShare, models.EventStopShare:
		err = h.voiceState(c, env)
	case models.EventMarkRoomRead:
		err = h.markRoomRead(ctx, c, env)
	case models.EventSync:
		// answered by the snapshot itself
		return h.sync(ctx, c, env)
	default:
		return fmt.Errorf("unknown event %q: %w", env.Type, apperr.ErrInvalidEvent)
	}
	if err != nil {
		return err
	}
	c.ack(env)
	return nil
}

func (h *Hub) joinRoom(ctx context.Context, c *Client, env models.Envelope) error {
	p, err := decode[models.RoomPayload](h.validate, env)
	if err != nil {
		return err
	}
	if err := h.rooms.Join(ctx, c, p.RoomID); err != nil {
		return err
	}
	c.remember(p.RoomID)

	// the session may have been torn down while joining
	if _, ok := h.session(c.sessionID); !ok {
		h.rooms.Leave(c.sessionID, p.RoomID)
		return fmt.Errorf("join room %d: %w", p.RoomID, apperr.ErrTransportLost)
	}
	return nil
}

func (h *Hub) leaveRoom(c *Client, env models.Envelope) error {
	p, err := decode[models.RoomPayload](h.validate, env)
	if err != nil {
		return err
	}
	h.rooms.Leave(c.sessionID, p.RoomID)
	c.forget(p.RoomID)
	return nil
}

// member fails with ErrNotAMember unless the session's user belongs to the room.
func (h *Hub) member(ctx context.Context, c *Client, roomID int) error {
	ok, err := h.rooms.IsMember(ctx, roomID, c.UserID())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("room %d: %w", roomID, apperr.ErrNotAMember)
	}
	return nil
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, env models.Envelope) error {
	p, err := decode[models.SendMessagePayload](h.validate, env)
	if err != nil {
		return err
	}
	if err := h.member(ctx, c, p.RoomID); err != nil {
		return err
	}

	msg, err := h.store.SaveMessage(ctx, c.UserID(), p.RoomID, p.Content)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	if msg.Username == "" {
		msg.Username = c.identity.DisplayName
	}

	h.typing.Stop(p.RoomID, c.UserID())
	return h.rooms.PostMessage(ctx, *msg)
}

func (h *Hub) typingPing(ctx context.Context, c *Client, env models.Envelope) error {
	p, err := decode[models.RoomPayload](h.validate, env)
	if err != nil {
		return err
	}
	return h.typing.Ping(ctx, p.RoomID, c.sessionID, c.identity)
}

func (h *Hub) typingStop(c *Client, env models.Envelope) error {
	p, err := decode[models.RoomPayload](h.validate, env)
	if err != nil {
		return err
	}
	h.typing.Stop(p.RoomID, c.UserID())
	return nil
}

func (h *Hub) voiceJoin(ctx context.Context, c *Client, env models.Envelope) error {
	p, err := decode[models.VoicePayload](h.validate, env)
	if err != nil {
		return err
	}
	return h.voice.Join(ctx, p.RoomID, c.sessionID, c.identity)
}

func (h *Hub) voiceLeave(c *Client, env models.Envelope) error {
	p, err := decode[models.VoicePayload](h.validate, env)
	if err != nil {
		return err
	}
	if p.SessionID != "" && p.SessionID != c.sessionID {
		return fmt.Errorf("leave voice in room %d: %w", p.RoomID, apperr.ErrNotOwner)
	}
	h.voice.Leave(p.RoomID, c.sessionID)
	return nil
}

func (h *Hub) voiceState(c *Client, env models.Envelope) error {
	p, err := decode[models.VoicePayload](h.validate, env)
	if err != nil {
		return err
	}
	switch env.Type {
	case models.EventSetMic:
		return h.voice.SetMic(p.RoomID, c.sessionID, p.SessionID, p.On)
	case models.EventSetDeafen:
		return h.voice.SetDeafen(p.RoomID, c.sessionID, p.SessionID, p.On)
	case models.EventStartShare:
		return h.voice.StartShare(p.RoomID, c.sessionID, p.SessionID)
	default:
		return h.voice.StopShare(p.RoomID, c.sessionID, p.SessionID)
	}
}

func (h *Hub) markRoomRead(ctx context.Context, c *Client, env models.Envelope) error {
	p, err := decode[models.RoomPayload](h.validate, env)
	if err != nil {
		return err
	}
	if err := h.member(ctx, c, p.RoomID); err != nil {
		return err
	}
	if err := h.store.ResetUnread(ctx, c.UserID(), p.RoomID); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return h.rooms.MarkRead(ctx, p.RoomID, c.UserID())
}

// sync answers with the authoritative state of the requested rooms, or of
// every joined room when none are named.
func (h *Hub) sync(ctx context.Context, c *Client, env models.Envelope) error {
	var p models.SyncPayload
	if len(env.Payload) > 0 {
		var err error
		if p, err = decode[models.SyncPayload](h.validate, env); err != nil {
			return err
		}
	}
	roomIDs := p.RoomIDs
	if len(roomIDs) == 0 {
		roomIDs = c.Rooms()
	}

	snapshot := h.Snapshot(ctx, c.UserID(), roomIDs)
	reply := models.NewEnvelope(models.EventSnapshot, snapshot)
	reply.RequestID = env.RequestID
	c.reply(reply)
	return nil
}

// Snapshot collects unread counter, typers and voice roster for each room
// the user belongs to. Other rooms are skipped.
func (h *Hub) Snapshot(ctx context.Context, userID int, roomIDs []int) models.SnapshotPayload {
	out := models.SnapshotPayload{Rooms: make([]models.RoomState, 0, len(roomIDs)), TakenAt: time.Now().UTC()}
	for _, roomID := range roomIDs {
		if ok, err := h.rooms.IsMember(ctx, roomID, userID); err != nil || !ok {
			continue
		}
		unread, _ := h.rooms.Unread(roomID, userID)
		out.Rooms = append(out.Rooms, models.RoomState{
			RoomID:       roomID,
			UnreadCount:  unread,
			Typers:       h.typing.List(roomID),
			Participants: h.voice.Roster(roomID),
		})
	}
	return out
}
