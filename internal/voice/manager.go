// Package voice keeps the signaling roster of each room's voice session.
// It never carries media.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/models"

	"github.com/samber/lo"
)

type Authorizer interface {
	IsMember(ctx context.Context, roomID, userID int) (bool, error)
}

type Broadcaster interface {
	Broadcast(roomID int, env models.Envelope) error
}

type participant struct {
	models.VoiceParticipant
	joined uint64
}

type roster struct {
	mu           sync.Mutex
	participants map[string]*participant
	joins        uint64
}

// Manager holds at most one participant per (room, session). Participants
// leave explicitly or when their session is destroyed; there is no idle expiry.
type Manager struct {
	mu       sync.Mutex
	rooms    map[int]*roster
	sessions map[string]map[int]struct{}
	auth     Authorizer
	out      Broadcaster
	log      *slog.Logger
}

func NewManager(auth Authorizer, out Broadcaster, log *slog.Logger) *Manager {
	return &Manager{
		rooms:    make(map[int]*roster),
		sessions: make(map[string]map[int]struct{}),
		auth:     auth,
		out:      out,
		log:      log,
	}
}

func (m *Manager) roster(roomID int, create bool) (*roster, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok && create {
		r = &roster{participants: make(map[string]*participant)}
		m.rooms[roomID] = r
		ok = true
	}
	return r, ok
}

func (m *Manager) track(sessionID string, roomID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms, ok := m.sessions[sessionID]
	if !ok {
		rooms = make(map[int]struct{})
		m.sessions[sessionID] = rooms
	}
	rooms[roomID] = struct{}{}
}

func (m *Manager) untrack(sessionID string, roomID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(rooms, roomID)
	if len(rooms) == 0 {
		delete(m.sessions, sessionID)
	}
}

// Join adds the session to the room's voice session with the mic on.
// Joining again from the same session changes nothing.
func (m *Manager) Join(ctx context.Context, roomID int, sessionID string, who models.Identity) error {
	ok, err := m.auth.IsMember(ctx, roomID, who.ID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("voice join room %d: %w", roomID, apperr.ErrNotAMember)
	}

	r, _ := m.roster(roomID, true)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.participants[sessionID]; exists {
		return nil
	}
	r.joins++
	r.participants[sessionID] = &participant{
		VoiceParticipant: models.VoiceParticipant{
			RoomID:      roomID,
			SessionID:   sessionID,
			UserID:      who.ID,
			DisplayName: who.DisplayName,
			MicOn:       true,
		},
		joined: r.joins,
	}
	m.track(sessionID, roomID)
	m.broadcastLocked(roomID, r)
	return nil
}

// Leave removes the session's participant. A participant that was sharing
// also produces a share-stopped notice.
func (m *Manager) Leave(roomID int, sessionID string) {
	r, ok := m.roster(roomID, false)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.removeLocked(roomID, r, sessionID) {
		m.broadcastLocked(roomID, r)
	}
}

func (m *Manager) removeLocked(roomID int, r *roster, sessionID string) bool {
	p, ok := r.participants[sessionID]
	if !ok {
		return false
	}
	delete(r.participants, sessionID)
	m.untrack(sessionID, roomID)
	if p.Sharing {
		m.shareStoppedLocked(roomID, p)
	}
	return true
}

// SetMic changes the caller's own mic flag. target, when set, must be the
// caller's session.
func (m *Manager) SetMic(roomID int, callerSessionID, target string, on bool) error {
	return m.mutate(roomID, callerSessionID, target, func(p *participant) bool {
		if p.MicOn == on {
			return false
		}
		p.MicOn = on
		return true
	})
}

func (m *Manager) SetDeafen(roomID int, callerSessionID, target string, on bool) error {
	return m.mutate(roomID, callerSessionID, target, func(p *participant) bool {
		if p.Deafened == on {
			return false
		}
		p.Deafened = on
		return true
	})
}

// StartShare marks the caller as sharing. Starting again while sharing
// replaces the share and does not stack.
func (m *Manager) StartShare(roomID int, callerSessionID, target string) error {
	return m.mutate(roomID, callerSessionID, target, func(p *participant) bool {
		if p.Sharing {
			return false
		}
		p.Sharing = true
		return true
	})
}

func (m *Manager) StopShare(roomID int, callerSessionID, target string) error {
	return m.mutateWith(roomID, callerSessionID, target, func(r *roster, p *participant) bool {
		if !p.Sharing {
			return false
		}
		p.Sharing = false
		m.shareStoppedLocked(roomID, p)
		return true
	})
}

func (m *Manager) mutate(roomID int, caller, target string, fn func(p *participant) bool) error {
	return m.mutateWith(roomID, caller, target, func(_ *roster, p *participant) bool { return fn(p) })
}

// mutateWith applies fn to the caller's participant. Unknown participants are
// a no-op so a mutation racing a leave is harmless.
func (m *Manager) mutateWith(roomID int, caller, target string, fn func(r *roster, p *participant) bool) error {
	if target != "" && target != caller {
		return fmt.Errorf("voice update in room %d: %w", roomID, apperr.ErrNotOwner)
	}
	r, ok := m.roster(roomID, false)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[caller]
	if !ok {
		return nil
	}
	if fn(r, p) {
		m.broadcastLocked(roomID, r)
	}
	return nil
}

// LeaveSession removes the session from every voice session it is part of.
func (m *Manager) LeaveSession(sessionID string) {
	m.mu.Lock()
	rooms := lo.Keys(m.sessions[sessionID])
	m.mu.Unlock()

	for _, roomID := range rooms {
		m.Leave(roomID, sessionID)
	}
}

// DropUser removes every participant of a user who lost access to the room.
func (m *Manager) DropUser(roomID, userID int) {
	r, ok := m.roster(roomID, false)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for sessionID, p := range r.participants {
		if p.UserID == userID && m.removeLocked(roomID, r, sessionID) {
			changed = true
		}
	}
	if changed {
		m.broadcastLocked(roomID, r)
	}
}

// Roster returns the room's participants in join order.
func (m *Manager) Roster(roomID int) []models.VoiceParticipant {
	r, ok := m.roster(roomID, false)
	if !ok {
		return []models.VoiceParticipant{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return rosterLocked(r)
}

func rosterLocked(r *roster) []models.VoiceParticipant {
	ps := lo.Values(r.participants)
	sort.Slice(ps, func(i, j int) bool { return ps[i].joined < ps[j].joined })
	return lo.Map(ps, func(p *participant, _ int) models.VoiceParticipant { return p.VoiceParticipant })
}

func (m *Manager) broadcastLocked(roomID int, r *roster) {
	m.send(roomID, models.NewEnvelope(models.EventVoiceRoster, models.VoiceRosterPayload{
		RoomID:       roomID,
		Participants: rosterLocked(r),
	}))
}

func (m *Manager) shareStoppedLocked(roomID int, p *participant) {
	m.send(roomID, models.NewEnvelope(models.EventVoiceShareStopped, models.ShareStoppedPayload{
		RoomID:    roomID,
		SessionID: p.SessionID,
		UserID:    p.UserID,
	}))
}

func (m *Manager) send(roomID int, env models.Envelope) {
	if err := m.out.Broadcast(roomID, env); err != nil {
		m.log.Debug("Voice event not delivered", "room", roomID, "type", env.Type, "error", err)
	}
}
