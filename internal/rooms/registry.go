//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=../mocks/mock_rooms.go -package=mocks
//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=mock_registry_test.go -package=rooms
package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/models"

	"github.com/samber/lo"
)

// Loader resolves room membership truth on a cache miss. It returns an error
// wrapping apperr.ErrRoomNotFound when the room does not exist.
type Loader interface {
	LoadRoom(ctx context.Context, roomID int) (*models.Room, error)
}

// Subscriber is one live session that can receive room events.
// Deliver must not block.
type Subscriber interface {
	SessionID() string
	UserID() int
	Deliver(frame []byte)
}

// UserNotifier reaches every live session of a user, subscribed or not.
type UserNotifier interface {
	NotifyUsers(userIDs []int, env models.Envelope)
}

// EvictFunc is called, outside any registry lock, after a user lost access
// to a room. sessionIDs are the subscriptions that were dropped.
type EvictFunc func(roomID, userID int, sessionIDs []string)

type member struct {
	username string
	unread   uint
}

type room struct {
	mu          sync.Mutex
	id          int
	name        string
	isGroup     bool
	members     map[int]*member
	subscribers map[string]Subscriber
	seq         uint64
	deleted     bool
}

// Registry is the single writer of room membership and unread counters.
// The rooms map has its own lock; each room is guarded by its own mutex so
// unrelated rooms never contend.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[int]*room
	loader   Loader
	notifier UserNotifier
	onEvict  []EvictFunc
	log      *slog.Logger
}

func NewRegistry(loader Loader, log *slog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[int]*room),
		loader: loader,
		log:    log,
	}
}

// SetNotifier wires the session directory used for events addressed to users
// rather than to room subscribers.
func (r *Registry) SetNotifier(n UserNotifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// OnEvict registers a hook run when a member loses access to a room.
func (r *Registry) OnEvict(fn EvictFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = append(r.onEvict, fn)
}

func newRoom(src *models.Room) *room {
	rm := &room{
		id:          src.ID,
		name:        src.Name,
		isGroup:     src.IsGroup,
		members:     make(map[int]*member, len(src.Members)),
		subscribers: make(map[string]Subscriber),
	}
	for _, m := range src.Members {
		rm.members[m.UserID] = &member{username: m.Username, unread: m.UnreadCount}
	}
	return rm
}

func (r *Registry) cached(roomID int) (*room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	return rm, ok
}

// load returns the cached room or asks the loader for it.
func (r *Registry) load(ctx context.Context, roomID int) (*room, error) {
	if rm, ok := r.cached(roomID); ok {
		return rm, nil
	}
	if r.loader == nil {
		return nil, fmt.Errorf("room %d: %w", roomID, apperr.ErrRoomNotFound)
	}

	src, err := r.loader.LoadRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room %d: %w", roomID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		return rm, nil
	}
	rm := newRoom(src)
	r.rooms[roomID] = rm
	return rm, nil
}

// Join subscribes a session to a room. Joining twice is a no-op.
func (r *Registry) Join(ctx context.Context, sub Subscriber, roomID int) error {
	rm, err := r.load(ctx, roomID)
	if err != nil {
		return err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return fmt.Errorf("join room %d: %w", roomID, apperr.ErrRoomNotFound)
	}
	if _, ok := rm.members[sub.UserID()]; !ok {
		return fmt.Errorf("join room %d: %w", roomID, apperr.ErrNotAMember)
	}
	rm.subscribers[sub.SessionID()] = sub
	return nil
}

// Leave drops the session's subscription. Room membership is untouched.
func (r *Registry) Leave(sessionID string, roomID int) {
	rm, ok := r.cached(roomID)
	if !ok {
		return
	}
	rm.mu.Lock()
	delete(rm.subscribers, sessionID)
	rm.mu.Unlock()
}

// LeaveAll drops every listed subscription of a session.
func (r *Registry) LeaveAll(sessionID string, roomIDs []int) {
	for _, roomID := range roomIDs {
		r.Leave(sessionID, roomID)
	}
}

// Broadcast delivers env to every session currently subscribed to the room.
func (r *Registry) Broadcast(roomID int, env models.Envelope) error {
	rm, ok := r.cached(roomID)
	if !ok {
		return fmt.Errorf("broadcast to room %d: %w", roomID, apperr.ErrRoomNotFound)
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return fmt.Errorf("broadcast to room %d: %w", roomID, apperr.ErrRoomNotFound)
	}
	r.deliverLocked(rm, env, nil)
	return nil
}

// deliverLocked stamps the room sequence and hands the frame to every
// matching subscriber. rm.mu must be held.
func (r *Registry) deliverLocked(rm *room, env models.Envelope, match func(Subscriber) bool) {
	rm.seq++
	env.Seq = rm.seq
	frame, err := json.Marshal(env)
	if err != nil {
		r.log.Error("Encoding room event", "room", rm.id, "type", env.Type, "error", err)
		return
	}
	for _, sub := range rm.subscribers {
		if match != nil && !match(sub) {
			continue
		}
		r.safeDeliver(sub, frame)
	}
}

func (r *Registry) safeDeliver(sub Subscriber, frame []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Delivery to session failed", "session", sub.SessionID(), "panic", rec)
		}
	}()
	sub.Deliver(frame)
}

// PostMessage counts msg as unread for every member but its sender and
// broadcasts it, as one step under the room lock.
func (r *Registry) PostMessage(ctx context.Context, msg models.Message) error {
	rm, err := r.load(ctx, msg.RoomID)
	if err != nil {
		return err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return fmt.Errorf("post to room %d: %w", msg.RoomID, apperr.ErrRoomNotFound)
	}
	if _, ok := rm.members[msg.UserID]; !ok {
		return fmt.Errorf("post to room %d: %w", msg.RoomID, apperr.ErrNotAMember)
	}
	for userID, m := range rm.members {
		if userID != msg.UserID {
			m.unread++
		}
	}
	r.deliverLocked(rm, models.NewEnvelope(models.EventNewMessage, models.NewMessagePayload{
		RoomID:  msg.RoomID,
		Message: msg,
	}), nil)
	return nil
}

// MarkRead resets the member's counter and tells the member's other sessions.
func (r *Registry) MarkRead(ctx context.Context, roomID, userID int) error {
	rm, err := r.load(ctx, roomID)
	if err != nil {
		return err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return fmt.Errorf("mark room %d read: %w", roomID, apperr.ErrRoomNotFound)
	}
	m, ok := rm.members[userID]
	if !ok {
		return fmt.Errorf("mark room %d read: %w", roomID, apperr.ErrNotAMember)
	}
	m.unread = 0
	r.deliverLocked(rm, models.NewEnvelope(models.EventRoomMarkedAsRead, models.RoomReadPayload{
		RoomID: roomID,
		UserID: userID,
	}), func(sub Subscriber) bool { return sub.UserID() == userID })
	return nil
}

// IsMember reports whether userID is in the room's member list.
func (r *Registry) IsMember(ctx context.Context, roomID, userID int) (bool, error) {
	rm, err := r.load(ctx, roomID)
	if err != nil {
		return false, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return false, fmt.Errorf("room %d: %w", roomID, apperr.ErrRoomNotFound)
	}
	_, ok := rm.members[userID]
	return ok, nil
}

// Unread returns the member's counter for a cached room.
func (r *Registry) Unread(roomID, userID int) (uint, bool) {
	rm, ok := r.cached(roomID)
	if !ok {
		return 0, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	m, ok := rm.members[userID]
	if !ok {
		return 0, false
	}
	return m.unread, true
}

// Members lists the user ids of a cached room.
func (r *Registry) Members(roomID int) []int {
	rm, ok := r.cached(roomID)
	if !ok {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return lo.Keys(rm.members)
}

// Subscribers lists the session ids subscribed to a cached room.
func (r *Registry) Subscribers(roomID int) []string {
	rm, ok := r.cached(roomID)
	if !ok {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return lo.Keys(rm.subscribers)
}

// CoMembers returns every user sharing at least one cached room with userID.
func (r *Registry) CoMembers(userID int) []int {
	r.mu.RLock()
	all := lo.Values(r.rooms)
	r.mu.RUnlock()

	seen := make(map[int]struct{})
	for _, rm := range all {
		rm.mu.Lock()
		if _, ok := rm.members[userID]; ok && !rm.deleted {
			for id := range rm.members {
				if id != userID {
					seen[id] = struct{}{}
				}
			}
		}
		rm.mu.Unlock()
	}
	return lo.Keys(seen)
}

// Summary returns the room as seen by userID.
func (r *Registry) Summary(roomID, userID int) (models.RoomSummary, bool) {
	rm, ok := r.cached(roomID)
	if !ok {
		return models.RoomSummary{}, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return summaryLocked(rm, userID), true
}

func summaryLocked(rm *room, userID int) models.RoomSummary {
	s := models.RoomSummary{
		ID:        rm.id,
		Name:      rm.name,
		IsGroup:   rm.isGroup,
		MemberIDs: lo.Keys(rm.members),
	}
	if m, ok := rm.members[userID]; ok {
		s.UnreadCount = m.unread
	}
	return s
}
