package rooms

import (
	"context"
	"fmt"

	"chat-realtime/internal/models"

	"github.com/samber/lo"
)

type ChangeKind string

const (
	RoomCreated   ChangeKind = "created"
	RoomUpdated   ChangeKind = "updated"
	MembersAdded  ChangeKind = "membersAdded"
	MemberRemoved ChangeKind = "memberRemoved"
	RoomDeleted   ChangeKind = "deleted"
)

// Delta describes a room change made on the REST side.
type Delta struct {
	Kind    ChangeKind
	RoomID  int
	Room    *models.Room    // RoomCreated, RoomUpdated
	Members []models.Member // MembersAdded, and the former members for RoomDeleted
	UserID  int             // MemberRemoved
}

type eviction struct {
	userID   int
	sessions []string
}

// MembershipChanged applies a REST-side change to the in-memory membership,
// drops subscriptions that are no longer allowed and emits the matching
// room event.
func (r *Registry) MembershipChanged(ctx context.Context, delta Delta) error {
	switch delta.Kind {
	case RoomCreated:
		return r.roomCreated(delta)
	case RoomUpdated:
		return r.roomUpdated(delta)
	case MembersAdded:
		return r.membersAdded(delta)
	case MemberRemoved:
		return r.memberRemoved(delta)
	case RoomDeleted:
		return r.roomDeleted(delta)
	default:
		return fmt.Errorf("unknown membership change %q", delta.Kind)
	}
}

func (r *Registry) roomCreated(delta Delta) error {
	if delta.Room == nil {
		return fmt.Errorf("room created without room")
	}
	rm := newRoom(delta.Room)

	r.mu.Lock()
	r.rooms[rm.id] = rm
	r.mu.Unlock()

	rm.mu.Lock()
	summary := summaryLocked(rm, 0)
	members := lo.Keys(rm.members)
	rm.mu.Unlock()

	r.notify(members, models.NewEnvelope(models.EventRoomCreated, models.RoomChangePayload{
		RoomID: rm.id,
		Room:   &summary,
	}))
	return nil
}

func (r *Registry) roomUpdated(delta Delta) error {
	if delta.Room == nil {
		return fmt.Errorf("room updated without room")
	}
	rm, ok := r.cached(delta.RoomID)
	if !ok {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.name = delta.Room.Name
	rm.isGroup = delta.Room.IsGroup
	summary := summaryLocked(rm, 0)
	r.deliverLocked(rm, models.NewEnvelope(models.EventRoomUpdated, models.RoomChangePayload{
		RoomID: rm.id,
		Room:   &summary,
	}), nil)
	return nil
}

func (r *Registry) membersAdded(delta Delta) error {
	added := lo.Map(delta.Members, func(m models.Member, _ int) int { return m.UserID })
	env := models.NewEnvelope(models.EventRoomMembersAdded, models.RoomChangePayload{
		RoomID:  delta.RoomID,
		UserIDs: added,
	})

	rm, ok := r.cached(delta.RoomID)
	if !ok {
		r.notify(added, env)
		return nil
	}

	rm.mu.Lock()
	for _, m := range delta.Members {
		if _, exists := rm.members[m.UserID]; !exists {
			rm.members[m.UserID] = &member{username: m.Username, unread: m.UnreadCount}
		}
	}
	summary := summaryLocked(rm, 0)
	env = models.NewEnvelope(models.EventRoomMembersAdded, models.RoomChangePayload{
		RoomID:  delta.RoomID,
		Room:    &summary,
		UserIDs: added,
	})
	r.deliverLocked(rm, env, nil)
	rm.mu.Unlock()

	// added users have no subscription yet
	r.notify(added, env)
	return nil
}

func (r *Registry) memberRemoved(delta Delta) error {
	env := models.NewEnvelope(models.EventRoomMemberRemoved, models.RoomChangePayload{
		RoomID:  delta.RoomID,
		UserIDs: []int{delta.UserID},
	})

	rm, ok := r.cached(delta.RoomID)
	if !ok {
		r.notify([]int{delta.UserID}, env)
		return nil
	}

	rm.mu.Lock()
	if _, ok := rm.members[delta.UserID]; !ok {
		rm.mu.Unlock()
		return nil
	}
	r.deliverLocked(rm, env, func(sub Subscriber) bool { return sub.UserID() != delta.UserID })
	delete(rm.members, delta.UserID)
	ev := evictUserLocked(rm, delta.UserID)
	rm.mu.Unlock()

	// every session of the removed user, joined or not
	r.notify([]int{delta.UserID}, env)
	r.runEvictions(delta.RoomID, []eviction{ev})
	return nil
}

func (r *Registry) roomDeleted(delta Delta) error {
	r.mu.Lock()
	rm, ok := r.rooms[delta.RoomID]
	delete(r.rooms, delta.RoomID)
	r.mu.Unlock()

	former := lo.Map(delta.Members, func(m models.Member, _ int) int { return m.UserID })
	var evictions []eviction
	if ok {
		rm.mu.Lock()
		rm.deleted = true
		for userID := range rm.members {
			former = append(former, userID)
			evictions = append(evictions, evictUserLocked(rm, userID))
		}
		rm.members = make(map[int]*member)
		rm.mu.Unlock()
	}

	r.notify(lo.Uniq(former), models.NewEnvelope(models.EventRoomDeleted, models.RoomChangePayload{
		RoomID: delta.RoomID,
	}))
	r.runEvictions(delta.RoomID, evictions)
	return nil
}

func evictUserLocked(rm *room, userID int) eviction {
	ev := eviction{userID: userID}
	for sessionID, sub := range rm.subscribers {
		if sub.UserID() == userID {
			ev.sessions = append(ev.sessions, sessionID)
			delete(rm.subscribers, sessionID)
		}
	}
	return ev
}

func (r *Registry) runEvictions(roomID int, evictions []eviction) {
	r.mu.RLock()
	hooks := append([]EvictFunc(nil), r.onEvict...)
	r.mu.RUnlock()

	for _, ev := range evictions {
		for _, hook := range hooks {
			hook(roomID, ev.userID, ev.sessions)
		}
	}
}

func (r *Registry) notify(userIDs []int, env models.Envelope) {
	r.mu.RLock()
	n := r.notifier
	r.mu.RUnlock()
	if n == nil || len(userIDs) == 0 {
		return
	}
	n.NotifyUsers(userIDs, env)
}
