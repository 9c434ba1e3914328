// Package client holds the consuming side of the realtime channel: the unread
// projection and the reconnecting connection that feeds it.
package client

import (
	"fmt"
	"sync"

	"chat-realtime/internal/models"

	"github.com/samber/lo"
)

// View is an immutable copy of the aggregator state.
type View struct {
	Total  uint
	Badges map[int]uint
}

// UnreadAggregator keeps the total unread figure and per-room badges for one
// user. Every update is applied under one lock, so a View never shows a
// half-applied event.
type UnreadAggregator struct {
	self int

	mu        sync.Mutex
	badges    map[int]uint
	listeners []func(View)
}

func NewUnreadAggregator(selfID int) *UnreadAggregator {
	return &UnreadAggregator{self: selfID, badges: make(map[int]uint)}
}

// OnChange registers fn to be called with the new view after each update.
func (a *UnreadAggregator) OnChange(fn func(View)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// ApplySnapshot replaces all state with the REST room list. Nothing
// accumulated before survives.
func (a *UnreadAggregator) ApplySnapshot(rooms []models.RoomSummary) {
	a.update(func() bool {
		a.badges = lo.SliceToMap(rooms, func(r models.RoomSummary) (int, uint) {
			return r.ID, r.UnreadCount
		})
		return true
	})
}

// ApplyRoomStates overwrites the counters of the rooms carried by a socket
// snapshot. Rooms the user is not a member of are ignored.
func (a *UnreadAggregator) ApplyRoomStates(states []models.RoomState) {
	a.update(func() bool {
		changed := false
		for _, s := range states {
			if cur, ok := a.badges[s.RoomID]; ok && cur != s.UnreadCount {
				a.badges[s.RoomID] = s.UnreadCount
				changed = true
			}
		}
		return changed
	})
}

// Apply folds one live event into the projection. Events that do not affect
// unread counts are ignored.
func (a *UnreadAggregator) Apply(env models.Envelope) error {
	switch env.Type {
	case models.EventNewMessage:
		var p models.NewMessagePayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		a.update(func() bool {
			cur, ok := a.badges[p.RoomID]
			if !ok || p.Message.UserID == a.self {
				return false
			}
			a.badges[p.RoomID] = cur + 1
			return true
		})

	case models.EventRoomMarkedAsRead:
		var p models.RoomReadPayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		a.update(func() bool {
			cur, ok := a.badges[p.RoomID]
			if !ok || p.UserID != a.self || cur == 0 {
				return false
			}
			a.badges[p.RoomID] = 0
			return true
		})

	case models.EventRoomCreated, models.EventRoomMembersAdded:
		var p models.RoomChangePayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		joined := lo.Contains(p.UserIDs, a.self) || (p.Room != nil && lo.Contains(p.Room.MemberIDs, a.self))
		a.update(func() bool {
			if _, ok := a.badges[p.RoomID]; ok || !joined {
				return false
			}
			a.badges[p.RoomID] = 0
			return true
		})

	case models.EventRoomMemberRemoved, models.EventRoomDeleted:
		var p models.RoomChangePayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if env.Type == models.EventRoomMemberRemoved && !lo.Contains(p.UserIDs, a.self) {
			return nil
		}
		a.update(func() bool {
			if _, ok := a.badges[p.RoomID]; !ok {
				return false
			}
			delete(a.badges, p.RoomID)
			return true
		})
	}
	return nil
}

// update runs fn under the lock and notifies listeners if it changed state.
func (a *UnreadAggregator) update(fn func() bool) {
	a.mu.Lock()
	if !fn() {
		a.mu.Unlock()
		return
	}
	view := a.viewLocked()
	listeners := append([]func(View){}, a.listeners...)
	a.mu.Unlock()

	for _, l := range listeners {
		l(view)
	}
}

func (a *UnreadAggregator) viewLocked() View {
	v := View{Badges: make(map[int]uint, len(a.badges))}
	for id, n := range a.badges {
		v.Badges[id] = n
		v.Total += n
	}
	return v
}

func (a *UnreadAggregator) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked()
}

func (a *UnreadAggregator) Total() uint {
	return a.View().Total
}

// Badge returns the room's count and whether the user is a member.
func (a *UnreadAggregator) Badge(roomID int) (uint, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.badges[roomID]
	return n, ok
}

// Rooms lists the rooms the user is currently a member of.
func (a *UnreadAggregator) Rooms() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return lo.Keys(a.badges)
}
