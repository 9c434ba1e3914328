//go:generate go run go.uber.org/mock/mockgen -source=friends.go -destination=../mocks/mock_presence.go -package=mocks
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// FriendSource is the REST-side friends list.
type FriendSource interface {
	ListFriendIDs(ctx context.Context, userID int) ([]int, error)
}

// CoMemberSource lists users sharing a room with a user.
type CoMemberSource interface {
	CoMembers(userID int) []int
}

// FriendDirectory caches friend lists and refreshes them on an interval.
type FriendDirectory struct {
	src      FriendSource
	interval time.Duration
	log      *slog.Logger

	mu      sync.RWMutex
	friends map[int][]int
}

func NewFriendDirectory(src FriendSource, interval time.Duration, log *slog.Logger) *FriendDirectory {
	return &FriendDirectory{
		src:      src,
		interval: interval,
		log:      log,
		friends:  make(map[int][]int),
	}
}

// Friends returns the cached list, loading it on first use.
func (d *FriendDirectory) Friends(ctx context.Context, userID int) []int {
	d.mu.RLock()
	ids, ok := d.friends[userID]
	d.mu.RUnlock()
	if ok {
		return ids
	}

	ids, err := d.src.ListFriendIDs(ctx, userID)
	if err != nil {
		d.log.Error("Loading friends", "user", userID, "error", err)
		return nil
	}
	d.mu.Lock()
	d.friends[userID] = ids
	d.mu.Unlock()
	return ids
}

// Forget drops a user's cached list.
func (d *FriendDirectory) Forget(userID int) {
	d.mu.Lock()
	delete(d.friends, userID)
	d.mu.Unlock()
}

// Run refreshes every cached list each interval until ctx is done.
func (d *FriendDirectory) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refresh(ctx)
		}
	}
}

func (d *FriendDirectory) refresh(ctx context.Context) {
	d.mu.RLock()
	users := lo.Keys(d.friends)
	d.mu.RUnlock()

	for _, userID := range users {
		ids, err := d.src.ListFriendIDs(ctx, userID)
		if err != nil {
			d.log.Error("Refreshing friends", "user", userID, "error", err)
			continue
		}
		d.mu.Lock()
		d.friends[userID] = ids
		d.mu.Unlock()
	}
	d.log.Debug("Friend lists refreshed", "users", len(users))
}

// FriendsAndCoMembers is the default Audience: friends plus anyone sharing a
// room with the user.
type FriendsAndCoMembers struct {
	Friends *FriendDirectory
	Rooms   CoMemberSource
}

func (a FriendsAndCoMembers) Audience(ctx context.Context, userID int) []int {
	var friends, coMembers []int
	if a.Friends != nil {
		friends = a.Friends.Friends(ctx, userID)
	}
	if a.Rooms != nil {
		coMembers = a.Rooms.CoMembers(userID)
	}
	return lo.Without(lo.Union(friends, coMembers), userID)
}
