package presence

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"chat-realtime/internal/models"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type fixedAudience []int

func (a fixedAudience) Audience(context.Context, int) []int { return a }

type collector struct {
	mu     sync.Mutex
	events []models.PresencePayload
}

func (c *collector) NotifyUsers(_ []int, env models.Envelope) {
	var p models.PresencePayload
	if err := env.Decode(&p); err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.events = append(c.events, p)
	c.mu.Unlock()
}

func (c *collector) snapshot() []models.PresencePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.PresencePayload(nil), c.events...)
}

func newTestTracker(out *collector) *Tracker {
	return NewTracker(fixedAudience{99}, out, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestTracker_Multiple_Sessions_Do_Not_Flap(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	out := &collector{}
	tracker := newTestTracker(out)

	// Given a user opens three sessions
	req.True(tracker.Connect(ctx, 1))
	req.False(tracker.Connect(ctx, 1))
	req.False(tracker.Connect(ctx, 1))
	req.Equal(models.StatusOnline, tracker.Status(1))

	// When two of them close
	req.False(tracker.Disconnect(ctx, 1))
	req.False(tracker.Disconnect(ctx, 1))

	// Then the user is still online
	req.Equal(models.StatusOnline, tracker.Status(1))
	req.Equal(1, tracker.Sessions(1))

	// When the last one closes
	req.True(tracker.Disconnect(ctx, 1))

	// Then exactly one online and one offline transition were published
	req.Equal(models.StatusOffline, tracker.Status(1))
	req.Equal([]models.PresencePayload{
		{UserID: 1, Status: models.StatusOnline},
		{UserID: 1, Status: models.StatusOffline},
	}, out.snapshot())
}

func TestTracker_Disconnect_Unknown_User(t *testing.T) {
	req := require.New(t)
	out := &collector{}
	tracker := newTestTracker(out)

	req.False(tracker.Disconnect(context.Background(), 5))
	req.Empty(out.snapshot())
	req.Equal(models.StatusOffline, tracker.Status(5))
}

func TestTracker_Concurrent_Sessions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	out := &collector{}
	tracker := newTestTracker(out)

	// When many sessions of many users come and go concurrently
	var wg sync.WaitGroup
	for user := 1; user <= 40; user++ {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(user int) {
				defer wg.Done()
				tracker.Connect(ctx, user)
				tracker.Disconnect(ctx, user)
			}(user)
		}
	}
	wg.Wait()

	// Then everybody ends offline and transitions alternate per user
	req.Empty(tracker.Online([]int{1, 2, 3, 39, 40}))
	last := map[int]models.PresenceStatus{}
	for _, e := range out.snapshot() {
		req.NotEqual(last[e.UserID], e.Status)
		last[e.UserID] = e.Status
	}
	for user := 1; user <= 40; user++ {
		req.Equal(models.StatusOffline, last[user])
	}
}

func TestTracker_Online(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tracker := newTestTracker(&collector{})
	tracker.Connect(ctx, 1)
	tracker.Connect(ctx, 3)

	req.Equal([]int{1, 3}, tracker.Online([]int{1, 2, 3}))
}
