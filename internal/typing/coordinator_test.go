package typing

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type lists struct {
	mu  sync.Mutex
	got []models.TypingListPayload
}

func (l *lists) Broadcast(_ int, env models.Envelope) error {
	var p models.TypingListPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	l.mu.Lock()
	l.got = append(l.got, p)
	l.mu.Unlock()
	return nil
}

func (l *lists) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.got)
}

func (l *lists) last() models.TypingListPayload {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.got[len(l.got)-1]
}

var (
	alice = models.Identity{ID: 1, DisplayName: "alice"}
	bob   = models.Identity{ID: 2, DisplayName: "bob"}
)

func newTestCoordinator(t *testing.T, expiry time.Duration) (*Coordinator, *lists) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthorizer(ctrl)
	auth.EXPECT().IsMember(gomock.Any(), 10, gomock.Any()).Return(true, nil).AnyTimes()
	auth.EXPECT().IsMember(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).AnyTimes()
	out := &lists{}
	return NewCoordinator(auth, out, expiry, logs.GetLoggerFromLevel(slog.LevelDebug)), out
}

func TestCoordinator_Ping_Expires(t *testing.T) {
	req := require.New(t)
	c, out := newTestCoordinator(t, 50*time.Millisecond)

	// Given alice starts typing
	req.NoError(c.Ping(context.Background(), 10, "s1", alice))
	req.Equal([]models.Typer{{ID: 1, Username: "alice"}}, out.last().Typers)

	// Then her entry disappears once the expiry elapses
	req.Eventually(func() bool {
		return out.count() == 2 && len(out.last().Typers) == 0
	}, time.Second, 10*time.Millisecond)
	req.Empty(c.List(10))
}

func TestCoordinator_Repeated_Pings_Keep_One_Entry(t *testing.T) {
	req := require.New(t)
	c, out := newTestCoordinator(t, 80*time.Millisecond)
	ctx := context.Background()

	// When alice keeps pinging faster than the expiry
	for i := 0; i < 5; i++ {
		req.NoError(c.Ping(ctx, 10, "s1", alice))
		time.Sleep(20 * time.Millisecond)
	}

	// Then only the first ping changed the list
	req.Equal(1, out.count())
	req.Len(c.List(10), 1)

	// And a single expiry follows the last ping
	req.Eventually(func() bool { return len(c.List(10)) == 0 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	req.Equal(2, out.count())
}

func TestCoordinator_Stop(t *testing.T) {
	req := require.New(t)
	c, out := newTestCoordinator(t, time.Minute)
	ctx := context.Background()

	req.NoError(c.Ping(ctx, 10, "s1", alice))
	req.NoError(c.Ping(ctx, 10, "s2", bob))
	req.Equal([]models.Typer{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}, c.List(10))

	// When alice stops explicitly
	c.Stop(10, alice.ID)

	// Then the list only holds bob
	req.Equal([]models.Typer{{ID: 2, Username: "bob"}}, out.last().Typers)

	// And stopping again is silent
	before := out.count()
	c.Stop(10, alice.ID)
	c.Stop(99, alice.ID)
	req.Equal(before, out.count())
}

func TestCoordinator_Ping_Not_A_Member(t *testing.T) {
	req := require.New(t)
	c, out := newTestCoordinator(t, time.Minute)

	err := c.Ping(context.Background(), 11, "s1", alice)

	req.ErrorIs(err, apperr.ErrNotAMember)
	req.Zero(out.count())
	req.Empty(c.List(11))
}

func TestCoordinator_DropSession(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t, time.Minute)
	ctx := context.Background()

	// Given alice types from s1 and bob from s2
	req.NoError(c.Ping(ctx, 10, "s1", alice))
	req.NoError(c.Ping(ctx, 10, "s2", bob))

	// When s1 goes away
	c.DropSession("s1")

	// Then only bob is left
	req.Equal([]models.Typer{{ID: 2, Username: "bob"}}, c.List(10))
}

func TestCoordinator_Entry_Follows_Last_Session(t *testing.T) {
	req := require.New(t)
	c, _ := newTestCoordinator(t, time.Minute)
	ctx := context.Background()

	// Given alice pinged from s1 then from s2
	req.NoError(c.Ping(ctx, 10, "s1", alice))
	req.NoError(c.Ping(ctx, 10, "s2", alice))

	// When s1 goes away the entry survives
	c.DropSession("s1")
	req.Len(c.List(10), 1)

	// When s2 goes away the entry is gone
	c.DropSession("s2")
	req.Empty(c.List(10))
}

func TestCoordinator_Ping_Racing_DropUser_Leaves_No_Entry(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthorizer(ctrl)
	c := NewCoordinator(auth, &lists{}, time.Minute, logs.GetLoggerFromLevel(slog.LevelDebug))

	checking, release := make(chan struct{}), make(chan struct{})
	auth.EXPECT().IsMember(gomock.Any(), 10, 2).
		DoAndReturn(func(context.Context, int, int) (bool, error) {
			close(checking)
			<-release
			return true, nil
		})

	// Given bob's ping has passed the membership check
	pinged := make(chan error, 1)
	go func() { pinged <- c.Ping(context.Background(), 10, "s2", bob) }()
	<-checking

	// When he is dropped from the room meanwhile
	dropped := make(chan struct{})
	go func() {
		c.DropUser(10, 2)
		close(dropped)
	}()

	// Then the drop waits for the ping and removes what it inserted
	select {
	case <-dropped:
		t.Fatal("drop finished before the ping")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	req.NoError(<-pinged)
	<-dropped
	req.Empty(c.List(10))
}
