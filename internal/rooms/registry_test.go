package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/models"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestRegistry(t *testing.T, fixtures ...*models.Room) *Registry {
	ctrl := gomock.NewController(t)
	loader := NewMockLoader(ctrl)
	for _, rm := range fixtures {
		loader.EXPECT().LoadRoom(gomock.Any(), rm.ID).Return(rm, nil).MaxTimes(1)
	}
	loader.EXPECT().LoadRoom(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id int) (*models.Room, error) {
			return nil, fmt.Errorf("room %d: %w", id, apperr.ErrRoomNotFound)
		}).AnyTimes()
	return NewRegistry(loader, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestRegistry_Join_Unknown_Room(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(t)

	// When a session joins a room nobody created
	err := registry.Join(context.Background(), newRecorder("s1", 1), 42)

	// Then the join is refused as not found
	req.ErrorIs(err, apperr.ErrRoomNotFound)
	req.Empty(registry.Subscribers(42))
}

func TestRegistry_Join_Not_A_Member(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(t, fixture(1, 1, 2))

	// When a user outside the member list joins
	err := registry.Join(context.Background(), newRecorder("s3", 3), 1)

	// Then the join is refused and nothing is subscribed
	req.ErrorIs(err, apperr.ErrNotAMember)
	req.Empty(registry.Subscribers(1))
}

func TestRegistry_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(t, fixture(1, 1, 2))
	sub := newRecorder("s1", 1)

	// When the same session joins twice
	req.NoError(registry.Join(context.Background(), sub, 1))
	req.NoError(registry.Join(context.Background(), sub, 1))

	// Then it holds a single subscription
	req.Equal([]string{"s1"}, registry.Subscribers(1))
}

func TestRegistry_Leave_Keeps_Membership(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t, fixture(1, 1, 2))
	sub := newRecorder("s1", 1)
	req.NoError(registry.Join(ctx, sub, 1))

	// When the session leaves twice
	registry.Leave("s1", 1)
	registry.Leave("s1", 1)

	// Then the subscription is gone but the user is still a member
	req.Empty(registry.Subscribers(1))
	isMember, err := registry.IsMember(ctx, 1, 1)
	req.NoError(err)
	req.True(isMember)

	// And room events no longer reach the session
	req.NoError(registry.PostMessage(ctx, models.Message{RoomID: 1, UserID: 2, Content: "hi"}))
	req.Empty(sub.all())
}

func TestRegistry_Unread_Counts_Messages_Since_Last_Read(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t, fixture(1, 1, 2, 3))
	post := func(from int) {
		req.NoError(registry.PostMessage(ctx, models.Message{RoomID: 1, UserID: from, Content: "x"}))
	}

	// Given user 1 sends two messages and user 2 sends one
	post(1)
	post(1)
	post(2)

	// Then nobody counts their own messages
	unread := func(userID int) uint {
		n, ok := registry.Unread(1, userID)
		req.True(ok)
		return n
	}
	req.Equal(uint(1), unread(1))
	req.Equal(uint(2), unread(2))
	req.Equal(uint(3), unread(3))

	// When user 3 reads the room and user 1 posts again
	req.NoError(registry.MarkRead(ctx, 1, 3))
	post(1)

	// Then only the message after the read counts
	req.Equal(uint(1), unread(3))
	req.Equal(uint(3), unread(2))
}

func TestRegistry_MarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t, fixture(1, 1, 2))
	req.NoError(registry.PostMessage(ctx, models.Message{RoomID: 1, UserID: 1, Content: "x"}))

	// When user 2 marks the room read twice
	req.NoError(registry.MarkRead(ctx, 1, 2))
	req.NoError(registry.MarkRead(ctx, 1, 2))

	// Then the counter stays at zero
	n, ok := registry.Unread(1, 2)
	req.True(ok)
	req.Zero(n)
}

func TestRegistry_MarkRead_Reaches_Only_That_User(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t, fixture(1, 1, 2))
	laptop, phone, other := newRecorder("laptop", 2), newRecorder("phone", 2), newRecorder("other", 1)
	for _, sub := range []*recorder{laptop, phone, other} {
		req.NoError(registry.Join(ctx, sub, 1))
	}

	// When user 2 reads the room from the laptop
	req.NoError(registry.MarkRead(ctx, 1, 2))

	// Then both of user 2's sessions converge, the other member hears nothing
	req.Len(laptop.events(models.EventRoomMarkedAsRead), 1)
	req.Len(phone.events(models.EventRoomMarkedAsRead), 1)
	req.Empty(other.events(models.EventRoomMarkedAsRead))

	var p models.RoomReadPayload
	req.NoError(phone.events(models.EventRoomMarkedAsRead)[0].Decode(&p))
	req.Equal(models.RoomReadPayload{RoomID: 1, UserID: 2}, p)
}

func TestRegistry_MarkRead_Not_A_Member(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(t, fixture(1, 1, 2))

	err := registry.MarkRead(context.Background(), 1, 9)

	req.ErrorIs(err, apperr.ErrNotAMember)
}

func TestRegistry_MarkRead_Deleted_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t, fixture(1, 1, 2))
	req.NoError(registry.Join(ctx, newRecorder("s1", 1), 1))

	// Given a caller still holding the room when it was deleted
	rm, ok := registry.cached(1)
	req.True(ok)
	rm.mu.Lock()
	rm.deleted = true
	rm.mu.Unlock()

	err := registry.MarkRead(ctx, 1, 1)

	req.ErrorIs(err, apperr.ErrRoomNotFound)
	req.NotErrorIs(err, apperr.ErrNotAMember)
}

func TestRegistry_Broadcast_Preserves_Room_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t, fixture(1, 1, 2))
	a, b := newRecorder("a", 1), newRecorder("b", 2)
	req.NoError(registry.Join(ctx, a, 1))
	req.NoError(registry.Join(ctx, b, 1))

	// When several events are accepted by the room
	for i := 0; i < 5; i++ {
		req.NoError(registry.PostMessage(ctx, models.Message{ID: i, RoomID: 1, UserID: 1, Content: "x"}))
	}

	// Then every subscriber sees them with the same increasing sequence
	for _, sub := range []*recorder{a, b} {
		events := sub.all()
		req.Len(events, 5)
		for i, env := range events {
			req.Equal(uint64(i+1), env.Seq)
			var p models.NewMessagePayload
			req.NoError(env.Decode(&p))
			req.Equal(i, p.Message.ID)
		}
	}
}

func TestRegistry_Broadcast_Survives_Failing_Subscriber(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t, fixture(1, 1, 2))
	broken := &panicking{recorder{sessionID: "broken", userID: 1}}
	healthy := newRecorder("healthy", 2)
	req.NoError(registry.Join(ctx, broken, 1))
	req.NoError(registry.Join(ctx, healthy, 1))

	// When a message is posted while one subscriber fails
	err := registry.PostMessage(ctx, models.Message{RoomID: 1, UserID: 1, Content: "x"})

	// Then the others still get it and the state change is kept
	req.NoError(err)
	req.Len(healthy.events(models.EventNewMessage), 1)
	n, _ := registry.Unread(1, 2)
	req.Equal(uint(1), n)
}

func TestRegistry_Loads_Room_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	loader := NewMockLoader(ctrl)
	registry := NewRegistry(loader, logs.GetLoggerFromLevel(slog.LevelDebug))

	// Given the store knows room 1
	loader.EXPECT().LoadRoom(gomock.Any(), 1).Return(fixture(1, 1, 2), nil).Times(1)

	// When it is used repeatedly
	req.NoError(registry.Join(ctx, newRecorder("s1", 1), 1))
	req.NoError(registry.Join(ctx, newRecorder("s2", 2), 1))
	_, err := registry.IsMember(ctx, 1, 2)
	req.NoError(err)

	// Then the store was asked only once
	req.ElementsMatch([]int{1, 2}, registry.Members(1))
}

func TestRegistry_CoMembers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t, fixture(1, 1, 2), fixture(2, 1, 3, 4), fixture(3, 5, 6))
	for _, id := range []int{1, 2, 3} {
		_, err := registry.IsMember(ctx, id, 1)
		req.NoError(err)
	}

	req.ElementsMatch([]int{2, 3, 4}, registry.CoMembers(1))
	req.Empty(registry.CoMembers(9))
}
