package rooms

import (
	"context"
	"testing"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type evicted struct {
	roomID   int
	userID   int
	sessions []string
}

func TestMembership_Removed_Member_Stops_Receiving(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	notifier := NewMockUserNotifier(ctrl)
	registry := newTestRegistry(t, fixture(1, 1, 2))
	registry.SetNotifier(notifier)
	stays, leaves := newRecorder("stays", 1), newRecorder("leaves", 2)
	req.NoError(registry.Join(ctx, stays, 1))
	req.NoError(registry.Join(ctx, leaves, 1))

	var hooks []evicted
	registry.OnEvict(func(roomID, userID int, sessions []string) {
		hooks = append(hooks, evicted{roomID, userID, sessions})
	})

	// Then every session of user 2 is told once, joined or not
	notifier.EXPECT().NotifyUsers([]int{2}, gomock.Any()).
		Do(func(_ []int, env models.Envelope) {
			req.Equal(models.EventRoomMemberRemoved, env.Type)
		}).Times(1)

	// When user 2 is removed on the REST side
	req.NoError(registry.MembershipChanged(ctx, Delta{Kind: MemberRemoved, RoomID: 1, UserID: 2}))

	// And the remaining subscribers hear it through the room
	req.Len(stays.events(models.EventRoomMemberRemoved), 1)
	req.Empty(leaves.events(models.EventRoomMemberRemoved))

	// And the eviction hook got the dropped subscription
	req.Equal([]evicted{{roomID: 1, userID: 2, sessions: []string{"leaves"}}}, hooks)

	// And later room events skip the removed member, whose session stays usable
	req.NoError(registry.PostMessage(ctx, models.Message{RoomID: 1, UserID: 1, Content: "x"}))
	req.Len(stays.events(models.EventNewMessage), 1)
	req.Empty(leaves.events(models.EventNewMessage))

	// And the removed user can no longer join
	req.ErrorIs(registry.Join(ctx, leaves, 1), apperr.ErrNotAMember)
}

func TestMembership_Removed_From_Uncached_Room(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	notifier := NewMockUserNotifier(ctrl)
	registry := newTestRegistry(t)
	registry.SetNotifier(notifier)

	// Then the removed user still hears about it
	notifier.EXPECT().NotifyUsers([]int{4}, gomock.Any()).Times(1)

	// When a room nobody loaded loses a member
	req.NoError(registry.MembershipChanged(context.Background(), Delta{Kind: MemberRemoved, RoomID: 8, UserID: 4}))
}

func TestMembership_Room_Deleted(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	notifier := NewMockUserNotifier(ctrl)
	registry := newTestRegistry(t, fixture(1, 1, 2, 3))
	registry.SetNotifier(notifier)
	a, b := newRecorder("a", 1), newRecorder("b", 2)
	req.NoError(registry.Join(ctx, a, 1))
	req.NoError(registry.Join(ctx, b, 1))

	var hooks []evicted
	registry.OnEvict(func(roomID, userID int, sessions []string) {
		hooks = append(hooks, evicted{roomID, userID, sessions})
	})

	// Then every former member is told, including user 3 who never joined
	notifier.EXPECT().NotifyUsers(gomock.Any(), gomock.Any()).
		Do(func(userIDs []int, env models.Envelope) {
			req.ElementsMatch([]int{1, 2, 3}, userIDs)
			req.Equal(models.EventRoomDeleted, env.Type)
		}).Times(1)

	// When the room is deleted
	req.NoError(registry.MembershipChanged(ctx, Delta{Kind: RoomDeleted, RoomID: 1}))

	// And every subscriber is evicted
	req.ElementsMatch([]evicted{
		{roomID: 1, userID: 1, sessions: []string{"a"}},
		{roomID: 1, userID: 2, sessions: []string{"b"}},
		{roomID: 1, userID: 3},
	}, hooks)

	// And the room is gone for good
	req.ErrorIs(registry.Join(ctx, a, 1), apperr.ErrRoomNotFound)
	req.ErrorIs(registry.Broadcast(1, models.NewEnvelope(models.EventTypingList, models.TypingListPayload{RoomID: 1})), apperr.ErrRoomNotFound)
}

func TestMembership_Uncached_Room_Deleted(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	notifier := NewMockUserNotifier(ctrl)
	registry := newTestRegistry(t)
	registry.SetNotifier(notifier)

	// Then the members carried by the change are told
	notifier.EXPECT().NotifyUsers(gomock.Any(), gomock.Any()).
		Do(func(userIDs []int, _ models.Envelope) {
			req.ElementsMatch([]int{1, 2}, userIDs)
		}).Times(1)

	// When a room nobody loaded is deleted
	req.NoError(registry.MembershipChanged(context.Background(), Delta{
		Kind:    RoomDeleted,
		RoomID:  8,
		Members: []models.Member{{UserID: 1}, {UserID: 2}},
	}))
}

func TestMembership_Room_Created_Notifies_Members(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	notifier := NewMockUserNotifier(ctrl)
	registry := newTestRegistry(t)
	registry.SetNotifier(notifier)

	// Then every member is told, whether or not they joined anything
	notifier.EXPECT().NotifyUsers(gomock.Any(), gomock.Any()).
		Do(func(userIDs []int, env models.Envelope) {
			req.ElementsMatch([]int{1, 2, 3}, userIDs)
			req.Equal(models.EventRoomCreated, env.Type)
			var p models.RoomChangePayload
			req.NoError(env.Decode(&p))
			req.Equal(7, p.RoomID)
			req.NotNil(p.Room)
			req.ElementsMatch([]int{1, 2, 3}, p.Room.MemberIDs)
		}).Times(1)

	// When a room is created on the REST side
	req.NoError(registry.MembershipChanged(ctx, Delta{Kind: RoomCreated, RoomID: 7, Room: fixture(7, 1, 2, 3)}))

	// And it can be joined without hitting the store
	req.NoError(registry.Join(ctx, newRecorder("s1", 2), 7))
}

func TestMembership_Members_Added(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	notifier := NewMockUserNotifier(ctrl)
	registry := newTestRegistry(t, fixture(1, 1, 2))
	registry.SetNotifier(notifier)
	existing := newRecorder("existing", 1)
	req.NoError(registry.Join(ctx, existing, 1))

	// Then the new member is told directly
	notifier.EXPECT().NotifyUsers([]int{3}, gomock.Any()).Times(1)

	// When user 3 is invited
	req.NoError(registry.MembershipChanged(ctx, Delta{
		Kind:    MembersAdded,
		RoomID:  1,
		Members: []models.Member{{UserID: 3, Username: "carol"}},
	}))

	// And the current subscribers see the change
	req.Len(existing.events(models.EventRoomMembersAdded), 1)

	// And the new member can join and starts counting unread
	req.NoError(registry.Join(ctx, newRecorder("carol", 3), 1))
	req.NoError(registry.PostMessage(ctx, models.Message{RoomID: 1, UserID: 1, Content: "welcome"}))
	n, ok := registry.Unread(1, 3)
	req.True(ok)
	req.Equal(uint(1), n)
}

func TestMembership_Room_Updated(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := newTestRegistry(t, fixture(1, 1, 2))
	sub := newRecorder("s1", 1)
	req.NoError(registry.Join(ctx, sub, 1))

	renamed := fixture(1, 1, 2)
	renamed.Name = "renamed"
	req.NoError(registry.MembershipChanged(ctx, Delta{Kind: RoomUpdated, RoomID: 1, Room: renamed}))

	summary, ok := registry.Summary(1, 1)
	req.True(ok)
	req.Equal("renamed", summary.Name)
	req.Len(sub.events(models.EventRoomUpdated), 1)
}

func TestMembership_Unknown_Kind(t *testing.T) {
	req := require.New(t)
	registry := newTestRegistry(t)

	err := registry.MembershipChanged(context.Background(), Delta{Kind: "renamed"})

	req.Error(err)
}
