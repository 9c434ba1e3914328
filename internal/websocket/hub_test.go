package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/config"
	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
	"chat-realtime/internal/rooms"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testRealtime = config.RealtimeConfig{
	TypingExpiry:      100 * time.Millisecond,
	SessionBufferSize: 64,
	PongWait:          5 * time.Second,
	PingPeriod:        4 * time.Second,
	WriteWait:         time.Second,
	MaxMessageSize:    1 << 16,
}

// everyone hears about every presence change but their own.
type everyone []int

func (e everyone) Audience(_ context.Context, userID int) []int {
	return lo.Without(e, userID)
}

type harness struct {
	hub    *Hub
	server *httptest.Server
	store  *mocks.MockMessageStore
}

func roomFixture(id int, memberIDs ...int) *models.Room {
	r := &models.Room{ID: id, Name: fmt.Sprintf("room-%d", id), IsGroup: len(memberIDs) > 2}
	for _, uid := range memberIDs {
		r.Members = append(r.Members, models.Member{UserID: uid, Username: fmt.Sprintf("user-%d", uid)})
	}
	return r
}

// newHarness serves sessions whose identity comes straight from the query
// string; credential checks are covered by the handler tests.
func newHarness(t *testing.T, fixtures ...*models.Room) *harness {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockLoader(ctrl)
	for _, rm := range fixtures {
		loader.EXPECT().LoadRoom(gomock.Any(), rm.ID).Return(rm, nil).AnyTimes()
	}
	loader.EXPECT().LoadRoom(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id int) (*models.Room, error) {
			return nil, fmt.Errorf("room %d: %w", id, apperr.ErrRoomNotFound)
		}).AnyTimes()

	store := mocks.NewMockMessageStore(ctrl)
	var nextID atomic.Int64
	store.EXPECT().SaveMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, userID, roomID int, content string) (*models.Message, error) {
			return &models.Message{
				ID:        int(nextID.Add(1)),
				UserID:    userID,
				RoomID:    roomID,
				Content:   content,
				CreatedAt: time.Now(),
			}, nil
		}).AnyTimes()

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := NewHub(Options{
		Registry:     rooms.NewRegistry(loader, log),
		Store:        store,
		Audience:     everyone{1, 2, 3},
		TypingExpiry: testRealtime.TypingExpiry,
		Log:          log,
	})

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.Atoi(r.URL.Query().Get("userId"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, models.Identity{ID: userID, DisplayName: r.URL.Query().Get("name")}, testRealtime)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(server.Close)
	return &harness{hub: hub, server: server, store: store}
}

type peer struct {
	t         *testing.T
	conn      *websocket.Conn
	sessionID string
}

// connect opens a session and waits until the hub has registered it.
func (h *harness) connect(t *testing.T, userID int, name string) *peer {
	t.Helper()
	url := fmt.Sprintf("ws%s/ws?userId=%d&name=%s", strings.TrimPrefix(h.server.URL, "http"), userID, name)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	p := &peer{t: t, conn: conn}
	id := p.send(models.EventSync, models.SyncPayload{})
	p.reply(models.EventSnapshot, id)
	return p
}

func (p *peer) send(t models.EventType, payload any) string {
	p.t.Helper()
	env := models.NewEnvelope(t, payload)
	env.RequestID = uuid.NewString()
	require.NoError(p.t, p.conn.WriteJSON(env))
	return env.RequestID
}

// expect reads until an event of type t arrives, skipping the others.
func (p *peer) expect(t models.EventType) models.Envelope {
	p.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		p.conn.SetReadDeadline(deadline)
		var env models.Envelope
		require.NoError(p.t, p.conn.ReadJSON(&env), "waiting for %s", t)
		if env.Type == t {
			return env
		}
	}
}

// reply waits for the answer of type t to the request id.
func (p *peer) reply(t models.EventType, requestID string) models.Envelope {
	p.t.Helper()
	for {
		env := p.expect(t)
		if env.RequestID == requestID {
			return env
		}
	}
}

// quiet asserts no event of type t arrives within d.
func (p *peer) quiet(t models.EventType, d time.Duration) {
	p.t.Helper()
	deadline := time.Now().Add(d)
	for {
		p.conn.SetReadDeadline(deadline)
		var env models.Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			return
		}
		require.NotEqual(p.t, t, env.Type, "unexpected %s", t)
	}
}

// join joins the room, remembering the session id carried by the ack.
func (p *peer) join(roomID int) {
	p.t.Helper()
	id := p.send(models.EventJoinRoom, models.RoomPayload{RoomID: roomID})
	var ack models.AckPayload
	require.NoError(p.t, p.reply(models.EventAck, id).Decode(&ack))
	require.Equal(p.t, models.EventJoinRoom, ack.Type)
	p.sessionID = ack.SessionID
}

func decodeAs[T any](t *testing.T, env models.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, env.Decode(&v))
	return v
}

func TestHub_Message_Reaches_Every_Joined_Session_In_Order(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, roomFixture(10, 1, 2))
	alice := h.connect(t, 1, "alice")
	bob := h.connect(t, 2, "bob")
	alice.join(10)
	bob.join(10)

	// When alice sends three messages
	for i := 0; i < 3; i++ {
		alice.send(models.EventSendMessage, models.SendMessagePayload{RoomID: 10, Content: fmt.Sprintf("m%d", i)})
	}

	// Then bob gets them in order with increasing room sequence
	var last uint64
	for i := 0; i < 3; i++ {
		env := bob.expect(models.EventNewMessage)
		p := decodeAs[models.NewMessagePayload](t, env)
		req.Equal(fmt.Sprintf("m%d", i), p.Message.Content)
		req.Equal("alice", p.Message.Username)
		req.Greater(env.Seq, last)
		last = env.Seq
	}

	// And the registry counted them for bob only
	n, ok := h.hub.rooms.Unread(10, 2)
	req.True(ok)
	req.Equal(uint(3), n)
	n, _ = h.hub.rooms.Unread(10, 1)
	req.Zero(n)
}

func TestHub_Error_Goes_To_Originating_Session_Only(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, roomFixture(10, 1, 2), roomFixture(11, 2, 3))
	alice := h.connect(t, 1, "alice")
	bob := h.connect(t, 2, "bob")
	bob.join(10)

	// When alice posts to a room she does not belong to
	id := alice.send(models.EventSendMessage, models.SendMessagePayload{RoomID: 11, Content: "hi"})

	// Then only alice hears about it and her session stays usable
	p := decodeAs[models.ErrorPayload](t, alice.reply(models.EventError, id))
	req.Equal(apperr.CodeNotAMember, p.Code)
	bob.quiet(models.EventError, 100*time.Millisecond)
	alice.join(10)
}

func TestHub_Invalid_Frames(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, roomFixture(10, 1))
	alice := h.connect(t, 1, "alice")

	// Given a frame that is not JSON
	req.NoError(alice.conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	p := decodeAs[models.ErrorPayload](t, alice.expect(models.EventError))
	req.Equal(apperr.CodeInvalidEvent, p.Code)

	// And an unknown event and a payload failing validation
	id := alice.send("dance", models.RoomPayload{RoomID: 10})
	req.Equal(apperr.CodeInvalidEvent, decodeAs[models.ErrorPayload](t, alice.reply(models.EventError, id)).Code)
	id = alice.send(models.EventSendMessage, models.SendMessagePayload{RoomID: 10})
	req.Equal(apperr.CodeInvalidEvent, decodeAs[models.ErrorPayload](t, alice.reply(models.EventError, id)).Code)

	// Then the session is still open
	alice.join(10)
}

func TestHub_Join_Unknown_Room(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, 1, "alice")

	id := alice.send(models.EventJoinRoom, models.RoomPayload{RoomID: 404})

	p := decodeAs[models.ErrorPayload](t, alice.reply(models.EventError, id))
	require.Equal(t, apperr.CodeRoomNotFound, p.Code)
}

func TestHub_Typing_Expires_And_Stops_On_Send(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, roomFixture(10, 1, 2))
	alice := h.connect(t, 1, "alice")
	bob := h.connect(t, 2, "bob")
	alice.join(10)
	bob.join(10)

	// When alice starts typing
	alice.send(models.EventTypingPing, models.RoomPayload{RoomID: 10})

	// Then bob sees her and later sees the list empty without any stop
	list := decodeAs[models.TypingListPayload](t, bob.expect(models.EventTypingList))
	req.Equal([]models.Typer{{ID: 1, Username: "alice"}}, list.Typers)
	list = decodeAs[models.TypingListPayload](t, bob.expect(models.EventTypingList))
	req.Empty(list.Typers)

	// When she types again and sends
	alice.send(models.EventTypingPing, models.RoomPayload{RoomID: 10})
	req.Len(decodeAs[models.TypingListPayload](t, bob.expect(models.EventTypingList)).Typers, 1)
	alice.send(models.EventSendMessage, models.SendMessagePayload{RoomID: 10, Content: "done"})

	// Then the entry is cleared before the message lands
	req.Empty(decodeAs[models.TypingListPayload](t, bob.expect(models.EventTypingList)).Typers)
	bob.expect(models.EventNewMessage)
}

func TestHub_Presence_Does_Not_Flap_Across_Sessions(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	bob := h.connect(t, 2, "bob")

	// When alice opens two sessions
	first := h.connect(t, 1, "alice")
	online := decodeAs[models.PresencePayload](t, bob.expect(models.EventPresenceChanged))
	req.Equal(models.PresencePayload{UserID: 1, Status: models.StatusOnline}, online)
	h.connect(t, 1, "alice")
	req.Len(h.hub.Sessions(1), 2)

	// And closes one of them
	first.conn.Close()
	req.Eventually(func() bool { return len(h.hub.Sessions(1)) == 1 }, time.Second, 10*time.Millisecond)

	// Then she is still online
	bob.quiet(models.EventPresenceChanged, 100*time.Millisecond)
	req.Equal(models.StatusOnline, h.hub.Presence().Status(1))
}

func TestHub_Presence_Goes_Offline_With_Last_Session(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	bob := h.connect(t, 2, "bob")
	alice := h.connect(t, 1, "alice")
	bob.expect(models.EventPresenceChanged)

	alice.conn.Close()

	offline := decodeAs[models.PresencePayload](t, bob.expect(models.EventPresenceChanged))
	req.Equal(models.PresencePayload{UserID: 1, Status: models.StatusOffline}, offline)
}

func TestHub_Mark_Read_Syncs_Other_Devices(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, roomFixture(10, 1, 2))
	h.store.EXPECT().ResetUnread(gomock.Any(), 2, 10).Return(nil)
	alice := h.connect(t, 1, "alice")
	phone := h.connect(t, 2, "bob")
	laptop := h.connect(t, 2, "bob")
	alice.join(10)
	phone.join(10)
	laptop.join(10)

	alice.send(models.EventSendMessage, models.SendMessagePayload{RoomID: 10, Content: "ping"})
	laptop.expect(models.EventNewMessage)

	// When bob reads the room on his phone
	id := phone.send(models.EventMarkRoomRead, models.RoomPayload{RoomID: 10})
	phone.reply(models.EventAck, id)

	// Then his laptop is told and alice is not
	read := decodeAs[models.RoomReadPayload](t, laptop.expect(models.EventRoomMarkedAsRead))
	req.Equal(models.RoomReadPayload{RoomID: 10, UserID: 2}, read)
	alice.quiet(models.EventRoomMarkedAsRead, 100*time.Millisecond)
	n, _ := h.hub.rooms.Unread(10, 2)
	req.Zero(n)
}

func TestHub_Voice_Roster(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, roomFixture(10, 1, 2))
	alice := h.connect(t, 1, "alice")
	bob := h.connect(t, 2, "bob")
	alice.join(10)
	bob.join(10)

	// Given alice joins voice
	id := alice.send(models.EventVoiceJoin, models.VoicePayload{RoomID: 10})
	alice.reply(models.EventAck, id)
	roster := decodeAs[models.VoiceRosterPayload](t, bob.expect(models.EventVoiceRoster))
	req.Len(roster.Participants, 1)
	req.Equal(alice.sessionID, roster.Participants[0].SessionID)

	// When bob tries to mute her
	id = bob.send(models.EventSetMic, models.VoicePayload{RoomID: 10, SessionID: alice.sessionID})

	// Then he is refused
	req.Equal(apperr.CodeNotOwner, decodeAs[models.ErrorPayload](t, bob.reply(models.EventError, id)).Code)
	req.True(h.hub.Voice().Roster(10)[0].MicOn)

	// When alice starts sharing and her session drops
	alice.send(models.EventStartShare, models.VoicePayload{RoomID: 10})
	bob.expect(models.EventVoiceRoster)
	alice.conn.Close()

	// Then the share stops and the roster empties
	stopped := decodeAs[models.ShareStoppedPayload](t, bob.expect(models.EventVoiceShareStopped))
	req.Equal(alice.sessionID, stopped.SessionID)
	req.Empty(decodeAs[models.VoiceRosterPayload](t, bob.expect(models.EventVoiceRoster)).Participants)
}

func TestHub_Sync_Returns_Snapshot(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, roomFixture(10, 1, 2), roomFixture(11, 2, 3))
	alice := h.connect(t, 1, "alice")
	bob := h.connect(t, 2, "bob")
	alice.join(10)
	bob.join(10)
	bob.send(models.EventSendMessage, models.SendMessagePayload{RoomID: 10, Content: "hello"})
	alice.expect(models.EventNewMessage)
	bob.send(models.EventVoiceJoin, models.VoicePayload{RoomID: 10})
	alice.expect(models.EventVoiceRoster)

	// When alice asks for a room she is in and one she is not
	id := alice.send(models.EventSync, models.SyncPayload{RoomIDs: []int{10, 11}})

	// Then only her room comes back
	snapshot := decodeAs[models.SnapshotPayload](t, alice.reply(models.EventSnapshot, id))
	req.Len(snapshot.Rooms, 1)
	req.Equal(10, snapshot.Rooms[0].RoomID)
	req.Equal(uint(1), snapshot.Rooms[0].UnreadCount)
	req.Empty(snapshot.Rooms[0].Typers)
	req.Len(snapshot.Rooms[0].Participants, 1)
	req.Equal(2, snapshot.Rooms[0].Participants[0].UserID)
}

func TestHub_Removed_Member_Stops_Receiving(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, roomFixture(10, 1, 2))
	alice := h.connect(t, 1, "alice")
	bob := h.connect(t, 2, "bob")
	alice.join(10)
	bob.join(10)
	bob.send(models.EventVoiceJoin, models.VoicePayload{RoomID: 10})
	alice.expect(models.EventVoiceRoster)

	// When bob is removed from the room
	req.NoError(h.hub.rooms.MembershipChanged(context.Background(), rooms.Delta{
		Kind:   rooms.MemberRemoved,
		RoomID: 10,
		UserID: 2,
	}))

	// Then his voice participant goes and new messages skip him
	req.Empty(decodeAs[models.VoiceRosterPayload](t, alice.expect(models.EventVoiceRoster)).Participants)
	bob.expect(models.EventRoomMemberRemoved)
	alice.send(models.EventSendMessage, models.SendMessagePayload{RoomID: 10, Content: "bye"})
	alice.expect(models.EventNewMessage)
	bob.quiet(models.EventNewMessage, 100*time.Millisecond)
}

func TestHub_Membership_Changes_Reach_Sessions_Outside_The_Room(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := newHarness(t, roomFixture(10, 1, 2), roomFixture(11, 1, 2))
	alice := h.connect(t, 1, "alice")
	bob := h.connect(t, 2, "bob")
	alice.join(10)
	alice.join(11)

	// When bob, who never joined room 10, is removed from it
	req.NoError(h.hub.rooms.MembershipChanged(ctx, rooms.Delta{Kind: rooms.MemberRemoved, RoomID: 10, UserID: 2}))

	// Then he still learns about it, and alice sees it through the room
	removed := decodeAs[models.RoomChangePayload](t, bob.expect(models.EventRoomMemberRemoved))
	req.Equal(10, removed.RoomID)
	req.Equal([]int{2}, removed.UserIDs)
	alice.expect(models.EventRoomMemberRemoved)

	// When room 11 is deleted
	req.NoError(h.hub.rooms.MembershipChanged(ctx, rooms.Delta{Kind: rooms.RoomDeleted, RoomID: 11}))

	// Then both members are told, joined or not
	req.Equal(11, decodeAs[models.RoomChangePayload](t, bob.expect(models.EventRoomDeleted)).RoomID)
	req.Equal(11, decodeAs[models.RoomChangePayload](t, alice.expect(models.EventRoomDeleted)).RoomID)
}

func TestHub_Disconnect_Session(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, roomFixture(10, 1))
	alice := h.connect(t, 1, "alice")
	alice.join(10)

	req.True(h.hub.Disconnect(alice.sessionID))

	req.Eventually(func() bool { return len(h.hub.Sessions(1)) == 0 }, time.Second, 10*time.Millisecond)
	req.Empty(h.hub.rooms.Subscribers(10))
	req.False(h.hub.Disconnect(alice.sessionID))
	req.Equal(models.StatusOffline, h.hub.Presence().Status(1))
}
