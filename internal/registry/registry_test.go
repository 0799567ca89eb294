package registry

import (
	"context"
	"testing"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/util/testutil"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, 0), st
}

func TestAddAndRemoveConnectionUpdatesPresence(t *testing.T) {
	reg, _ := newTestRegistry(t)
	userID := id.NewUserID()
	roomID := id.NewRoomID()
	connID := id.NewConnID()
	sender := make(chan []byte, 1)

	require.NoError(t, reg.AddConnection(context.Background(), userID, connID, sender, []id.RoomID{roomID}))
	require.True(t, reg.IsOnline(userID))
	require.Contains(t, reg.OnlineUsers(roomID), userID)

	require.NoError(t, reg.RemoveConnection(connID))
	require.False(t, reg.IsOnline(userID))
	require.NotContains(t, reg.OnlineUsers(roomID), userID)
}

func TestRemoveConnectionTwiceReturnsNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	connID := id.NewConnID()
	require.NoError(t, reg.AddConnection(context.Background(), id.NewUserID(), connID, make(chan []byte, 1), nil))
	require.NoError(t, reg.RemoveConnection(connID))
	require.ErrorIs(t, reg.RemoveConnection(connID), ErrNotFound)
}

func TestConnectionLimitEnforced(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	reg := New(st, 1)

	userID := id.NewUserID()
	sender := make(chan []byte, 1)
	require.NoError(t, reg.AddConnection(context.Background(), userID, id.NewConnID(), sender, nil))
	err = reg.AddConnection(context.Background(), userID, id.NewConnID(), sender, nil)
	require.ErrorIs(t, err, ErrConnectionLimitExceeded)
}

func TestBroadcastToRoomReachesSubscribers(t *testing.T) {
	reg, _ := newTestRegistry(t)
	roomID := id.NewRoomID()
	sender := make(chan []byte, 1)
	require.NoError(t, reg.AddConnection(context.Background(), id.NewUserID(), id.NewConnID(), sender, []id.RoomID{roomID}))

	err := reg.BroadcastToRoom(context.Background(), roomID, UserJoinedEnvelope(id.NewUserID(), roomID))
	require.NoError(t, err)

	select {
	case payload := <-sender:
		require.Contains(t, string(payload), TypeUserJoined)
	default:
		t.Fatal("expected a payload on the subscriber's channel")
	}
}

func TestBroadcastToEmptyRoomReturnsNoConnections(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.BroadcastToRoom(context.Background(), id.NewRoomID(), UserJoinedEnvelope(id.NewUserID(), id.NewRoomID()))
	require.ErrorIs(t, err, ErrNoConnections)
}

func TestBroadcastPartialFailureWhenChannelFull(t *testing.T) {
	reg, _ := newTestRegistry(t)
	roomID := id.NewRoomID()
	full := make(chan []byte) // unbuffered, nobody reading: first send will fail non-blocking
	require.NoError(t, reg.AddConnection(context.Background(), id.NewUserID(), id.NewConnID(), full, []id.RoomID{roomID}))

	err := reg.BroadcastToRoom(context.Background(), roomID, UserJoinedEnvelope(id.NewUserID(), roomID))
	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	require.Equal(t, 1, partial.FailedCount)
}

func TestTypingIndicatorLifecycle(t *testing.T) {
	reg, _ := newTestRegistry(t)
	userID := id.NewUserID()
	roomID := id.NewRoomID()

	reg.StartTyping(userID, roomID)
	require.Contains(t, reg.GetTypingUsers(roomID), userID)

	reg.StopTyping(userID, roomID)
	require.NotContains(t, reg.GetTypingUsers(roomID), userID)
}

func TestSweepExpiresStaleTypingIndicators(t *testing.T) {
	reg, _ := newTestRegistry(t)
	userID := id.NewUserID()
	roomID := id.NewRoomID()
	reg.StartTyping(userID, roomID)

	reg.sweep(time.Hour, -time.Second) // typingMaxAge negative => everything is stale
	require.Empty(t, reg.GetTypingUsers(roomID))
}

func TestSweepExpiresStalePresence(t *testing.T) {
	reg, _ := newTestRegistry(t)
	userID := id.NewUserID()
	sender := make(chan []byte, 1)
	require.NoError(t, reg.AddConnection(context.Background(), userID, id.NewConnID(), sender, nil))

	reg.sweep(-time.Second, time.Hour) // presenceMaxAge negative => everything is stale
	require.False(t, reg.IsOnline(userID))
}

func TestRunSweeperExpiresStaleTypingIndicatorsOnTick(t *testing.T) {
	reg, _ := newTestRegistry(t)
	userID := id.NewUserID()
	roomID := id.NewRoomID()
	reg.StartTyping(userID, roomID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.RunSweeper(ctx, 5*time.Millisecond, time.Hour, -time.Second)

	testutil.RequireEventually(t, func() bool {
		return len(reg.GetTypingUsers(roomID)) == 0
	}, "typing indicator was never swept")
}

func TestSendMissedMessagesReplaysInOrder(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()
	userID := id.NewUserID()
	roomID := id.NewRoomID()
	require.NoError(t, st.CreateUser(ctx, store.User{ID: userID, Name: "ada", Email: "ada@example.com", PasswordHash: "x", CreatedAt: time.Now()}))
	require.NoError(t, st.CreateRoom(ctx, store.Room{ID: roomID, Name: "general", RoomType: store.RoomTypeOpen, CreatedAt: time.Now()}))

	base := time.Now()
	for i, content := range []string{"one", "two"} {
		_, err := st.CreateMessageWithDeduplication(ctx, store.Message{
			ID: id.NewMessageID(), RoomID: roomID, CreatorID: userID,
			Content: content, ClientMessageID: content, CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	connID := id.NewConnID()
	sender := make(chan []byte, 10)
	require.NoError(t, reg.AddConnection(ctx, userID, connID, sender, []id.RoomID{roomID}))

	require.NoError(t, reg.SendMissedMessages(ctx, connID, nil))
	require.Len(t, sender, 2)
	require.Contains(t, string(<-sender), `"content":"one"`)
	require.Contains(t, string(<-sender), `"content":"two"`)
}

func TestSendMissedMessagesReplaysOnlyUnseenAcrossRooms(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()
	userID := id.NewUserID()
	room1 := id.NewRoomID()
	room2 := id.NewRoomID()
	require.NoError(t, st.CreateUser(ctx, store.User{ID: userID, Name: "carol", Email: "carol@example.com", PasswordHash: "x", CreatedAt: time.Now()}))
	require.NoError(t, st.CreateRoom(ctx, store.Room{ID: room1, Name: "general", RoomType: store.RoomTypeOpen, CreatedAt: time.Now()}))
	require.NoError(t, st.CreateRoom(ctx, store.Room{ID: room2, Name: "random", RoomType: store.RoomTypeOpen, CreatedAt: time.Now()}))

	base := time.Now()
	rooms := []id.RoomID{room1, room2, room1}
	var ids []id.MessageID
	for i, content := range []string{"m1", "m2", "m3"} {
		stored, err := st.CreateMessageWithDeduplication(ctx, store.Message{
			ID: id.NewMessageID(), RoomID: rooms[i], CreatorID: userID,
			Content: content, ClientMessageID: content, CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		ids = append(ids, stored.ID)
	}

	connID := id.NewConnID()
	sender := make(chan []byte, 10)
	require.NoError(t, reg.AddConnection(ctx, userID, connID, sender, []id.RoomID{room1, room2}))

	lastSeen := ids[0]
	require.NoError(t, reg.SendMissedMessages(ctx, connID, &lastSeen))
	require.Len(t, sender, 2, "only the two messages created after the last-seen watermark, across both rooms")

	first := <-sender
	require.Contains(t, string(first), "m2")
	second := <-sender
	require.Contains(t, string(second), "m3")
}
