package messageservice

import (
	"context"
	"testing"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/ratelimit"
	"github.com/emberchat/ember/internal/roomservice"
	"github.com/emberchat/ember/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeRooms struct {
	canPost bool
	access  roomservice.AccessLevel
}

func (f *fakeRooms) CanPost(context.Context, id.RoomID, id.UserID) (bool, error) {
	return f.canPost, nil
}
func (f *fakeRooms) CheckRoomAccess(context.Context, id.RoomID, id.UserID) (roomservice.AccessLevel, error) {
	return f.access, nil
}

type fakeBroadcaster struct{ calls int }

func (f *fakeBroadcaster) BroadcastNewMessage(context.Context, id.RoomID, store.Message) error {
	f.calls++
	return nil
}

type fakeNotifier struct{ calls int }

func (f *fakeNotifier) NotifyNewMessage(context.Context, store.Message, store.Room) error {
	f.calls++
	return nil
}

type testFixture struct {
	svc   *Service
	store *store.Store
	room  store.Room
	user  id.UserID
	bc    *fakeBroadcaster
	nt    *fakeNotifier
}

func newFixture(t *testing.T, canPost bool) *testFixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	room := store.Room{ID: id.NewRoomID(), Name: "general", RoomType: store.RoomTypeOpen, CreatedAt: time.Now()}
	require.NoError(t, st.CreateRoom(ctx, room))

	userID := id.NewUserID()
	require.NoError(t, st.CreateUser(ctx, store.User{ID: userID, Name: "ada", Email: "ada@example.com", PasswordHash: "x", CreatedAt: time.Now()}))

	bc := &fakeBroadcaster{}
	nt := &fakeNotifier{}
	svc := New(Config{
		Store:       st,
		Rooms:       &fakeRooms{canPost: canPost, access: roomservice.AccessMember},
		Limiter:     ratelimit.New(10, 10*time.Second),
		Broadcaster: bc,
		Notifier:    nt,
		MaxLength:   10000,
	})
	return &testFixture{svc: svc, store: st, room: room, user: userID, bc: bc, nt: nt}
}

func TestCreateMessageHappyPath(t *testing.T) {
	f := newFixture(t, true)
	msg, err := f.svc.CreateMessage(context.Background(), f.room.ID, f.user, "hello world", "client-1", nil)
	require.NoError(t, err)
	require.Equal(t, "hello world", msg.Content)
	require.Equal(t, 1, f.bc.calls)
	require.Equal(t, 1, f.nt.calls)
}

func TestCreateMessageRejectsWhenNotAuthorized(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.CreateMessage(context.Background(), f.room.ID, f.user, "hello", "client-1", nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindAuthorization, kind)
}

func TestCreateMessageRejectsEmptyContent(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.svc.CreateMessage(context.Background(), f.room.ID, f.user, "   ", "client-1", nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindContentTooShort, kind)
}

func TestCreateMessageDeduplicatesRetry(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	first, err := f.svc.CreateMessage(ctx, f.room.ID, f.user, "hello", "dup-1", nil)
	require.NoError(t, err)

	second, err := f.svc.CreateMessage(ctx, f.room.ID, f.user, "hello retried", "dup-1", nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, f.bc.calls, "dedup hit must not re-broadcast")
	require.Equal(t, 1, f.nt.calls, "dedup hit must not re-notify")
}

func TestCreateMessageRateLimited(t *testing.T) {
	f := newFixture(t, true)
	f.svc.limiter = ratelimit.New(1, 10*time.Second)
	ctx := context.Background()

	_, err := f.svc.CreateMessage(ctx, f.room.ID, f.user, "first", "c1", nil)
	require.NoError(t, err)

	_, err = f.svc.CreateMessage(ctx, f.room.ID, f.user, "second", "c2", nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindRateLimit, kind)
}

func TestGetRoomMessagesClampsLimitAndEnforcesAccess(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateMessage(ctx, f.room.ID, f.user, "msg", "c"+string(rune('a'+i)), nil)
		require.NoError(t, err)
	}

	msgs, err := f.svc.GetRoomMessages(ctx, f.room.ID, f.user, 0, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	f.svc.rooms = &fakeRooms{access: roomservice.AccessNone}
	_, err = f.svc.GetRoomMessages(ctx, f.room.ID, f.user, 10, nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindAuthorization, kind)
}
