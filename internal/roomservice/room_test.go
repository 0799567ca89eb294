package roomservice

import (
	"context"
	"testing"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st), st
}

func seedUser(t *testing.T, st *store.Store) id.UserID {
	t.Helper()
	u := store.User{ID: id.NewUserID(), Name: "user", Email: id.NewUserID().String() + "@example.com", PasswordHash: "x", CreatedAt: time.Now()}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u.ID
}

func TestCreateRoomMakesCreatorAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	creator := seedUser(t, svc.store)

	room, err := svc.CreateRoom(ctx, "general", "", store.RoomTypeOpen, creator)
	require.NoError(t, err)

	level, err := svc.CheckRoomAccess(ctx, room.ID, creator)
	require.NoError(t, err)
	require.Equal(t, AccessAdmin, level)
}

func TestOpenRoomGrantsImplicitReadAccess(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	creator := seedUser(t, svc.store)
	outsider := seedUser(t, svc.store)

	room, err := svc.CreateRoom(ctx, "general", "", store.RoomTypeOpen, creator)
	require.NoError(t, err)

	level, err := svc.CheckRoomAccess(ctx, room.ID, outsider)
	require.NoError(t, err)
	require.Equal(t, AccessMember, level, "open rooms grant implicit read access")

	canPost, err := svc.CanPost(ctx, room.ID, outsider)
	require.NoError(t, err)
	require.True(t, canPost, "open rooms may be posted to without an explicit membership row")
}

func TestClosedRoomRejectsNonMemberAccess(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	creator := seedUser(t, svc.store)
	outsider := seedUser(t, svc.store)

	room, err := svc.CreateRoom(ctx, "secret", "", store.RoomTypeClosed, creator)
	require.NoError(t, err)

	level, err := svc.CheckRoomAccess(ctx, room.ID, outsider)
	require.NoError(t, err)
	require.Equal(t, AccessNone, level)

	canPost, err := svc.CanPost(ctx, room.ID, outsider)
	require.NoError(t, err)
	require.False(t, canPost, "closed rooms require an explicit membership row to post")
}

func TestAddMemberToClosedRoomRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	creator := seedUser(t, svc.store)
	member := seedUser(t, svc.store)
	outsider := seedUser(t, svc.store)

	room, err := svc.CreateRoom(ctx, "secret", "", store.RoomTypeClosed, creator)
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(ctx, room.ID, creator, member))

	err = svc.AddMember(ctx, room.ID, member, outsider)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindForbidden, kind)
}

func TestAddMemberToOpenRoomDoesNotRequireAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	creator := seedUser(t, svc.store)
	member := seedUser(t, svc.store)
	newJoiner := seedUser(t, svc.store)

	room, err := svc.CreateRoom(ctx, "general", "", store.RoomTypeOpen, creator)
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(ctx, room.ID, creator, member))

	err = svc.AddMember(ctx, room.ID, member, newJoiner)
	require.NoError(t, err, "non-admin members may add others to an open room")
}

func TestAddMemberDuplicateFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	creator := seedUser(t, svc.store)
	member := seedUser(t, svc.store)

	room, err := svc.CreateRoom(ctx, "general", "", store.RoomTypeOpen, creator)
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(ctx, room.ID, creator, member))

	err = svc.AddMember(ctx, room.ID, creator, member)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindAlreadyMember, kind)
}

func TestDirectRoomRejectsNewMembers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := seedUser(t, svc.store)
	b := seedUser(t, svc.store)
	c := seedUser(t, svc.store)

	room, err := svc.CreateDirectRoom(ctx, a, b)
	require.NoError(t, err)

	err = svc.AddMember(ctx, room.ID, a, c)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindDirectRoomClosed, kind)
}

func TestCreateDirectRoomIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	a := seedUser(t, svc.store)
	b := seedUser(t, svc.store)

	first, err := svc.CreateDirectRoom(ctx, a, b)
	require.NoError(t, err)
	second, err := svc.CreateDirectRoom(ctx, a, b)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}
