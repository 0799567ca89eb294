package searchservice

import (
	"context"
	"testing"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeRoomLister struct {
	rooms []store.Room
}

func (f *fakeRoomLister) ListRoomsForUser(ctx context.Context, userID id.UserID) ([]store.Room, error) {
	return f.rooms, nil
}

func newFixture(t *testing.T) (*Service, *store.Store, id.UserID, store.Room) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	userID := id.NewUserID()
	require.NoError(t, st.CreateUser(context.Background(), store.User{ID: userID, Name: "ada", Email: "ada@example.com", PasswordHash: "x", CreatedAt: time.Now()}))

	room := store.Room{ID: id.NewRoomID(), Name: "general", RoomType: store.RoomTypeOpen, CreatedAt: time.Now()}
	require.NoError(t, st.CreateRoom(context.Background(), room))

	lister := &fakeRoomLister{rooms: []store.Room{room}}
	return New(st, lister), st, userID, room
}

func seedMessage(t *testing.T, st *store.Store, room store.Room, userID id.UserID, content, clientMsgID string) {
	t.Helper()
	_, err := st.CreateMessageWithDeduplication(context.Background(), store.Message{
		ID: id.NewMessageID(), RoomID: room.ID, CreatorID: userID,
		Content: content, ClientMessageID: clientMsgID, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestSearchFindsMatchingMessage(t *testing.T) {
	svc, st, userID, room := newFixture(t)
	seedMessage(t, st, room, userID, "the quick brown fox jumps", "m1")
	seedMessage(t, st, room, userID, "nothing relevant here", "m2")

	resp, err := svc.Search(context.Background(), userID, Request{Query: "fox"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Contains(t, resp.Results[0].Message.Content, "fox")
	require.Equal(t, 1, resp.TotalCount)
	require.False(t, resp.HasMore)
}

func TestSearchRejectsShortQuery(t *testing.T) {
	svc, _, userID, _ := newFixture(t)
	_, err := svc.Search(context.Background(), userID, Request{Query: "a"})
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindQueryTooShort, kind)
}

func TestSearchRejectsLongQuery(t *testing.T) {
	svc, _, userID, _ := newFixture(t)
	long := make([]byte, maxQueryLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := svc.Search(context.Background(), userID, Request{Query: string(long)})
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindQueryTooLong, kind)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc, _, userID, _ := newFixture(t)
	_, err := svc.Search(context.Background(), userID, Request{Query: "   "})
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindInvalidQuery, kind)
}

func TestSearchScopedToAccessibleRooms(t *testing.T) {
	svc, st, userID, _ := newFixture(t)
	otherRoom := store.Room{ID: id.NewRoomID(), Name: "other", RoomType: store.RoomTypeClosed, CreatedAt: time.Now()}
	require.NoError(t, st.CreateRoom(context.Background(), otherRoom))
	seedMessage(t, st, otherRoom, userID, "secret squirrel content", "m1")

	resp, err := svc.Search(context.Background(), userID, Request{Query: "squirrel"})
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}

func TestSearchRoomNarrowsToSingleRoom(t *testing.T) {
	svc, st, userID, room := newFixture(t)
	seedMessage(t, st, room, userID, "widgets and gadgets", "m1")

	limit := 10
	resp, err := svc.SearchRoom(context.Background(), userID, room.ID, "widgets", &limit, nil)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
}

func TestSearchRoomRejectsInaccessibleRoom(t *testing.T) {
	svc, _, userID, _ := newFixture(t)
	foreignRoom := id.NewRoomID()
	resp, err := svc.SearchRoom(context.Background(), userID, foreignRoom, "widgets", nil, nil)
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}

func TestSearchClampsLimit(t *testing.T) {
	svc, st, userID, room := newFixture(t)
	for i := 0; i < 5; i++ {
		seedMessage(t, st, room, userID, "matching content here", id.NewMessageID().String())
	}

	tooBig := 1000
	resp, err := svc.Search(context.Background(), userID, Request{Query: "matching", Limit: &tooBig})
	require.NoError(t, err)
	require.Equal(t, maxLimit, resp.Limit)
}

func TestGenerateSnippetCentersOnMatch(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	content := long + "NEEDLE" + long
	snippet := generateSnippet(content, "needle")
	require.Contains(t, snippet, "NEEDLE")
	require.True(t, len(snippet) < len(content))
}

func TestGenerateSnippetFallsBackWithoutMatch(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	snippet := generateSnippet(long, "notfound")
	require.Len(t, []rune(snippet), snippetFallback+3) // +3 for ellipsis
}

func TestGenerateSnippetReturnsWholeShortContent(t *testing.T) {
	snippet := generateSnippet("short content", "short")
	require.Equal(t, "short content", snippet)
}
