package push

import (
	"context"
	"testing"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedUser(t *testing.T, st *store.Store, name string) store.User {
	t.Helper()
	u := store.User{ID: id.NewUserID(), Name: name, Email: name + "@example.com", PasswordHash: "x", CreatedAt: time.Now()}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

func addMember(t *testing.T, st *store.Store, roomID id.RoomID, userID id.UserID) {
	t.Helper()
	require.NoError(t, st.CreateMembership(context.Background(), store.Membership{
		RoomID: roomID, UserID: userID, InvolvementLevel: store.InvolvementMember, CreatedAt: time.Now(),
	}))
}

func TestDirectRoomNotifiesOtherMemberWhenEnabled(t *testing.T) {
	st := newTestStore(t)
	sender := seedUser(t, st, "sender")
	recipient := seedUser(t, st, "recipient")
	room := store.Room{ID: id.NewRoomID(), RoomType: store.RoomTypeDirect, CreatedAt: time.Now()}
	require.NoError(t, st.CreateRoom(context.Background(), room))
	addMember(t, st, room.ID, sender.ID)
	addMember(t, st, room.ID, recipient.ID)

	msg := store.Message{ID: id.NewMessageID(), RoomID: room.ID, CreatorID: sender.ID, Content: "hi"}
	d := New(st)
	recipients, err := d.SelectRecipients(context.Background(), msg, room)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	require.Equal(t, recipient.ID, recipients[0].UserID)
}

func TestDirectRoomSkipsRecipientWithPreferenceDisabled(t *testing.T) {
	st := newTestStore(t)
	sender := seedUser(t, st, "sender")
	recipient := seedUser(t, st, "recipient")
	room := store.Room{ID: id.NewRoomID(), RoomType: store.RoomTypeDirect, CreatedAt: time.Now()}
	require.NoError(t, st.CreateRoom(context.Background(), room))
	addMember(t, st, room.ID, sender.ID)
	addMember(t, st, room.ID, recipient.ID)

	require.NoError(t, st.UpdateNotificationPreferences(context.Background(), store.NotificationPreferences{
		UserID: recipient.ID, MentionsEnabled: true, DirectMessagesEnabled: false, AllMessagesEnabled: false, SoundsEnabled: true, UpdatedAt: time.Now(),
	}))

	msg := store.Message{ID: id.NewMessageID(), RoomID: room.ID, CreatorID: sender.ID, Content: "hi"}
	d := New(st)
	recipients, err := d.SelectRecipients(context.Background(), msg, room)
	require.NoError(t, err)
	require.Empty(t, recipients)
}

func TestOpenRoomNotifiesMentionsAndAllMessageSubscribers(t *testing.T) {
	st := newTestStore(t)
	sender := seedUser(t, st, "sender")
	mentioned := seedUser(t, st, "mentioned")
	subscriber := seedUser(t, st, "subscriber")
	bystander := seedUser(t, st, "bystander")
	room := store.Room{ID: id.NewRoomID(), RoomType: store.RoomTypeOpen, CreatedAt: time.Now()}
	require.NoError(t, st.CreateRoom(context.Background(), room))
	for _, u := range []store.User{sender, mentioned, subscriber, bystander} {
		addMember(t, st, room.ID, u.ID)
	}

	require.NoError(t, st.UpdateNotificationPreferences(context.Background(), store.NotificationPreferences{
		UserID: subscriber.ID, MentionsEnabled: true, DirectMessagesEnabled: true, AllMessagesEnabled: true, SoundsEnabled: true, UpdatedAt: time.Now(),
	}))

	msg := store.Message{ID: id.NewMessageID(), RoomID: room.ID, CreatorID: sender.ID, Content: "hi @mentioned", Mentions: []string{"mentioned"}}
	d := New(st)
	recipients, err := d.SelectRecipients(context.Background(), msg, room)
	require.NoError(t, err)

	ids := make(map[id.UserID]bool)
	for _, r := range recipients {
		ids[r.UserID] = true
	}
	require.True(t, ids[mentioned.ID])
	require.True(t, ids[subscriber.ID])
	require.False(t, ids[bystander.ID])
	require.False(t, ids[sender.ID])
}

func TestMentionDedupedAgainstAllMessagesRecipient(t *testing.T) {
	st := newTestStore(t)
	sender := seedUser(t, st, "sender")
	both := seedUser(t, st, "both")
	room := store.Room{ID: id.NewRoomID(), RoomType: store.RoomTypeOpen, CreatedAt: time.Now()}
	require.NoError(t, st.CreateRoom(context.Background(), room))
	addMember(t, st, room.ID, sender.ID)
	addMember(t, st, room.ID, both.ID)

	require.NoError(t, st.UpdateNotificationPreferences(context.Background(), store.NotificationPreferences{
		UserID: both.ID, MentionsEnabled: true, DirectMessagesEnabled: true, AllMessagesEnabled: true, SoundsEnabled: true, UpdatedAt: time.Now(),
	}))

	msg := store.Message{ID: id.NewMessageID(), RoomID: room.ID, CreatorID: sender.ID, Content: "hi @both", Mentions: []string{"both"}}
	d := New(st)
	recipients, err := d.SelectRecipients(context.Background(), msg, room)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
}
