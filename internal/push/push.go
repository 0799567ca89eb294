package push

import (
	"context"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
)

// Recipient pairs a user with the notification-preferences snapshot
// that justified selecting them.
type Recipient struct {
	UserID      id.UserID
	Preferences store.NotificationPreferences
}

// Dispatcher selects notification recipients for a freshly persisted
// message. It does not deliver anything itself; downstream delivery
// machinery fetches each recipient's push subscriptions and transmits
// the payload.
type Dispatcher struct {
	store *store.Store
}

// New constructs a Dispatcher backed by st.
func New(st *store.Store) *Dispatcher {
	return &Dispatcher{store: st}
}

// SelectRecipients computes who should be notified about msg in room,
// excluding its creator, deduplicated by user id.
//
// Direct rooms notify the other member if their direct_messages_enabled
// preference is set. Other rooms notify the union of explicitly
// mentioned users with mentions_enabled, and room members with
// all_messages_enabled.
func (d *Dispatcher) SelectRecipients(ctx context.Context, msg store.Message, room store.Room) ([]Recipient, error) {
	if room.RoomType == store.RoomTypeDirect {
		return d.directRecipients(ctx, msg, room)
	}
	return d.broadcastRecipients(ctx, msg, room)
}

func (d *Dispatcher) directRecipients(ctx context.Context, msg store.Message, room store.Room) ([]Recipient, error) {
	members, err := d.store.ListRoomMembers(ctx, room.ID)
	if err != nil {
		return nil, newErr(KindDatabase, "list direct room members", err)
	}

	var recipients []Recipient
	for _, userID := range members {
		if userID == msg.CreatorID {
			continue
		}
		prefs, err := d.store.GetNotificationPreferences(ctx, userID)
		if err != nil {
			return nil, newErr(KindDatabase, "get notification preferences", err)
		}
		if prefs.DirectMessagesEnabled {
			recipients = append(recipients, Recipient{UserID: userID, Preferences: prefs})
		}
	}
	return recipients, nil
}

func (d *Dispatcher) broadcastRecipients(ctx context.Context, msg store.Message, room store.Room) ([]Recipient, error) {
	seen := make(map[id.UserID]struct{})
	var recipients []Recipient

	for _, username := range msg.Mentions {
		user, err := d.store.GetUserByName(ctx, username)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, newErr(KindDatabase, "resolve mentioned user", err)
		}
		if user.ID == msg.CreatorID {
			continue
		}
		prefs, err := d.store.GetNotificationPreferences(ctx, user.ID)
		if err != nil {
			return nil, newErr(KindDatabase, "get notification preferences", err)
		}
		if prefs.MentionsEnabled {
			seen[user.ID] = struct{}{}
			recipients = append(recipients, Recipient{UserID: user.ID, Preferences: prefs})
		}
	}

	members, err := d.store.ListRoomMembers(ctx, room.ID)
	if err != nil {
		return nil, newErr(KindDatabase, "list room members", err)
	}
	for _, userID := range members {
		if userID == msg.CreatorID {
			continue
		}
		if _, ok := seen[userID]; ok {
			continue
		}
		prefs, err := d.store.GetNotificationPreferences(ctx, userID)
		if err != nil {
			return nil, newErr(KindDatabase, "get notification preferences", err)
		}
		if prefs.AllMessagesEnabled {
			seen[userID] = struct{}{}
			recipients = append(recipients, Recipient{UserID: userID, Preferences: prefs})
		}
	}

	return recipients, nil
}
