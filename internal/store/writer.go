package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/emberchat/ember/internal/id"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// CreateUser inserts a new user row. Returns a constraint-violation
// error if the email is already taken.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	_, err := submit(ctx, s, func(db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, name, email, password_hash, bio, admin, bot_token, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID.String(), u.Name, u.Email, u.PasswordHash, nullable(u.Bio), u.Admin, nullableToken(u.BotToken), u.CreatedAt,
		)
		return struct{}{}, translateWriteErr(err, "create user")
	})
	return err
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := submit(ctx, s, func(db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx,
			`INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			sess.Token, sess.UserID.String(), sess.CreatedAt, sess.ExpiresAt,
		)
		return struct{}{}, translateWriteErr(err, "create session")
	})
	return err
}

// DeleteSession removes a session by token. Deleting an unknown token
// is not an error (idempotent logout).
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := submit(ctx, s, func(db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
		return struct{}{}, translateWriteErr(err, "delete session")
	})
	return err
}

// CreateRoom inserts a new room row.
func (s *Store) CreateRoom(ctx context.Context, r Room) error {
	_, err := submit(ctx, s, func(db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx,
			`INSERT INTO rooms (id, name, topic, room_type, created_at) VALUES (?, ?, ?, ?, ?)`,
			r.ID.String(), r.Name, nullable(r.Topic), string(r.RoomType), r.CreatedAt,
		)
		return struct{}{}, translateWriteErr(err, "create room")
	})
	return err
}

// CreateMembership inserts a room membership row.
func (s *Store) CreateMembership(ctx context.Context, m Membership) error {
	_, err := submit(ctx, s, func(db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx,
			`INSERT INTO room_memberships (room_id, user_id, involvement_level, created_at) VALUES (?, ?, ?, ?)`,
			m.RoomID.String(), m.UserID.String(), string(m.InvolvementLevel), m.CreatedAt,
		)
		return struct{}{}, translateWriteErr(err, "create membership")
	})
	return err
}

// RemoveMembership deletes a room membership row.
func (s *Store) RemoveMembership(ctx context.Context, roomID id.RoomID, userID id.UserID) error {
	_, err := submit(ctx, s, func(db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx,
			`DELETE FROM room_memberships WHERE room_id = ? AND user_id = ?`,
			roomID.String(), userID.String(),
		)
		return struct{}{}, translateWriteErr(err, "remove membership")
	})
	return err
}

// CreateMessageWithDeduplication inserts a message. If a row already
// exists with the same (client_message_id, room_id), the existing row
// is returned untouched instead of inserting a duplicate — this is
// what makes client-side retries after a dropped ack safe.
func (s *Store) CreateMessageWithDeduplication(ctx context.Context, m Message) (Message, error) {
	return submit(ctx, s, func(db *sql.DB) (Message, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return Message{}, wrap(KindTransaction, "begin transaction", err)
		}
		defer func() { _ = tx.Rollback() }()

		existing, err := scanMessageRow(tx.QueryRowContext(ctx,
			`SELECT id, room_id, creator_id, content, client_message_id, created_at, html_content, mentions, sound_commands
			 FROM messages WHERE client_message_id = ? AND room_id = ?`,
			m.ClientMessageID, m.RoomID.String(),
		))
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Message{}, wrap(KindDataIntegrity, "check existing message", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (id, room_id, creator_id, content, client_message_id, created_at, html_content, mentions, sound_commands)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID.String(), m.RoomID.String(), m.CreatorID.String(), m.Content, m.ClientMessageID, m.CreatedAt,
			nullable(m.HTMLContent), joinCSV(m.Mentions), joinCSV(m.SoundCommands),
		)
		if err != nil {
			// Lost a race with a concurrent insert of the same
			// (client_message_id, room_id) pair: re-read and return
			// the winner's row instead of erroring.
			if isUniqueViolation(err) {
				existing, readErr := scanMessageRow(tx.QueryRowContext(ctx,
					`SELECT id, room_id, creator_id, content, client_message_id, created_at, html_content, mentions, sound_commands
					 FROM messages WHERE client_message_id = ? AND room_id = ?`,
					m.ClientMessageID, m.RoomID.String(),
				))
				if readErr == nil {
					return existing, tx.Commit()
				}
			}
			return Message{}, translateWriteErr(err, "insert message")
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE rooms SET last_message_at = ? WHERE id = ?`, m.CreatedAt, m.RoomID.String(),
		); err != nil {
			return Message{}, wrap(KindDataIntegrity, "update room last_message_at", err)
		}

		if err := tx.Commit(); err != nil {
			return Message{}, wrap(KindTransaction, "commit transaction", err)
		}
		return m, nil
	})
}

// CreatePushSubscription inserts or replaces a push subscription for
// a (user, endpoint) pair.
func (s *Store) CreatePushSubscription(ctx context.Context, p PushSubscription) error {
	_, err := submit(ctx, s, func(db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx,
			`INSERT INTO push_subscriptions (id, user_id, endpoint, p256dh_key, auth_key, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(user_id, endpoint) DO UPDATE SET p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key`,
			p.ID, p.UserID.String(), p.Endpoint, p.P256dhKey, p.AuthKey, p.CreatedAt,
		)
		return struct{}{}, translateWriteErr(err, "create push subscription")
	})
	return err
}

// UpdateNotificationPreferences upserts a user's notification
// preferences.
func (s *Store) UpdateNotificationPreferences(ctx context.Context, p NotificationPreferences) error {
	_, err := submit(ctx, s, func(db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx,
			`INSERT INTO notification_preferences (user_id, mentions_enabled, direct_messages_enabled, all_messages_enabled, sounds_enabled, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
			   mentions_enabled = excluded.mentions_enabled,
			   direct_messages_enabled = excluded.direct_messages_enabled,
			   all_messages_enabled = excluded.all_messages_enabled,
			   sounds_enabled = excluded.sounds_enabled,
			   updated_at = excluded.updated_at`,
			p.UserID.String(), p.MentionsEnabled, p.DirectMessagesEnabled, p.AllMessagesEnabled, p.SoundsEnabled, p.UpdatedAt,
		)
		return struct{}{}, translateWriteErr(err, "update notification preferences")
	})
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableToken(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func joinCSV(items []string) any {
	if len(items) == 0 {
		return nil
	}
	return strings.Join(items, ",")
}

func splitCSV(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	return strings.Split(s.String, ",")
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}

func translateWriteErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return wrap(KindConstraintViolation, op, err)
	}
	return wrap(KindDataIntegrity, op, err)
}
