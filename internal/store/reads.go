package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/emberchat/ember/internal/id"
)

// row is satisfied by both *sql.Row and *sql.Rows so scanMessageRow
// can be shared between single-row and multi-row queries.
type row interface {
	Scan(dest ...any) error
}

func scanMessageRow(r row) (Message, error) {
	var m Message
	var roomID, creatorID, msgID string
	var html sql.NullString
	var mentions, sounds sql.NullString
	var createdAt time.Time

	err := r.Scan(&msgID, &roomID, &creatorID, &m.Content, &m.ClientMessageID, &createdAt, &html, &mentions, &sounds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, err
		}
		return Message{}, wrap(KindDataIntegrity, "scan message row", err)
	}

	parsedID, err := id.ParseMessageID(msgID)
	if err != nil {
		return Message{}, wrap(KindUUIDParse, "parse message id", err)
	}
	parsedRoomID, err := id.ParseRoomID(roomID)
	if err != nil {
		return Message{}, wrap(KindUUIDParse, "parse room id", err)
	}
	parsedCreatorID, err := id.ParseUserID(creatorID)
	if err != nil {
		return Message{}, wrap(KindUUIDParse, "parse creator id", err)
	}

	m.ID = parsedID
	m.RoomID = parsedRoomID
	m.CreatorID = parsedCreatorID
	m.CreatedAt = createdAt
	if html.Valid {
		m.HTMLContent = html.String
	}
	m.Mentions = splitCSV(mentions)
	m.SoundCommands = splitCSV(sounds)
	return m, nil
}

// GetUserByEmail fetches a user by email. Returns ErrNotFound if no
// such user exists.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.readerPool.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, bio, admin, bot_token, created_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// GetUserByID fetches a user by id.
func (s *Store) GetUserByID(ctx context.Context, userID id.UserID) (User, error) {
	row := s.readerPool.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, bio, admin, bot_token, created_at FROM users WHERE id = ?`, userID.String())
	return scanUser(row)
}

// GetUserByName fetches a user by exact display name, used for
// resolving @mentions to user ids.
func (s *Store) GetUserByName(ctx context.Context, name string) (User, error) {
	row := s.readerPool.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, bio, admin, bot_token, created_at FROM users WHERE name = ? COLLATE NOCASE`, name)
	return scanUser(row)
}

func scanUser(r row) (User, error) {
	var u User
	var uid string
	var bio, botToken sql.NullString
	err := r.Scan(&uid, &u.Name, &u.Email, &u.PasswordHash, &bio, &u.Admin, &botToken, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, wrap(KindDataIntegrity, "scan user row", err)
	}
	parsed, err := id.ParseUserID(uid)
	if err != nil {
		return User{}, wrap(KindUUIDParse, "parse user id", err)
	}
	u.ID = parsed
	if bio.Valid {
		u.Bio = bio.String
	}
	if botToken.Valid {
		u.BotToken = botToken.String
	}
	return u, nil
}

// GetSession fetches a session by token. Returns ErrNotFound if the
// token doesn't exist or has expired.
func (s *Store) GetSession(ctx context.Context, token string) (Session, error) {
	var sess Session
	var userID string
	err := s.readerPool.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?`, token,
	).Scan(&sess.Token, &userID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, wrap(KindDataIntegrity, "scan session row", err)
	}
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return Session{}, wrap(KindUUIDParse, "parse user id", err)
	}
	sess.UserID = parsed
	if time.Now().After(sess.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// GetRoom fetches a room by id.
func (s *Store) GetRoom(ctx context.Context, roomID id.RoomID) (Room, error) {
	row := s.readerPool.QueryRowContext(ctx,
		`SELECT id, name, topic, room_type, created_at, last_message_at FROM rooms WHERE id = ?`, roomID.String())
	return scanRoom(row)
}

func scanRoom(r row) (Room, error) {
	var room Room
	var rid, roomType string
	var topic sql.NullString
	var lastMessageAt sql.NullTime
	err := r.Scan(&rid, &room.Name, &topic, &roomType, &room.CreatedAt, &lastMessageAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, wrap(KindDataIntegrity, "scan room row", err)
	}
	parsed, err := id.ParseRoomID(rid)
	if err != nil {
		return Room{}, wrap(KindUUIDParse, "parse room id", err)
	}
	room.ID = parsed
	room.RoomType = RoomType(roomType)
	if topic.Valid {
		room.Topic = topic.String
	}
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		room.LastMessageAt = &t
	}
	return room, nil
}

// ListRoomsForUser returns every room a user is a member of.
func (s *Store) ListRoomsForUser(ctx context.Context, userID id.UserID) ([]Room, error) {
	rows, err := s.readerPool.QueryContext(ctx,
		`SELECT r.id, r.name, r.topic, r.room_type, r.created_at, r.last_message_at
		 FROM rooms r JOIN room_memberships m ON m.room_id = r.id
		 WHERE m.user_id = ? ORDER BY r.last_message_at DESC NULLS LAST, r.created_at DESC`,
		userID.String())
	if err != nil {
		return nil, wrap(KindDataIntegrity, "list rooms for user", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// IsRoomMember reports whether userID is a member of roomID.
func (s *Store) IsRoomMember(ctx context.Context, roomID id.RoomID, userID id.UserID) (bool, error) {
	var count int
	err := s.readerPool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_memberships WHERE room_id = ? AND user_id = ?`,
		roomID.String(), userID.String(),
	).Scan(&count)
	if err != nil {
		return false, wrap(KindDataIntegrity, "check room membership", err)
	}
	return count > 0, nil
}

// GetMembership fetches a single room membership row.
func (s *Store) GetMembership(ctx context.Context, roomID id.RoomID, userID id.UserID) (Membership, error) {
	var m Membership
	var roomIDStr, userIDStr, level string
	err := s.readerPool.QueryRowContext(ctx,
		`SELECT room_id, user_id, involvement_level, created_at FROM room_memberships WHERE room_id = ? AND user_id = ?`,
		roomID.String(), userID.String(),
	).Scan(&roomIDStr, &userIDStr, &level, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Membership{}, ErrNotFound
		}
		return Membership{}, wrap(KindDataIntegrity, "scan membership row", err)
	}
	m.RoomID = roomID
	m.UserID = userID
	m.InvolvementLevel = InvolvementLevel(level)
	return m, nil
}

// ListRoomMembers returns the ids of every member of roomID.
func (s *Store) ListRoomMembers(ctx context.Context, roomID id.RoomID) ([]id.UserID, error) {
	rows, err := s.readerPool.QueryContext(ctx,
		`SELECT user_id FROM room_memberships WHERE room_id = ?`, roomID.String())
	if err != nil {
		return nil, wrap(KindDataIntegrity, "list room members", err)
	}
	defer rows.Close()

	var members []id.UserID
	for rows.Next() {
		var uidStr string
		if err := rows.Scan(&uidStr); err != nil {
			return nil, wrap(KindDataIntegrity, "scan room member", err)
		}
		uid, err := id.ParseUserID(uidStr)
		if err != nil {
			return nil, wrap(KindUUIDParse, "parse member id", err)
		}
		members = append(members, uid)
	}
	return members, rows.Err()
}

// FindDirectRoom returns the direct-message room between exactly
// these two users, if one exists.
func (s *Store) FindDirectRoom(ctx context.Context, a, b id.UserID) (Room, error) {
	row := s.readerPool.QueryRowContext(ctx,
		`SELECT r.id, r.name, r.topic, r.room_type, r.created_at, r.last_message_at
		 FROM rooms r
		 WHERE r.room_type = 'direct'
		   AND (SELECT COUNT(*) FROM room_memberships m WHERE m.room_id = r.id) = 2
		   AND EXISTS (SELECT 1 FROM room_memberships m WHERE m.room_id = r.id AND m.user_id = ?)
		   AND EXISTS (SELECT 1 FROM room_memberships m WHERE m.room_id = r.id AND m.user_id = ?)
		 LIMIT 1`,
		a.String(), b.String())
	return scanRoom(row)
}

// ListMessagesBefore returns up to limit messages from roomID,
// newest-first, strictly older than the message identified by before
// if supplied.
func (s *Store) ListMessagesBefore(ctx context.Context, roomID id.RoomID, before *id.MessageID, limit int) ([]Message, error) {
	var rows *sql.Rows
	var err error
	if before != nil {
		rows, err = s.readerPool.QueryContext(ctx,
			`SELECT id, room_id, creator_id, content, client_message_id, created_at, html_content, mentions, sound_commands
			 FROM messages
			 WHERE room_id = ? AND created_at < (SELECT created_at FROM messages WHERE id = ?)
			 ORDER BY created_at DESC LIMIT ?`,
			roomID.String(), before.String(), limit)
	} else {
		rows, err = s.readerPool.QueryContext(ctx,
			`SELECT id, room_id, creator_id, content, client_message_id, created_at, html_content, mentions, sound_commands
			 FROM messages WHERE room_id = ? ORDER BY created_at DESC LIMIT ?`,
			roomID.String(), limit)
	}
	if err != nil {
		return nil, wrap(KindDataIntegrity, "list messages before", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetMessagesSince returns messages across every room in roomIDs (the
// rooms a reconnecting user belongs to), used to replay what a
// connection missed. If lastSeenID is nil, it returns the latest
// limit messages across all of roomIDs, newest-first (an initial
// load). Otherwise it returns, oldest-first, every message in
// roomIDs created strictly after lastSeenID's created_at — a single
// chronological watermark spanning rooms, not a per-room cursor.
func (s *Store) GetMessagesSince(ctx context.Context, roomIDs []id.RoomID, lastSeenID *id.MessageID, limit int) ([]Message, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	inArgs, inClause := roomIDsInClause(roomIDs)

	var rows *sql.Rows
	var err error
	if lastSeenID != nil {
		args := append(append([]any{}, inArgs...), lastSeenID.String(), limit)
		rows, err = s.readerPool.QueryContext(ctx,
			`SELECT id, room_id, creator_id, content, client_message_id, created_at, html_content, mentions, sound_commands
			 FROM messages
			 WHERE room_id IN (`+inClause+`) AND created_at > (SELECT created_at FROM messages WHERE id = ?)
			 ORDER BY created_at ASC LIMIT ?`,
			args...)
	} else {
		args := append(append([]any{}, inArgs...), limit)
		rows, err = s.readerPool.QueryContext(ctx,
			`SELECT id, room_id, creator_id, content, client_message_id, created_at, html_content, mentions, sound_commands
			 FROM messages WHERE room_id IN (`+inClause+`) ORDER BY created_at DESC LIMIT ?`,
			args...)
	}
	if err != nil {
		return nil, wrap(KindDataIntegrity, "get messages since", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(KindDataIntegrity, "get messages since", err)
	}
	return messages, nil
}

// SearchResult pairs a matching message with its FTS5 rank.
type SearchResult struct {
	Message Message
	Rank    float64
}

// SearchMessages runs a room-scoped FTS5 query, returning matching
// messages ranked best-match-first (ties broken by recency).
func (s *Store) SearchMessages(ctx context.Context, roomIDs []id.RoomID, ftsQuery string, limit, offset int) ([]SearchResult, error) {
	if len(roomIDs) == 0 {
		return nil, nil
	}
	args, inClause := roomFilterArgs(ftsQuery, roomIDs)
	args = append(args, limit, offset)

	query := `SELECT m.id, m.room_id, m.creator_id, m.content, m.client_message_id, m.created_at, m.html_content, m.mentions, m.sound_commands, fts.rank
	          FROM messages_fts fts
	          INNER JOIN messages m ON fts.message_id = m.id
	          WHERE messages_fts MATCH ? AND m.room_id IN (` + inClause + `)
	          ORDER BY fts.rank, m.created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.readerPool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(KindDataIntegrity, "search messages", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var m Message
		var roomID, creatorID, msgID string
		var html, mentions, sounds sql.NullString
		var createdAt time.Time
		var rank float64

		if err := rows.Scan(&msgID, &roomID, &creatorID, &m.Content, &m.ClientMessageID, &createdAt, &html, &mentions, &sounds, &rank); err != nil {
			return nil, wrap(KindDataIntegrity, "scan search result", err)
		}
		parsedID, err := id.ParseMessageID(msgID)
		if err != nil {
			return nil, wrap(KindUUIDParse, "parse message id", err)
		}
		parsedRoomID, err := id.ParseRoomID(roomID)
		if err != nil {
			return nil, wrap(KindUUIDParse, "parse room id", err)
		}
		parsedCreatorID, err := id.ParseUserID(creatorID)
		if err != nil {
			return nil, wrap(KindUUIDParse, "parse creator id", err)
		}
		m.ID, m.RoomID, m.CreatorID, m.CreatedAt = parsedID, parsedRoomID, parsedCreatorID, createdAt
		if html.Valid {
			m.HTMLContent = html.String
		}
		m.Mentions = splitCSV(mentions)
		m.SoundCommands = splitCSV(sounds)

		results = append(results, SearchResult{Message: m, Rank: rank})
	}
	return results, rows.Err()
}

// CountSearchMatches returns the total number of messages (across
// roomIDs) matching ftsQuery, for pagination's has_more computation.
func (s *Store) CountSearchMatches(ctx context.Context, roomIDs []id.RoomID, ftsQuery string) (int, error) {
	if len(roomIDs) == 0 {
		return 0, nil
	}
	args, inClause := roomFilterArgs(ftsQuery, roomIDs)

	query := `SELECT COUNT(*) FROM messages_fts fts
	          INNER JOIN messages m ON fts.message_id = m.id
	          WHERE messages_fts MATCH ? AND m.room_id IN (` + inClause + `)`

	var total int
	if err := s.readerPool.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, wrap(KindDataIntegrity, "count search matches", err)
	}
	return total, nil
}

func roomFilterArgs(ftsQuery string, roomIDs []id.RoomID) ([]any, string) {
	inArgs, inClause := roomIDsInClause(roomIDs)
	args := make([]any, 0, len(inArgs)+1)
	args = append(args, ftsQuery)
	args = append(args, inArgs...)
	return args, inClause
}

// roomIDsInClause builds the "?,?,..." placeholder clause and matching
// bind args for a room_id IN (...) filter.
func roomIDsInClause(roomIDs []id.RoomID) ([]any, string) {
	args := make([]any, 0, len(roomIDs))
	inClause := ""
	for i, rid := range roomIDs {
		if i > 0 {
			inClause += ","
		}
		inClause += "?"
		args = append(args, rid.String())
	}
	return args, inClause
}

// GetNotificationPreferences fetches a user's notification
// preferences, returning the documented defaults if the user has
// never set any.
func (s *Store) GetNotificationPreferences(ctx context.Context, userID id.UserID) (NotificationPreferences, error) {
	var p NotificationPreferences
	var uid string
	err := s.readerPool.QueryRowContext(ctx,
		`SELECT user_id, mentions_enabled, direct_messages_enabled, all_messages_enabled, sounds_enabled, updated_at
		 FROM notification_preferences WHERE user_id = ?`, userID.String(),
	).Scan(&uid, &p.MentionsEnabled, &p.DirectMessagesEnabled, &p.AllMessagesEnabled, &p.SoundsEnabled, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotificationPreferences{
				UserID:                userID,
				MentionsEnabled:       true,
				DirectMessagesEnabled: true,
				AllMessagesEnabled:    false,
				SoundsEnabled:         true,
			}, nil
		}
		return NotificationPreferences{}, wrap(KindDataIntegrity, "scan notification preferences", err)
	}
	p.UserID = userID
	return p, nil
}
