package searchservice

import (
	"context"
	"strings"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/store"
)

const (
	minQueryLength  = 2
	maxQueryLength  = 100
	defaultLimit    = 20
	maxLimit        = 100
	snippetWindow   = 50
	snippetFallback = 100
)

// RoomLister answers which rooms a user may search across.
type RoomLister interface {
	ListRoomsForUser(ctx context.Context, userID id.UserID) ([]store.Room, error)
}

// Service runs full-text search queries scoped to a user's rooms.
type Service struct {
	store *store.Store
	rooms RoomLister
}

// New constructs a Service backed by st and rooms.
func New(st *store.Store, rooms RoomLister) *Service {
	return &Service{store: st, rooms: rooms}
}

// Result pairs a matching message with its relevance rank and a
// highlighted-context snippet.
type Result struct {
	Message store.Message `json:"message"`
	Rank    float64       `json:"rank"`
	Snippet string        `json:"snippet"`
}

// Response is the paginated outcome of a search.
type Response struct {
	Results    []Result `json:"results"`
	TotalCount int      `json:"total_count"`
	Query      string   `json:"query"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
	HasMore    bool     `json:"has_more"`
}

// Request describes a search over a user's accessible rooms, optionally
// narrowed to a single room.
type Request struct {
	Query  string
	Limit  *int
	Offset *int
	RoomID *id.RoomID
}

// Search runs request on behalf of userID, restricted to rooms userID
// is a member of.
func (s *Service) Search(ctx context.Context, userID id.UserID, req Request) (Response, error) {
	ftsQuery, err := validateQuery(req.Query)
	if err != nil {
		return Response{}, err
	}

	limit := defaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := 0
	if req.Offset != nil && *req.Offset > 0 {
		offset = *req.Offset
	}

	roomIDs, err := s.accessibleRoomIDs(ctx, userID)
	if err != nil {
		return Response{}, err
	}
	if req.RoomID != nil {
		if !containsRoom(roomIDs, *req.RoomID) {
			return Response{Query: req.Query, Limit: limit, Offset: offset}, nil
		}
		roomIDs = []id.RoomID{*req.RoomID}
	}
	if len(roomIDs) == 0 {
		return Response{Query: req.Query, Limit: limit, Offset: offset}, nil
	}

	metrics.SearchQueriesTotal.Inc()
	rows, err := s.store.SearchMessages(ctx, roomIDs, ftsQuery, limit, offset)
	if err != nil {
		return Response{}, newErr(KindDatabase, "search messages", err)
	}
	total, err := s.store.CountSearchMatches(ctx, roomIDs, ftsQuery)
	if err != nil {
		return Response{}, newErr(KindDatabase, "count search matches", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			Message: row.Message,
			Rank:    row.Rank,
			Snippet: generateSnippet(row.Message.Content, req.Query),
		})
	}

	return Response{
		Results:    results,
		TotalCount: total,
		Query:      req.Query,
		Limit:      limit,
		Offset:     offset,
		HasMore:    offset+limit < total,
	}, nil
}

// SearchRoom is a convenience wrapper that narrows a search to a
// single room.
func (s *Service) SearchRoom(ctx context.Context, userID id.UserID, roomID id.RoomID, query string, limit, offset *int) (Response, error) {
	return s.Search(ctx, userID, Request{Query: query, Limit: limit, Offset: offset, RoomID: &roomID})
}

func (s *Service) accessibleRoomIDs(ctx context.Context, userID id.UserID) ([]id.RoomID, error) {
	rooms, err := s.rooms.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, newErr(KindRoomAccess, "list accessible rooms", err)
	}
	ids := make([]id.RoomID, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func containsRoom(ids []id.RoomID, target id.RoomID) bool {
	for _, rid := range ids {
		if rid == target {
			return true
		}
	}
	return false
}

// validateQuery trims, length-checks, and FTS5-escapes query, returning
// the string to hand to MATCH.
func validateQuery(query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", newErr(KindInvalidQuery, "query must not be empty", nil)
	}
	if len([]rune(trimmed)) < minQueryLength {
		return "", newErr(KindQueryTooShort, "query must be at least 2 characters", nil)
	}
	if len([]rune(trimmed)) > maxQueryLength {
		return "", newErr(KindQueryTooLong, "query must be at most 100 characters", nil)
	}

	escaped := strings.ReplaceAll(trimmed, `"`, `""`)
	escaped = strings.ReplaceAll(escaped, "*", "")
	escaped = strings.ReplaceAll(escaped, ":", "")
	return escaped, nil
}

// generateSnippet returns a window of content around the first
// case-insensitive match of query, or the first 100 characters when
// there is no match to center on.
func generateSnippet(content, query string) string {
	runes := []rune(content)
	needle := []rune(strings.ToLower(strings.TrimSpace(query)))
	lowerRunes := []rune(strings.ToLower(content))

	matchAt := indexRunes(lowerRunes, needle)
	if matchAt < 0 {
		if len(runes) <= snippetFallback {
			return content
		}
		return string(runes[:snippetFallback]) + "..."
	}

	start := matchAt - snippetWindow
	if start < 0 {
		start = 0
	}
	end := matchAt + len(needle) + snippetWindow
	if end > len(runes) {
		end = len(runes)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}

// indexRunes returns the rune index of the first occurrence of needle
// in haystack, or -1. An empty needle never matches.
func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i <= len(haystack)-len(needle); i++ {
		if runesEqual(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
