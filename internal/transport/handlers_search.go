package transport

import (
	"context"
	"net/http"
	"strconv"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/searchservice"
	"github.com/emberchat/ember/internal/store"
)

// resolveMention implements messageservice.UserLookupFunc, used to
// convert @mentions into links while sanitizing a new message.
func (s *Server) resolveMention(ctx context.Context, username string) (id.UserID, bool) {
	user, err := s.store.GetUserByName(ctx, username)
	if err != nil {
		return id.UserID{}, false
	}
	return user.ID, true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, user store.User) {
	query := r.URL.Query().Get("q")

	req := searchservice.Request{Query: query}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			req.Limit = &n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			req.Offset = &n
		}
	}
	if raw := r.URL.Query().Get("room_id"); raw != "" {
		roomID, err := id.ParseRoomID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid room id")
			return
		}
		req.RoomID = &roomID
	}

	resp, err := s.search.Search(r.Context(), user.ID, req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
