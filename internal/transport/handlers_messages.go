package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
)

func (s *Server) handleRoomMessages(w http.ResponseWriter, r *http.Request, user store.User) {
	roomID, err := id.ParseRoomID(r.PathValue("room_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	var before *id.MessageID
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := id.ParseMessageID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before message id")
			return
		}
		before = &parsed
	}

	messages, err := s.messages.GetRoomMessages(r.Context(), roomID, user.ID, limit, before)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type createMessageRequest struct {
	Content         string `json:"content"`
	ClientMessageID string `json:"client_message_id"`
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request, user store.User) {
	roomID, err := id.ParseRoomID(r.PathValue("room_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.messages.CreateMessage(r.Context(), roomID, user.ID, req.Content, req.ClientMessageID, s.resolveMention)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
