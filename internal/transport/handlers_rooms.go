package transport

import (
	"encoding/json"
	"net/http"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
)

type roomView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func toRoomView(r store.Room) roomView {
	return roomView{ID: r.ID.String(), Name: r.Name, Type: string(r.RoomType)}
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request, user store.User) {
	rooms, err := s.rooms.ListRoomsForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	views := make([]roomView, len(rooms))
	for i, room := range rooms {
		views[i] = toRoomView(room)
	}
	writeJSON(w, http.StatusOK, views)
}

type createRoomRequest struct {
	Name     string `json:"name"`
	Topic    string `json:"topic"`
	RoomType string `json:"room_type"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request, user store.User) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	roomType := store.RoomType(req.RoomType)
	if roomType == "" {
		roomType = store.RoomTypeOpen
	}

	room, err := s.rooms.CreateRoom(r.Context(), req.Name, req.Topic, roomType, user.ID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toRoomView(room))
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request, user store.User) {
	roomID, err := id.ParseRoomID(r.PathValue("room_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	memberID, err := id.ParseUserID(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := s.rooms.AddMember(r.Context(), roomID, user.ID, memberID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
