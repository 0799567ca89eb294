package transport

import (
	"encoding/json"
	"net/http"

	"github.com/emberchat/ember/internal/store"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User         userView `json:"user"`
	SessionToken string   `json:"session_token"`
}

type userView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Bio   string `json:"bio"`
	Admin bool   `json:"admin"`
}

func toUserView(u store.User) userView {
	return userView{ID: u.ID.String(), Name: u.Name, Email: u.Email, Bio: u.Bio, Admin: u.Admin}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, user, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, loginResponse{User: toUserView(user), SessionToken: session.Token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token != "" {
		_ = s.auth.RevokeSession(r.Context(), token)
	}
	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.auth.CreateUser(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	session, err := s.auth.CreateSession(r.Context(), user.ID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	setSessionCookie(w, session)
	writeJSON(w, http.StatusCreated, loginResponse{User: toUserView(user), SessionToken: session.Token})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request, user store.User) {
	writeJSON(w, http.StatusOK, toUserView(user))
}
