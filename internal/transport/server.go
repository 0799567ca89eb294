// Package transport is Ember's thin HTTP/WebSocket boundary: it
// decodes requests, calls into the service layer, and encodes
// responses. It holds no business logic of its own.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emberchat/ember/internal/authservice"
	"github.com/emberchat/ember/internal/config"
	"github.com/emberchat/ember/internal/logging"
	"github.com/emberchat/ember/internal/messageservice"
	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/registry"
	"github.com/emberchat/ember/internal/roomservice"
	"github.com/emberchat/ember/internal/searchservice"
	"github.com/emberchat/ember/internal/store"
)

// SessionCookieName is the name of the cookie holding the session
// token, used both when setting it on login and reading it on
// subsequent requests.
const SessionCookieName = "session_token"

// Server bundles every service the HTTP/WebSocket boundary depends on.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	auth     *authservice.Service
	rooms    *roomservice.Service
	messages *messageservice.Service
	search   *searchservice.Service
	registry *registry.Registry

	httpServer *http.Server
	shutdownCh chan struct{}
}

// Deps bundles the services a Server wires up.
type Deps struct {
	Config   *config.Config
	Store    *store.Store
	Auth     *authservice.Service
	Rooms    *roomservice.Service
	Messages *messageservice.Service
	Search   *searchservice.Service
	Registry *registry.Registry
}

// New builds a Server and its underlying http.Server, ready for Serve.
func New(deps Deps) *Server {
	s := &Server{
		cfg:        deps.Config,
		store:      deps.Store,
		auth:       deps.Auth,
		rooms:      deps.Rooms,
		messages:   deps.Messages,
		search:     deps.Search,
		registry:   deps.Registry,
		shutdownCh: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("GET /api/me", s.withAuth(s.handleCurrentUser))
	mux.HandleFunc("GET /api/rooms", s.withAuth(s.handleListRooms))
	mux.HandleFunc("POST /api/rooms", s.withAuth(s.handleCreateRoom))
	mux.HandleFunc("POST /api/rooms/{room_id}/members", s.withAuth(s.handleAddMember))
	mux.HandleFunc("GET /api/rooms/{room_id}/messages", s.withAuth(s.handleRoomMessages))
	mux.HandleFunc("POST /api/rooms/{room_id}/messages", s.withAuth(s.handleCreateMessage))
	mux.HandleFunc("GET /api/search", s.withAuth(s.handleSearch))
	mux.HandleFunc("/ws", s.withAuth(s.handleWebSocket))
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              deps.Config.Addr,
		Handler:           logging.HTTPMiddleware(metrics.HTTPMiddleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Serve blocks until ctx is canceled, then drains in-flight requests
// before returning.
func (s *Server) Serve(ctx context.Context) error {
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		slog.Info("transport shutting down...")

		// Reject new WebSocket upgrades and stop handing out new work.
		close(s.shutdownCh)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)

		close(shutdownDone)
	}()

	slog.Info("transport listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	<-shutdownDone
	return nil
}

func (s *Server) shuttingDown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}
