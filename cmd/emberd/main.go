// Command emberd is Ember's standalone chat server: it loads
// configuration, opens and migrates the database, wires every
// service, and serves HTTP/WebSocket traffic until signaled to stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/emberchat/ember/internal/authservice"
	"github.com/emberchat/ember/internal/config"
	"github.com/emberchat/ember/internal/logging"
	"github.com/emberchat/ember/internal/messageservice"
	"github.com/emberchat/ember/internal/push"
	"github.com/emberchat/ember/internal/ratelimit"
	"github.com/emberchat/ember/internal/registry"
	"github.com/emberchat/ember/internal/roomservice"
	"github.com/emberchat/ember/internal/searchservice"
	"github.com/emberchat/ember/internal/store"
	"github.com/emberchat/ember/internal/transport"
)

var version = "dev"

func main() {
	logging.Setup()

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	auth := authservice.New(st, cfg.SessionExpiry, cfg.EnableRegistration)
	rooms := roomservice.New(st)
	limiter := ratelimit.New(cfg.RateLimitMessages, cfg.RateLimitPer)
	reg := registry.New(st, 0)
	dispatcher := push.New(st)

	messages := messageservice.New(messageservice.Config{
		Store:       st,
		Rooms:       rooms,
		Limiter:     limiter,
		Broadcaster: reg,
		Notifier:    &pushNotifier{dispatcher: dispatcher},
		MaxLength:   cfg.MaxMessageLength,
	})
	search := searchservice.New(st, rooms)

	srv := transport.New(transport.Deps{
		Config:   cfg,
		Store:    st,
		Auth:     auth,
		Rooms:    rooms,
		Messages: messages,
		Search:   search,
		Registry: reg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go reg.RunSweeper(sweepCtx, cfg.PresenceSweepPeriod, cfg.PresenceExpiry, cfg.TypingExpiry)

	slog.Info("emberd starting", "version", version, "addr", cfg.Addr)
	return srv.Serve(ctx)
}

// pushNotifier adapts push.Dispatcher's recipient selection to
// messageservice.Notifier. Actual delivery (VAPID signing, transmitting
// to each recipient's push subscriptions) lives outside this boundary;
// here we only log the selected recipients.
type pushNotifier struct {
	dispatcher *push.Dispatcher
}

func (n *pushNotifier) NotifyNewMessage(ctx context.Context, msg store.Message, room store.Room) error {
	recipients, err := n.dispatcher.SelectRecipients(ctx, msg, room)
	if err != nil {
		return err
	}
	if len(recipients) > 0 {
		slog.Debug("push: selected recipients", "message_id", msg.ID.String(), "count", len(recipients))
	}
	return nil
}
