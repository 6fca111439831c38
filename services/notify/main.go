package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/stays-bookings/pkg/config"
	"github.com/diagnosis/stays-bookings/pkg/database"
	"github.com/diagnosis/stays-bookings/pkg/events"
	"github.com/diagnosis/stays-bookings/pkg/logger"
	mw "github.com/diagnosis/stays-bookings/pkg/middleware"
	"github.com/diagnosis/stays-bookings/services/notify/internal/mailer"
	"github.com/diagnosis/stays-bookings/services/notify/internal/notifier"
	"github.com/diagnosis/stays-bookings/services/notify/internal/users"
	"github.com/go-chi/chi/v5"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var mail mailer.Service = mailer.Dev{}
	if !cfg.Email.DevMode {
		ms, err := mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
		if err != nil {
			logger.Error("Failed to configure mailer", "error", err)
			os.Exit(1)
		}
		mail = ms
	}
	n := notifier.New(mail, users.NewDirectory(pool), cfg.Email.FrontendURL)

	bus, err := events.NewNATSEventBus(cfg.NATS.URL, "stays-notify")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	// Queue group: each event is mailed once however many replicas run.
	err = bus.QueueSubscribe(events.BookingAll, cfg.NATS.NotifyQueue, func(msg *events.Message) {
		mctx, cancel := context.WithTimeout(context.WithValue(ctx, logger.ServiceKey, "notify"), 30*time.Second)
		defer cancel()
		if err := n.HandleMessage(mctx, msg); err != nil {
			logger.ErrorContext(mctx, "Failed to handle booking event", "error", err, "subject", msg.Subject, "message_id", msg.ID)
		}
	})
	if err != nil {
		logger.Error("Failed to subscribe to booking events", "error", err)
		os.Exit(1)
	}

	r := chi.NewRouter()
	r.Use(mw.Recover)
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Logging)
	r.Use(mw.Health(map[string]mw.Checker{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
	}))

	srv := &http.Server{Addr: ":" + cfg.Notify.Port, Handler: r, ReadTimeout: cfg.Server.ReadTimeout}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down notify service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Notify service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting notify service", "port", cfg.Notify.Port, "subject", events.BookingAll)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Notify service error", "error", err)
		os.Exit(1)
	}
}
