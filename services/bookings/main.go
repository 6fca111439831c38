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
	"github.com/diagnosis/stays-bookings/services/bookings/internal/domain"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/handlers"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/listing"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/payment"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/repository"
	"github.com/diagnosis/stays-bookings/services/bookings/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"
)

// deps is everything main wires into the service for the chosen store.
type deps struct {
	bookings    repository.BookingRepository
	idempotency repository.IdempotencyStore
	listings    listing.Provider
	limiter     mw.Limiter
	checks      map[string]mw.Checker
	closers     []func()
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := connect(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialise storage", "error", err, "store", cfg.Booking.Store)
		os.Exit(1)
	}
	defer func() {
		for i := len(d.closers) - 1; i >= 0; i-- {
			d.closers[i]()
		}
	}()

	// Connect to event bus
	var eventBus events.EventBus = events.NopBus{}
	if cfg.NATS.URL != "" {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL, cfg.NATS.ClientName)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		eventBus = bus
	}

	var processor payment.Processor = payment.Disabled{}
	if cfg.Stripe.Enabled {
		sp, err := payment.NewStripeProcessor(cfg.Stripe)
		if err != nil {
			logger.Error("Failed to configure payments", "error", err)
			os.Exit(1)
		}
		processor = sp
	}

	loc := cfg.Booking.Location()
	bookingService := service.NewBookingService(
		d.bookings,
		d.idempotency,
		d.listings,
		processor,
		eventBus,
		domain.NewAvailabilityValidator(cfg.Booking.AdvanceWindowDays, loc),
		service.Options{
			RequestTTL:         cfg.Booking.RequestTTL,
			IdempotencyTTL:     cfg.Booking.IdempotencyTTL,
			MaxTransitionTries: cfg.Booking.MaxTransitionTries,
			Location:           loc,
		},
	)
	sweeper := service.NewSweeper(bookingService, cfg.Booking.SweepSchedule, loc)
	h := handlers.New(bookingService, cfg.Auth)

	// Setup router
	r := chi.NewRouter()
	r.Use(mw.Recover)
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("bookings"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health(d.checks))

	var createLimit []func(http.Handler) http.Handler
	if d.limiter != nil {
		createLimit = append(createLimit, mw.RateLimit(d.limiter, mw.RateLimitConfig{
			Requests: cfg.Booking.CreateRateLimit,
			Window:   cfg.Booking.CreateRateWindow,
			KeyFunc:  mw.ClientIPKey,
		}))
	}
	h.Routes(r, createLimit...)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting bookings service", "port", cfg.Server.Port, "store", cfg.Booking.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down bookings service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Bookings service error", "error", err)
		os.Exit(1)
	}
}

// connect builds the storage stack. memory needs no external services and
// reads listings from cfg.Listing.StaticFile when set.
func connect(ctx context.Context, cfg *config.Config) (*deps, error) {
	if cfg.Booking.Store == "memory" {
		listings := listing.NewStaticProvider()
		if path := cfg.Listing.StaticFile; path != "" {
			loaded, err := listing.LoadStaticProvider(path)
			if err != nil {
				return nil, err
			}
			listings = loaded
		}
		return &deps{
			bookings:    repository.NewMemoryBookingRepository(),
			idempotency: repository.NewMemoryIdempotencyStore(),
			listings:    listings,
			checks:      map[string]mw.Checker{},
		}, nil
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	rdb, err := database.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &deps{
		bookings:    repository.NewBookingRepository(pool),
		idempotency: repository.NewRedisIdempotencyStore(rdb),
		listings:    listing.NewCachedProvider(listing.NewPostgresProvider(pool), rdb, cfg.Listing.CacheTTL),
		limiter:     mw.NewRedisLimiter(rdb, "ratelimit:bookings"),
		checks: map[string]mw.Checker{
			"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		closers: []func(){pool.Close, func() { _ = rdb.Close() }},
	}, nil
}
