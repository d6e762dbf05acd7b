package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"dplay/internal/eventlog"
	"dplay/internal/eventlog/kafka"
	"dplay/internal/identity"
	"dplay/internal/payment"
	paymenthandler "dplay/internal/payment/handler"
	"dplay/internal/platform/config"
	"dplay/internal/platform/httpserver"
	"dplay/internal/platform/logger"
	"dplay/internal/platform/middleware"
	platformredis "dplay/internal/platform/redis"
	"dplay/internal/registry/cache"
	registryhandler "dplay/internal/registry/handler"
	registrymetrics "dplay/internal/registry/metrics"
	"dplay/internal/registry/service"
	"dplay/internal/registry/store"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var (
		listings service.ListingStore
		installs service.InstallStore
		accounts service.AccountStore
		events   eventlog.Store
		storeTx  service.StoreTx
		db       *sql.DB
	)
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx, db); err != nil {
			return err
		}
		if err := store.SeedAccount(ctx, db, cfg.Administrator, cfg.RegistrationFee); err != nil {
			return err
		}
		listings = store.NewPostgresListingStore(db)
		installs = store.NewPostgresInstallStore(db)
		accounts = store.NewPostgresAccountStore(db)
		events = eventlog.NewPostgresStore(db)
		storeTx = store.NewSQLTx(db)
		log.Info("using postgres stores")
	} else {
		listings = store.NewMemoryListingStore()
		installs = store.NewMemoryInstallStore()
		accounts = store.NewMemoryAccountStore(cfg.Administrator, cfg.RegistrationFee)
		events = eventlog.NewMemoryStore()
		storeTx = service.NewMemoryTx()
		log.Info("using in-memory stores")
	}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		listings = cache.New(listings, redisClient.Client, cfg.ListingCacheTTL, log)
		log.Info("listing cache enabled", "ttl", cfg.ListingCacheTTL)
	}

	ledger := payment.NewLedger()
	metrics := registrymetrics.New()
	svc := service.New(listings, installs, accounts, events, ledger, storeTx,
		service.WithLogger(log),
		service.WithMetrics(metrics),
	)
	tokens := identity.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	registryH := registryhandler.New(svc, log)
	paymentH := paymenthandler.New(ledger, log)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestContext)
	router.Use(middleware.Logger(log))

	router.Group(registryH.Register)
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireCaller(tokens, log))
		registryH.RegisterAuthed(r)
		paymentH.Register(r)
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireCaller(tokens, log))
		r.Use(middleware.AdminGuard(cfg.AdminTokenHash, log))
		registryH.RegisterAdmin(r)
	})

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", healthz(db, redisClient))

	g, ctx := errgroup.WithContext(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		topic := cfg.KafkaTopic
		if topic == "" {
			topic = kafka.DefaultTopic
		}
		sink, err := kafka.NewSink(ctx, cfg.KafkaBrokers, topic, log)
		if err != nil {
			return err
		}
		defer sink.Close()
		worker := eventlog.NewWorker(events, sink, log)
		g.Go(func() error {
			err := worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		log.Info("event forwarding enabled", "topic", topic, "brokers", cfg.KafkaBrokers)
	}

	srv := httpserver.New(cfg.Addr, router)
	g.Go(func() error {
		log.Info("starting dplay registry", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// healthz reports liveness of the configured backing stores. Components not
// configured are skipped.
func healthz(db *sql.DB, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
