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
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	activityhandler "volunteerhub/internal/activity/handler"
	activityservice "volunteerhub/internal/activity/service"
	activitystore "volunteerhub/internal/activity/store"
	notificationhandler "volunteerhub/internal/notification/handler"
	"volunteerhub/internal/notification/rules"
	notificationservice "volunteerhub/internal/notification/service"
	notificationstore "volunteerhub/internal/notification/store"
	"volunteerhub/internal/platform/config"
	"volunteerhub/internal/platform/httpserver"
	"volunteerhub/internal/platform/logger"
	"volunteerhub/internal/platform/metrics"
	"volunteerhub/internal/platform/middleware"
	platformredis "volunteerhub/internal/platform/redis"
	registrationhandler "volunteerhub/internal/registration/handler"
	registrationservice "volunteerhub/internal/registration/service"
	registrationstore "volunteerhub/internal/registration/store"
	"volunteerhub/internal/registration/sweeper"
	socialhandler "volunteerhub/internal/social/handler"
	socialservice "volunteerhub/internal/social/service"
	socialstore "volunteerhub/internal/social/store"
	"volunteerhub/pkg/platform/audit"
	auditkafka "volunteerhub/pkg/platform/audit/store/kafka"
	auditmemory "volunteerhub/pkg/platform/audit/store/memory"
	auditworker "volunteerhub/pkg/platform/audit/worker"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	m := metrics.New()

	// Stores: postgres when a database is configured, in-memory otherwise.
	var (
		activities    activitystore.Store
		registrations registrationstore.Store
		obligations   notificationstore.Store
		relations     interface {
			socialstore.FollowerStore
			socialstore.BookmarkStore
			socialstore.MembershipStore
		}
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		activities = activitystore.NewPostgres(db)
		registrations = registrationstore.NewPostgres(db)
		obligations = notificationstore.NewPostgres(db)
		relations = socialstore.NewPostgresRelations(db)
		log.Info("using postgres stores")
	} else {
		activities = activitystore.NewInMemoryStore()
		registrations = registrationstore.NewInMemoryStore()
		obligations = notificationstore.NewInMemoryStore()
		relations = socialstore.NewInMemoryRelations()
		log.Info("using in-memory stores")
	}

	// Lifecycle event sink: Kafka when configured, local memory otherwise.
	// Emission goes through a buffered channel so request handling never
	// blocks on the sink.
	var sink audit.Store
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := auditkafka.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("lifecycle events to kafka", "topic", cfg.KafkaTopic)
	} else {
		sink = auditmemory.New()
	}
	channel := audit.NewChannelStore(1024)
	publisher := audit.NewPublisher(channel)
	go func() {
		if err := auditworker.New(sink, channel.Inbox(), log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("lifecycle worker stopped", "error", err.Error())
		}
	}()

	// Rule engine and notification surface.
	engine, err := rules.New(obligations, registrations, relations, relations, relations, activities, loc,
		rules.WithLogger(log), rules.WithMetrics(m))
	if err != nil {
		return err
	}
	notifications, err := notificationservice.New(obligations, engine, notificationservice.WithLogger(log))
	if err != nil {
		return err
	}

	// Registration lifecycle orchestrator.
	regOpts := []registrationservice.Option{
		registrationservice.WithLogger(log),
		registrationservice.WithMetrics(m),
		registrationservice.WithAudit(publisher),
	}
	if cfg.RedisURL != "" {
		redisClient, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		regOpts = append(regOpts,
			registrationservice.WithDistributedLocker(platformredis.NewActivityLocker(redisClient, 5*time.Second)))
		log.Info("distributed activity locking enabled")
	}
	lifecycle, err := registrationservice.New(registrations, activities, engine, relations,
		registrationservice.Config{
			UndoWindow:   cfg.UndoWindow,
			Cooldown:     cfg.Cooldown,
			CancelCutoff: cfg.CancelCutoff,
			Timezone:     loc,
		}, regOpts...)
	if err != nil {
		return err
	}

	activitySvc, err := activityservice.New(activities, registrations, engine,
		activityservice.WithLogger(log), activityservice.WithAudit(publisher))
	if err != nil {
		return err
	}
	socialSvc, err := socialservice.New(relations, relations, relations, activities, engine, log)
	if err != nil {
		return err
	}

	// Periodic finalize sweep; lazy finalization covers correctness when
	// disabled.
	if cfg.SweepInterval > 0 {
		sweep, err := sweeper.New(lifecycle, cfg.SweepInterval, log)
		if err != nil {
			return err
		}
		if err := sweep.Start(ctx); err != nil {
			return err
		}
		defer sweep.Stop()
	}

	router := chi.NewRouter()
	router.Use(
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.RequestTime,
		middleware.Logger(log),
		middleware.Timeout(30*time.Second),
		middleware.ContentTypeJSON,
		middleware.Latency(m),
	)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	validator := middleware.NewHMACValidator(cfg.JWTSigningKey)
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, log))
		activityhandler.New(activitySvc, log).Register(r)
		registrationhandler.New(lifecycle, log).Register(r)
		notificationhandler.New(notifications, log).Register(r)
		socialhandler.New(socialSvc, log).Register(r)
	})
	// Moderation access for operators without a user token.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.AdminToken, log))
		adminActivity := activityhandler.New(activitySvc, log)
		r.Post("/admin/activities/{activityID}/hide", adminActivity.HandleHide)
		r.Delete("/admin/activities/{activityID}", adminActivity.HandleDelete)
	})

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting volunteerhub", "addr", cfg.Addr, "timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
