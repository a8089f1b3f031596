// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server plus the
// notification worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/memberhub/admission/internal/database"
	"github.com/memberhub/admission/internal/handler"
	"github.com/memberhub/admission/internal/notify"
	"github.com/memberhub/admission/internal/oracle"
	"github.com/memberhub/admission/internal/repository"
	"github.com/memberhub/admission/internal/service"
)

func main() {
	ctx := context.Background()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// ── 1. Connect to PostgreSQL and Redis ───────────────────────────────
	pool, err := database.NewPool(ctx)
	if err != nil {
		log.Error("database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("connected to postgres")

	rdb, err := database.NewRedisClient(ctx)
	if err != nil {
		log.Error("redis", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()
	log.Info("connected to redis")

	// ── 2. Wire up layers ────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	store := repository.NewStore(pool)

	members := oracle.NewMembershipClient(getEnv("MEMBERSHIP_URL", "http://localhost:9001"), rdb)
	strikes := oracle.NewStrikeClient(getEnv("STRIKES_URL", "http://localhost:9002"), rdb)

	redisOpt := database.RedisOpt()
	enqueuer := notify.NewEnqueuer(redisOpt)
	defer enqueuer.Close()

	eventSvc := service.NewEventService(eventRepo, store, log)
	admissionSvc := service.NewAdmissionService(store, members, strikes, enqueuer, log)
	eventHandler := handler.NewEventHandler(eventSvc, admissionSvc)

	// ── 3. Start the notification worker ─────────────────────────────────
	publisher, err := notify.NewPubNubPublisher(notify.PubNubConfig{
		PublishKey:   os.Getenv("PUBNUB_PUBLISH_KEY"),
		SubscribeKey: os.Getenv("PUBNUB_SUBSCRIBE_KEY"),
		SecretKey:    os.Getenv("PUBNUB_SECRET_KEY"),
		SenderUUID:   getEnv("PUBNUB_SENDER_UUID", "admission-service"),
	})
	if err != nil {
		log.Warn("pubnub disabled, notifications will not be delivered", "err", err)
	} else {
		worker := notify.NewWorker(publisher, log)
		go func() {
			if err := notify.RunServer(redisOpt, worker); err != nil {
				log.Error("notification worker stopped", "err", err)
			}
		}()
	}

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)

	r.Get("/health", handler.HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", eventHandler.CreateEvent)
		r.Get("/", eventHandler.ListEvents)
		r.Get("/{id}", eventHandler.GetEvent)
		r.Post("/{id}/register", eventHandler.Register)
		r.Post("/{id}/cancel", eventHandler.Cancel)
		r.Get("/{id}/registrations", eventHandler.ListRegistrations)
		r.Get("/{id}/waitlist", eventHandler.GetWaitlist)
		r.Post("/{id}/registrations/{userID}/promote", eventHandler.Promote)
		r.Get("/{id}/registrations/{userID}/position", eventHandler.GetWaitlistPosition)
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	port := getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		log.Info("server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
