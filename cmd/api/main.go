// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chatline-app/chatline/internal/backend"
	"github.com/chatline-app/chatline/internal/cache"
	"github.com/chatline-app/chatline/internal/chat"
	"github.com/chatline-app/chatline/internal/config"
	"github.com/chatline-app/chatline/internal/handler"
	"github.com/chatline-app/chatline/internal/middleware"
	"github.com/chatline-app/chatline/internal/syncer"
	"github.com/chatline-app/chatline/pkg/logger"
	"github.com/chatline-app/chatline/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatline", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	natsClient, err := backend.ConnectNATS(ctx, backend.NATSConfig{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer natsClient.Close()

	feed := backend.NewNATSFeed(natsClient, log)

	// Connect to Postgres
	store, err := backend.NewPostgresStore(cfg.PostgresDSN, log)
	if err != nil {
		log.Error("failed to connect to postgres", zap.Error(err))
		os.Exit(1)
	}
	store.SetFeed(feed)

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	authSvc := backend.NewAuthService(store, rdb, cfg.JWTSecret, cfg.SignInCodeTTL, cfg.JWTExpiration, log)

	// Open the local cache
	localCache, err := cache.Open(cfg.CachePath)
	if err != nil {
		log.Warn("failed to open local cache, continuing without it", zap.Error(err))
		localCache = nil
	} else {
		defer localCache.Close()
	}

	// Initialize services
	sync := syncer.New(store, localCache, log)
	threads := syncer.NewThreadManager(sync, feed, store, cfg.TypingIdleTimeout, log)
	defer threads.Close()
	chatSvc := chat.NewService(store, sync, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsClient)
	authHandler := handler.NewAuthHandler(authSvc, log)
	userHandler := handler.NewUserHandler(store, log)
	conversationHandler := handler.NewConversationHandler(sync, chatSvc, log)
	threadHandler := handler.NewThreadHandler(threads, chatSvc, log)
	streamHandler := handler.NewStreamHandler(threads, feed, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Sign-in flow (no auth required; the sign-in page itself bounces
	// already-authenticated visitors home)
	r.Route("/auth", func(r chi.Router) {
		r.With(middleware.RedirectAuthenticated(authSvc, "/")).Get("/", authHandler.SignInPage)
		r.Post("/signin", authHandler.SignIn)
		r.Get("/callback", authHandler.Callback)
	})

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(authSvc, cfg.SignInPath))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/session", authHandler.Session)
		r.Post("/signout", authHandler.SignOut)

		r.Get("/users", userHandler.List)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/groups", conversationHandler.CreateGroup)
			r.Get("/{id}/messages", conversationHandler.Messages)
		})

		r.Route("/thread", func(r chi.Router) {
			r.Get("/", threadHandler.State)
			r.Post("/select", threadHandler.Select)
			r.Post("/messages", threadHandler.Send)
			r.Post("/typing", threadHandler.Typing)
			r.Get("/stream", streamHandler.Stream)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
