// Personal trainer conversation server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/agent"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/api"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/config"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/conversation"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/goals"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/identity"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/middleware"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/store"
	"github.com/YisroelArnson/AI-PERSONAL-TRAINER-sub011/internal/workout"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreBackend)

	// Initialize dependencies.
	repo, err := openStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize goal store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close goal store", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Goal store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Goal store connected")

	checks := map[string]api.Pinger{"store": repo}

	// The agent is optional: without one, turns replay a recorded log or
	// fail with an error event.
	var source conversation.Streamer
	var resetter agent.SessionResetter
	switch {
	case cfg.Agent.Addr != "":
		slog.Info("Connecting to agent service via gRPC", "address", cfg.Agent.Addr)
		grpcClient, err := agent.NewGrpcClient(agent.DefaultGrpcClientConfig(cfg.Agent.Addr), logger)
		if err != nil {
			slog.Warn("Failed to connect to agent, chat will report it unavailable", "error", err)
			source = agent.Unavailable()
			break
		}
		defer grpcClient.Close()
		source, resetter = grpcClient, grpcClient
		checks["agent"] = api.PingFunc(grpcClient.Health)
	case cfg.Agent.ReplayFile != "":
		slog.Info("Replaying recorded agent events", "file", cfg.Agent.ReplayFile)
		source = agent.ReplaySource(cfg.Agent.ReplayFile)
	default:
		slog.Info("Agent disabled (AGENT_ADDR not set)")
		source = agent.Unavailable()
	}

	active := workout.NewMemoryWorkout()
	conv := conversation.New(source, conversation.Options{
		Timeout: cfg.Agent.StreamTimeout,
		Workout: active,
		Logger:  logger,
	})

	// Initialize handlers.
	baseHandler := api.NewHandler(logger)
	goalsHandler := api.NewGoalsHandler(baseHandler, goals.NewExecutor(repo, logger), repo)
	workoutHandler := api.NewWorkoutHandler(baseHandler, active)
	healthHandler := api.NewHealthHandler(checks)
	agentHandler := agent.NewHandler(conv, resetter, cfg, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(middleware.MaxBodyBytes(cfg.MaxRequestBodyBytes))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	goalsHandler.RegisterRoutes(r)
	workoutHandler.RegisterRoutes(r)
	agentHandler.RegisterRoutes(r)

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	// Close the conversation first so open chat streams and watchers end.
	conv.Close()
	agentHandler.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return store.NewRedis(ctx, cfg.RedisAddr)
	default:
		return store.NewSQLite(cfg.DBPath)
	}
}
