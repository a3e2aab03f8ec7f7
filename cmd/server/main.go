// Jira Pulse - conversational Jira task insight server
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

	"github.com/ashureev/jira-pulse/internal/api"
	"github.com/ashureev/jira-pulse/internal/chat"
	"github.com/ashureev/jira-pulse/internal/config"
	"github.com/ashureev/jira-pulse/internal/identity"
	"github.com/ashureev/jira-pulse/internal/jira"
	"github.com/ashureev/jira-pulse/internal/metrics"
	"github.com/ashureev/jira-pulse/internal/middleware"
	"github.com/ashureev/jira-pulse/internal/narrative"
	"github.com/ashureev/jira-pulse/internal/prompts"
	"github.com/ashureev/jira-pulse/internal/retention"
	"github.com/ashureev/jira-pulse/internal/store"
	"github.com/ashureev/jira-pulse/internal/subject"
	"github.com/ashureev/jira-pulse/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "llm_provider", cfg.LLM.Provider)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	jiraClient := jira.NewClient(cfg.JiraBaseURL(), cfg.Jira.Email, cfg.Jira.APIToken, cfg.Jira.Timeout)
	taskService := metrics.NewTaskService(jiraClient, metrics.NewAggregator(jiraClient, cfg.WorklogWorkers, logger))

	promptStore, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		slog.Error("Failed to load prompts", "error", err)
		os.Exit(1)
	}

	provider, err := narrative.NewProvider(cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM provider", "error", err)
		os.Exit(1)
	}
	generator, err := narrative.NewGenerator(provider, promptStore, cfg.LLM.Timeout, logger)
	if err != nil {
		slog.Error("Failed to initialize narrative generator", "error", err)
		os.Exit(1)
	}
	slog.Info("Narrative generator initialized", "provider", provider.Name())

	chatService := chat.NewService(subject.NewResolver(subject.DefaultRules()...), taskService, generator, repo, logger)

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize handlers.
	conns := chat.NewConnectionRegistry()
	chatHandler := chat.NewHandler(chatService, cfg, conversationLogger, conns)
	defer chatHandler.Close()
	taskHandler := api.NewTaskHandler(taskService)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	chatHandler.RegisterRoutes(r)
	taskHandler.RegisterRoutes(r)

	// Serve embedded chat page (catch-all).
	r.Handle("/*", web.SPAHandler())

	// WriteTimeout stays 0 so streamed answers are not cut off.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start retention sweeper.
	sweeper := retention.NewSweeper(repo, cfg.Session.TTL, conns.CloseConversation, logger)
	if _, err := sweeper.Start(ctx, cfg.Session.SweepSchedule); err != nil {
		slog.Error("Failed to start retention sweeper", "error", err)
		os.Exit(1)
	}

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
