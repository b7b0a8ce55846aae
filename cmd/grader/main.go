// Command grader runs the assessment grading worker: it consumes grading
// requests from RabbitMQ, grades each session's answers against its
// assessments using deterministic rules and an LLM, and commits the results
// to PostgreSQL.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lagonzalez1/micro-grader/internal/config"
	"github.com/lagonzalez1/micro-grader/internal/grading"
	"github.com/lagonzalez1/micro-grader/internal/platform/bedrock"
	"github.com/lagonzalez1/micro-grader/internal/platform/gemini"
	"github.com/lagonzalez1/micro-grader/internal/platform/logger"
	"github.com/lagonzalez1/micro-grader/internal/platform/postgres"
	"github.com/lagonzalez1/micro-grader/internal/queue"
	"github.com/lagonzalez1/micro-grader/internal/task"
)

func main() {
	if err := run(); err != nil {
		slog.Error("grader exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server.LogLevel)
	log.Info("starting grader",
		slog.String("provider", cfg.LLM.Provider),
		slog.String("model_id", cfg.LLM.ModelID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := setupDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	model, err := setupModelGrader(ctx, cfg.LLM, log)
	if err != nil {
		return err
	}

	strategy, err := grading.NewStrategy(model, log)
	if err != nil {
		return fmt.Errorf("failed to create grading strategy: %w", err)
	}

	graderStore := postgres.NewGraderStore(db, log)
	resolver, err := task.NewTaskResolver(graderStore, log)
	if err != nil {
		return fmt.Errorf("failed to create task resolver: %w", err)
	}
	orchestrator, err := task.NewOrchestrator(resolver, graderStore, strategy, log)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	consumer, err := queue.NewConsumer(cfg.Queue, cfg.LLM.ModelID, orchestrator, log)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	if err := consumer.Connect(); err != nil {
		return fmt.Errorf("failed to connect consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	health := startHealthServer(cfg.Server.HealthPort, db, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = health.Shutdown(shutdownCtx)
	}()

	err = consumer.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("shutdown signal received, stopping grader")
		return nil
	}
	return err
}

// setupDatabase opens the PostgreSQL pool, verifies connectivity, and applies
// migrations when configured to do so.
func setupDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Database.MigrateOnStart {
		log.Info("applying database migrations")
		if err := postgres.MigrateUp(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return db, nil
}

// setupModelGrader selects the LLM adapter for the configured provider.
func setupModelGrader(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (grading.ModelGrader, error) {
	switch cfg.Provider {
	case gemini.Family:
		return gemini.NewGrader(ctx, log, cfg)
	case bedrock.Family:
		return bedrock.NewGrader(ctx, log, cfg)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

func startHealthServer(port int, db *sql.DB, log *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newHealthRouter(db),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("health server listening", slog.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server failed", slog.String("error", err.Error()))
		}
	}()
	return srv
}
