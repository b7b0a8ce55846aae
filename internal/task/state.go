package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lagonzalez1/micro-grader/internal/domain"
	"github.com/lagonzalez1/micro-grader/internal/platform/logger"
	"github.com/lagonzalez1/micro-grader/internal/store"
)

// MaxTaskAttempts is the delivery ceiling for a grader task. A task resolved
// with more attempts than this is considered poison and evicted together with
// its session artifacts.
const MaxTaskAttempts = 6

// TaskResolver owns the grader task lifecycle: the idempotent resume-or-create
// upsert, the attempt ceiling, and item materialization.
type TaskResolver struct {
	store  store.GraderStore
	logger *slog.Logger
}

// NewTaskResolver creates a TaskResolver with its dependencies.
func NewTaskResolver(graderStore store.GraderStore, log *slog.Logger) (*TaskResolver, error) {
	if graderStore == nil {
		return nil, fmt.Errorf("%w: grader store", ErrNilDependency)
	}
	if log == nil {
		return nil, fmt.Errorf("%w: logger", ErrNilDependency)
	}
	return &TaskResolver{
		store:  graderStore,
		logger: log.With(slog.String("component", "task_resolver")),
	}, nil
}

// ResolveOrCreate upserts the task for (sessionToken, modelID) and enforces
// the attempt ceiling. Redelivery resumes the existing task with its attempts
// counter incremented; a task past the ceiling is evicted and ErrTaskEvicted
// returned so the caller can drop the delivery.
func (r *TaskResolver) ResolveOrCreate(ctx context.Context, sessionToken, modelID string) (*domain.GraderTask, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	task, err := r.store.ResolveOrCreateTask(ctx, sessionToken, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve grader task: %w", err)
	}

	if task.Attempts > MaxTaskAttempts {
		log.Warn("evicting grader task past attempt ceiling",
			slog.Int64("task_id", task.ID),
			slog.Int("attempts", task.Attempts),
			slog.Int("max_attempts", MaxTaskAttempts))
		if err := r.store.DeleteTaskAndSessionArtifacts(ctx, sessionToken); err != nil {
			return nil, fmt.Errorf("failed to evict grader task: %w", err)
		}
		return nil, ErrTaskEvicted
	}

	return task, nil
}

// PendingItems returns the task's items awaiting grading, materializing them
// from the session's answers on first delivery. A task with no items even
// after materialization has nothing to grade; its artifacts are removed and
// ErrNoPendingWork returned.
func (r *TaskResolver) PendingItems(ctx context.Context, task *domain.GraderTask) ([]domain.GraderTaskItem, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	items, err := r.store.ListPendingItems(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}
	if len(items) > 0 {
		return items, nil
	}

	answers, err := r.store.LoadSessionAnswers(ctx, task.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load session answers: %w", err)
	}
	if len(answers) > 0 {
		if err := r.store.MaterializeItems(ctx, answers, task.ModelID, task.ID); err != nil {
			return nil, fmt.Errorf("failed to materialize items: %w", err)
		}
		items, err = r.store.ListPendingItems(ctx, task.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending items: %w", err)
		}
	}

	if len(items) == 0 {
		log.Warn("grader task has no pending work, removing artifacts",
			slog.Int64("task_id", task.ID))
		if err := r.store.DeleteTaskAndSessionArtifacts(ctx, task.SessionToken); err != nil {
			return nil, fmt.Errorf("failed to remove empty task: %w", err)
		}
		return nil, ErrNoPendingWork
	}

	return items, nil
}
