// Package task implements the grading pipeline: the grader task lifecycle and
// the per-delivery orchestration from queue message to batch commit.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lagonzalez1/micro-grader/internal/domain"
	"github.com/lagonzalez1/micro-grader/internal/grading"
	"github.com/lagonzalez1/micro-grader/internal/platform/logger"
	"github.com/lagonzalez1/micro-grader/internal/store"
)

// GradeRequest is the payload of one grading delivery from the queue.
type GradeRequest struct {
	SessionToken   string `json:"session_token"`
	SessionID      int64  `json:"session_id"`
	OrganizationID string `json:"organization_id"`
}

// AnswerGrader grades a batch of answers against an assessment build. The
// grading strategy satisfies this; tests substitute a mock.
type AnswerGrader interface {
	GradeAnswers(
		ctx context.Context,
		build *domain.AssessmentBuild,
		answers []domain.AnswerRecord,
		organizationID string,
	) ([]domain.GradedResult, []domain.ModelUsageRecord, error)
}

// Orchestrator drives one grading delivery end to end: resolve the task,
// collect pending items, grade them, ledger model usage, and commit the batch
// atomically. Its Process method never returns an error; every failure maps
// to a queue outcome instead.
type Orchestrator struct {
	resolver *TaskResolver
	store    store.GraderStore
	grader   AnswerGrader
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator with its dependencies.
func NewOrchestrator(resolver *TaskResolver, graderStore store.GraderStore, grader AnswerGrader, log *slog.Logger) (*Orchestrator, error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: task resolver", ErrNilDependency)
	}
	if graderStore == nil {
		return nil, fmt.Errorf("%w: grader store", ErrNilDependency)
	}
	if grader == nil {
		return nil, fmt.Errorf("%w: answer grader", ErrNilDependency)
	}
	if log == nil {
		return nil, fmt.Errorf("%w: logger", ErrNilDependency)
	}
	return &Orchestrator{
		resolver: resolver,
		store:    graderStore,
		grader:   grader,
		logger:   log.With(slog.String("component", "grading_pipeline")),
	}, nil
}

// Process handles one grading delivery and returns the queue outcome.
//
// The pipeline is safe under at-least-once delivery: the task upsert and item
// materialization are idempotent, so a redelivered message resumes exactly the
// items that have not committed yet. Transient failures (store errors, missing
// reference data, model failures, commit conflicts) return OutcomeRetry so the
// broker redelivers; the attempt ceiling eventually evicts a message that can
// never succeed.
func (o *Orchestrator) Process(ctx context.Context, req GradeRequest, modelID string) Outcome {
	log := logger.FromContextOrDefault(ctx, o.logger).With(
		slog.String("session_token", req.SessionToken),
		slog.String("model_id", modelID))
	ctx = logger.WithContext(ctx, log)

	task, err := o.resolver.ResolveOrCreate(ctx, req.SessionToken, modelID)
	if err != nil {
		if errors.Is(err, ErrTaskEvicted) {
			return OutcomeDrop
		}
		log.Error("failed to resolve grader task", slog.String("error", err.Error()))
		return OutcomeRetry
	}
	log = log.With(slog.Int64("task_id", task.ID))

	if task.Status == domain.TaskStatusCompleted {
		log.Info("grader task already completed, acknowledging redelivery")
		return OutcomeAck
	}

	items, err := o.resolver.PendingItems(ctx, task)
	if err != nil {
		if errors.Is(err, ErrNoPendingWork) {
			return OutcomeDrop
		}
		log.Error("failed to collect pending items", slog.String("error", err.Error()))
		return OutcomeRetry
	}

	keys := make([]int64, len(items))
	for i, item := range items {
		keys[i] = item.ItemKey
	}

	answers, err := o.store.LoadAnswersByItemKeys(ctx, keys)
	if err != nil {
		log.Error("failed to load answers for pending items", slog.String("error", err.Error()))
		return OutcomeRetry
	}

	build, err := o.loadBuild(ctx, answers)
	if err != nil {
		log.Error("failed to load reference data", slog.String("error", err.Error()))
		return OutcomeRetry
	}

	if err := o.store.EnsureStudentRows(ctx, req.SessionID, answers); err != nil {
		log.Error("failed to ensure student rows", slog.String("error", err.Error()))
		return OutcomeRetry
	}
	studentRows, err := o.store.LoadStudentTaskRows(ctx, req.SessionID)
	if err != nil {
		log.Error("failed to load student rows", slog.String("error", err.Error()))
		return OutcomeRetry
	}

	results, usage, gradeErr := o.grader.GradeAnswers(ctx, build, answers, req.OrganizationID)

	// Ledger model usage no matter how grading went; failed invocations cost
	// tokens too.
	if len(usage) > 0 {
		if _, err := o.store.AppendUsageLedger(ctx, usage); err != nil {
			log.Error("failed to append usage ledger", slog.String("error", err.Error()))
		}
	}

	if gradeErr != nil {
		log.Error("batch grading failed", slog.String("error", gradeErr.Error()))
		return OutcomeRetry
	}

	params, err := buildCommitParams(task.ID, results, studentRows,
		grading.AggregateScores(results, req.SessionID))
	if err != nil {
		log.Error("failed to assemble batch commit", slog.String("error", err.Error()))
		return OutcomeRetry
	}

	if _, err := o.store.CommitBatch(ctx, params); err != nil {
		log.Error("batch commit failed", slog.String("error", err.Error()))
		return OutcomeRetry
	}

	log.Info("grading delivery completed",
		slog.Int("items", len(items)),
		slog.Int("results", len(results)))
	return OutcomeAck
}

// loadBuild fetches and indexes the reference data for the batch's
// assessments. Missing reference data is a transient fault for the caller.
func (o *Orchestrator) loadBuild(ctx context.Context, answers []domain.AnswerRecord) (*domain.AssessmentBuild, error) {
	assessments, questions, err := o.store.LoadReferenceData(ctx, domain.AssessmentIDs(answers))
	if err != nil {
		return nil, err
	}
	return domain.NewAssessmentBuild(assessments, questions)
}

// buildCommitParams maps graded results onto their pre-materialized student
// rows and assembles the batch commit. Every result must resolve to a student
// row; a miss means EnsureStudentRows did not run for this batch.
func buildCommitParams(
	taskID int64,
	results []domain.GradedResult,
	studentRows []domain.StudentTaskRow,
	scores []domain.StudentScore,
) (store.CommitBatchParams, error) {
	type rowKey struct{ student, assessment int64 }
	rowIDs := make(map[rowKey]int64, len(studentRows))
	for _, row := range studentRows {
		rowIDs[rowKey{row.StudentID, row.AssessmentID}] = row.ID
	}

	upserts := make([]store.AnswerUpsert, 0, len(results))
	completions := make([]store.ItemCompletion, 0, len(results))
	for _, r := range results {
		rowID, ok := rowIDs[rowKey{r.StudentID, r.AssessmentID}]
		if !ok {
			return store.CommitBatchParams{}, fmt.Errorf(
				"no student row for student %d assessment %d", r.StudentID, r.AssessmentID)
		}

		upserts = append(upserts, store.AnswerUpsert{
			StudentRowID: rowID,
			QuestionID:   r.QuestionID,
			ChoiceID:     r.ChoiceID,
			AnswerText:   r.AnswerText,
			IsCorrect:    r.IsCorrect,
			Feedback:     r.Feedback,
			Points:       r.Points,
		})
		completions = append(completions, store.ItemCompletion{
			ItemKey: r.AnswerID,
			Status:  domain.ItemStatusCompleted,
		})
	}

	return store.CommitBatchParams{
		TaskID:  taskID,
		Answers: upserts,
		Items:   completions,
		Scores:  scores,
	}, nil
}
