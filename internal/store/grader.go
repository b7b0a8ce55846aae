package store

import (
	"context"

	"github.com/lagonzalez1/micro-grader/internal/domain"
)

// AnswerUpsert is one graded answer row for the atomic commit, keyed by the
// pre-materialized student task row rather than the raw session answer.
type AnswerUpsert struct {
	StudentRowID int64
	QuestionID   int64
	ChoiceID     *int64
	AnswerText   *string
	IsCorrect    bool
	Feedback     *string
	Points       float64
}

// ItemCompletion marks one grader task item's terminal status for the commit.
type ItemCompletion struct {
	ItemKey int64
	Status  domain.ItemStatus
}

// CommitBatchParams carries all mutations of one graded batch. The store must
// apply them in order (answers, item statuses, task completion, scores) inside
// a single transaction.
type CommitBatchParams struct {
	TaskID  int64
	Answers []AnswerUpsert
	Items   []ItemCompletion
	Scores  []domain.StudentScore
}

// CommitBatchResult reports per-stage affected-row counts from a successful
// batch commit.
type CommitBatchResult struct {
	AnswersUpserted int
	ItemsUpdated    int
	TaskUpdated     int
	ScoresUpserted  int
}

// GraderStore is the repository port for the grading pipeline. Implementations
// must make ResolveOrCreateTask and MaterializeItems idempotent via upserts on
// the documented unique keys, and must execute CommitBatch as a single
// all-or-nothing transaction.
type GraderStore interface {
	// ResolveOrCreateTask upserts the grader task for (sessionToken, modelID).
	// A freshly created task reports attempts=1, counting the delivery that
	// created it; on conflict the existing row's attempts counter is
	// incremented and the current row returned. It fails only on a store
	// error, never because the task already exists.
	ResolveOrCreateTask(ctx context.Context, sessionToken, modelID string) (*domain.GraderTask, error)

	// ListPendingItems returns the task's items in PENDING or
	// FAILED_RETRYABLE status.
	ListPendingItems(ctx context.Context, taskID int64) ([]domain.GraderTaskItem, error)

	// MaterializeItems creates one item per answer, idempotent on
	// (task ID, item key); conflicts refresh the idempotency key only.
	MaterializeItems(ctx context.Context, answers []domain.AnswerRecord, modelID string, taskID int64) error

	// LoadSessionAnswers returns every answer recorded for the session.
	LoadSessionAnswers(ctx context.Context, sessionToken string) ([]domain.AnswerRecord, error)

	// LoadAnswersByItemKeys returns the answers referenced by the given item
	// keys (answer row IDs).
	LoadAnswersByItemKeys(ctx context.Context, keys []int64) ([]domain.AnswerRecord, error)

	// LoadReferenceData returns the assessments and their questions joined
	// with the correct choice for the given assessment IDs.
	LoadReferenceData(ctx context.Context, assessmentIDs []int64) ([]domain.Assessment, []domain.Question, error)

	// EnsureStudentRows upserts one zero-score row per (student, assessment)
	// pair in the answers, idempotent on (student, assessment, session).
	EnsureStudentRows(ctx context.Context, sessionID int64, answers []domain.AnswerRecord) error

	// LoadStudentTaskRows returns the session's per-student score rows.
	LoadStudentTaskRows(ctx context.Context, sessionID int64) ([]domain.StudentTaskRow, error)

	// CommitBatch applies all batch mutations in one transaction, in the
	// fixed order answers, item statuses, task completion, score aggregates.
	// A stage affecting fewer rows than expected aborts with
	// ErrCommitIncomplete and nothing is persisted.
	CommitBatch(ctx context.Context, params CommitBatchParams) (*CommitBatchResult, error)

	// AppendUsageLedger appends model usage records and returns the number
	// of rows written. It is called regardless of grading outcome.
	AppendUsageLedger(ctx context.Context, records []domain.ModelUsageRecord) (int, error)

	// DeleteTaskAndSessionArtifacts removes the session's grader task (items
	// cascade) and the session rows themselves. Used for poison messages so
	// no orphan rows leak.
	DeleteTaskAndSessionArtifacts(ctx context.Context, sessionToken string) error
}
