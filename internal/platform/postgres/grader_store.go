// Package postgres provides PostgreSQL implementations of the store
// interfaces.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lagonzalez1/micro-grader/internal/domain"
	"github.com/lagonzalez1/micro-grader/internal/platform/logger"
	"github.com/lagonzalez1/micro-grader/internal/store"
)

// GraderStore implements the store.GraderStore interface using a PostgreSQL
// database as the storage backend.
type GraderStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewGraderStore creates a new PostgreSQL implementation of the GraderStore
// interface. The database handle must be initialized and managed by the
// caller. If logger is nil, a default logger will be used.
func NewGraderStore(db *sql.DB, logger *slog.Logger) *GraderStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GraderStore{
		db:     db,
		logger: logger.With(slog.String("component", "grader_store")),
	}
}

// Ensure GraderStore implements store.GraderStore interface
var _ store.GraderStore = (*GraderStore)(nil)

// ResolveOrCreateTask implements the idempotent resume-or-create upsert for
// the grader task. A fresh insert takes the column default attempts=1, so the
// creating delivery is already counted; a conflict on (session_token,
// model_id) increments the counter and returns the existing row, so
// redelivery never creates a second task.
func (s *GraderStore) ResolveOrCreateTask(ctx context.Context, sessionToken, modelID string) (*domain.GraderTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO assessment_grader_task (session_token, model_id)
		VALUES ($1, $2)
		ON CONFLICT (session_token, model_id)
		DO UPDATE SET attempts = assessment_grader_task.attempts + 1, updated_at = now()
		RETURNING id, status, attempts, updated_at
	`

	task := domain.GraderTask{
		SessionToken: sessionToken,
		ModelID:      modelID,
	}
	err := s.db.QueryRowContext(ctx, query, sessionToken, modelID).
		Scan(&task.ID, &task.Status, &task.Attempts, &task.UpdatedAt)
	if err != nil {
		log.Error("failed to resolve or create grader task",
			slog.String("session_token", sessionToken),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	return &task, nil
}

// ListPendingItems returns the task's items still awaiting grading.
func (s *GraderStore) ListPendingItems(ctx context.Context, taskID int64) ([]domain.GraderTaskItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, item_key, task_id, idempotency_key, status, attempts
		FROM grader_task_item
		WHERE task_id = $1 AND status IN ('PENDING', 'FAILED_RETRYABLE')
	`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		log.Error("failed to list pending items",
			slog.Int64("task_id", taskID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var items []domain.GraderTaskItem
	for rows.Next() {
		var item domain.GraderTaskItem
		if err := rows.Scan(&item.ID, &item.ItemKey, &item.TaskID,
			&item.IdempotencyKey, &item.Status, &item.Attempts); err != nil {
			return nil, MapError(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return items, nil
}

// MaterializeItems creates one pending item per answer. A conflict on
// (task_id, item_key) only refreshes the idempotency key, leaving the
// existing item's status and attempts untouched.
func (s *GraderStore) MaterializeItems(ctx context.Context, answers []domain.AnswerRecord, modelID string, taskID int64) error {
	if len(answers) == 0 {
		return nil
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	args := make([]any, 0, len(answers)*3)
	for _, a := range answers {
		args = append(args, a.ID, taskID, domain.ItemIdempotencyKey(modelID, a.ID))
	}

	query := fmt.Sprintf(`
		INSERT INTO grader_task_item (item_key, task_id, idempotency_key)
		VALUES %s
		ON CONFLICT (task_id, item_key)
		DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
	`, valuesClause(len(answers), 3, 1))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to materialize grader task items",
			slog.Int64("task_id", taskID),
			slog.Int("answer_count", len(answers)),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	return nil
}

// LoadSessionAnswers returns every answer recorded for the session.
func (s *GraderStore) LoadSessionAnswers(ctx context.Context, sessionToken string) ([]domain.AnswerRecord, error) {
	query := `
		SELECT id, assessment_id, student_id, question_id, choice_id, answer_text
		FROM session_answers
		WHERE session_token = $1
	`
	return s.queryAnswers(ctx, query, sessionToken)
}

// LoadAnswersByItemKeys returns the answers referenced by the given item keys.
func (s *GraderStore) LoadAnswersByItemKeys(ctx context.Context, keys []int64) ([]domain.AnswerRecord, error) {
	if len(keys) == 0 {
		return nil, store.ErrAnswersNotFound
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	query := fmt.Sprintf(`
		SELECT id, assessment_id, student_id, question_id, choice_id, answer_text
		FROM session_answers
		WHERE id IN (%s)
	`, placeholders(len(keys), 1))

	return s.queryAnswers(ctx, query, args...)
}

func (s *GraderStore) queryAnswers(ctx context.Context, query string, args ...any) ([]domain.AnswerRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query session answers", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var answers []domain.AnswerRecord
	for rows.Next() {
		var a domain.AnswerRecord
		var choiceID sql.NullInt64
		var answerText sql.NullString
		if err := rows.Scan(&a.ID, &a.AssessmentID, &a.StudentID,
			&a.QuestionID, &choiceID, &answerText); err != nil {
			return nil, MapError(err)
		}
		if choiceID.Valid {
			a.ChoiceID = &choiceID.Int64
		}
		if answerText.Valid {
			a.AnswerText = &answerText.String
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return answers, nil
}

// LoadReferenceData returns the assessments (joined with their subject title)
// and the questions joined with their correct choice for the given
// assessment IDs.
func (s *GraderStore) LoadReferenceData(ctx context.Context, assessmentIDs []int64) ([]domain.Assessment, []domain.Question, error) {
	if len(assessmentIDs) == 0 {
		return nil, nil, store.ErrReferenceDataNotFound
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	args := make([]any, len(assessmentIDs))
	for i, id := range assessmentIDs {
		args[i] = id
	}
	in := placeholders(len(assessmentIDs), 1)

	assessmentQuery := fmt.Sprintf(`
		SELECT ast.id, ast.title, COALESCE(ast.description, ''), ast.max_score,
		       COALESCE(sj.title, '')
		FROM assessments ast
		LEFT JOIN subjects sj ON sj.id = ast.subject_id
		WHERE ast.id IN (%s)
	`, in)

	rows, err := s.db.QueryContext(ctx, assessmentQuery, args...)
	if err != nil {
		log.Error("failed to load assessments", slog.String("error", err.Error()))
		return nil, nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var assessments []domain.Assessment
	for rows.Next() {
		var a domain.Assessment
		if err := rows.Scan(&a.ID, &a.Title, &a.Description, &a.MaxScore, &a.SubjectTitle); err != nil {
			return nil, nil, MapError(err)
		}
		assessments = append(assessments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, MapError(err)
	}

	questionQuery := fmt.Sprintf(`
		SELECT q.assessment_id, q.id, q.question_text, c.id,
		       COALESCE(q.answer_text, ''), q.points, q.question_type
		FROM questions q
		LEFT JOIN choices c ON c.question_id = q.id AND c.is_correct = TRUE
		WHERE q.assessment_id IN (%s)
		ORDER BY q.assessment_id, q.id
	`, in)

	qrows, err := s.db.QueryContext(ctx, questionQuery, args...)
	if err != nil {
		log.Error("failed to load questions", slog.String("error", err.Error()))
		return nil, nil, MapError(err)
	}
	defer func() { _ = qrows.Close() }()

	var questions []domain.Question
	for qrows.Next() {
		var q domain.Question
		var correctChoice sql.NullInt64
		if err := qrows.Scan(&q.AssessmentID, &q.QuestionID, &q.QuestionText,
			&correctChoice, &q.AnswerText, &q.Points, &q.QuestionType); err != nil {
			return nil, nil, MapError(err)
		}
		if correctChoice.Valid {
			q.CorrectChoiceID = correctChoice.Int64
		}
		questions = append(questions, q)
	}
	if err := qrows.Err(); err != nil {
		return nil, nil, MapError(err)
	}

	return assessments, questions, nil
}

// EnsureStudentRows upserts one zero-score row per distinct (student,
// assessment) pair so the commit has rows to attach answers and scores to.
func (s *GraderStore) EnsureStudentRows(ctx context.Context, sessionID int64, answers []domain.AnswerRecord) error {
	if len(answers) == 0 {
		return nil
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	type pair struct{ student, assessment int64 }
	seen := make(map[pair]struct{}, len(answers))
	args := make([]any, 0)
	count := 0
	for _, a := range answers {
		p := pair{a.StudentID, a.AssessmentID}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		args = append(args, sessionID, a.StudentID, 0, a.AssessmentID)
		count++
	}

	query := fmt.Sprintf(`
		INSERT INTO assessments_students (session_id, student_id, score, assessment_id)
		VALUES %s
		ON CONFLICT (student_id, assessment_id, session_id)
		DO UPDATE SET score = EXCLUDED.score
	`, valuesClause(count, 4, 1))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to ensure student rows",
			slog.Int64("session_id", sessionID),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	return nil
}

// LoadStudentTaskRows returns the session's per-student score rows.
func (s *GraderStore) LoadStudentTaskRows(ctx context.Context, sessionID int64) ([]domain.StudentTaskRow, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, student_id, assessment_id
		FROM assessments_students
		WHERE session_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		log.Error("failed to load student task rows",
			slog.Int64("session_id", sessionID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var result []domain.StudentTaskRow
	for rows.Next() {
		var r domain.StudentTaskRow
		if err := rows.Scan(&r.ID, &r.StudentID, &r.AssessmentID); err != nil {
			return nil, MapError(err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return result, nil
}

// CommitBatch applies the whole graded batch inside one transaction, in the
// fixed order: answers, item statuses, task completion, score aggregates.
// Each stage's affected-row count is checked against the expected count; a
// shortfall means a concurrent mutation or missing row, and the transaction
// rolls back with store.ErrCommitIncomplete so redelivery can retry cleanly.
func (s *GraderStore) CommitBatch(ctx context.Context, params store.CommitBatchParams) (*store.CommitBatchResult, error) {
	if len(params.Answers) == 0 {
		return nil, fmt.Errorf("%w: empty answer batch", store.ErrInvalidEntity)
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	var result store.CommitBatchResult
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		answersUpserted, err := upsertAnswers(ctx, tx, params.Answers)
		if err != nil {
			return err
		}
		if answersUpserted != len(params.Answers) {
			return fmt.Errorf("%w: answers stage wrote %d of %d rows",
				store.ErrCommitIncomplete, answersUpserted, len(params.Answers))
		}
		result.AnswersUpserted = answersUpserted

		itemsUpdated, err := completeItems(ctx, tx, params.TaskID, params.Items)
		if err != nil {
			return err
		}
		if itemsUpdated != len(params.Items) {
			return fmt.Errorf("%w: item stage updated %d of %d rows",
				store.ErrCommitIncomplete, itemsUpdated, len(params.Items))
		}
		result.ItemsUpdated = itemsUpdated

		taskUpdated, err := completeTask(ctx, tx, params.TaskID)
		if err != nil {
			return err
		}
		if taskUpdated != 1 {
			return fmt.Errorf("%w: task stage updated %d of 1 rows",
				store.ErrCommitIncomplete, taskUpdated)
		}
		result.TaskUpdated = taskUpdated

		scoresUpserted, err := upsertScores(ctx, tx, params.Scores)
		if err != nil {
			return err
		}
		if scoresUpserted != len(params.Scores) {
			return fmt.Errorf("%w: score stage wrote %d of %d rows",
				store.ErrCommitIncomplete, scoresUpserted, len(params.Scores))
		}
		result.ScoresUpserted = scoresUpserted

		return nil
	})
	if err != nil {
		log.Error("batch commit failed",
			slog.Int64("task_id", params.TaskID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	log.Info("batch committed",
		slog.Int64("task_id", params.TaskID),
		slog.Int("answers", result.AnswersUpserted),
		slog.Int("items", result.ItemsUpdated),
		slog.Int("scores", result.ScoresUpserted))
	return &result, nil
}

func upsertAnswers(ctx context.Context, tx store.DBTX, answers []store.AnswerUpsert) (int, error) {
	args := make([]any, 0, len(answers)*7)
	for _, a := range answers {
		args = append(args, a.StudentRowID, a.QuestionID, a.ChoiceID,
			a.AnswerText, a.IsCorrect, a.Feedback, a.Points)
	}

	query := fmt.Sprintf(`
		INSERT INTO assessment_answers
			(assessment_student_id, question_id, choice_id, answer_text, is_correct, feedback, points)
		VALUES %s
		ON CONFLICT (assessment_student_id, question_id) DO UPDATE SET
			choice_id   = EXCLUDED.choice_id,
			answer_text = EXCLUDED.answer_text,
			is_correct  = EXCLUDED.is_correct,
			feedback    = EXCLUDED.feedback,
			points      = EXCLUDED.points
	`, valuesClause(len(answers), 7, 1))

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func completeItems(ctx context.Context, tx store.DBTX, taskID int64, items []store.ItemCompletion) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(items)*2+1)
	var values strings.Builder
	for i, item := range items {
		if i > 0 {
			values.WriteString(", ")
		}
		// Explicit casts on the first row type the whole VALUES list.
		if i == 0 {
			fmt.Fprintf(&values, "($%d::text, $%d::bigint)", i*2+1, i*2+2)
		} else {
			fmt.Fprintf(&values, "($%d, $%d)", i*2+1, i*2+2)
		}
		args = append(args, string(item.Status), item.ItemKey)
	}
	args = append(args, taskID)

	query := fmt.Sprintf(`
		UPDATE grader_task_item AS g
		SET status = v.status,
		    attempts = g.attempts + 1,
		    updated_at = now()
		FROM (VALUES %s) AS v(status, item_key)
		WHERE g.item_key = v.item_key AND g.task_id = $%d
	`, values.String(), len(items)*2+1)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func completeTask(ctx context.Context, tx store.DBTX, taskID int64) (int, error) {
	query := `
		UPDATE assessment_grader_task
		SET status = $1, attempts = attempts + 1, updated_at = now()
		WHERE id = $2
	`
	res, err := tx.ExecContext(ctx, query, string(domain.TaskStatusCompleted), taskID)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func upsertScores(ctx context.Context, tx store.DBTX, scores []domain.StudentScore) (int, error) {
	if len(scores) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(scores)*4)
	for _, sc := range scores {
		args = append(args, sc.StudentID, sc.AssessmentID, sc.SessionID, sc.Score)
	}

	query := fmt.Sprintf(`
		INSERT INTO assessments_students (student_id, assessment_id, session_id, score)
		VALUES %s
		ON CONFLICT (student_id, assessment_id, session_id)
		DO UPDATE SET score = EXCLUDED.score
	`, valuesClause(len(scores), 4, 1))

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// AppendUsageLedger appends one row per model invocation to the usage ledger.
func (s *GraderStore) AppendUsageLedger(ctx context.Context, records []domain.ModelUsageRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	args := make([]any, 0, len(records)*6)
	for _, r := range records {
		args = append(args, r.OrganizationID, r.InputTokens, r.OutputTokens,
			r.ModelFamily, r.ModelID, string(r.Outcome))
	}

	query := fmt.Sprintf(`
		INSERT INTO llm_usage (organization_id, input_tokens, output_tokens, model, provider_model_id, status)
		VALUES %s
	`, valuesClause(len(records), 6, 1))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to append usage ledger", slog.String("error", err.Error()))
		return 0, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteTaskAndSessionArtifacts removes the session's grader task (items
// cascade via foreign key) and the session rows themselves.
func (s *GraderStore) DeleteTaskAndSessionArtifacts(ctx context.Context, sessionToken string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM assessment_grader_task WHERE session_token = $1`, sessionToken); err != nil {
		log.Error("failed to delete grader task",
			slog.String("session_token", sessionToken),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", store.ErrDeleteFailed, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM assessment_sessions WHERE session_token = $1`, sessionToken); err != nil {
		log.Error("failed to delete assessment session",
			slog.String("session_token", sessionToken),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", store.ErrDeleteFailed, err)
	}

	return nil
}

// placeholders renders "$start, $start+1, ..." for n parameters.
func placeholders(n, start int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

// valuesClause renders a multi-row VALUES parameter list: rows of cols
// placeholders starting at $start.
func valuesClause(rows, cols, start int) string {
	var b strings.Builder
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", start+r*cols+c)
		}
		b.WriteString(")")
	}
	return b.String()
}
