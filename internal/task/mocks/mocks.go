// Package mocks provides test doubles for the grading pipeline's
// dependencies. Each mock exposes Func fields so tests can override exactly
// the behavior they exercise.
package mocks

import (
	"context"

	"github.com/lagonzalez1/micro-grader/internal/domain"
	"github.com/lagonzalez1/micro-grader/internal/store"
)

// MockGraderStore implements store.GraderStore for testing.
type MockGraderStore struct {
	ResolveOrCreateTaskFunc           func(ctx context.Context, sessionToken, modelID string) (*domain.GraderTask, error)
	ListPendingItemsFunc              func(ctx context.Context, taskID int64) ([]domain.GraderTaskItem, error)
	MaterializeItemsFunc              func(ctx context.Context, answers []domain.AnswerRecord, modelID string, taskID int64) error
	LoadSessionAnswersFunc            func(ctx context.Context, sessionToken string) ([]domain.AnswerRecord, error)
	LoadAnswersByItemKeysFunc         func(ctx context.Context, keys []int64) ([]domain.AnswerRecord, error)
	LoadReferenceDataFunc             func(ctx context.Context, assessmentIDs []int64) ([]domain.Assessment, []domain.Question, error)
	EnsureStudentRowsFunc             func(ctx context.Context, sessionID int64, answers []domain.AnswerRecord) error
	LoadStudentTaskRowsFunc           func(ctx context.Context, sessionID int64) ([]domain.StudentTaskRow, error)
	CommitBatchFunc                   func(ctx context.Context, params store.CommitBatchParams) (*store.CommitBatchResult, error)
	AppendUsageLedgerFunc             func(ctx context.Context, records []domain.ModelUsageRecord) (int, error)
	DeleteTaskAndSessionArtifactsFunc func(ctx context.Context, sessionToken string) error
}

// Ensure MockGraderStore implements store.GraderStore
var _ store.GraderStore = (*MockGraderStore)(nil)

func (m *MockGraderStore) ResolveOrCreateTask(ctx context.Context, sessionToken, modelID string) (*domain.GraderTask, error) {
	if m.ResolveOrCreateTaskFunc != nil {
		return m.ResolveOrCreateTaskFunc(ctx, sessionToken, modelID)
	}
	return &domain.GraderTask{
		ID:           1,
		SessionToken: sessionToken,
		ModelID:      modelID,
		Status:       domain.TaskStatusPending,
		Attempts:     1,
	}, nil
}

func (m *MockGraderStore) ListPendingItems(ctx context.Context, taskID int64) ([]domain.GraderTaskItem, error) {
	if m.ListPendingItemsFunc != nil {
		return m.ListPendingItemsFunc(ctx, taskID)
	}
	return nil, nil
}

func (m *MockGraderStore) MaterializeItems(ctx context.Context, answers []domain.AnswerRecord, modelID string, taskID int64) error {
	if m.MaterializeItemsFunc != nil {
		return m.MaterializeItemsFunc(ctx, answers, modelID, taskID)
	}
	return nil
}

func (m *MockGraderStore) LoadSessionAnswers(ctx context.Context, sessionToken string) ([]domain.AnswerRecord, error) {
	if m.LoadSessionAnswersFunc != nil {
		return m.LoadSessionAnswersFunc(ctx, sessionToken)
	}
	return nil, nil
}

func (m *MockGraderStore) LoadAnswersByItemKeys(ctx context.Context, keys []int64) ([]domain.AnswerRecord, error) {
	if m.LoadAnswersByItemKeysFunc != nil {
		return m.LoadAnswersByItemKeysFunc(ctx, keys)
	}
	return nil, store.ErrAnswersNotFound
}

func (m *MockGraderStore) LoadReferenceData(ctx context.Context, assessmentIDs []int64) ([]domain.Assessment, []domain.Question, error) {
	if m.LoadReferenceDataFunc != nil {
		return m.LoadReferenceDataFunc(ctx, assessmentIDs)
	}
	return nil, nil, store.ErrReferenceDataNotFound
}

func (m *MockGraderStore) EnsureStudentRows(ctx context.Context, sessionID int64, answers []domain.AnswerRecord) error {
	if m.EnsureStudentRowsFunc != nil {
		return m.EnsureStudentRowsFunc(ctx, sessionID, answers)
	}
	return nil
}

func (m *MockGraderStore) LoadStudentTaskRows(ctx context.Context, sessionID int64) ([]domain.StudentTaskRow, error) {
	if m.LoadStudentTaskRowsFunc != nil {
		return m.LoadStudentTaskRowsFunc(ctx, sessionID)
	}
	return nil, nil
}

func (m *MockGraderStore) CommitBatch(ctx context.Context, params store.CommitBatchParams) (*store.CommitBatchResult, error) {
	if m.CommitBatchFunc != nil {
		return m.CommitBatchFunc(ctx, params)
	}
	return &store.CommitBatchResult{
		AnswersUpserted: len(params.Answers),
		ItemsUpdated:    len(params.Items),
		TaskUpdated:     1,
		ScoresUpserted:  len(params.Scores),
	}, nil
}

func (m *MockGraderStore) AppendUsageLedger(ctx context.Context, records []domain.ModelUsageRecord) (int, error) {
	if m.AppendUsageLedgerFunc != nil {
		return m.AppendUsageLedgerFunc(ctx, records)
	}
	return len(records), nil
}

func (m *MockGraderStore) DeleteTaskAndSessionArtifacts(ctx context.Context, sessionToken string) error {
	if m.DeleteTaskAndSessionArtifactsFunc != nil {
		return m.DeleteTaskAndSessionArtifactsFunc(ctx, sessionToken)
	}
	return nil
}

// MockAnswerGrader implements the pipeline's AnswerGrader port for testing.
type MockAnswerGrader struct {
	GradeAnswersFunc func(ctx context.Context, build *domain.AssessmentBuild, answers []domain.AnswerRecord, organizationID string) ([]domain.GradedResult, []domain.ModelUsageRecord, error)
}

func (m *MockAnswerGrader) GradeAnswers(
	ctx context.Context,
	build *domain.AssessmentBuild,
	answers []domain.AnswerRecord,
	organizationID string,
) ([]domain.GradedResult, []domain.ModelUsageRecord, error) {
	if m.GradeAnswersFunc != nil {
		return m.GradeAnswersFunc(ctx, build, answers, organizationID)
	}
	results := make([]domain.GradedResult, 0, len(answers))
	for _, a := range answers {
		results = append(results, domain.GradedResult{
			AnswerID:     a.ID,
			StudentID:    a.StudentID,
			AssessmentID: a.AssessmentID,
			QuestionID:   a.QuestionID,
			ChoiceID:     a.ChoiceID,
			IsCorrect:    true,
			Points:       1,
		})
	}
	return results, nil, nil
}
