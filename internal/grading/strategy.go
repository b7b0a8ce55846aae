package grading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lagonzalez1/micro-grader/internal/domain"
)

// Strategy grades a batch of answers against an assessment build. Objective
// answers are decided locally; short-answer items are delegated to the model
// grader. It owns no persistence: callers commit its results.
type Strategy struct {
	model  ModelGrader
	logger *slog.Logger
}

// NewStrategy creates a grading strategy backed by the given model grader.
func NewStrategy(model ModelGrader, logger *slog.Logger) (*Strategy, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model grader cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{
		model:  model,
		logger: logger.With(slog.String("component", "grading_strategy")),
	}, nil
}

// GradeAnswers grades every answer in the batch. It returns the graded
// results, the model usage records accrued along the way, and an error when
// the batch must fail as a whole. Usage records are valid even on error so
// the caller can ledger the cost of failed invocations.
//
// Any answer referencing a question absent from the build aborts the batch
// with domain.ErrUnknownQuestion rather than silently awarding zero. Any
// model failure aborts the batch with ErrModelGradingFailed; no partial
// subset of results is returned.
func (s *Strategy) GradeAnswers(
	ctx context.Context,
	build *domain.AssessmentBuild,
	answers []domain.AnswerRecord,
	organizationID string,
) ([]domain.GradedResult, []domain.ModelUsageRecord, error) {
	results := make([]domain.GradedResult, 0, len(answers))
	var usage []domain.ModelUsageRecord

	for _, answer := range answers {
		question, err := build.Question(answer.AssessmentID, answer.QuestionID)
		if err != nil {
			return nil, usage, fmt.Errorf(
				"answer %d references assessment %d question %d: %w",
				answer.ID, answer.AssessmentID, answer.QuestionID, err)
		}

		if question.QuestionType == domain.QuestionTypeShortAnswer {
			assessment, err := build.Assessment(answer.AssessmentID)
			if err != nil {
				return nil, usage, fmt.Errorf("answer %d: %w", answer.ID, err)
			}

			result, record, err := s.gradeShortAnswer(ctx, assessment, question, answer, organizationID)
			usage = append(usage, record)
			if err != nil {
				return nil, usage, err
			}
			results = append(results, result)
			continue
		}

		results = append(results, gradeObjective(question, answer))
	}

	return results, usage, nil
}

// gradeShortAnswer prompts the model grader for one free-text answer. The
// returned usage record is valid whether or not grading succeeded.
func (s *Strategy) gradeShortAnswer(
	ctx context.Context,
	assessment domain.Assessment,
	question domain.Question,
	answer domain.AnswerRecord,
	organizationID string,
) (domain.GradedResult, domain.ModelUsageRecord, error) {
	studentText := ""
	if answer.AnswerText != nil {
		studentText = *answer.AnswerText
	}

	prompt := NewGradingPrompt(assessment, question, studentText)
	inputTokens := prompt.InputTokenEstimate()

	record := domain.ModelUsageRecord{
		OrganizationID: organizationID,
		InputTokens:    inputTokens,
		OutputTokens:   0,
		ModelFamily:    s.model.Family(),
		ModelID:        s.model.ModelID(),
		Outcome:        domain.UsageOutcomeFail,
	}

	grade, err := s.model.Grade(ctx, prompt.Text())
	if err != nil {
		s.logger.Error("model grading failed",
			slog.Int64("answer_id", answer.ID),
			slog.Int64("question_id", question.QuestionID),
			slog.String("error", err.Error()))
		return domain.GradedResult{}, record, fmt.Errorf("%w: answer %d: %v",
			ErrModelGradingFailed, answer.ID, err)
	}

	if grade.InputTokens > 0 {
		record.InputTokens = grade.InputTokens
	}
	record.OutputTokens = grade.OutputTokens
	record.Outcome = domain.UsageOutcomeSuccess

	feedback := grade.Feedback
	result := domain.GradedResult{
		AnswerID:     answer.ID,
		StudentID:    answer.StudentID,
		AssessmentID: answer.AssessmentID,
		QuestionID:   question.QuestionID,
		ChoiceID:     nil,
		AnswerText:   answer.AnswerText,
		// Half-credit threshold: strictly more than half the points counts
		// as correct.
		IsCorrect: grade.Score > question.Points/2,
		Points:    grade.Score,
		Feedback:  &feedback,
	}

	return result, record, nil
}

// gradeObjective decides a choice-based answer deterministically: a missing
// choice is unanswered (zero points), a matching choice earns full points,
// anything else earns zero. There is no partial credit for objective items.
func gradeObjective(question domain.Question, answer domain.AnswerRecord) domain.GradedResult {
	result := domain.GradedResult{
		AnswerID:     answer.ID,
		StudentID:    answer.StudentID,
		AssessmentID: answer.AssessmentID,
		QuestionID:   question.QuestionID,
		ChoiceID:     answer.ChoiceID,
		AnswerText:   nil,
		IsCorrect:    false,
		Points:       0,
	}

	if answer.ChoiceID == nil {
		return result
	}

	if *answer.ChoiceID == question.CorrectChoiceID {
		result.IsCorrect = true
		result.Points = question.Points
	}

	return result
}

// AggregateScores folds the batch's graded results into one cumulative score
// per (student, assessment) pair. A student who sat more than one assessment
// in the session yields one row per assessment, never a merged total.
func AggregateScores(results []domain.GradedResult, sessionID int64) []domain.StudentScore {
	type pair struct {
		studentID    int64
		assessmentID int64
	}

	totals := make(map[pair]float64)
	order := make([]pair, 0)
	for _, r := range results {
		k := pair{studentID: r.StudentID, assessmentID: r.AssessmentID}
		if _, ok := totals[k]; !ok {
			order = append(order, k)
		}
		totals[k] += r.Points
	}

	scores := make([]domain.StudentScore, 0, len(order))
	for _, k := range order {
		scores = append(scores, domain.StudentScore{
			StudentID:    k.studentID,
			AssessmentID: k.assessmentID,
			SessionID:    sessionID,
			Score:        totals[k],
		})
	}
	return scores
}
