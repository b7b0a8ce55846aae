package domain

import (
	"errors"
	"testing"
)

func buildFixture(t *testing.T) *AssessmentBuild {
	t.Helper()
	build, err := NewAssessmentBuild(
		[]Assessment{
			{ID: 100, Title: "Biology Midterm", MaxScore: 20},
			{ID: 200, Title: "Chemistry Quiz", MaxScore: 10},
		},
		[]Question{
			{AssessmentID: 100, QuestionID: 1, QuestionText: "Pick one", CorrectChoiceID: 7, Points: 10, QuestionType: QuestionTypeMultipleChoice},
			{AssessmentID: 100, QuestionID: 2, QuestionText: "Explain", AnswerText: "because", Points: 10, QuestionType: QuestionTypeShortAnswer},
			// Question for an assessment outside the build is skipped.
			{AssessmentID: 999, QuestionID: 3, QuestionText: "Orphan", Points: 5},
		},
	)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return build
}

func TestNewAssessmentBuild(t *testing.T) {
	t.Parallel()

	if _, err := NewAssessmentBuild(nil, nil); !errors.Is(err, ErrNoAssessments) {
		t.Errorf("Expected error %v, got %v", ErrNoAssessments, err)
	}

	build := buildFixture(t)
	if build == nil {
		t.Fatal("Expected non-nil build")
	}
}

func TestAssessmentBuildLookups(t *testing.T) {
	t.Parallel()

	build := buildFixture(t)

	a, err := build.Assessment(100)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if a.Title != "Biology Midterm" {
		t.Errorf("Expected Biology Midterm, got %s", a.Title)
	}

	if _, err := build.Assessment(999); !errors.Is(err, ErrUnknownAssessment) {
		t.Errorf("Expected error %v, got %v", ErrUnknownAssessment, err)
	}

	q, err := build.Question(100, 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if q.QuestionType != QuestionTypeShortAnswer {
		t.Errorf("Expected short_answer, got %s", q.QuestionType)
	}

	if _, err := build.Question(100, 42); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("Expected error %v, got %v", ErrUnknownQuestion, err)
	}

	if _, err := build.Question(999, 3); !errors.Is(err, ErrUnknownAssessment) {
		t.Errorf("Expected error %v, got %v", ErrUnknownAssessment, err)
	}
}

func TestAssessmentIDs(t *testing.T) {
	t.Parallel()

	answers := []AnswerRecord{
		{ID: 1, AssessmentID: 200},
		{ID: 2, AssessmentID: 100},
		{ID: 3, AssessmentID: 200},
		{ID: 4, AssessmentID: 100},
	}

	ids := AssessmentIDs(answers)
	if len(ids) != 2 {
		t.Fatalf("Expected 2 distinct IDs, got %d", len(ids))
	}
	if ids[0] != 200 || ids[1] != 100 {
		t.Errorf("Expected first-seen order [200 100], got %v", ids)
	}

	if got := AssessmentIDs(nil); len(got) != 0 {
		t.Errorf("Expected empty slice, got %v", got)
	}
}
