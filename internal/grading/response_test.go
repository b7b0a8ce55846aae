package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lagonzalez1/micro-grader/internal/domain"
)

func TestParseModelGrade(t *testing.T) {
	t.Parallel()

	t.Run("parses bare JSON object", func(t *testing.T) {
		grade, err := ParseModelGrade(`{"score": 7.5, "feedback": "solid answer"}`)
		require.NoError(t, err)
		assert.InDelta(t, 7.5, grade.Score, 0.0001)
		assert.Equal(t, "solid answer", grade.Feedback)
	})

	t.Run("parses object wrapped in markdown fences", func(t *testing.T) {
		text := "```json\n{\"score\": 3, \"feedback\": \"partially right\"}\n```"
		grade, err := ParseModelGrade(text)
		require.NoError(t, err)
		assert.InDelta(t, 3.0, grade.Score, 0.0001)
		assert.Equal(t, "partially right", grade.Feedback)
	})

	t.Run("parses object surrounded by prose", func(t *testing.T) {
		text := "Here is my grading:\n{\"score\": 0, \"feedback\": \"no answer given\"}\nLet me know if you need more."
		grade, err := ParseModelGrade(text)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, grade.Score, 0.0001)
	})

	t.Run("accepts empty feedback string", func(t *testing.T) {
		grade, err := ParseModelGrade(`{"score": 1, "feedback": ""}`)
		require.NoError(t, err)
		assert.Equal(t, "", grade.Feedback)
	})

	t.Run("rejects response without JSON object", func(t *testing.T) {
		_, err := ParseModelGrade("I cannot grade this response.")
		assert.ErrorIs(t, err, ErrInvalidModelResponse)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		_, err := ParseModelGrade(`{"score": oops}`)
		assert.ErrorIs(t, err, ErrInvalidModelResponse)
	})

	t.Run("rejects missing score", func(t *testing.T) {
		_, err := ParseModelGrade(`{"feedback": "nice"}`)
		assert.ErrorIs(t, err, ErrInvalidModelResponse)
	})

	t.Run("rejects missing feedback", func(t *testing.T) {
		_, err := ParseModelGrade(`{"score": 5}`)
		assert.ErrorIs(t, err, ErrInvalidModelResponse)
	})
}

func TestApproxTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		divisor int
		want    int
	}{
		{name: "empty text", text: "", divisor: 3, want: 0},
		{name: "whitespace is ignored", text: "a b\tc\nd", divisor: 3, want: 2},
		{name: "divisor four", text: "abcdefghij", divisor: 4, want: 3},
		{name: "invalid divisor falls back to four", text: "abcdefghij", divisor: 0, want: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ApproxTokens(tc.text, tc.divisor))
		})
	}
}

func TestGradingPrompt(t *testing.T) {
	t.Parallel()

	assessment := domain.Assessment{
		ID: 100, Title: "Biology Midterm", Description: "Cells and membranes",
		MaxScore: 30, SubjectTitle: "Biology",
	}
	question := domain.Question{
		AssessmentID: 100, QuestionID: 2, QuestionText: "Explain osmosis",
		AnswerText: "Diffusion of water across a membrane", Points: 10,
		QuestionType: domain.QuestionTypeShortAnswer,
	}

	prompt := NewGradingPrompt(assessment, question, "water moves across a membrane")
	text := prompt.Text()

	assert.Contains(t, text, assessment.Title)
	assert.Contains(t, text, assessment.SubjectTitle)
	assert.Contains(t, text, question.QuestionText)
	assert.Contains(t, text, question.AnswerText)
	assert.Contains(t, text, "water moves across a membrane")
	assert.Contains(t, text, `{"score": <number>, "feedback": "<text>"}`)

	estimate := prompt.InputTokenEstimate()
	assert.Equal(t, ApproxTokens(text, 3), estimate)
	assert.Greater(t, estimate, 0)
}
