// Package grading contains the pure grading strategy and the port to the
// model-backed grader. It maps one answer plus its reference question to a
// graded outcome; objective questions are matched deterministically against
// the correct choice while short-answer questions are scored by a language
// model behind the ModelGrader interface.
package grading

import (
	"context"
	"errors"
)

// Common errors returned by the grading package
var (
	// ErrModelGradingFailed is returned when the model grader exhausts its
	// retries without producing a valid score. The whole batch fails so no
	// partially graded item is silently skipped.
	ErrModelGradingFailed = errors.New("model grading failed after retries")

	// ErrInvalidModelResponse is returned when a model response cannot be
	// parsed into a well-formed score/feedback structure.
	ErrInvalidModelResponse = errors.New("invalid response from language model")

	// ErrInvalidConfig is returned when a model grader is constructed with
	// invalid configuration.
	ErrInvalidConfig = errors.New("invalid model grader configuration")
)

// ModelGrade is the normalized result of one model invocation. InputTokens
// and OutputTokens carry provider-reported usage when available; zero values
// mean the provider did not report usage and callers fall back to the
// character-count approximation.
type ModelGrade struct {
	Score        float64
	Feedback     string
	InputTokens  int
	OutputTokens int
}

// ModelGrader is the adapter port for model-backed grading. Implementations
// wrap one provider's client with bounded in-process retries and per-call
// timeouts; a returned error means retries are exhausted and the caller must
// fail the whole batch.
type ModelGrader interface {
	// Grade sends the prompt to the model and returns the parsed grade.
	Grade(ctx context.Context, prompt string) (*ModelGrade, error)

	// ModelID returns the provider-specific model identifier.
	ModelID() string

	// Family returns the provider family tag used in the usage ledger.
	Family() string
}

// ApproxTokens estimates the token count of text as
// (characters with whitespace removed + 2) / divisor. This is an
// approximation for providers that do not report usage, not billing-grade
// accounting.
func ApproxTokens(text string, divisor int) int {
	if divisor <= 0 {
		divisor = 4
	}
	compressed := 0
	for _, r := range text {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			compressed++
		}
	}
	return (compressed + 2) / divisor
}
