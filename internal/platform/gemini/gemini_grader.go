// Package gemini implements the grading.ModelGrader interface using Google's
// Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"github.com/lagonzalez1/micro-grader/internal/config"
	"github.com/lagonzalez1/micro-grader/internal/grading"
)

// Family tag recorded in the usage ledger for Gemini invocations.
const Family = "GOOGLE"

// outputTokenDivisor is the approximation divisor used when the API response
// carries no usage metadata. Not billing-grade.
const outputTokenDivisor = 4

// generateAPI is the subset of the genai client the grader uses. Narrowing
// the dependency keeps the grader testable without a Gemini API key; the real
// *genai.Models satisfies it.
type generateAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Grader calls the Gemini API with bounded retries and normalizes the
// response into a grading.ModelGrade.
type Grader struct {
	logger  *slog.Logger
	client  generateAPI
	modelID string

	maxRetries int
	timeout    time.Duration
}

// NewGrader creates a Gemini-backed model grader from the LLM configuration.
func NewGrader(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Grader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", grading.ErrInvalidConfig)
	}
	if cfg.ModelID == "" {
		return nil, fmt.Errorf("%w: model ID cannot be empty", grading.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", grading.ErrInvalidConfig, err)
	}

	return &Grader{
		logger:     logger.With(slog.String("component", "gemini_grader")),
		client:     client.Models,
		modelID:    cfg.ModelID,
		maxRetries: cfg.MaxRetries,
		timeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}, nil
}

// Ensure Grader implements the grading.ModelGrader interface
var _ grading.ModelGrader = (*Grader)(nil)

// ModelID returns the configured Gemini model identifier.
func (g *Grader) ModelID() string { return g.modelID }

// Family returns the provider family tag.
func (g *Grader) Family() string { return Family }

// Grade sends the prompt to Gemini, retrying up to maxRetries extra attempts
// on transport errors and malformed responses. Each attempt is a fresh call;
// nothing from a failed attempt is reused. After exhausting retries it
// returns grading.ErrModelGradingFailed.
func (g *Grader) Grade(ctx context.Context, prompt string) (*grading.ModelGrade, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		attemptNum := attempt + 1
		g.logger.InfoContext(ctx, "calling Gemini API",
			slog.Int("attempt", attemptNum),
			slog.Int("max_attempts", g.maxRetries+1))

		grade, err := g.gradeOnce(ctx, prompt)
		if err == nil {
			g.logger.InfoContext(ctx, "Gemini grading succeeded",
				slog.Int("attempt", attemptNum),
				slog.Float64("score", grade.Score))
			return grade, nil
		}
		lastErr = err

		g.logger.ErrorContext(ctx, "Gemini grading attempt failed",
			slog.Int("attempt", attemptNum),
			slog.String("error", err.Error()))

		if attempt >= g.maxRetries {
			break
		}

		// Exponential backoff with jitter before the next attempt.
		backoff := math.Pow(2, float64(attempt)) * (0.5 + rng.Float64()*0.5)
		delay := time.Duration(backoff * float64(time.Second))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", grading.ErrModelGradingFailed, ctx.Err())
		}
	}

	return nil, fmt.Errorf("%w: exceeded %d attempts: %v",
		grading.ErrModelGradingFailed, g.maxRetries+1, lastErr)
}

// gradeOnce performs a single bounded API call and parses the response.
func (g *Grader) gradeOnce(ctx context.Context, prompt string) (*grading.ModelGrade, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.GenerateContent(callCtx, g.modelID, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", grading.ErrInvalidModelResponse)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty response text", grading.ErrInvalidModelResponse)
	}

	grade, err := grading.ParseModelGrade(text)
	if err != nil {
		return nil, err
	}

	// Provider-reported usage is the source of truth when present; fall back
	// to the character-count approximation otherwise.
	if resp.UsageMetadata != nil {
		grade.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		grade.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if grade.OutputTokens == 0 {
		grade.OutputTokens = grading.ApproxTokens(text, outputTokenDivisor)
	}

	return grade, nil
}
