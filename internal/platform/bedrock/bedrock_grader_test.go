package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lagonzalez1/micro-grader/internal/config"
	"github.com/lagonzalez1/micro-grader/internal/grading"
)

// mockInvokeAPI implements invokeAPI with a Func field.
type mockInvokeAPI struct {
	InvokeModelFunc func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

func (m *mockInvokeAPI) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	return m.InvokeModelFunc(ctx, params, optFns...)
}

func testGrader(client invokeAPI, maxRetries int) *Grader {
	return &Grader{
		logger:     slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
		client:     client,
		modelID:    "amazon.titan-text-express-v1",
		maxRetries: maxRetries,
		timeout:    5 * time.Second,
	}
}

func titanOutput(t *testing.T, outputText string, inputTokens, outputTokens int) *bedrockruntime.InvokeModelOutput {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"inputTextTokenCount": inputTokens,
		"results": []map[string]any{
			{"tokenCount": outputTokens, "outputText": outputText},
		},
	})
	require.NoError(t, err)
	return &bedrockruntime.InvokeModelOutput{Body: body}
}

func TestNewGraderValidation(t *testing.T) {
	t.Parallel()

	logger := slog.Default()

	t.Run("fails without model ID", func(t *testing.T) {
		g, err := NewGrader(context.Background(), logger, config.LLMConfig{AWSRegion: "us-east-1"})
		assert.ErrorIs(t, err, grading.ErrInvalidConfig)
		assert.Nil(t, g)
	})

	t.Run("fails without region", func(t *testing.T) {
		g, err := NewGrader(context.Background(), logger, config.LLMConfig{ModelID: "amazon.titan-text-express-v1"})
		assert.ErrorIs(t, err, grading.ErrInvalidConfig)
		assert.Nil(t, g)
	})
}

func TestGradeParsesTitanResponse(t *testing.T) {
	t.Parallel()

	var seenBody invokeRequest
	client := &mockInvokeAPI{
		InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			require.NoError(t, json.Unmarshal(params.Body, &seenBody))
			return titanOutput(t, `{"score": 7, "feedback": "well reasoned"}`, 150, 25), nil
		},
	}

	g := testGrader(client, 0)
	grade, err := g.Grade(context.Background(), "grade this answer")
	require.NoError(t, err)

	assert.InDelta(t, 7.0, grade.Score, 0.0001)
	assert.Equal(t, "well reasoned", grade.Feedback)
	assert.Equal(t, 150, grade.InputTokens)
	assert.Equal(t, 25, grade.OutputTokens)

	assert.Equal(t, "grade this answer", seenBody.InputText)
	assert.Equal(t, maxTokenCount, seenBody.TextGenerationConfig.MaxTokenCount)
	assert.InDelta(t, temperature, seenBody.TextGenerationConfig.Temperature, 0.0001)
	assert.InDelta(t, topP, seenBody.TextGenerationConfig.TopP, 0.0001)
}

func TestGradePrefersUsageBlock(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(map[string]any{
		"inputTextTokenCount": 1,
		"results": []map[string]any{
			{"tokenCount": 2, "outputText": `{"score": 3, "feedback": "ok"}`},
		},
		"usage": map[string]any{"inputTokens": 500, "outputTokens": 40},
	})
	require.NoError(t, err)

	client := &mockInvokeAPI{
		InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			return &bedrockruntime.InvokeModelOutput{Body: body}, nil
		},
	}

	g := testGrader(client, 0)
	grade, err := g.Grade(context.Background(), "prompt")
	require.NoError(t, err)

	assert.Equal(t, 500, grade.InputTokens)
	assert.Equal(t, 40, grade.OutputTokens)
}

func TestGradeApproximatesMissingOutputTokens(t *testing.T) {
	t.Parallel()

	text := `{"score": 1, "feedback": "short"}`
	client := &mockInvokeAPI{
		InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			return titanOutput(t, text, 0, 0), nil
		},
	}

	g := testGrader(client, 0)
	grade, err := g.Grade(context.Background(), "prompt")
	require.NoError(t, err)

	assert.Equal(t, grading.ApproxTokens(text, outputTokenDivisor), grade.OutputTokens)
}

func TestGradeRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	client := &mockInvokeAPI{
		InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("throttled")
			}
			return titanOutput(t, `{"score": 2, "feedback": "fine"}`, 10, 5), nil
		},
	}

	g := testGrader(client, 2)
	grade, err := g.Grade(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.InDelta(t, 2.0, grade.Score, 0.0001)
}

func TestGradeExhaustsRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	client := &mockInvokeAPI{
		InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			calls++
			return nil, errors.New("throttled")
		},
	}

	g := testGrader(client, 2)
	grade, err := g.Grade(context.Background(), "prompt")
	assert.ErrorIs(t, err, grading.ErrModelGradingFailed)
	assert.Nil(t, grade)
	assert.Equal(t, 3, calls, "one initial attempt plus two retries")
}

func TestGradeRejectsMalformedResponses(t *testing.T) {
	t.Parallel()

	t.Run("empty results", func(t *testing.T) {
		client := &mockInvokeAPI{
			InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
				return &bedrockruntime.InvokeModelOutput{Body: []byte(`{"results": []}`)}, nil
			},
		}

		g := testGrader(client, 0)
		_, err := g.Grade(context.Background(), "prompt")
		assert.ErrorIs(t, err, grading.ErrModelGradingFailed)
	})

	t.Run("output without grade JSON", func(t *testing.T) {
		client := &mockInvokeAPI{
			InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
				return titanOutput(t, "I refuse to grade this.", 10, 5), nil
			},
		}

		g := testGrader(client, 0)
		_, err := g.Grade(context.Background(), "prompt")
		assert.ErrorIs(t, err, grading.ErrModelGradingFailed)
	})
}
