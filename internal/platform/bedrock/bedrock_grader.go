// Package bedrock implements the grading.ModelGrader interface using Amazon
// Bedrock's InvokeModel API.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/lagonzalez1/micro-grader/internal/config"
	"github.com/lagonzalez1/micro-grader/internal/grading"
)

// Family tag recorded in the usage ledger for Bedrock invocations.
const Family = "AMZN"

// outputTokenDivisor is the approximation divisor used when the response body
// carries no token counts. Not billing-grade.
const outputTokenDivisor = 3

// Generation parameters for the grading call.
const (
	temperature   = 0.7
	topP          = 0.9
	maxTokenCount = 3000
)

// invokeRequest is the Titan-style text generation request body.
type invokeRequest struct {
	InputText            string               `json:"inputText"`
	TextGenerationConfig textGenerationConfig `json:"textGenerationConfig"`
}

type textGenerationConfig struct {
	MaxTokenCount int     `json:"maxTokenCount"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"topP"`
}

// invokeResponse covers both response shapes Bedrock text models report usage
// in: top-level token counts (Titan) or a usage block.
type invokeResponse struct {
	InputTextTokenCount int `json:"inputTextTokenCount"`
	Results             []struct {
		TokenCount int    `json:"tokenCount"`
		OutputText string `json:"outputText"`
	} `json:"results"`
	Usage *struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
	} `json:"usage"`
}

// invokeAPI is the subset of the Bedrock runtime client the grader uses.
// Narrowing the dependency keeps the grader testable without AWS credentials.
type invokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Grader calls Amazon Bedrock with bounded retries and normalizes the
// response into a grading.ModelGrade.
type Grader struct {
	logger  *slog.Logger
	client  invokeAPI
	modelID string

	maxRetries int
	timeout    time.Duration
}

// NewGrader creates a Bedrock-backed model grader from the LLM configuration.
// Credentials come from the default AWS credential chain.
func NewGrader(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Grader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ModelID == "" {
		return nil, fmt.Errorf("%w: model ID cannot be empty", grading.ErrInvalidConfig)
	}
	if cfg.AWSRegion == "" {
		return nil, fmt.Errorf("%w: AWS region cannot be empty", grading.ErrInvalidConfig)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS config: %v", grading.ErrInvalidConfig, err)
	}

	return &Grader{
		logger:     logger.With(slog.String("component", "bedrock_grader")),
		client:     bedrockruntime.NewFromConfig(awsCfg),
		modelID:    cfg.ModelID,
		maxRetries: cfg.MaxRetries,
		timeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}, nil
}

// Ensure Grader implements the grading.ModelGrader interface
var _ grading.ModelGrader = (*Grader)(nil)

// ModelID returns the configured Bedrock model identifier.
func (g *Grader) ModelID() string { return g.modelID }

// Family returns the provider family tag.
func (g *Grader) Family() string { return Family }

// Grade sends the prompt to Bedrock, retrying up to maxRetries extra attempts
// on transport errors and malformed responses. Each attempt is a fresh
// invocation. After exhausting retries it returns
// grading.ErrModelGradingFailed.
func (g *Grader) Grade(ctx context.Context, prompt string) (*grading.ModelGrade, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		attemptNum := attempt + 1
		g.logger.InfoContext(ctx, "calling Bedrock API",
			slog.Int("attempt", attemptNum),
			slog.Int("max_attempts", g.maxRetries+1),
			slog.String("model_id", g.modelID))

		grade, err := g.gradeOnce(ctx, prompt)
		if err == nil {
			return grade, nil
		}
		lastErr = err

		g.logger.ErrorContext(ctx, "Bedrock grading attempt failed",
			slog.Int("attempt", attemptNum),
			slog.String("error", err.Error()))

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", grading.ErrModelGradingFailed, ctx.Err())
		}
	}

	return nil, fmt.Errorf("%w: exceeded %d attempts: %v",
		grading.ErrModelGradingFailed, g.maxRetries+1, lastErr)
}

// gradeOnce performs a single bounded invocation and parses the response.
func (g *Grader) gradeOnce(ctx context.Context, prompt string) (*grading.ModelGrade, error) {
	body, err := json.Marshal(invokeRequest{
		InputText: prompt,
		TextGenerationConfig: textGenerationConfig{
			MaxTokenCount: maxTokenCount,
			Temperature:   temperature,
			TopP:          topP,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal invoke request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.client.InvokeModel(callCtx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke model: %w", err)
	}

	var resp invokeResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", grading.ErrInvalidModelResponse, err)
	}
	if len(resp.Results) == 0 || resp.Results[0].OutputText == "" {
		return nil, fmt.Errorf("%w: no generated text in response", grading.ErrInvalidModelResponse)
	}

	text := resp.Results[0].OutputText
	grade, err := grading.ParseModelGrade(text)
	if err != nil {
		return nil, err
	}

	// Prefer reported usage; approximate from the text otherwise.
	switch {
	case resp.Usage != nil:
		grade.InputTokens = resp.Usage.InputTokens
		grade.OutputTokens = resp.Usage.OutputTokens
	default:
		grade.InputTokens = resp.InputTextTokenCount
		grade.OutputTokens = resp.Results[0].TokenCount
	}
	if grade.OutputTokens == 0 {
		grade.OutputTokens = grading.ApproxTokens(text, outputTokenDivisor)
	}

	return grade, nil
}
