package grading

import (
	"fmt"
	"strings"

	"github.com/lagonzalez1/micro-grader/internal/domain"
)

// promptTokenDivisor is the divisor used to estimate input tokens from the
// prompt text when the provider does not report usage.
const promptTokenDivisor = 3

const identitySection = `# Identity
You are grading a student's free-text response to an assessment question.
You will be given the question, the canonical answer, the maximum points, and
the student's response. Score the response on the given numeric scale, looking
at accuracy against the canonical answer as well as grammar and sentence
structure, and provide feedback the student can grow from.
`

const instructionsSection = `## Instructions
Respond with a single JSON object of the form {"score": <number>, "feedback": "<text>"}.
The score may be fractional. The response must be directly parsable as JSON.
`

const exampleSection = `## Example response
{"score": 0.9, "feedback": "You understood the question well and expressed a clear idea. Watch your verb tense and subject-verb agreement in longer sentences."}
`

// GradingPrompt carries the fully rendered prompt for one short-answer item.
type GradingPrompt struct {
	text string
}

// NewGradingPrompt renders the grading prompt from the assessment context,
// the reference question, and the student's free-text response.
func NewGradingPrompt(assessment domain.Assessment, question domain.Question, studentResponse string) *GradingPrompt {
	var b strings.Builder

	b.WriteString(identitySection)
	b.WriteString(instructionsSection)
	fmt.Fprintf(&b, `## Assessment context
Title: %s
Description: %s
Subject: %s
Max score: %g
`, assessment.Title, assessment.Description, assessment.SubjectTitle, assessment.MaxScore)
	fmt.Fprintf(&b, `## Question
Question: %s
Canonical answer: %s
Max points: %g
Student response: %s
`, question.QuestionText, question.AnswerText, question.Points, studentResponse)
	b.WriteString(exampleSection)

	return &GradingPrompt{text: b.String()}
}

// Text returns the rendered prompt.
func (p *GradingPrompt) Text() string {
	return p.text
}

// InputTokenEstimate approximates the prompt's token count for the usage
// ledger. Providers that report input usage override this value.
func (p *GradingPrompt) InputTokenEstimate() int {
	return ApproxTokens(p.text, promptTokenDivisor)
}
