package domain

// UsageOutcome records whether a model invocation produced a usable response.
type UsageOutcome string

// Possible usage outcomes
const (
	UsageOutcomeSuccess UsageOutcome = "SUCCESS"
	UsageOutcomeFail    UsageOutcome = "FAIL"
)

// GradedResult is the outcome of grading one answer. It is ephemeral: produced
// by the grading strategy, consumed by the atomic commit, never persisted as
// its own entity. Feedback is present only for model-graded items.
type GradedResult struct {
	AnswerID     int64   `json:"answer_id"`
	StudentID    int64   `json:"student_id"`
	AssessmentID int64   `json:"assessment_id"`
	QuestionID   int64   `json:"question_id"`
	ChoiceID     *int64  `json:"choice_id"`
	AnswerText   *string `json:"answer_text"`
	IsCorrect    bool    `json:"is_correct"`
	Points       float64 `json:"points"`
	Feedback     *string `json:"feedback"`
}

// ModelUsageRecord attributes the token cost of one model invocation to an
// organization. One record is appended per invocation regardless of grading
// success; a failed call still consumed input tokens that must be billed.
type ModelUsageRecord struct {
	OrganizationID string       `json:"organization_id"`
	InputTokens    int          `json:"input_tokens"`
	OutputTokens   int          `json:"output_tokens"`
	ModelFamily    string       `json:"model"`
	ModelID        string       `json:"provider_model_id"`
	Outcome        UsageOutcome `json:"outcome"`
}

// StudentScore is the cumulative points one student earned across the batch,
// persisted as one row per (student, assessment, session).
type StudentScore struct {
	StudentID    int64   `json:"student_id"`
	AssessmentID int64   `json:"assessment_id"`
	SessionID    int64   `json:"session_id"`
	Score        float64 `json:"score"`
}
