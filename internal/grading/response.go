package grading

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// jsonObject extracts the first JSON object from a model response that may be
// wrapped in prose or markdown fences.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// gradeSchema is the structure the grading prompt instructs the model to
// return. Pointers distinguish missing fields from zero values: a response
// without a numeric score or a feedback string is malformed.
type gradeSchema struct {
	Score    *float64 `json:"score"`
	Feedback *string  `json:"feedback"`
}

// ParseModelGrade extracts and validates the score/feedback JSON object from
// raw model response text. A valid grade has a numeric score and a feedback
// string, which may be empty. Token counts are left for the caller to fill
// from provider usage metadata or approximation.
func ParseModelGrade(text string) (*ModelGrade, error) {
	payload := jsonObject.FindString(text)
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidModelResponse)
	}

	var schema gradeSchema
	if err := json.Unmarshal([]byte(payload), &schema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModelResponse, err)
	}
	if schema.Score == nil {
		return nil, fmt.Errorf("%w: response missing numeric score", ErrInvalidModelResponse)
	}
	if schema.Feedback == nil {
		return nil, fmt.Errorf("%w: response missing feedback", ErrInvalidModelResponse)
	}

	return &ModelGrade{
		Score:    *schema.Score,
		Feedback: *schema.Feedback,
	}, nil
}
