package domain

import "errors"

// Question types recognized by the grading strategy. Anything that is not a
// short answer is graded objectively against the correct choice.
const (
	QuestionTypeShortAnswer    = "short_answer"
	QuestionTypeMultipleChoice = "multiple_choice"
)

// Common errors for assessment reference data
var (
	ErrNoAssessments        = errors.New("no assessments to build")
	ErrUnknownAssessment    = errors.New("assessment not present in build")
	ErrUnknownQuestion      = errors.New("question not present in assessment build")
	ErrMissingCorrectChoice = errors.New("question has no correct choice")
)

// Assessment is the reference metadata for one assessment, joined with its
// subject title.
type Assessment struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	MaxScore     float64 `json:"max_score"`
	SubjectTitle string  `json:"subject_title"`
}

// Question is one assessment question joined with its correct choice. For
// short-answer questions CorrectChoiceID is zero and AnswerText carries the
// canonical answer used to prompt the model.
type Question struct {
	AssessmentID    int64   `json:"assessment_id"`
	QuestionID      int64   `json:"question_id"`
	QuestionText    string  `json:"question_text"`
	CorrectChoiceID int64   `json:"choice_id"`
	AnswerText      string  `json:"answer_text"`
	Points          float64 `json:"points"`
	QuestionType    string  `json:"question_type"`
}

// AssessmentBuild is the in-memory join of assessments and their questions,
// keyed by assessment ID then question ID. It is built once per batch, used as
// the grading reference, and discarded after commit. It is never persisted.
type AssessmentBuild struct {
	assessments map[int64]Assessment
	questions   map[int64]map[int64]Question
}

// NewAssessmentBuild indexes the given reference data for per-answer lookup.
// Returns ErrNoAssessments when there is nothing to index, which callers treat
// as missing reference data rather than an empty batch.
func NewAssessmentBuild(assessments []Assessment, questions []Question) (*AssessmentBuild, error) {
	if len(assessments) == 0 {
		return nil, ErrNoAssessments
	}

	b := &AssessmentBuild{
		assessments: make(map[int64]Assessment, len(assessments)),
		questions:   make(map[int64]map[int64]Question, len(assessments)),
	}

	for _, a := range assessments {
		b.assessments[a.ID] = a
	}

	for _, q := range questions {
		if _, ok := b.assessments[q.AssessmentID]; !ok {
			continue
		}
		if b.questions[q.AssessmentID] == nil {
			b.questions[q.AssessmentID] = make(map[int64]Question)
		}
		b.questions[q.AssessmentID][q.QuestionID] = q
	}

	return b, nil
}

// Assessment returns the reference assessment for the given ID.
func (b *AssessmentBuild) Assessment(assessmentID int64) (Assessment, error) {
	a, ok := b.assessments[assessmentID]
	if !ok {
		return Assessment{}, ErrUnknownAssessment
	}
	return a, nil
}

// Question returns the reference question for the given assessment and
// question IDs. An answer referencing a question absent from the build is a
// data-integrity fault, surfaced as ErrUnknownQuestion.
func (b *AssessmentBuild) Question(assessmentID, questionID int64) (Question, error) {
	if _, ok := b.assessments[assessmentID]; !ok {
		return Question{}, ErrUnknownAssessment
	}
	q, ok := b.questions[assessmentID][questionID]
	if !ok {
		return Question{}, ErrUnknownQuestion
	}
	return q, nil
}

// AssessmentIDs returns the distinct assessment IDs referenced by the given
// answers, preserving first-seen order.
func AssessmentIDs(answers []AnswerRecord) []int64 {
	seen := make(map[int64]struct{}, len(answers))
	ids := make([]int64, 0, len(answers))
	for _, a := range answers {
		if _, ok := seen[a.AssessmentID]; ok {
			continue
		}
		seen[a.AssessmentID] = struct{}{}
		ids = append(ids, a.AssessmentID)
	}
	return ids
}
