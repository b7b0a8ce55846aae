package domain

// AnswerRecord is one student answer captured during an assessment session.
// It is immutable input to the grading pipeline: the session writer owns these
// rows and the grader only reads them. ChoiceID is nil for free-text answers
// and for unanswered objective questions; AnswerText is nil for objective
// answers.
type AnswerRecord struct {
	ID           int64   `json:"id"`
	AssessmentID int64   `json:"assessment_id"`
	StudentID    int64   `json:"student_id"`
	QuestionID   int64   `json:"question_id"`
	ChoiceID     *int64  `json:"choice_id"`
	AnswerText   *string `json:"answer_text"`
}

// StudentTaskRow is one pre-materialized score row for a (student, assessment)
// pair within a session. Answer upserts are keyed by its ID, so these rows must
// exist before the atomic commit runs.
type StudentTaskRow struct {
	ID           int64 `json:"id"`
	StudentID    int64 `json:"student_id"`
	AssessmentID int64 `json:"assessment_id"`
}
