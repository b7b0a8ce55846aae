package domain

import (
	"errors"
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a grader task.
type TaskStatus string

// Possible grader task status values
const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
)

// ItemStatus represents the processing state of a single grader task item.
type ItemStatus string

// Possible grader task item status values
const (
	ItemStatusPending         ItemStatus = "PENDING"
	ItemStatusFailedRetryable ItemStatus = "FAILED_RETRYABLE"
	ItemStatusCompleted       ItemStatus = "COMPLETED"
)

// Common validation errors for grader tasks and items
var (
	ErrEmptySessionToken = errors.New("session token cannot be empty")
	ErrEmptyModelID      = errors.New("model ID cannot be empty")
	ErrInvalidTaskStatus = errors.New("invalid grader task status")
	ErrInvalidItemStatus = errors.New("invalid grader task item status")
)

// GraderTask tracks one grading attempt lifecycle for a (session, model) pair.
// The store guarantees at most one row per pair; a redelivered message resumes
// the existing task and bumps Attempts instead of creating a duplicate.
type GraderTask struct {
	ID           int64      `json:"id"`
	SessionToken string     `json:"session_token"`
	ModelID      string     `json:"model_id"`
	Status       TaskStatus `json:"status"`
	Attempts     int        `json:"attempts"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks that the GraderTask holds consistent data.
func (t *GraderTask) Validate() error {
	if t.SessionToken == "" {
		return ErrEmptySessionToken
	}
	if t.ModelID == "" {
		return ErrEmptyModelID
	}
	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}
	return nil
}

// GraderTaskItem is the idempotent processing record for one gradable answer
// within a task. ItemKey is the answer row ID; IdempotencyKey combines the
// model with the answer ID so redeliveries under the same task refresh the
// existing row rather than insert a new one (unique on task ID + item key).
type GraderTaskItem struct {
	ID             int64      `json:"id"`
	ItemKey        int64      `json:"item_key"`
	TaskID         int64      `json:"task_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Status         ItemStatus `json:"status"`
	Attempts       int        `json:"attempts"`
}

// Validate checks that the GraderTaskItem holds consistent data.
func (i *GraderTaskItem) Validate() error {
	if !isValidItemStatus(i.Status) {
		return ErrInvalidItemStatus
	}
	return nil
}

// ItemIdempotencyKey derives the deterministic key that makes item creation
// safe across redeliveries: the same answer graded by the same model always
// maps to the same key.
func ItemIdempotencyKey(modelID string, answerID int64) string {
	return fmt.Sprintf("%s:%d", modelID, answerID)
}

func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

func isValidItemStatus(status ItemStatus) bool {
	switch status {
	case ItemStatusPending, ItemStatusFailedRetryable, ItemStatusCompleted:
		return true
	default:
		return false
	}
}
