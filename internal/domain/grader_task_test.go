package domain

import (
	"errors"
	"testing"
)

func TestGraderTaskValidate(t *testing.T) {
	t.Parallel()

	validTask := GraderTask{
		ID:           1,
		SessionToken: "sess-abc",
		ModelID:      "gemini-2.0-flash",
		Status:       TaskStatusPending,
	}

	if err := validTask.Validate(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	invalid := validTask
	invalid.SessionToken = ""
	if err := invalid.Validate(); !errors.Is(err, ErrEmptySessionToken) {
		t.Errorf("Expected error %v, got %v", ErrEmptySessionToken, err)
	}

	invalid = validTask
	invalid.ModelID = ""
	if err := invalid.Validate(); !errors.Is(err, ErrEmptyModelID) {
		t.Errorf("Expected error %v, got %v", ErrEmptyModelID, err)
	}

	invalid = validTask
	invalid.Status = "RUNNING"
	if err := invalid.Validate(); !errors.Is(err, ErrInvalidTaskStatus) {
		t.Errorf("Expected error %v, got %v", ErrInvalidTaskStatus, err)
	}
}

func TestGraderTaskItemValidate(t *testing.T) {
	t.Parallel()

	validItem := GraderTaskItem{
		ID:             1,
		ItemKey:        11,
		TaskID:         7,
		IdempotencyKey: "gemini-2.0-flash:11",
		Status:         ItemStatusPending,
	}

	if err := validItem.Validate(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	for _, status := range []ItemStatus{ItemStatusPending, ItemStatusFailedRetryable, ItemStatusCompleted} {
		item := validItem
		item.Status = status
		if err := item.Validate(); err != nil {
			t.Errorf("Expected status %s to be valid, got %v", status, err)
		}
	}

	invalid := validItem
	invalid.Status = "DONE"
	if err := invalid.Validate(); !errors.Is(err, ErrInvalidItemStatus) {
		t.Errorf("Expected error %v, got %v", ErrInvalidItemStatus, err)
	}
}

func TestItemIdempotencyKey(t *testing.T) {
	t.Parallel()

	key := ItemIdempotencyKey("gemini-2.0-flash", 42)
	if key != "gemini-2.0-flash:42" {
		t.Errorf("Expected gemini-2.0-flash:42, got %s", key)
	}

	// The same inputs must always map to the same key.
	if key != ItemIdempotencyKey("gemini-2.0-flash", 42) {
		t.Error("Expected idempotency key derivation to be deterministic")
	}
}
