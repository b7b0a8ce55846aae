package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrDeleteFailed is returned when a delete operation fails.
	ErrDeleteFailed = errors.New("delete failed")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrCommitIncomplete is returned by CommitBatch when a stage of the
	// atomic commit affects fewer rows than the batch expected. The whole
	// transaction rolls back so redelivery can retry from a clean state.
	ErrCommitIncomplete = errors.New("batch commit affected fewer rows than expected")

	// Entity-specific "not found" errors

	// ErrTaskNotFound indicates the grader task row is absent.
	ErrTaskNotFound = fmt.Errorf("%w: grader task", ErrNotFound)

	// ErrAnswersNotFound indicates no session answers matched the item keys.
	ErrAnswersNotFound = fmt.Errorf("%w: session answers", ErrNotFound)

	// ErrReferenceDataNotFound indicates assessment or question reference
	// data is absent for the requested assessment IDs.
	ErrReferenceDataNotFound = fmt.Errorf("%w: assessment reference data", ErrNotFound)

	// ErrStudentRowsNotFound indicates no per-student score rows exist for
	// the session.
	ErrStudentRowsNotFound = fmt.Errorf("%w: student task rows", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
