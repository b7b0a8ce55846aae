package postgres

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/lagonzalez1/micro-grader/internal/store"
)

func TestPlaceholders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		n     int
		start int
		want  string
	}{
		{name: "single", n: 1, start: 1, want: "$1"},
		{name: "several from one", n: 3, start: 1, want: "$1, $2, $3"},
		{name: "offset start", n: 2, start: 5, want: "$5, $6"},
		{name: "zero", n: 0, start: 1, want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, placeholders(tc.n, tc.start))
		})
	}
}

func TestValuesClause(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rows  int
		cols  int
		start int
		want  string
	}{
		{name: "one row", rows: 1, cols: 3, start: 1, want: "($1, $2, $3)"},
		{name: "two rows", rows: 2, cols: 2, start: 1, want: "($1, $2), ($3, $4)"},
		{name: "offset start", rows: 2, cols: 1, start: 4, want: "($4), ($5)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, valuesClause(tc.rows, tc.cols, tc.start))
		})
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, MapError(nil))
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		err := MapError(sql.ErrNoRows)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unique violation maps to duplicate", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "assessment_grader_task_session_model_key"}
		err := MapError(pgErr)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("foreign key violation maps to invalid entity", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "grader_task_item_task_id_fkey"}
		err := MapError(pgErr)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("not null violation maps to invalid entity", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: notNullViolationCode, ColumnName: "idempotency_key"}
		err := MapError(pgErr)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})

	t.Run("unknown errors pass through unchanged", func(t *testing.T) {
		plain := errors.New("connection refused")
		assert.Equal(t, plain, MapError(plain))
	})

	t.Run("already classified errors keep their sentinel", func(t *testing.T) {
		wrapped := MapError(store.ErrCommitIncomplete)
		assert.ErrorIs(t, wrapped, store.ErrCommitIncomplete)
	})
}

func TestViolationHelpers(t *testing.T) {
	t.Parallel()

	unique := &pgconn.PgError{Code: uniqueViolationCode}
	fk := &pgconn.PgError{Code: foreignKeyViolationCode}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.False(t, IsUniqueViolation(errors.New("other")))

	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(unique))
}
