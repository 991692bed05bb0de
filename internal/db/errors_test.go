package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPgErrorClassification(t *testing.T) {
	wrap := func(code string) error {
		return fmt.Errorf("insert: %w", &pgconn.PgError{Code: code})
	}

	t.Run("unique violation", func(t *testing.T) {
		err := wrap(pgCodeUniqueViolation)
		assert.True(t, isUniqueViolation(err))
		assert.True(t, isPartitionExists(err))
		assert.False(t, isForeignKeyViolation(err))
	})
	t.Run("foreign key violation", func(t *testing.T) {
		err := wrap(pgCodeForeignKeyViolation)
		assert.True(t, isForeignKeyViolation(err))
		assert.False(t, isUniqueViolation(err))
		assert.False(t, isPartitionExists(err))
	})
	t.Run("duplicate relation counts as a lost partition race", func(t *testing.T) {
		assert.True(t, isPartitionExists(wrap(pgCodeDuplicateTable)))
		assert.True(t, isPartitionExists(wrap(pgCodeInvalidObjectDef)))
	})
	t.Run("plain errors match nothing", func(t *testing.T) {
		err := errors.New("connection refused")
		assert.False(t, isUniqueViolation(err))
		assert.False(t, isForeignKeyViolation(err))
		assert.False(t, isPartitionExists(err))
	})
}
