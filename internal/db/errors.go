package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors returned by store operations. Callers match them with
// errors.Is to map storage outcomes onto API responses.
var (
	// ErrDuplicateEvent reports an insert that collided with an already
	// stored event on (request_date, request_timestamp, endpoint_id,
	// resource_id). Expected under at-least-once ingestion.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrOrphanParameter reports a parameter insert whose parent request
	// row does not exist for the given id and date.
	ErrOrphanParameter = errors.New("parameter references unknown request")

	// ErrNotFound reports a dimension lookup that matched no row.
	ErrNotFound = errors.New("not found")

	// ErrInvalidFilter reports a filter the query engine refuses to run,
	// e.g. a reversed date range or contradictory endpoint constraints.
	ErrInvalidFilter = errors.New("invalid filter")
)

// PostgreSQL error codes this package inspects.
const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
	pgCodeDuplicateTable      = "42P07"
	pgCodeInvalidObjectDef    = "42P17"
)

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isPartitionExists reports whether err is the losing side of a partition
// creation race: the relation name, its bounds, or a catalog row already
// taken by a concurrent creator.
func isPartitionExists(err error) bool {
	switch pgErrCode(err) {
	case pgCodeDuplicateTable, pgCodeInvalidObjectDef, pgCodeUniqueViolation:
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	return pgErrCode(err) == pgCodeUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgErrCode(err) == pgCodeForeignKeyViolation
}
