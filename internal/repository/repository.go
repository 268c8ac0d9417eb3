package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// ErrNoRows is re-exported so services do not import database/sql for the
// sentinel alone.
var ErrNoRows = sql.ErrNoRows

// IsUniqueViolation reports whether the error is a Postgres unique-index
// violation (code 23505). The double-booking indexes on schedule sessions
// surface through this check; callers treat it as a retryable conflict.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
