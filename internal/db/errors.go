package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrRemoteUnavailable marks network, timeout and server failures of a record store.
	ErrRemoteUnavailable = errors.New("record store unavailable")
	// ErrRejected marks statements the store refused: constraint and data errors.
	ErrRejected = errors.New("record store rejected the statement")
)

const uniqueViolation = "23505"

// Remote wraps err so callers can match both the cause and its classification:
// ErrRejected for data (22xxx) and integrity (23xxx) errors, ErrRemoteUnavailable
// for everything else.
func Remote(op string, err error) error {
	if IsRejected(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrRejected, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteUnavailable, err)
}

// IsRejected reports whether err is a Postgres data or integrity constraint error.
func IsRejected(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	class := pgErr.Code[:2]
	return class == "22" || class == "23"
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure,
// optionally on a specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
