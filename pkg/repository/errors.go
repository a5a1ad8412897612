package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

// MapError translates database errors to domain errors. sql.ErrNoRows maps
// to notFoundErr and a unique violation to duplicateErr; other errors are
// returned unchanged.
func MapError(err error, notFoundErr, duplicateErr error) error {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFoundErr
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return duplicateErr
	default:
		return err
	}
}
