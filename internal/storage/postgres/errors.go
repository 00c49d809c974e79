package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// constraintViolation reports whether err is a Postgres error with the given
// SQLSTATE raised by the named constraint. An empty constraint matches any.
func constraintViolation(err error, code string, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != code {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isUniqueViolation(err error, constraint string) bool {
	return constraintViolation(err, codeUniqueViolation, constraint)
}

func isForeignKeyViolation(err error, constraint string) bool {
	return constraintViolation(err, codeForeignKeyViolation, constraint)
}

// nullIfEmpty maps blank optional text to SQL NULL.
func nullIfEmpty(value *string) *string {
	if value == nil || *value == "" {
		return nil
	}
	return value
}
