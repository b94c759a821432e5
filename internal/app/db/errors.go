package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation     = "23505"
	invalidTextRepr     = "22P02"
	foreignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	return hasCode(err, uniqueViolation)
}

// IsInvalidInput reports whether err comes from a malformed value, such as a bad UUID.
func IsInvalidInput(err error) bool {
	return hasCode(err, invalidTextRepr)
}

// IsForeignKeyViolation reports whether err references a row that does not exist.
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, foreignKeyViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
