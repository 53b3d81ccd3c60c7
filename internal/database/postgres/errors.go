package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
)

// PostgreSQL SQLSTATE codes that get a kind other than query_failed.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrReadOnlyTransaction   = "25006"
	pgErrInsufficientPrivilege = "42501"
	pgErrQueryCanceled         = "57014"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if e := database.MapContextError(err, msg); e != nil {
		return e
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classifySQLState(code string) errs.ErrKind {
	switch code {
	case pgErrReadOnlyTransaction, pgErrInsufficientPrivilege:
		return errs.ErrKindPermissionDenied
	case pgErrQueryCanceled:
		return errs.ErrKindTimeout
	}
	// Class 08: connection exceptions. Class 28: invalid authorization
	if len(code) >= 2 && (code[:2] == "08" || code[:2] == "28") {
		return errs.ErrKindConnectionFailed
	}
	return errs.ErrKindQueryFailed
}
