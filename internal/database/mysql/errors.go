package mysql

import (
	"database/sql"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied     = 1044
	errAccessDenied       = 1045
	errNoDBSelected       = 1046
	errUnknownDatabase    = 1049
	errTooManyConnections = 1040
	errUserLimitReached   = 1203
	errTableAccessDenied  = 1142
	errReadOnlyTx         = 1792
	errQueryTimeout       = 3024
	errConnRefused        = 2003
)

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if e := database.MapContextError(err, msg); e != nil {
		return e
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied, errNoDBSelected, errUnknownDatabase,
		errTooManyConnections, errUserLimitReached, errConnRefused:
		return errs.ErrKindConnectionFailed
	case errTableAccessDenied, errReadOnlyTx:
		return errs.ErrKindPermissionDenied
	case errQueryTimeout:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
