package sqlite

import (
	"errors"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// mapError translates modernc.org/sqlite errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if e := database.MapContextError(err, msg); e != nil {
		return e
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return errs.Wrap(classifySQLiteCode(sqliteErr.Code()), msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// classifySQLiteCode maps a (possibly extended) result code to ErrKind.
// Extended codes carry the primary code in their low byte.
func classifySQLiteCode(code int) errs.ErrKind {
	switch code & 0xff {
	case sqlite3.SQLITE_READONLY, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_PERM:
		return errs.ErrKindPermissionDenied
	case sqlite3.SQLITE_INTERRUPT:
		return errs.ErrKindTimeout
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
