package duckdb

import (
	"errors"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
	goduckdb "github.com/marcboeker/go-duckdb/v2"
)

// mapError translates go-duckdb errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if e := database.MapContextError(err, msg); e != nil {
		return e
	}

	var duckErr *goduckdb.Error
	if errors.As(err, &duckErr) {
		return errs.Wrap(classifyErrorType(duckErr.Type), msg, err)
	}

	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

func classifyErrorType(t goduckdb.ErrorType) errs.ErrKind {
	switch t {
	case goduckdb.ErrorTypePermission:
		return errs.ErrKindPermissionDenied
	case goduckdb.ErrorTypeInterrupt:
		return errs.ErrKindTimeout
	case goduckdb.ErrorTypeConnection, goduckdb.ErrorTypeIO:
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
