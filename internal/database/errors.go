package database

import (
	"context"
	"errors"

	"github.com/koustreak/askdb/internal/errs"
)

// MapContextError returns a timeout error when err stems from a cancelled
// or expired context, and nil otherwise. Drivers call it before their own
// engine-specific classification.
func MapContextError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return nil
}

func errQuery(msg string, cause error) *errs.Error {
	return errs.Wrap(errs.ErrKindQueryFailed, msg, cause)
}

func errReadOnly(msg string) *errs.Error {
	return errs.New(errs.ErrKindPermissionDenied, msg)
}
