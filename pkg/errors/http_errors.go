package errors

import (
	stderrors "errors"
)

// FromError converts a standard error to an AppError
// If the error already is (or wraps) an AppError, that is returned
// Otherwise, it is wrapped as an internal server error
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	return NewInternalServerError(CodeInternal, "an unexpected error occurred").Wrap(err)
}
