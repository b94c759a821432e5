/*
Package errs provides custom error types and application-level error code constants.

CustomError implements error and carries a business code, a client-facing message
and the HTTP status used when it is rendered by the resp package.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"dmchat/internal/pkg/logx"
)

// CustomError is the error type rendered to API clients.
type CustomError struct {
	Code    int
	Message string
	Status  int
}

// Error implements the error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("error code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// NewError builds a *CustomError from a registered code.
// Details fill printf placeholders in the message; for ErrUnknown the first detail,
// when it is an error, is logged instead. Unregistered codes degrade to ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]
	if !ok {
		logx.Error(
			fmt.Errorf("unknown error code %d", code),
			"unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &unknownErr
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	switch {
	case len(details) == 0:
	case code == ErrUnknown:
		if cause, ok := details[0].(error); ok {
			logx.Error(cause, "handling ErrUnknown with underlying error")
		}
	case strings.Contains(customErr.Message, "%"):
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	default:
		logx.Warn("error details ignored, message has no placeholders", "code", code)
	}

	return &customErr
}

// As extracts a *CustomError from err, falling back to ErrUnknown.
func As(err error) *CustomError {
	if err == nil {
		return nil
	}

	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	return NewError(ErrUnknown, err)
}
