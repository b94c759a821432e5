/*
Package errs provides custom error types and application-level error code constants.

This file maps every error code to its client message and HTTP status.
*/
package errs

import "net/http"

var errorMap = map[int]CustomError{
	// 1xxx
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType:  {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:     {Code: ErrInvalidJSONFormat, Message: "Malformed JSON body.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:    {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRequestEntityTooLarge: {Code: ErrRequestEntityTooLarge, Message: "Request size is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrValidationFailed:      {Code: ErrValidationFailed, Message: "Invalid field: %s.", Status: http.StatusBadRequest},

	// 2xxx
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "Message must contain text or an image.", Status: http.StatusBadRequest},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long.", Status: http.StatusBadRequest},
	ErrReceiverNotFound:      {Code: ErrReceiverNotFound, Message: "Receiver not found.", Status: http.StatusNotFound},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Message: "File is too large.", Status: http.StatusRequestEntityTooLarge},
	ErrFileTypeInvalid:       {Code: ErrFileTypeInvalid, Message: "Unsupported image type.", Status: http.StatusBadRequest},
	ErrImageRequired:         {Code: ErrImageRequired, Message: "Profile pic is required.", Status: http.StatusBadRequest},

	// 3xxx
	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Invalid credentials.", Status: http.StatusBadRequest},
	ErrEmailAlreadyExists: {Code: ErrEmailAlreadyExists, Message: "Email already exists.", Status: http.StatusConflict},
	ErrInvalidPassword:    {Code: ErrInvalidPassword, Message: "Password must be at least 6 characters.", Status: http.StatusBadRequest},
	ErrUserNotFound:       {Code: ErrUserNotFound, Message: "Account not found.", Status: http.StatusNotFound},

	// 5xxx
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrFileStorageFailed: {Code: ErrFileStorageFailed, Message: "File upload failed. Please try again.", Status: http.StatusBadGateway},
}
