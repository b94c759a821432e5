/*
Package errs provides custom error types and application-level error code constants.

The codes identify business and system failures both in server logs and in the
JSON envelopes returned to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body is not valid JSON.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained data after the JSON value.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body exceeded the server limit.
	ErrRequestEntityTooLarge = 1006

	// ErrRateLimitExceeded indicates that the client exceeded its request rate.
	ErrRateLimitExceeded = 1007

	// ErrValidationFailed indicates that a bound request struct failed field validation.
	ErrValidationFailed = 1008
)

// 2xxx: Message and Media Errors
const (
	// ErrMessageEmpty indicates that a message carried neither text nor an image.
	ErrMessageEmpty = 2201

	// ErrMessageContentTooLong indicates that the message text exceeded the maximum length.
	ErrMessageContentTooLong = 2202

	// ErrReceiverNotFound indicates that the addressed receiver does not exist.
	ErrReceiverNotFound = 2203

	// ErrFileSizeTooLarge indicates that an uploaded image exceeded the size limit.
	ErrFileSizeTooLarge = 2301

	// ErrFileTypeInvalid indicates that an uploaded image has an unsupported type.
	ErrFileTypeInvalid = 2302

	// ErrImageRequired indicates that a profile update did not carry an image.
	ErrImageRequired = 2303
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates that the request carries no valid session.
	ErrUnauthorized = 3001

	// ErrInvalidCredentials indicates a login with an unknown email or wrong password.
	ErrInvalidCredentials = 3002

	// ErrEmailAlreadyExists indicates a signup with an email that is already registered.
	ErrEmailAlreadyExists = 3003

	// ErrInvalidPassword indicates that the password does not satisfy the length rules.
	ErrInvalidPassword = 3004

	// ErrUserNotFound indicates that the referenced account does not exist.
	ErrUserNotFound = 3005
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal server error.
	ErrUnknown = 5000

	// ErrFileStorageFailed indicates that the media store rejected an operation.
	ErrFileStorageFailed = 5001
)
