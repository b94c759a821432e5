/*
Package req provides helpers for decoding and validating HTTP request bodies.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"dmchat/internal/pkg/errs"
)

// MaxJSONBodySize bounds JSON bodies. Inline base64 images make message bodies large.
const MaxJSONBodySize int64 = 10 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindJSON decodes a single JSON value from the request body into dst.
// Unknown fields and trailing data are rejected.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// BindAndValidate runs BindJSON and then the struct's `validate` tags.
// The first failing field is named in the error message using its JSON name.
func BindAndValidate(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	if customErr := BindJSON(w, r, dst); customErr != nil {
		return customErr
	}

	return Validate(dst)
}

// Validate checks dst against its `validate` struct tags.
func Validate(dst any) *errs.CustomError {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return errs.NewError(errs.ErrValidationFailed, jsonFieldName(fieldErrs[0]))
	}

	return errs.NewError(errs.ErrInvalidParams)
}

func jsonFieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(name[:1]) + name[1:]
}
