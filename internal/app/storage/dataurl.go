package storage

import (
	"encoding/base64"
	"strings"

	"dmchat/internal/pkg/errs"
)

// decodeDataURL extracts the bytes of a base64 data URL ("data:<type>;base64,<payload>").
// The declared type is ignored; callers sniff the content instead.
func decodeDataURL(dataURL string, maxBytes int64) ([]byte, *errs.CustomError) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") || payload == "" {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	if int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes+2 {
		return nil, errs.NewError(errs.ErrFileSizeTooLarge)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	if int64(len(data)) > maxBytes {
		return nil, errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return data, nil
}
