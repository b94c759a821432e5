/*
Package resp provides helpers for writing the server's standard JSON envelope.

Every API response carries a business code (0 on success), a message and an
optional data payload.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
)

// JSONResponse is the envelope returned to API clients.
type JSONResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RespondJSON marshals payload and writes it with the given status.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	body, err := json.Marshal(payload)
	if err != nil {
		logx.Ctx(r.Context()).Error().Err(err).Int("http_status", httpStatus).Msg("error encoding JSON response")
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	_, _ = w.Write(body)
}

// RespondSuccess writes a 200 envelope around data.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, JSONResponse{Code: 0, Message: "success", Data: data})
}

// RespondCreated writes a 201 envelope around data.
func RespondCreated(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusCreated, JSONResponse{Code: 0, Message: "created", Data: data})
}

// RespondError writes the envelope for customErr. A nil error is reported as ErrUnknown.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	RespondJSON(w, r, customErr.Status, JSONResponse{
		Code:    customErr.Code,
		Message: customErr.Message,
	})
}
