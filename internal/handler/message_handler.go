package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

// messageImagePrefix is the object-key prefix for presigned message uploads.
const messageImagePrefix = "messages"

// peerID reads and validates the {id} path parameter.
func peerID(r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// HandleListUsers returns every user except the caller, for the sidebar.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)

		users, err := deps.Users.ListExcept(r.Context(), me.ID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		resp.RespondSuccess(w, r, lo.Map(users, func(u user.User, _ int) user.Public {
			return u.Public()
		}))
	}
}

// HandleGetConversation returns the history between the caller and {id}.
func HandleGetConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)

		other, ok := peerID(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		msgs, err := deps.Messages.Conversation(r.Context(), me.ID, other)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondSuccess(w, r, []message.Message{})
				return
			}
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		resp.RespondSuccess(w, r, msgs)
	}
}

// HandleSendMessage persists a message to {id} and pushes it to the receiver if online.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)

		receiverID, ok := peerID(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input message.SendInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.Messages.Send(r.Context(), me.ID, receiverID, input)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrReceiverNotFound))
				return
			}

			logx.Ctx(r.Context()).Warn().Err(err).Str("receiver_id", receiverID).Msg("send message failed")
			resp.RespondError(w, r, errs.As(err))
			return
		}

		resp.RespondCreated(w, r, msg)
	}
}

type PresignUploadInput struct {
	FileName string `json:"fileName" validate:"required,max=255"`
	MimeType string `json:"mimeType" validate:"required"`
	FileSize int64  `json:"fileSize" validate:"required,gt=0"`
}

// HandlePresignUpload returns a time-limited URL the client can upload a message
// image to directly, together with the public URL to send afterwards.
func HandlePresignUpload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PresignUploadInput
		if customErr := req.BindAndValidate(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if deps.Media == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		upload, err := deps.Media.PresignUpload(r.Context(), messageImagePrefix, input.FileName, input.MimeType, input.FileSize)
		if err != nil {
			resp.RespondError(w, r, errs.As(err))
			return
		}

		resp.RespondSuccess(w, r, upload)
	}
}
