/*
Package handler provides the HTTP handlers and routing for the chat server.

This file holds account handlers: signup, login, logout, profile picture updates
and the session check, plus the middleware that turns a session token into a user.
*/
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"dmchat/internal/app/user"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72

	// avatarPrefix is the object-key prefix for profile pictures.
	avatarPrefix = "avatars"
)

type userContextKey struct{}

// RequireUser rejects requests without a valid session and stores the session's
// user in the request context.
func RequireUser(deps *AppDeps) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload := jwt.GetPayloadFromContext(r)
			if payload == nil {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			u, err := deps.Users.FindByID(r.Context(), payload.UserID)
			if err != nil {
				if errors.Is(err, user.ErrNotFound) {
					logx.Ctx(r.Context()).Warn().Str("user_id", payload.UserID).Msg("session refers to a missing user")
					resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
					return
				}

				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// currentUser returns the user stored by RequireUser.
func currentUser(r *http.Request) user.User {
	u, _ := r.Context().Value(userContextKey{}).(user.User)
	return u
}

// issueSession signs a token for u and sets it as the session cookie.
func issueSession(w http.ResponseWriter, deps *AppDeps, u user.User) error {
	token, err := jwt.GenerateToken(u.ID, deps.Config.JWTSecret, deps.Config.JWTTTL)
	if err != nil {
		return err
	}

	jwt.SetSessionCookie(w, token, deps.Config.JWTTTL, deps.secureCookies())
	return nil
}

type SignupInput struct {
	FullName string `json:"fullName" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

// HandleSignup creates an account and starts a session for it.
func HandleSignup(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SignupInput
		if customErr := req.BindAndValidate(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		passwordLen := utf8.RuneCountInString(input.Password)
		if passwordLen < minPasswordLen || len(input.Password) > maxPasswordLen {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPassword))
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		u, err := deps.Users.Create(r.Context(), user.NewUser{
			Email:        input.Email,
			FullName:     input.FullName,
			PasswordHash: string(hashedPassword),
		})
		if err != nil {
			if errors.Is(err, user.ErrEmailTaken) {
				logx.Ctx(r.Context()).Warn().Msg("signup conflict: email already registered")
				resp.RespondError(w, r, errs.NewError(errs.ErrEmailAlreadyExists))
				return
			}

			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		if err := issueSession(w, deps, u); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		logx.Ctx(r.Context()).Info().Str("user_id", u.ID).Msg("user signed up")
		resp.RespondCreated(w, r, u.Public())
	}
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin verifies credentials and starts a session.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindAndValidate(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, err := deps.Users.FindByEmail(r.Context(), input.Email)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
				return
			}

			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(input.Password)); err != nil {
			logx.Ctx(r.Context()).Warn().Str("user_id", u.ID).Msg("login: password mismatch")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := issueSession(w, deps, u); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		resp.RespondSuccess(w, r, u.Public())
	}
}

// HandleLogout clears the session cookie. It succeeds without a session too.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwt.ClearSessionCookie(w, deps.secureCookies())
		resp.RespondSuccess(w, r, nil)
	}
}

type UpdateProfileInput struct {
	ProfilePic string `json:"profilePic"`
}

// HandleUpdateProfile stores a new profile picture and removes the previous one.
func HandleUpdateProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)

		var input UpdateProfileInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.ProfilePic == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrImageRequired))
			return
		}

		if deps.Media == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		url, err := deps.Media.UploadImage(r.Context(), avatarPrefix, input.ProfilePic)
		if err != nil {
			logx.Ctx(r.Context()).Warn().Err(err).Msg("profile picture upload failed")
			resp.RespondError(w, r, errs.As(err))
			return
		}

		updated, err := deps.Users.UpdateProfilePic(r.Context(), me.ID, url)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		if oldKey, ok := deps.Media.KeyFromURL(me.ProfilePic); ok && me.ProfilePic != url {
			go func(key string) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := deps.Media.Delete(ctx, key); err != nil {
					logx.Error(err, "failed to delete previous profile picture", "key", key)
				}
			}(oldKey)
		}

		resp.RespondSuccess(w, r, updated.Public())
	}
}

// HandleCheckAuth returns the user behind the current session.
func HandleCheckAuth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, currentUser(r).Public())
	}
}
