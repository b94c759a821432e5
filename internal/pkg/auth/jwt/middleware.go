package jwt

import (
	"context"
	"net/http"
	"strings"
	"time"

	"dmchat/internal/pkg/logx"
)

type contextKey string

const (
	// ContextAuthPayloadKey stores the parsed *Payload in the request context.
	ContextAuthPayloadKey contextKey = "auth_payload"

	// CookieName is the cookie that carries the session token.
	CookieName = "jwt"
)

// IdentityExtractorMiddleware parses the session token from the `jwt` cookie or a Bearer
// Authorization header and stores the payload in the request context. Missing or invalid
// tokens never fail the request; downstream handlers decide whether identity is required.
func IdentityExtractorMiddleware(secretKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromRequest(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			payload, err := ParseToken(tokenString, secretKey)
			if err != nil {
				logx.Ctx(r.Context()).Warn().Err(err).Msg("invalid session token, treating request as anonymous")
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextAuthPayloadKey, payload)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return strings.TrimSpace(parts[1])
	}

	return ""
}

// GetPayloadFromContext returns the authenticated payload, or nil for anonymous requests.
func GetPayloadFromContext(r *http.Request) *Payload {
	payload, ok := r.Context().Value(ContextAuthPayloadKey).(*Payload)
	if !ok {
		return nil
	}
	return payload
}

// SetSessionCookie issues the httpOnly, SameSite=Strict session cookie.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
