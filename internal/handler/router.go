/*
Package handler provides the HTTP handlers and routing setup for the chat server.

This file defines the main Router, applying middleware for logging, CORS and IP-based
rate limiting before delegating requests to the API, WebSocket and operational handlers.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/limiter"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

const (
	AuthRate  = 0.2
	AuthBurst = 5
	WSRate    = 1
	WSBurst   = 10
)

// Router builds the routing table. The returned stop function releases the
// background goroutines of the rate limiters.
func Router(deps *AppDeps) (http.Handler, func()) {
	authLimiter := limiter.NewIPRateLimiter(rate.Limit(AuthRate), AuthBurst)
	wsLimiter := limiter.NewIPRateLimiter(rate.Limit(WSRate), WSBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   deps.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":  "ok",
			"service": "dmchat",
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Get("/online", HandleOnlineUsers(deps))

		api.Route("/auth", func(auth chi.Router) {
			auth.With(authLimiter.Middleware).Post("/signup", HandleSignup(deps))
			auth.With(authLimiter.Middleware).Post("/login", HandleLogin(deps))
			auth.Post("/logout", HandleLogout(deps))

			auth.Group(func(private chi.Router) {
				private.Use(RequireUser(deps))
				private.Put("/update-profile", HandleUpdateProfile(deps))
				private.Get("/check", HandleCheckAuth())
			})
		})

		api.Route("/messages", func(messages chi.Router) {
			messages.Use(RequireUser(deps))
			messages.Get("/users", HandleListUsers(deps))
			messages.Get("/{id}", HandleGetConversation(deps))
			messages.Post("/send/{id}", HandleSendMessage(deps))
		})

		api.Route("/media", func(media chi.Router) {
			media.Use(RequireUser(deps))
			media.Post("/presign", HandlePresignUpload(deps))
		})
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, wsLimiter, deps))

	stop := func() {
		authLimiter.Stop()
		wsLimiter.Stop()
	}

	return r, stop
}
