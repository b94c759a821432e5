/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains HandleWebSocket, which rate limits the handshake, upgrades the connection,
attaches it to the realtime dispatcher and runs the client until it disconnects.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"dmchat/internal/app/realtime"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/limiter"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

// HandshakeUserIDParam is the query parameter carrying the connecting user's id.
const HandshakeUserIDParam = "userId"

// HandleWebSocket upgrades GET /ws. A missing userId yields an anonymous connection
// that still receives online-user broadcasts.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	clientCfg := deps.clientConfig()

	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)
		if !rateLimiter.Allow(ip) {
			logx.Ctx(r.Context()).Warn().Msg("WebSocket connection rejected: rate limit exceeded")
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		userID := r.URL.Query().Get(HandshakeUserIDParam)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Ctx(r.Context()).Warn().Err(err).Msg("failed to upgrade connection to WebSocket")
			return
		}

		client := realtime.NewClient(conn, userID, clientCfg)

		go client.WritePump()

		deps.Dispatcher.Connect(userID, client)

		logx.Ctx(r.Context()).Info().
			Str("connection_id", client.ID()).
			Str("user_id", userID).
			Bool("anonymous", userID == "").
			Msg("WebSocket connection established")

		client.ReadPump(func() {
			deps.Dispatcher.Disconnect(userID, client)
		})
	}
}

// HandleOnlineUsers returns the ids of the users currently connected.
func HandleOnlineUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Dispatcher.OnlineUsers())
	}
}
