package handler

import (
	"context"

	"dmchat/internal/app/message"
	"dmchat/internal/app/realtime"
	"dmchat/internal/app/storage"
	"dmchat/internal/app/user"
	"dmchat/internal/configs"
)

//go:generate go run go.uber.org/mock/mockgen -source=deps.go -destination=../mocks/mock_media_store.go -package=mocks

// MediaStore is the media storage the handlers use for profile pictures and
// presigned message uploads.
type MediaStore interface {
	UploadImage(ctx context.Context, prefix string, dataURL string) (string, error)
	PresignUpload(ctx context.Context, prefix, fileName, mimeType string, fileSize int64) (storage.PresignedUpload, error)
	Delete(ctx context.Context, key string) error
	KeyFromURL(url string) (string, bool)
}

// AppDeps bundles everything the HTTP layer needs.
type AppDeps struct {
	Config     *configs.AppConfig
	Dispatcher *realtime.Dispatcher
	Users      user.Store
	Messages   *message.Service

	// Media is nil when media storage is not configured.
	Media MediaStore
}

// secureCookies reports whether session cookies need the Secure attribute.
func (d *AppDeps) secureCookies() bool {
	return !d.Config.IsDevelopment()
}

// clientConfig maps realtime settings onto per-connection options.
func (d *AppDeps) clientConfig() realtime.ClientConfig {
	return realtime.ClientConfig{
		SendBuffer: d.Config.WSSendBuffer,
		Heartbeat:  d.Config.WSHeartbeat,
		PongWait:   d.Config.WSPongWait,
	}
}
