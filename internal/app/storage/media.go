/*
Package storage keeps user media (profile pictures and message images) in an
S3-compatible bucket and hands out public URLs for it.
*/
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
)

const (
	// DefaultMaxImageBytes bounds a decoded image when no limit is configured.
	DefaultMaxImageBytes = 5 * 1024 * 1024

	// PresignedURLDuration is how long a presigned upload URL stays valid.
	PresignedURLDuration = 5 * time.Minute
)

// allowedImageTypes lists the accepted image MIME types.
var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// extToMIME maps file extensions to the MIME type a presigned upload must declare.
var extToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// Config holds the bucket connection and URL settings.
type Config struct {
	BucketName      string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	MaxImageBytes   int64
}

// objectBackend is the part of the bucket API the media store uses.
type objectBackend interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	PresignPut(ctx context.Context, key, contentType string, size int64, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// PresignedUpload describes a direct-to-bucket upload slot.
type PresignedUpload struct {
	UploadURL string `json:"presignedUrl"`
	Key       string `json:"fileKey"`
	PublicURL string `json:"url"`
}

// MediaStore validates images and stores them under random keys.
type MediaStore struct {
	backend    objectBackend
	publicBase string
	maxBytes   int64
	logger     zerolog.Logger
}

// NewMediaStore connects to the bucket described by cfg.
func NewMediaStore(ctx context.Context, cfg Config) (*MediaStore, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return newMediaStore(client, cfg), nil
}

func newMediaStore(backend objectBackend, cfg Config) *MediaStore {
	maxBytes := cfg.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}

	return &MediaStore{
		backend:    backend,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxBytes:   maxBytes,
		logger:     logx.Component("media_store"),
	}
}

// UploadImage decodes a base64 data URL, checks its real content type and size,
// stores it under prefix and returns its public URL.
func (m *MediaStore) UploadImage(ctx context.Context, prefix string, dataURL string) (string, error) {
	data, customErr := decodeDataURL(dataURL, m.maxBytes)
	if customErr != nil {
		return "", customErr
	}

	mtype := mimetype.Detect(data)
	if _, ok := allowedImageTypes[mtype.String()]; !ok {
		m.logger.Warn().Str("detected_type", mtype.String()).Msg("rejected image upload")
		return "", errs.NewError(errs.ErrFileTypeInvalid)
	}

	key := path.Join(prefix, uuid.NewString()+mtype.Extension())

	if err := m.backend.Put(ctx, key, mtype.String(), bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: %v", errs.NewError(errs.ErrFileStorageFailed), err)
	}

	m.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("image stored")
	return m.PublicURL(key), nil
}

// PresignUpload validates the declared file and returns a presigned PUT URL for it.
func (m *MediaStore) PresignUpload(
	ctx context.Context,
	prefix string,
	fileName string,
	mimeType string,
	fileSize int64,
) (PresignedUpload, error) {
	if customErr := m.validateFileSize(fileSize); customErr != nil {
		return PresignedUpload{}, customErr
	}

	if customErr := validateFileType(fileName, mimeType); customErr != nil {
		return PresignedUpload{}, customErr
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	key := path.Join(prefix, uuid.NewString()+ext)

	url, err := m.backend.PresignPut(ctx, key, strings.ToLower(mimeType), fileSize, PresignedURLDuration)
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("%w: %v", errs.NewError(errs.ErrFileStorageFailed), err)
	}

	return PresignedUpload{
		UploadURL: url,
		Key:       key,
		PublicURL: m.PublicURL(key),
	}, nil
}

// Delete removes the object stored under key.
func (m *MediaStore) Delete(ctx context.Context, key string) error {
	return m.backend.Delete(ctx, key)
}

// PublicURL returns the URL clients use to fetch key.
func (m *MediaStore) PublicURL(key string) string {
	return m.publicBase + "/" + key
}

// KeyFromURL returns the object key behind a URL produced by this store.
// URLs pointing elsewhere report false.
func (m *MediaStore) KeyFromURL(url string) (string, bool) {
	prefix := m.publicBase + "/"
	if url == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}

	key := strings.TrimPrefix(url, prefix)
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

func (m *MediaStore) validateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > m.maxBytes {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return nil
}

// validateFileType requires an allowed MIME type whose extension agrees with fileName.
func validateFileType(fileName string, mimeType string) *errs.CustomError {
	lowerMimeType := strings.ToLower(mimeType)

	if _, ok := allowedImageTypes[lowerMimeType]; !ok {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	expectedMIME, ok := extToMIME[ext]
	if !ok || expectedMIME != lowerMimeType {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	return nil
}
