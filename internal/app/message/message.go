/*
Package message holds the direct-message model and the send flow: validate, upload
the optional image, persist, then hand the persisted record to real-time delivery.
*/
package message

import (
	"context"
	"time"
)

// MaxTextBytes bounds the text of one message.
const MaxTextBytes = 5000

// Message is a persisted direct message. It is immutable once saved.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Draft is a message that has not been persisted yet.
type Draft struct {
	SenderID   string
	ReceiverID string
	Text       string
	Image      string
}

//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../../mocks/mock_message_store.go -package=mocks -mock_names=Store=MockMessageStore

// Store persists messages. Save must return only after the message is durable.
type Store interface {
	Save(ctx context.Context, d Draft) (Message, error)
	FindConversation(ctx context.Context, a, b string) ([]Message, error)
}

// Notifier pushes an event to a connected user. It reports whether the user was
// connected; a false result is not an error.
type Notifier interface {
	Deliver(receiverID, event string, payload any) bool
}

// ImageUploader stores an inline image and returns its public URL.
type ImageUploader interface {
	UploadImage(ctx context.Context, prefix string, dataURL string) (string, error)
}
