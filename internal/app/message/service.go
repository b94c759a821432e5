package message

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"dmchat/internal/app/realtime"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/metrics"
)

// imagePrefix is the object-key prefix for message attachments.
const imagePrefix = "messages"

// SendInput is what a sender submits.
type SendInput struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// Service implements sending and reading conversations.
type Service struct {
	store    Store
	notifier Notifier
	images   ImageUploader
	logger   zerolog.Logger
}

// NewService wires the send flow. images may be nil when media storage is disabled;
// messages carrying an image are then rejected.
func NewService(store Store, notifier Notifier, images ImageUploader) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		images:   images,
		logger:   logx.Component("message_service"),
	}
}

// Send persists a message from senderID to receiverID and then offers it to the
// receiver's live connection. The returned message reflects persistence only;
// whether the receiver was online does not affect it.
func (s *Service) Send(ctx context.Context, senderID, receiverID string, in SendInput) (Message, error) {
	text := strings.TrimSpace(in.Text)

	if text == "" && in.Image == "" {
		return Message{}, errs.NewError(errs.ErrMessageEmpty)
	}

	if len(text) > MaxTextBytes {
		return Message{}, errs.NewError(errs.ErrMessageContentTooLong)
	}

	var imageURL string
	if in.Image != "" {
		if s.images == nil {
			return Message{}, errs.NewError(errs.ErrFileStorageFailed)
		}

		url, err := s.images.UploadImage(ctx, imagePrefix, in.Image)
		if err != nil {
			return Message{}, fmt.Errorf("upload message image: %w", err)
		}
		imageURL = url
	}

	saved, err := s.store.Save(ctx, Draft{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      imageURL,
	})
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	metrics.MessagesSent.Inc()

	delivered := s.notifier.Deliver(receiverID, realtime.EventNewMessage, saved)

	s.logger.Debug().
		Str("message_id", saved.ID).
		Str("sender_id", senderID).
		Str("receiver_id", receiverID).
		Bool("delivered", delivered).
		Msg("message sent")

	return saved, nil
}

// Conversation returns every message exchanged between me and other, oldest first.
func (s *Service) Conversation(ctx context.Context, me, other string) ([]Message, error) {
	msgs, err := s.store.FindConversation(ctx, me, other)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}
