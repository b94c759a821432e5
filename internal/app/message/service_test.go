package message_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"dmchat/internal/app/message"
	"dmchat/internal/app/realtime"
	"dmchat/internal/mocks"
	"dmchat/internal/pkg/errs"
)

type fixture struct {
	store    *mocks.MockMessageStore
	notifier *mocks.MockNotifier
	images   *mocks.MockImageUploader
	svc      *message.Service
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	f := fixture{
		store:    mocks.NewMockMessageStore(ctrl),
		notifier: mocks.NewMockNotifier(ctrl),
		images:   mocks.NewMockImageUploader(ctrl),
	}
	f.svc = message.NewService(f.store, f.notifier, f.images)
	return f
}

func savedFrom(d message.Draft) message.Message {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return message.Message{
		ID:         "m-1",
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		Image:      d.Image,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSend_PersistsThenDelivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saveCall := f.store.EXPECT().
		Save(ctx, message.Draft{SenderID: "A", ReceiverID: "B", Text: "hi"}).
		DoAndReturn(func(_ context.Context, d message.Draft) (message.Message, error) {
			return savedFrom(d), nil
		})

	f.notifier.EXPECT().
		Deliver("B", realtime.EventNewMessage, gomock.AssignableToTypeOf(message.Message{})).
		DoAndReturn(func(_ string, _ string, payload any) bool {
			msg := payload.(message.Message)
			assert.Equal(t, "m-1", msg.ID)
			assert.Equal(t, "hi", msg.Text)
			return true
		}).
		After(saveCall)

	got, err := f.svc.Send(ctx, "A", "B", message.SendInput{Text: "  hi  "})
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.ID)
	assert.Equal(t, "A", got.SenderID)
	assert.Equal(t, "B", got.ReceiverID)
}

func TestSend_OfflineReceiverStillSucceeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.EXPECT().Save(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, d message.Draft) (message.Message, error) {
			return savedFrom(d), nil
		})
	f.notifier.EXPECT().Deliver("B", realtime.EventNewMessage, gomock.Any()).Return(false)

	got, err := f.svc.Send(ctx, "A", "B", message.SendInput{Text: "later"})
	require.NoError(t, err)
	assert.Equal(t, "later", got.Text)
}

func TestSend_SaveFailureSkipsDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dbErr := errors.New("connection reset")
	f.store.EXPECT().Save(ctx, gomock.Any()).Return(message.Message{}, dbErr)

	_, err := f.svc.Send(ctx, "A", "B", message.SendInput{Text: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
}

func TestSend_UploadsImageBeforeSaving(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const dataURL = "data:image/png;base64,AAAA"
	const url = "https://cdn.example.com/messages/abc.png"

	upload := f.images.EXPECT().UploadImage(ctx, "messages", dataURL).Return(url, nil)
	save := f.store.EXPECT().
		Save(ctx, message.Draft{SenderID: "A", ReceiverID: "B", Image: url}).
		DoAndReturn(func(_ context.Context, d message.Draft) (message.Message, error) {
			return savedFrom(d), nil
		}).
		After(upload)
	f.notifier.EXPECT().Deliver("B", realtime.EventNewMessage, gomock.Any()).Return(true).After(save)

	got, err := f.svc.Send(ctx, "A", "B", message.SendInput{Image: dataURL})
	require.NoError(t, err)
	assert.Equal(t, url, got.Image)
	assert.Empty(t, got.Text)
}

func TestSend_UploadFailureSkipsSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uploadErr := errs.NewError(errs.ErrFileTypeInvalid)
	f.images.EXPECT().UploadImage(ctx, "messages", gomock.Any()).Return("", uploadErr)

	_, err := f.svc.Send(ctx, "A", "B", message.SendInput{Text: "look", Image: "data:text/plain;base64,aGk="})
	require.Error(t, err)

	custom := errs.As(err)
	require.NotNil(t, custom)
	assert.Equal(t, errs.ErrFileTypeInvalid, custom.Code)
}

func TestSend_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   message.SendInput
		code int
	}{
		{"empty", message.SendInput{}, errs.ErrMessageEmpty},
		{"whitespace only", message.SendInput{Text: " \n\t "}, errs.ErrMessageEmpty},
		{"too long", message.SendInput{Text: strings.Repeat("x", message.MaxTextBytes+1)}, errs.ErrMessageContentTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Send(context.Background(), "A", "B", tt.in)
			require.Error(t, err)

			custom := errs.As(err)
			require.NotNil(t, custom)
			assert.Equal(t, tt.code, custom.Code)
		})
	}
}

func TestSend_ImageWithoutUploader(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := message.NewService(mocks.NewMockMessageStore(ctrl), mocks.NewMockNotifier(ctrl), nil)

	_, err := svc.Send(context.Background(), "A", "B", message.SendInput{Image: "data:image/png;base64,AAAA"})
	require.Error(t, err)

	custom := errs.As(err)
	require.NotNil(t, custom)
	assert.Equal(t, errs.ErrFileStorageFailed, custom.Code)
}

func TestConversation(t *testing.T) {
	t.Run("returns history", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		history := []message.Message{{ID: "1"}, {ID: "2"}}
		f.store.EXPECT().FindConversation(ctx, "A", "B").Return(history, nil)

		got, err := f.svc.Conversation(ctx, "A", "B")
		require.NoError(t, err)
		assert.Equal(t, history, got)
	})

	t.Run("empty history is not nil", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		f.store.EXPECT().FindConversation(ctx, "A", "B").Return(nil, nil)

		got, err := f.svc.Conversation(ctx, "A", "B")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
