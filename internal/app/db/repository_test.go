package db

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

// testPool connects to DMCHAT_TEST_DATABASE_URL and skips the test when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DMCHAT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DMCHAT_TEST_DATABASE_URL not set")
	}

	pool, err := NewPool(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func createTestUser(t *testing.T, repo *UserRepository, name string) user.User {
	t.Helper()

	u, err := repo.Create(context.Background(), user.NewUser{
		Email:        name + "-" + uuid.NewString()[:8] + "@example.com",
		FullName:     name,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return u
}

func TestUserRepository(t *testing.T) {
	pool := testPool(t)
	repo := NewUserRepository(pool)
	ctx := context.Background()

	alice := createTestUser(t, repo, "alice")
	assert.NotEmpty(t, alice.ID)
	assert.Empty(t, alice.ProfilePic)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := repo.Create(ctx, user.NewUser{Email: alice.Email, FullName: "x", PasswordHash: "h"})
		assert.ErrorIs(t, err, user.ErrEmailTaken)
	})

	t.Run("find by email ignores case", func(t *testing.T) {
		got, err := repo.FindByEmail(ctx, "  "+strings.ToUpper(alice.Email)+" ")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("find by id", func(t *testing.T) {
		got, err := repo.FindByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.Email, got.Email)

		_, err = repo.FindByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, user.ErrNotFound)

		_, err = repo.FindByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, user.ErrNotFound)
	})

	t.Run("update profile pic", func(t *testing.T) {
		got, err := repo.UpdateProfilePic(ctx, alice.ID, "https://cdn.example.com/avatars/a.png")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/avatars/a.png", got.ProfilePic)
		assert.False(t, got.UpdatedAt.Before(alice.UpdatedAt))
	})

	t.Run("list except", func(t *testing.T) {
		bob := createTestUser(t, repo, "bob")

		users, err := repo.ListExcept(ctx, alice.ID)
		require.NoError(t, err)

		ids := make(map[string]bool, len(users))
		for _, u := range users {
			ids[u.ID] = true
		}
		assert.False(t, ids[alice.ID])
		assert.True(t, ids[bob.ID])
	})
}

func TestMessageRepository(t *testing.T) {
	pool := testPool(t)
	users := NewUserRepository(pool)
	repo := NewMessageRepository(pool)
	ctx := context.Background()

	a := createTestUser(t, users, "a")
	b := createTestUser(t, users, "b")
	c := createTestUser(t, users, "c")

	first, err := repo.Save(ctx, message.Draft{SenderID: a.ID, ReceiverID: b.ID, Text: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.WithinDuration(t, time.Now(), first.CreatedAt, time.Minute)

	_, err = repo.Save(ctx, message.Draft{SenderID: b.ID, ReceiverID: a.ID, Image: "https://cdn.example.com/m/1.png"})
	require.NoError(t, err)

	_, err = repo.Save(ctx, message.Draft{SenderID: a.ID, ReceiverID: c.ID, Text: "other thread"})
	require.NoError(t, err)

	t.Run("conversation is symmetric and ordered", func(t *testing.T) {
		ab, err := repo.FindConversation(ctx, a.ID, b.ID)
		require.NoError(t, err)
		ba, err := repo.FindConversation(ctx, b.ID, a.ID)
		require.NoError(t, err)

		require.Len(t, ab, 2)
		assert.Equal(t, ab, ba)
		assert.Equal(t, "hello", ab[0].Text)
		assert.Equal(t, "https://cdn.example.com/m/1.png", ab[1].Image)
		assert.False(t, ab[1].CreatedAt.Before(ab[0].CreatedAt))
	})

	t.Run("unknown receiver", func(t *testing.T) {
		_, err := repo.Save(ctx, message.Draft{SenderID: a.ID, ReceiverID: uuid.NewString(), Text: "x"})
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}
