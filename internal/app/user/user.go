/*
Package user defines the account model and the persistence contract the HTTP layer
depends on.
*/
package user

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when creating an account with a registered email.
	ErrEmailTaken = errors.New("email already registered")
)

// User is a registered account.
type User struct {
	ID           string
	Email        string
	FullName     string
	ProfilePic   string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Public is the client-facing view of a User; it never carries the password hash.
type Public struct {
	ID         string    `json:"_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	ProfilePic string    `json:"profilePic"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Public returns the client-facing view of u.
func (u User) Public() Public {
	return Public{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		ProfilePic: u.ProfilePic,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// NewUser holds the fields required to create an account.
type NewUser struct {
	Email        string
	FullName     string
	PasswordHash string
}

//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../../mocks/mock_user_store.go -package=mocks -mock_names=Store=MockUserStore

// Store persists accounts.
type Store interface {
	Create(ctx context.Context, in NewUser) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	ListExcept(ctx context.Context, id string) ([]User, error)
	UpdateProfilePic(ctx context.Context, id string, url string) (User, error)
}
