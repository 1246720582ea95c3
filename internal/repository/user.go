package repository

import (
	"context"

	"github.com/mdscolour/clawfactory/internal/domain"
)

// UserRepository defines storage operations for accounts.
type UserRepository interface {
	// FindByUsername returns the user with the given username, or
	// ErrUserNotFound.
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	// FindByID returns the user with the given id, or ErrUserNotFound.
	FindByID(ctx context.Context, id uint) (*domain.User, error)

	// FindByIdentity returns the user linked to the external identity
	// (provider, providerID), or ErrUserNotFound.
	FindByIdentity(ctx context.Context, provider, providerID string) (*domain.User, error)

	// Save inserts the user when ID is zero, updates it otherwise. Returns
	// ErrDuplicateEntry on a username/email collision.
	Save(ctx context.Context, user *domain.User) error
}
