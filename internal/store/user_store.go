package store

import (
	"context"

	"github.com/RezaEskandarii/hostfire/types"
)

// UserStore handles dashboard user operations.
type UserStore interface {
	// Create adds a new user, replacing any user with the same name, and returns its ID.
	Create(ctx context.Context, username, password string) (int64, error)

	// Find looks up a user matching the given username and password.
	// It returns nil without error when the credentials do not match.
	Find(ctx context.Context, username, password string) (*types.User, error)

	// FindByUsername looks up a user matching the given username.
	FindByUsername(ctx context.Context, username string) (*types.User, error)

	// Delete removes a user by name.
	Delete(ctx context.Context, username string) error
}
