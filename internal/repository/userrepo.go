package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/m-novikov/bookhaven/internal/model"
)

// UserRepository stores account rows.
type UserRepository interface {
	// Create inserts a new user. Returns errs.ErrConflict when the email is
	// already registered.
	Create(ctx context.Context, u *model.User) error

	// GetByID selects a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)

	// GetByEmail selects a user by email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}
