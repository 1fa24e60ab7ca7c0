package store

import (
	"context"
	"errors"

	"github.com/quillboard/quillboard/internal/gateway/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the data access interface for the local identity backend.
// Concrete drivers (sqlite) implement it. The remote backend never touches
// a store; identity lives upstream in that mode.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks a user up by email (case-insensitive); login
	// accepts the address as the username.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// TouchLastLogin stamps last_login_at and bumps updated_at.
	TouchLastLogin(ctx context.Context, userID string) error

	// IsEmpty returns true if there are no users (drives first-run seeding).
	IsEmpty(ctx context.Context) (bool, error)
}
