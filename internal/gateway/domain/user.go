package domain

import (
	"time"

	"github.com/quillboard/quillboard/pkg/tokenx"
)

// User is a stored identity the local backend authenticates against.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string // argon2id PHC encoded
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the claim-set identity minted into credentials.
// Everything else about the user stays server-side.
func (u User) Principal() tokenx.Principal {
	return tokenx.Principal{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	}
}
