package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/quillboard/quillboard/internal/gateway/domain"
	"github.com/quillboard/quillboard/internal/gateway/store"
	"github.com/quillboard/quillboard/pkg/cryptox"
	"github.com/quillboard/quillboard/pkg/slogx"
	"github.com/quillboard/quillboard/pkg/tokenx"
)

// LocalBackend authenticates against the gateway's own user store and
// mints credentials with the shared-secret codec. Refresh does not rotate:
// the refresh credential stays valid until its own expiry.
type LocalBackend struct {
	Store store.Store
	Codec *tokenx.Codec
}

func NewLocalBackend(st store.Store, codec *tokenx.Codec) *LocalBackend {
	return &LocalBackend{Store: st, Codec: codec}
}

func (b *LocalBackend) Name() string { return "local" }

// Authenticate looks the user up by email, verifies the password and mints
// an access/refresh pair. Unknown user and wrong password collapse into
// the same ErrUnauthorized so the response does not leak which it was.
func (b *LocalBackend) Authenticate(ctx context.Context, creds Credentials, _ http.Header) (*domain.Session, error) {
	identifier := strings.TrimSpace(creds.EmailOrUsername)
	if identifier == "" || creds.Password == "" {
		return nil, ErrMissingCredential
	}

	user, err := b.Store.Users().GetUserByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if err := cryptox.VerifyPassword(creds.Password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	// Best effort; a failed timestamp update must not block the login.
	if err := b.Store.Users().TouchLastLogin(ctx, user.ID); err != nil {
		slogx.FromContext(ctx).Warn("failed to record last login",
			"user_id", user.ID, "error", err)
	}

	principal := user.Principal()
	pair, err := b.mintPair(principal)
	if err != nil {
		return nil, err
	}

	return &domain.Session{Principal: principal, Tokens: pair}, nil
}

// Refresh verifies the refresh credential and mints a new access
// credential for the same principal. The refresh credential is returned
// untouched, so Refreshed.RefreshToken stays empty.
func (b *LocalBackend) Refresh(_ context.Context, refreshToken string, _ http.Header) (*domain.Refreshed, error) {
	if refreshToken == "" {
		return nil, ErrMissingCredential
	}

	claims, err := b.Codec.VerifyClaims(refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, tokenx.ErrExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, tokenx.ErrMalformed):
			return nil, ErrMalformedCredential
		default:
			return nil, ErrInvalidToken
		}
	}
	if !claims.IsRefresh() {
		// An access credential replayed as a refresh credential.
		return nil, ErrInvalidToken
	}

	access, err := b.Codec.Mint(claims.Principal(), tokenx.KindAccess)
	if err != nil {
		return nil, err
	}

	return &domain.Refreshed{
		AccessToken: access,
		ExpiresIn:   b.accessTTLSeconds(),
	}, nil
}

func (b *LocalBackend) mintPair(p tokenx.Principal) (domain.TokenPair, error) {
	access, err := b.Codec.Mint(p, tokenx.KindAccess)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := b.Codec.Mint(p, tokenx.KindRefresh)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        b.accessTTLSeconds(),
		RefreshExpiresIn: b.refreshTTLSeconds(),
	}, nil
}

func (b *LocalBackend) accessTTLSeconds() int64 {
	if b.Codec.AccessTTL > 0 {
		return int64(b.Codec.AccessTTL.Seconds())
	}
	return int64(tokenx.DefaultAccessTTL.Seconds())
}

func (b *LocalBackend) refreshTTLSeconds() int64 {
	if b.Codec.RefreshTTL > 0 {
		return int64(b.Codec.RefreshTTL.Seconds())
	}
	return int64(tokenx.DefaultRefreshTTL.Seconds())
}
