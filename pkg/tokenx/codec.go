// Package tokenx implements the gateway's credential codec: minting and
// verifying signed, time-bounded session credentials and extracting them
// from transport headers.
//
// Credentials are HS256 JWTs signed with a single shared secret. The codec
// never talks to the network and never stores anything; validity is purely
// a function of signature and expiry.
package tokenx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default credential TTLs. Short-lived access, longer-lived refresh.
// Services override these from configuration.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Kind selects which credential flavour Mint produces.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// refreshType is the discriminator claim value set on self-issued refresh
// credentials so an access credential can never be replayed as a refresh.
const refreshType = "refresh"

var (
	ErrMalformed        = errors.New("tokenx: malformed credential")
	ErrSignatureInvalid = errors.New("tokenx: invalid signature")
	ErrExpired          = errors.New("tokenx: credential expired")
	ErrNotRefresh       = errors.New("tokenx: credential is not a refresh credential")
)

// Principal is the identity embedded in a credential. Immutable once
// issued; whatever is minted is what comes back out of Verify.
type Principal struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Claims is the full claim set carried by gateway-issued credentials.
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`

	// Type is "refresh" on refresh credentials and empty otherwise.
	Type string `json:"type,omitempty"`
}

// Principal reassembles the identity from the claim set.
func (c Claims) Principal() Principal {
	return Principal{
		UserID: c.Subject,
		Email:  c.Email,
		Name:   c.Name,
		Role:   c.Role,
	}
}

// IsRefresh reports whether the claims carry the refresh discriminator.
func (c Claims) IsRefresh() bool { return c.Type == refreshType }

// Codec mints and verifies credentials with a shared HS256 secret.
//
// Now is injectable so expiry behaviour is testable; nil means time.Now.
type Codec struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Codec) ttl(kind Kind) time.Duration {
	if kind == KindRefresh {
		if c.RefreshTTL > 0 {
			return c.RefreshTTL
		}
		return DefaultRefreshTTL
	}
	if c.AccessTTL > 0 {
		return c.AccessTTL
	}
	return DefaultAccessTTL
}

// Mint signs a credential embedding p. KindRefresh additionally sets the
// refresh discriminator and uses the long TTL.
func (c *Codec) Mint(p Principal, kind Kind) (string, error) {
	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.Issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl(kind))),
		},
		Email: p.Email,
		Name:  p.Name,
		Role:  p.Role,
	}
	if kind == KindRefresh {
		claims.Type = refreshType
	}
	return c.sign(claims)
}

func (c *Codec) sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.Secret)
	if err != nil {
		return "", fmt.Errorf("tokenx: sign: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a credential and returns the
// embedded Principal. Expired and malformed credentials are distinguishable
// error kinds: expired triggers a refresh upstream, malformed is a hard
// rejection.
func (c *Codec) Verify(token string) (Principal, error) {
	claims, err := c.VerifyClaims(token)
	if err != nil {
		return Principal{}, err
	}
	return claims.Principal(), nil
}

// VerifyClaims is Verify but returns the full claim set, for callers that
// need the refresh discriminator or the remaining lifetime.
func (c *Codec) VerifyClaims(token string) (Claims, error) {
	var claims Claims
	_, err := jwt.NewParser(jwt.WithTimeFunc(c.now)).ParseWithClaims(
		token,
		&claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return c.Secret, nil
		},
	)
	if err != nil {
		return Claims{}, mapParseError(err)
	}
	return claims, nil
}

// DecodeUnverified parses the claim set without checking the signature.
//
// This exists only for credentials minted by a remote identity service
// whose signing key the gateway does not hold; it reads display claims and
// must never be used to authorize a request.
func DecodeUnverified(token string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Claims{}, ErrMalformed
	}
	return claims, nil
}

// ReAudience narrows a credential to a specific audience without extending
// its life: the credential is verified, then re-signed with the same claims
// plus the audience and only its remaining TTL.
func (c *Codec) ReAudience(token, audience string) (string, error) {
	claims, err := c.VerifyClaims(token)
	if err != nil {
		return "", err
	}
	claims.Audience = jwt.ClaimStrings{audience}
	claims.IssuedAt = jwt.NewNumericDate(c.now())
	// ExpiresAt is carried over untouched, so the remaining lifetime is
	// whatever the original credential had left.
	return c.sign(claims)
}

// mapParseError collapses golang-jwt's joined errors into the codec's
// sentinel taxonomy. Signature problems win over expiry: a token we cannot
// trust is malformed/forged, not merely stale.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
