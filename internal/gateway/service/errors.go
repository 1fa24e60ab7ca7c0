package service

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by both identity backends. Handlers translate
// these into HTTP outcomes; nothing at this layer writes a response or
// redirects.
var (
	ErrMissingCredential   = errors.New("missing_credential")
	ErrMalformedCredential = errors.New("malformed_credential")
	ErrUnauthorized        = errors.New("invalid_credentials")
	ErrInvalidToken        = errors.New("invalid_token")
	ErrExpiredToken        = errors.New("token_expired")

	// ErrNotConfigured means the remote backend was selected without an
	// endpoint configured. Surfaced as a 500, never a silent fallback.
	ErrNotConfigured = errors.New("identity_backend_not_configured")

	// ErrUpstreamUnavailable covers transport failures and an open circuit
	// breaker on the way to the remote identity service.
	ErrUpstreamUnavailable = errors.New("identity_backend_unavailable")

	// ErrUpstreamTimeout is an ErrUpstreamUnavailable variant the gate
	// treats as a plain refresh failure rather than a fail-open condition.
	ErrUpstreamTimeout = errors.New("identity_backend_timeout")

	// ErrRotationConflict means the upstream rejected a refresh credential,
	// typically one already spent by a concurrent rotation. Forces login.
	ErrRotationConflict = errors.New("rotation_conflict")
)

// UpstreamError carries a remote identity service failure verbatim so
// handlers can propagate the original status code and message. Client-side
// retry logic relies on telling credential errors apart from service
// errors.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream identity service: %d %s", e.Status, e.Message)
}
