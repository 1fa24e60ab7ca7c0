// Package service holds the gateway's identity backends, the refresh
// orchestrator and the request gate. Backends authenticate and refresh;
// the gate decides per-request whether to let traffic through. Everything
// here returns values and typed errors; HTTP concerns live one layer up.
package service

import (
	"context"
	"net/http"

	"github.com/quillboard/quillboard/internal/gateway/domain"
)

// Credentials is a login attempt as submitted by the client.
type Credentials struct {
	EmailOrUsername   string `json:"emailOrUsername"`
	Password          string `json:"password"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
}

// Backend is an identity provider the gateway authenticates against.
//
// The local backend verifies passwords and mints credentials itself; the
// remote backend proxies both operations to an external identity service.
// hdr is the inbound request's headers; backends that forward context
// (user agent, correlation IDs) pick an allow-listed subset from it and
// a nil header is always acceptable.
type Backend interface {
	// Name identifies the backend in logs and metrics ("local", "remote").
	Name() string

	// Authenticate exchanges credentials for a full session. Failed
	// verification returns ErrUnauthorized without distinguishing an
	// unknown user from a wrong password.
	Authenticate(ctx context.Context, creds Credentials, hdr http.Header) (*domain.Session, error)

	// Refresh exchanges a refresh credential for a fresh access
	// credential. Whether the refresh credential itself rotates is the
	// backend's choice; a rotated value comes back in Refreshed.
	Refresh(ctx context.Context, refreshToken string, hdr http.Header) (*domain.Refreshed, error)
}
