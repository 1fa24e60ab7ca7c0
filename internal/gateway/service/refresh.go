package service

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quillboard/quillboard/internal/gateway/domain"
	"github.com/quillboard/quillboard/pkg/cryptox"
)

// DefaultRefreshTimeout bounds one refresh round trip end to end. A
// refresh that overruns it fails; it never falls through to allowing the
// request.
const DefaultRefreshTimeout = 5 * time.Second

// RefreshService serializes refresh attempts per credential. A burst of
// requests arriving with the same expired access credential collapses into
// one backend call, and every caller receives the same rotated result.
// Without this, a rotating backend would spend the refresh credential on
// the first call and reject the rest.
type RefreshService struct {
	Backend Backend
	Timeout time.Duration

	group singleflight.Group
}

func NewRefreshService(backend Backend, timeout time.Duration) *RefreshService {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &RefreshService{Backend: backend, Timeout: timeout}
}

// Refresh exchanges a refresh credential for a fresh access credential,
// coalescing concurrent calls that present the same credential.
func (s *RefreshService) Refresh(ctx context.Context, refreshToken string, hdr http.Header) (*domain.Refreshed, error) {
	if refreshToken == "" {
		return nil, ErrMissingCredential
	}

	// Key by fingerprint, not the credential itself: singleflight keys can
	// end up in debug output.
	key := cryptox.FingerprintToken(refreshToken)

	v, err, _ := s.group.Do(key, func() (any, error) {
		// The coalesced call outlives any single caller. If the first
		// request is cancelled mid-rotation the old credential is already
		// spent, so the rotation must run to completion for the others.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Timeout)
		defer cancel()

		return s.Backend.Refresh(dctx, refreshToken, hdr)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Refreshed), nil
}
