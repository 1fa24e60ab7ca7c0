package service_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillboard/quillboard/internal/gateway/domain"
	"github.com/quillboard/quillboard/internal/gateway/service"
	"github.com/quillboard/quillboard/pkg/tokenx"
)

func gateConfig() service.GateConfig {
	return service.GateConfig{
		Required:          true,
		ExcludedRoutes:    []string{"/login", "/api/health"},
		AccessCookieName:  "access_token",
		RefreshCookieName: "refresh_token",
		LoginPath:         "/login",
	}
}

func newGate(cfg service.GateConfig, backend service.Backend) *service.Gate {
	return service.NewGate(cfg, newTestCodec(),
		service.NewRefreshService(backend, time.Second), nil)
}

func cookieHeader(pairs ...string) http.Header {
	hdr := http.Header{}
	if len(pairs) > 0 {
		joined := pairs[0]
		for _, p := range pairs[1:] {
			joined += "; " + p
		}
		hdr.Set("Cookie", joined)
	}
	return hdr
}

func mintExpired(t *testing.T, kind tokenx.Kind) string {
	t.Helper()
	codec := newTestCodec()
	codec.Now = func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	tok, err := codec.Mint(tokenx.Principal{UserID: "u1", Role: "admin"}, kind)
	require.NoError(t, err)
	return tok
}

func mintValid(t *testing.T, kind tokenx.Kind) string {
	t.Helper()
	tok, err := newTestCodec().Mint(tokenx.Principal{UserID: "u1", Role: "admin"}, kind)
	require.NoError(t, err)
	return tok
}

func TestGateBypasses(t *testing.T) {
	ctx := context.Background()
	backend := &stubBackend{}

	t.Run("gating disabled", func(t *testing.T) {
		cfg := gateConfig()
		cfg.Required = false
		d := newGate(cfg, backend).Evaluate(ctx, "/dashboard", http.Header{})
		require.Equal(t, service.ActionAllow, d.Action)
	})

	t.Run("excluded route, exact", func(t *testing.T) {
		d := newGate(gateConfig(), backend).Evaluate(ctx, "/login", http.Header{})
		require.Equal(t, service.ActionAllow, d.Action)
	})

	t.Run("internal asset prefix", func(t *testing.T) {
		d := newGate(gateConfig(), backend).Evaluate(ctx, "/static/app.js", http.Header{})
		require.Equal(t, service.ActionAllow, d.Action)
	})

	require.EqualValues(t, 0, backend.refreshCalls.Load())
}

// Exclusions match as prefixes, so "/api/health" also exempts
// "/api/healthz" and "/api/health-detailed". Deployments that want exact
// matching must list exact paths.
func TestGateExcludedPrefixOvermatch(t *testing.T) {
	d := newGate(gateConfig(), &stubBackend{}).
		Evaluate(context.Background(), "/api/healthz", http.Header{})
	require.Equal(t, service.ActionAllow, d.Action)
}

func TestGateAccessCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("valid access credential", func(t *testing.T) {
		backend := &stubBackend{}
		hdr := cookieHeader("access_token=" + mintValid(t, tokenx.KindAccess))

		d := newGate(gateConfig(), backend).Evaluate(ctx, "/dashboard", hdr)
		require.Equal(t, service.ActionAllow, d.Action)
		require.NotNil(t, d.Principal)
		require.Equal(t, "u1", d.Principal.UserID)
		require.EqualValues(t, 0, backend.refreshCalls.Load())
	})

	t.Run("forged credential never reaches the refresh path", func(t *testing.T) {
		backend := &stubBackend{}
		forged := newTestCodec()
		forged.Secret = []byte("wrong-secret-wrong-secret-wrong!")
		tok, err := forged.Mint(tokenx.Principal{UserID: "u1"}, tokenx.KindAccess)
		require.NoError(t, err)

		hdr := cookieHeader("access_token="+tok, "refresh_token="+mintValid(t, tokenx.KindRefresh))
		d := newGate(gateConfig(), backend).Evaluate(ctx, "/dashboard", hdr)
		require.Equal(t, service.ActionRedirect, d.Action)
		require.EqualValues(t, 0, backend.refreshCalls.Load())
	})

	t.Run("no credentials at all", func(t *testing.T) {
		d := newGate(gateConfig(), &stubBackend{}).Evaluate(ctx, "/reports/q3", http.Header{})
		require.Equal(t, service.ActionRedirect, d.Action)
		require.Equal(t, "/login?returnUrl=%2Freports%2Fq3", d.RedirectURL)
	})
}

func TestGateSilentRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("expired access with valid refresh", func(t *testing.T) {
		fresh := mintValid(t, tokenx.KindAccess)
		backend := &stubBackend{
			refreshFn: func(string) (*domain.Refreshed, error) {
				return &domain.Refreshed{AccessToken: fresh, ExpiresIn: 900}, nil
			},
		}

		hdr := cookieHeader(
			"access_token="+mintExpired(t, tokenx.KindAccess),
			"refresh_token="+mintValid(t, tokenx.KindRefresh),
		)
		d := newGate(gateConfig(), backend).Evaluate(ctx, "/dashboard", hdr)
		require.Equal(t, service.ActionAllowWithCookie, d.Action)
		require.NotNil(t, d.Refreshed)
		require.Equal(t, fresh, d.Refreshed.AccessToken)
		require.NotNil(t, d.Principal)
		require.Equal(t, "u1", d.Principal.UserID)
	})

	t.Run("expired access without refresh credential", func(t *testing.T) {
		hdr := cookieHeader("access_token=" + mintExpired(t, tokenx.KindAccess))
		d := newGate(gateConfig(), &stubBackend{}).Evaluate(ctx, "/dashboard", hdr)
		require.Equal(t, service.ActionRedirect, d.Action)
	})

	t.Run("refresh rejected forces login", func(t *testing.T) {
		backend := &stubBackend{
			refreshFn: func(string) (*domain.Refreshed, error) {
				return nil, service.ErrRotationConflict
			},
		}
		hdr := cookieHeader("refresh_token=" + mintValid(t, tokenx.KindRefresh))
		d := newGate(gateConfig(), backend).Evaluate(ctx, "/dashboard", hdr)
		require.Equal(t, service.ActionRedirect, d.Action)
	})

	t.Run("refresh timeout is a failure, not fail-open", func(t *testing.T) {
		backend := &stubBackend{
			refreshFn: func(string) (*domain.Refreshed, error) {
				return nil, fmt.Errorf("%w: context deadline exceeded", service.ErrUpstreamTimeout)
			},
		}
		hdr := cookieHeader("refresh_token=" + mintValid(t, tokenx.KindRefresh))
		d := newGate(gateConfig(), backend).Evaluate(ctx, "/dashboard", hdr)
		require.Equal(t, service.ActionRedirect, d.Action)
	})
}

func TestGateFailPolicy(t *testing.T) {
	ctx := context.Background()
	hdr := cookieHeader("refresh_token=" + mintValid(t, tokenx.KindRefresh))

	unavailable := func() *stubBackend {
		return &stubBackend{
			refreshFn: func(string) (*domain.Refreshed, error) {
				return nil, service.ErrUpstreamUnavailable
			},
		}
	}

	t.Run("fail-open by default", func(t *testing.T) {
		d := newGate(gateConfig(), unavailable()).Evaluate(ctx, "/dashboard", hdr)
		require.Equal(t, service.ActionAllow, d.Action)
		require.True(t, d.FailedOpen)
		require.Nil(t, d.Principal)
	})

	t.Run("fail-closed redirects", func(t *testing.T) {
		cfg := gateConfig()
		cfg.FailClosed = true
		d := newGate(cfg, unavailable()).Evaluate(ctx, "/dashboard", hdr)
		require.Equal(t, service.ActionRedirect, d.Action)
	})
}

func TestGateObserver(t *testing.T) {
	var seen []service.Action
	gate := service.NewGate(gateConfig(), newTestCodec(),
		service.NewRefreshService(&stubBackend{}, time.Second),
		func(d service.Decision) { seen = append(seen, d.Action) })

	gate.Evaluate(context.Background(), "/login", http.Header{})
	gate.Evaluate(context.Background(), "/dashboard", http.Header{})

	require.Equal(t, []service.Action{service.ActionAllow, service.ActionRedirect}, seen)
}
