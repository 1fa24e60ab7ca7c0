package service

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/quillboard/quillboard/internal/gateway/domain"
	"github.com/quillboard/quillboard/pkg/slogx"
	"github.com/quillboard/quillboard/pkg/tokenx"
)

// defaultInternalPrefixes are always exempt from gating, on top of
// whatever routes the deployment excludes.
var defaultInternalPrefixes = []string{
	"/static/",
	"/assets/",
	"/favicon.ico",
}

// Action is what the gate decided for a request.
type Action int

const (
	// ActionAllow lets the request through unchanged.
	ActionAllow Action = iota
	// ActionAllowWithCookie lets the request through and instructs the
	// transport layer to set a fresh access cookie on the response.
	ActionAllowWithCookie
	// ActionRedirect sends the client to the login page.
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionAllowWithCookie:
		return "allow_with_cookie"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the gate's verdict. It is a plain value; applying it
// (setting cookies, issuing the redirect) is the transport layer's job.
type Decision struct {
	Action      Action
	RedirectURL string

	// Principal is set when the request carried a valid access credential
	// (or one was just minted by a silent refresh).
	Principal *tokenx.Principal

	// Refreshed carries the silent-refresh result on ActionAllowWithCookie
	// so the transport layer can re-issue cookies, the rotated refresh
	// credential included.
	Refreshed *domain.Refreshed

	// FailedOpen marks an allow that happened because the gate hit an
	// unexpected error with fail-open policy in effect.
	FailedOpen bool
}

// GateConfig configures the request gate.
type GateConfig struct {
	// Required turns gating on. When false every request passes.
	Required bool

	// ExcludedRoutes pass ungated. A route matches exactly or as a path
	// prefix, so "/api/health" also exempts "/api/healthz".
	ExcludedRoutes []string

	AccessCookieName  string
	RefreshCookieName string

	// LoginPath is where unauthenticated browsers are redirected,
	// with the original path attached as ?returnUrl=.
	LoginPath string

	// FailClosed redirects instead of allowing when the gate itself
	// breaks. Default is fail-open: gateway trouble must not lock every
	// user out of the product.
	FailClosed bool
}

// Gate decides, per request, whether traffic passes. Expired access
// credentials trigger a silent refresh; only when that fails does the
// client get bounced to login.
type Gate struct {
	cfg      GateConfig
	codec    *tokenx.Codec
	refresh  *RefreshService
	observer func(Decision)
}

// NewGate builds a gate. observer is called once per evaluated request
// with the final decision (metrics); nil is fine.
func NewGate(cfg GateConfig, codec *tokenx.Codec, refresh *RefreshService, observer func(Decision)) *Gate {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	return &Gate{cfg: cfg, codec: codec, refresh: refresh, observer: observer}
}

// Evaluate inspects a request's path and headers and returns a Decision.
// It never writes to the response and never panics: an unexpected failure
// inside the gate resolves to the configured fail policy.
func (g *Gate) Evaluate(ctx context.Context, path string, hdr http.Header) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			slogx.FromContext(ctx).Error("gate panicked", "panic", r, "path", path)
			d = g.failDecision(path)
		}
		if g.observer != nil {
			g.observer(d)
		}
	}()

	if !g.cfg.Required || g.exempt(path) {
		return Decision{Action: ActionAllow}
	}

	cookieHeader := hdr.Get("Cookie")

	access := tokenx.FromCookieHeader(cookieHeader, g.cfg.AccessCookieName)
	if access != "" {
		principal, err := g.codec.Verify(access)
		if err == nil {
			return Decision{Action: ActionAllow, Principal: &principal}
		}
		if !errors.Is(err, tokenx.ErrExpired) {
			// Forged or mangled credential. No refresh attempt.
			return g.redirect(path)
		}
	}

	refreshToken := tokenx.FromCookieHeader(cookieHeader, g.cfg.RefreshCookieName)
	if refreshToken == "" {
		return g.redirect(path)
	}

	refreshed, err := g.refresh.Refresh(ctx, refreshToken, hdr)
	if err != nil {
		if isAuthFailure(err) {
			return g.redirect(path)
		}
		// Gateway-side trouble, not a credential verdict.
		slogx.FromContext(ctx).Error("silent refresh failed", "error", err, "path", path)
		return g.failDecision(path)
	}

	d = Decision{Action: ActionAllowWithCookie, Refreshed: refreshed}
	if p, perr := g.codec.Verify(refreshed.AccessToken); perr == nil {
		d.Principal = &p
	}
	return d
}

// isAuthFailure reports whether a refresh error is a verdict about the
// credential (redirect to login) rather than gateway-side trouble. A
// timeout counts as a failed refresh, never as fail-open.
func isAuthFailure(err error) bool {
	return errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrMalformedCredential) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrRotationConflict) ||
		errors.Is(err, ErrUpstreamTimeout)
}

func (g *Gate) exempt(path string) bool {
	for _, p := range defaultInternalPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	for _, route := range g.cfg.ExcludedRoutes {
		if route == "" {
			continue
		}
		if path == route || strings.HasPrefix(path, route) {
			return true
		}
	}
	return false
}

func (g *Gate) redirect(path string) Decision {
	return Decision{
		Action:      ActionRedirect,
		RedirectURL: g.cfg.LoginPath + "?returnUrl=" + url.QueryEscape(path),
	}
}

func (g *Gate) failDecision(path string) Decision {
	if g.cfg.FailClosed {
		return g.redirect(path)
	}
	return Decision{Action: ActionAllow, FailedOpen: true}
}
