package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/quillboard/quillboard/internal/gateway/domain"
	"github.com/quillboard/quillboard/pkg/slogx"
	"github.com/quillboard/quillboard/pkg/tokenx"
)

// forwardedHeaders is the allow-list of inbound headers proxied to the
// remote identity service. Everything else (cookies included) stays behind.
var forwardedHeaders = []string{
	"User-Agent",
	"Accept-Language",
	"X-Request-ID",
	"X-Forwarded-For",
	"X-Real-IP",
}

// RemoteConfig configures the proxying identity backend.
type RemoteConfig struct {
	// BaseURL of the identity service, e.g. "https://id.internal". Empty
	// means the backend is not configured and every call fails with
	// ErrNotConfigured.
	BaseURL string

	// AppID identifies this gateway to the identity service on login.
	AppID string

	// Timeout bounds each upstream call. Zero means DefaultUpstreamTimeout.
	Timeout time.Duration

	// DefaultAccessTTL / DefaultRefreshTTL fill in expiry values the
	// upstream response omits, in seconds.
	DefaultAccessTTL  int64
	DefaultRefreshTTL int64

	// RefreshCookieName is the cookie under which the upstream may rotate
	// the refresh credential instead of (or as well as) the JSON body.
	RefreshCookieName string
}

const DefaultUpstreamTimeout = 5 * time.Second

// RemoteBackend proxies authentication and refresh to an external identity
// service over JSON. Upstream failures propagate with their original
// status and message; transport failures and an open breaker surface as
// ErrUpstreamUnavailable.
type RemoteBackend struct {
	cfg     RemoteConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewRemoteBackend(cfg RemoteConfig) *RemoteBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &RemoteBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "identity-upstream",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (b *RemoteBackend) Name() string { return "remote" }

func (b *RemoteBackend) Authenticate(ctx context.Context, creds Credentials, hdr http.Header) (*domain.Session, error) {
	if creds.EmailOrUsername == "" || creds.Password == "" {
		return nil, ErrMissingCredential
	}

	payload := map[string]string{
		"emailOrUsername": creds.EmailOrUsername,
		"password":        creds.Password,
	}
	if b.cfg.AppID != "" {
		payload["appId"] = b.cfg.AppID
	}
	if creds.DeviceFingerprint != "" {
		payload["deviceFingerprint"] = creds.DeviceFingerprint
	}

	body, cookies, err := b.post(ctx, "/login", payload, hdr)
	if err != nil {
		return nil, err
	}

	pair := b.normalizeTokens(body)
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("%w: login response carried no access token", ErrUpstreamUnavailable)
	}

	return &domain.Session{
		Principal:   body.principal(pair.AccessToken),
		Tokens:      pair,
		Attachments: cookies,
	}, nil
}

func (b *RemoteBackend) Refresh(ctx context.Context, refreshToken string, hdr http.Header) (*domain.Refreshed, error) {
	if refreshToken == "" {
		return nil, ErrMissingCredential
	}

	body, cookies, err := b.post(ctx, "/refresh", map[string]string{
		"refreshToken": refreshToken,
	}, hdr)
	if err != nil {
		var ue *UpstreamError
		// An upstream 401 on refresh means the credential was rejected,
		// usually because a concurrent rotation already spent it.
		if errors.As(err, &ue) && ue.Status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", ErrRotationConflict, ue.Message)
		}
		return nil, err
	}

	pair := b.normalizeTokens(body)

	refreshed := &domain.Refreshed{
		AccessToken:      pair.AccessToken,
		ExpiresIn:        pair.ExpiresIn,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresIn: pair.RefreshExpiresIn,
	}

	// A rotated refresh credential may arrive as a Set-Cookie instead of a
	// body field. Lift it out of the attachments; it is re-issued locally
	// with this gateway's cookie attributes, never forwarded raw.
	for _, c := range cookies {
		if b.cfg.RefreshCookieName != "" && strings.EqualFold(c.Name, b.cfg.RefreshCookieName) {
			if refreshed.RefreshToken == "" && c.Value != "" {
				refreshed.RefreshToken = c.Value
			}
			continue
		}
		refreshed.Attachments = append(refreshed.Attachments, c)
	}

	// Accepting a refresh without handing back an access credential would
	// leave the client silently unauthenticated. Hard failure.
	if refreshed.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh response carried no access token", ErrUpstreamUnavailable)
	}

	return refreshed, nil
}

// post runs one upstream round trip through the circuit breaker and
// decodes the JSON body. Non-2xx responses come back as *UpstreamError
// with the upstream's status and message intact; only transport failures
// and 5xx responses count against the breaker.
func (b *RemoteBackend) post(ctx context.Context, path string, payload any, hdr http.Header) (*remoteResponse, []domain.SessionAttachment, error) {
	if b.cfg.BaseURL == "" {
		return nil, nil, ErrNotConfigured
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	result, err := b.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(b.cfg.BaseURL, "/")+path, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for _, name := range forwardedHeaders {
			if v := hdr.Get(name); v != "" {
				req.Header.Set(name, v)
			}
		}

		resp, err := b.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}

		var decoded remoteResponse
		if len(body) > 0 {
			// Tolerate non-JSON error bodies; the message then falls back
			// to the status text.
			_ = json.Unmarshal(body, &decoded)
		}

		// Only server-side failures feed the breaker's failure count. A 4xx
		// is the upstream working as intended (wrong password, spent refresh
		// credential); a burst of bad logins must not open the circuit and
		// take valid credentials down with it.
		if resp.StatusCode >= 500 {
			return nil, &UpstreamError{
				Status:  resp.StatusCode,
				Message: decoded.message(resp.StatusCode),
			}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &upstreamResult{
				verdict: &UpstreamError{
					Status:  resp.StatusCode,
					Message: decoded.message(resp.StatusCode),
				},
			}, nil
		}

		return &upstreamResult{
			body:    &decoded,
			cookies: attachmentsFromResponse(resp),
		}, nil
	})
	if err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) {
			return nil, nil, ue
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slogx.FromContext(ctx).Warn("identity upstream circuit open")
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	res := result.(*upstreamResult)
	if res.verdict != nil {
		return nil, nil, res.verdict
	}
	return res.body, res.cookies, nil
}

type upstreamResult struct {
	body    *remoteResponse
	cookies []domain.SessionAttachment

	// verdict is a 4xx upstream rejection: an error to the caller but a
	// completed round trip to the circuit breaker.
	verdict *UpstreamError
}

// remoteResponse accepts both shapes identity services are known to
// produce: tokens nested under "tokens" or flattened at the top level.
type remoteResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Message string      `json:"message"`
	User    *remoteUser `json:"user"`

	Tokens *remoteTokens `json:"tokens"`
	remoteTokens
}

type remoteTokens struct {
	AccessToken           string `json:"accessToken"`
	RefreshToken          string `json:"refreshToken"`
	ExpiresIn             int64  `json:"expiresIn"`
	RefreshTokenExpiresIn int64  `json:"refreshTokenExpiresIn"`
}

type remoteUser struct {
	UserID string `json:"userId"`
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

func (r *remoteResponse) message(status int) string {
	if r.Error != "" {
		return r.Error
	}
	if r.Message != "" {
		return r.Message
	}
	return http.StatusText(status)
}

// normalizeTokens merges the nested and flat shapes field by field, nested
// winning, and fills missing expiries from the configured defaults.
func (b *RemoteBackend) normalizeTokens(body *remoteResponse) domain.TokenPair {
	pick := func(nested, flat string) string {
		if nested != "" {
			return nested
		}
		return flat
	}
	pickN := func(nested, flat int64) int64 {
		if nested != 0 {
			return nested
		}
		return flat
	}

	var nested remoteTokens
	if body.Tokens != nil {
		nested = *body.Tokens
	}

	pair := domain.TokenPair{
		AccessToken:      pick(nested.AccessToken, body.AccessToken),
		RefreshToken:     pick(nested.RefreshToken, body.RefreshToken),
		ExpiresIn:        pickN(nested.ExpiresIn, body.ExpiresIn),
		RefreshExpiresIn: pickN(nested.RefreshTokenExpiresIn, body.RefreshTokenExpiresIn),
	}
	if pair.ExpiresIn == 0 {
		pair.ExpiresIn = b.cfg.DefaultAccessTTL
	}
	if pair.RefreshToken != "" && pair.RefreshExpiresIn == 0 {
		pair.RefreshExpiresIn = b.cfg.DefaultRefreshTTL
	}
	return pair
}

// principal builds the session identity from the upstream user object, or
// failing that from the unverified claims of the upstream-minted access
// credential. Display only; authorization always goes through Verify.
func (r *remoteResponse) principal(accessToken string) tokenx.Principal {
	var p tokenx.Principal
	if r.User != nil {
		p.UserID = r.User.UserID
		if p.UserID == "" {
			p.UserID = r.User.ID
		}
		p.Email = r.User.Email
		p.Name = r.User.Name
		p.Role = r.User.Role
		if p.UserID != "" || p.Email != "" {
			return p
		}
	}
	if claims, err := tokenx.DecodeUnverified(accessToken); err == nil {
		return claims.Principal()
	}
	return p
}

// attachmentsFromResponse captures every upstream Set-Cookie header as an
// opaque attachment, raw header included.
func attachmentsFromResponse(resp *http.Response) []domain.SessionAttachment {
	var out []domain.SessionAttachment
	for _, raw := range resp.Header.Values("Set-Cookie") {
		c, err := http.ParseSetCookie(raw)
		if err != nil {
			continue
		}
		out = append(out, domain.SessionAttachment{
			Name:  c.Name,
			Value: c.Value,
			Raw:   raw,
		})
	}
	return out
}
