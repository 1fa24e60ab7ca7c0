package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/quillboard/quillboard/internal/gateway/domain"
)

// CookieConfig carries the gateway's cookie policy. Credentials are always
// re-issued with these attributes, never with whatever an upstream sent.
type CookieConfig struct {
	AccessName  string
	RefreshName string

	// Secure marks cookies Secure; off only for local development.
	Secure bool
}

func (c CookieConfig) credentialCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetSession writes the cookies for a fresh login: the access/refresh pair
// plus any upstream attachments, all re-issued under the gateway's own
// attributes.
func (c CookieConfig) SetSession(w http.ResponseWriter, sess *domain.Session) {
	http.SetCookie(w, c.credentialCookie(c.AccessName, sess.Tokens.AccessToken, int(sess.Tokens.ExpiresIn)))
	if sess.Tokens.RefreshToken != "" {
		http.SetCookie(w, c.credentialCookie(c.RefreshName, sess.Tokens.RefreshToken, int(sess.Tokens.RefreshExpiresIn)))
	}
	for _, att := range sess.Attachments {
		if strings.EqualFold(att.Name, c.AccessName) || strings.EqualFold(att.Name, c.RefreshName) {
			continue
		}
		sc, err := http.ParseSetCookie(att.Raw)
		if err != nil || isDeletion(sc) {
			continue
		}
		// Session-scoped; attachments are opaque and carry no TTL of ours.
		http.SetCookie(w, c.credentialCookie(att.Name, att.Value, 0))
	}
}

// SetRefreshed rewrites the full credential pair after a silent refresh.
// Only the request gate uses this: it is the one trusted party allowed to
// place the access credential in a cookie.
func (c CookieConfig) SetRefreshed(w http.ResponseWriter, ref *domain.Refreshed) {
	http.SetCookie(w, c.credentialCookie(c.AccessName, ref.AccessToken, int(ref.ExpiresIn)))
	c.SetRotated(w, ref)
}

// SetRotated writes the refresh-side cookies only: a rotated refresh
// credential re-issued under this gateway's attributes, plus any further
// upstream attachments. The access credential stays out of cookies; the
// refresh endpoint hands it back in the response body alone.
func (c CookieConfig) SetRotated(w http.ResponseWriter, ref *domain.Refreshed) {
	if ref.RefreshToken != "" {
		http.SetCookie(w, c.credentialCookie(c.RefreshName, ref.RefreshToken, int(ref.RefreshExpiresIn)))
	}
	c.forwardAttachments(w, ref.Attachments)
}

// forwardAttachments passes upstream Set-Cookie headers through verbatim,
// minus anything that would clobber the gateway's own credential cookies
// and minus deletions. An upstream expiring its own session cookie must
// not wipe the session the gateway just established.
func (c CookieConfig) forwardAttachments(w http.ResponseWriter, atts []domain.SessionAttachment) {
	for _, att := range atts {
		if strings.EqualFold(att.Name, c.AccessName) || strings.EqualFold(att.Name, c.RefreshName) {
			continue
		}
		sc, err := http.ParseSetCookie(att.Raw)
		if err != nil || isDeletion(sc) {
			continue
		}
		w.Header().Add("Set-Cookie", att.Raw)
	}
}

// isDeletion reports whether a Set-Cookie is an expiry: Max-Age=0, an
// Expires in the past, or an empty value paired with an Expires attribute.
func isDeletion(sc *http.Cookie) bool {
	if sc.MaxAge < 0 {
		return true
	}
	if !sc.Expires.IsZero() {
		if sc.Expires.Before(time.Now()) {
			return true
		}
		if sc.Value == "" {
			return true
		}
	}
	return false
}
