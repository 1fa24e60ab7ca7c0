package domain

import "github.com/quillboard/quillboard/pkg/tokenx"

// TokenPair is what a successful login hands back: the short-lived access
// credential and the longer-lived refresh credential, with their
// lifetimes in seconds.
type TokenPair struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken,omitempty"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn,omitempty"`
}

// SessionAttachment is an auxiliary cookie forwarded from an identity
// backend (session_token, user_session_id and friends). The gateway treats
// the value as an opaque blob; Raw preserves the upstream Set-Cookie header
// verbatim for paths that forward rather than re-issue.
type SessionAttachment struct {
	Name  string
	Value string
	Raw   string
}

// Session is the outcome of a successful authentication.
type Session struct {
	Principal   tokenx.Principal
	Tokens      TokenPair
	Attachments []SessionAttachment
}

// Refreshed is the outcome of a successful refresh call.
//
// RefreshToken is non-empty only when the backend rotated the refresh
// credential; the previous value is then dead and must never be re-sent.
type Refreshed struct {
	AccessToken      string
	ExpiresIn        int64
	RefreshToken     string
	RefreshExpiresIn int64

	// Attachments carries any further upstream Set-Cookie headers (remote
	// backend only). The refresh credential itself never travels here.
	Attachments []SessionAttachment
}
