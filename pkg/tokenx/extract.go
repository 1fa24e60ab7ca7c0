package tokenx

import "strings"

// FromAuthorizationHeader pulls a credential out of an Authorization header
// value. Both "Bearer <token>" and a bare token are accepted; absent or
// blank values return "".
func FromAuthorizationHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(value, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return value
}

// FromCookieHeader parses a raw Cookie header into name/value pairs and
// returns the value for name. Exact name match wins; failing that, the
// first case-insensitive match is used. Some identity backends normalise
// cookie casing differently, so the fallback keeps sessions alive across
// those deployments.
func FromCookieHeader(header, name string) string {
	if header == "" || name == "" {
		return ""
	}

	fallback := ""
	haveFallback := false

	for pair := range strings.SplitSeq(header, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == name {
			return v
		}
		if !haveFallback && strings.EqualFold(k, name) {
			fallback = v
			haveFallback = true
		}
	}

	return fallback
}
