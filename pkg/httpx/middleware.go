// Package httpx carries the HTTP plumbing shared by the gateway's
// handlers: JSON responses, middleware chaining and per-IP rate limiting.
package httpx

import "net/http"

// Middleware decorates an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain wraps h in the given middlewares. The first middleware listed is
// the innermost, so Chain(h, a, b) serves requests as b(a(h)).
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for _, mw := range mws {
		h = mw(h)
	}
	return h
}
