package http

import (
	"net/http"
	"strconv"

	"github.com/quillboard/quillboard/internal/gateway/metrics"
	"github.com/quillboard/quillboard/internal/gateway/service"
	"github.com/quillboard/quillboard/pkg/httpx"
)

// GateMiddleware applies the request gate's decision to protected traffic:
// redirects unauthenticated browsers to login, rewrites cookies after a
// silent refresh and attaches the authenticated principal to the request
// context.
func GateMiddleware(gate *service.Gate, cookies CookieConfig) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Evaluate(r.Context(), r.URL.Path, r.Header)

			metrics.GateDecisions.WithLabelValues(
				d.Action.String(), strconv.FormatBool(d.FailedOpen)).Inc()

			switch d.Action {
			case service.ActionRedirect:
				http.Redirect(w, r, d.RedirectURL, http.StatusFound)
				return
			case service.ActionAllowWithCookie:
				cookies.SetRefreshed(w, d.Refreshed)
			}

			if d.Principal != nil {
				r = r.WithContext(withPrincipal(r.Context(), *d.Principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}
