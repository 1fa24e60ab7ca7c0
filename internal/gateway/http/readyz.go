package http

import (
	"net/http"
	"time"

	"github.com/quillboard/quillboard/internal/gateway/store"
	"github.com/quillboard/quillboard/pkg/httpx"
)

// ReadyzHandler is the readiness probe. In local mode it checks the user
// store; in remote mode there is no database and the probe only reports
// the process up. The identity upstream is deliberately not probed here:
// the gate fails open, so a wobbly upstream must not take the gateway out
// of rotation.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &healthChecks{}
		status := "ok"
		code := http.StatusOK

		if st != nil {
			checks.Database = "ok"
			if err := st.Ping(r.Context()); err != nil {
				checks.Database = "error: " + err.Error()
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		httpx.WriteJSON(w, code, healthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
