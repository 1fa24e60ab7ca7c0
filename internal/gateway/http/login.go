package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quillboard/quillboard/internal/gateway/metrics"
	"github.com/quillboard/quillboard/internal/gateway/service"
	"github.com/quillboard/quillboard/pkg/httpx"
	"github.com/quillboard/quillboard/pkg/slogx"
)

// LoginHandler serves POST /v1/auth/login.
type LoginHandler struct {
	Backend service.Backend
	Cookies CookieConfig
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var creds service.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess, err := h.Backend.Authenticate(ctx, creds, r.Header)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues(h.Backend.Name(), "failure").Inc()

		var ue *service.UpstreamError
		switch {
		case errors.As(err, &ue):
			// The identity service's verdict travels back untouched so
			// clients can tell a bad password from a broken upstream.
			writeError(w, ue.Status, ue.Message)
		case errors.Is(err, service.ErrMissingCredential):
			writeError(w, http.StatusBadRequest, "Email and password are required")
		case errors.Is(err, service.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, service.ErrNotConfigured):
			log.Error("login attempted against unconfigured identity backend")
			writeError(w, http.StatusInternalServerError, "Identity service is not configured")
		case errors.Is(err, service.ErrUpstreamUnavailable),
			errors.Is(err, service.ErrUpstreamTimeout):
			log.Error("identity upstream unavailable during login", "err", err)
			writeError(w, http.StatusBadGateway, "Identity service is unavailable")
		default:
			log.Error("login failed", "err", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	metrics.LoginAttempts.WithLabelValues(h.Backend.Name(), "success").Inc()
	log.Info("login succeeded", "user_id", sess.Principal.UserID, "backend", h.Backend.Name())

	h.Cookies.SetSession(w, sess)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User:    &sess.Principal,
		Tokens:  &sess.Tokens,
	})
}
