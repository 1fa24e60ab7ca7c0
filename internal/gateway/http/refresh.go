package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quillboard/quillboard/internal/gateway/metrics"
	"github.com/quillboard/quillboard/internal/gateway/service"
	"github.com/quillboard/quillboard/pkg/httpx"
	"github.com/quillboard/quillboard/pkg/slogx"
	"github.com/quillboard/quillboard/pkg/tokenx"
)

// RefreshHandler serves POST /v1/auth/refresh.
//
// The refresh credential is taken from, in priority order: the JSON body's
// refreshToken field, the Authorization header, the refresh cookie.
type RefreshHandler struct {
	Refresher   *service.RefreshService
	BackendName string
	Cookies     CookieConfig
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	token := h.extractToken(r)
	if token == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	refreshed, err := h.Refresher.Refresh(ctx, token, r.Header)
	if err != nil {
		metrics.RefreshAttempts.WithLabelValues(h.BackendName, "failure").Inc()

		var ue *service.UpstreamError
		switch {
		case errors.Is(err, service.ErrMalformedCredential):
			writeError(w, http.StatusBadRequest, "Malformed refresh token")
		case errors.Is(err, service.ErrExpiredToken):
			writeError(w, http.StatusUnauthorized, "Token has expired")
		case errors.Is(err, service.ErrInvalidToken),
			errors.Is(err, service.ErrRotationConflict),
			errors.Is(err, service.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		case errors.As(err, &ue):
			writeError(w, ue.Status, ue.Message)
		case errors.Is(err, service.ErrNotConfigured):
			log.Error("refresh attempted against unconfigured identity backend")
			writeError(w, http.StatusInternalServerError, "Identity service is not configured")
		case errors.Is(err, service.ErrUpstreamUnavailable),
			errors.Is(err, service.ErrUpstreamTimeout):
			log.Error("identity upstream unavailable during refresh", "err", err)
			writeError(w, http.StatusBadGateway, "Identity service is unavailable")
		default:
			log.Error("refresh failed", "err", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	metrics.RefreshAttempts.WithLabelValues(h.BackendName, "success").Inc()

	// The access credential travels in the body only; this endpoint never
	// sets the access cookie. The gate is the sole writer of that cookie.
	h.Cookies.SetRotated(w, refreshed)
	httpx.WriteJSON(w, http.StatusOK, refreshResponse{
		Success:     true,
		AccessToken: refreshed.AccessToken,
		ExpiresIn:   refreshed.ExpiresIn,
	})
}

func (h *RefreshHandler) extractToken(r *http.Request) string {
	var body refreshRequest
	if r.Body != nil {
		// A missing or non-JSON body is fine; the header and cookie
		// sources remain.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.RefreshToken != "" {
		return body.RefreshToken
	}
	if tok := tokenx.FromAuthorizationHeader(r.Header.Get("Authorization")); tok != "" {
		return tok
	}
	return tokenx.FromCookieHeader(r.Header.Get("Cookie"), h.Cookies.RefreshName)
}
