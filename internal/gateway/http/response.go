package http

import (
	"net/http"

	"github.com/quillboard/quillboard/internal/gateway/domain"
	"github.com/quillboard/quillboard/pkg/httpx"
	"github.com/quillboard/quillboard/pkg/tokenx"
)

// loginResponse is the body of POST /v1/auth/login.
type loginResponse struct {
	Success bool              `json:"success"`
	User    *tokenx.Principal `json:"user,omitempty"`
	Tokens  *domain.TokenPair `json:"tokens,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// refreshResponse is the body of POST /v1/auth/refresh.
type refreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken,omitempty"`
	ExpiresIn   int64  `json:"expiresIn,omitempty"`
	Error       string `json:"error,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	httpx.WriteJSON(w, status, errorResponse{Success: false, Error: msg})
}

type healthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *healthChecks `json:"checks,omitempty"`
}

type healthChecks struct {
	Database string `json:"database,omitempty"`
	Identity string `json:"identity,omitempty"`
}
