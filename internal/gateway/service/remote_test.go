package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillboard/quillboard/internal/gateway/service"
)

func newRemote(t *testing.T, handler http.HandlerFunc) *service.RemoteBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return service.NewRemoteBackend(service.RemoteConfig{
		BaseURL:           srv.URL,
		AppID:             "quillboard",
		DefaultAccessTTL:  900,
		DefaultRefreshTTL: 604800,
		RefreshCookieName: "refresh_token",
	})
}

func TestRemoteAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("nested token shape", func(t *testing.T) {
		backend := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/login", r.URL.Path)

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "ada@example.com", body["emailOrUsername"])
			require.Equal(t, "quillboard", body["appId"])

			w.Header().Add("Set-Cookie", "session_token=abc; Path=/; HttpOnly")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"user":    map[string]any{"userId": "u1", "email": "ada@example.com", "role": "admin"},
				"tokens": map[string]any{
					"accessToken":           "at-1",
					"refreshToken":          "rt-1",
					"expiresIn":             600,
					"refreshTokenExpiresIn": 86400,
				},
			})
		})

		sess, err := backend.Authenticate(ctx, service.Credentials{
			EmailOrUsername: "ada@example.com",
			Password:        "pw",
		}, nil)
		require.NoError(t, err)
		require.Equal(t, "u1", sess.Principal.UserID)
		require.Equal(t, "at-1", sess.Tokens.AccessToken)
		require.Equal(t, "rt-1", sess.Tokens.RefreshToken)
		require.EqualValues(t, 600, sess.Tokens.ExpiresIn)
		require.Len(t, sess.Attachments, 1)
		require.Equal(t, "session_token", sess.Attachments[0].Name)
	})

	t.Run("flat token shape with default expiries", func(t *testing.T) {
		backend := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success":      true,
				"user":         map[string]any{"id": "u2", "email": "b@example.com"},
				"accessToken":  "at-2",
				"refreshToken": "rt-2",
			})
		})

		sess, err := backend.Authenticate(ctx, service.Credentials{
			EmailOrUsername: "b@example.com",
			Password:        "pw",
		}, nil)
		require.NoError(t, err)
		require.Equal(t, "u2", sess.Principal.UserID)
		require.EqualValues(t, 900, sess.Tokens.ExpiresIn)
		require.EqualValues(t, 604800, sess.Tokens.RefreshExpiresIn)
	})

	t.Run("upstream rejection propagates status and message", func(t *testing.T) {
		backend := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "Account locked",
			})
		})

		_, err := backend.Authenticate(ctx, service.Credentials{
			EmailOrUsername: "ada@example.com",
			Password:        "pw",
		}, nil)

		var ue *service.UpstreamError
		require.ErrorAs(t, err, &ue)
		require.Equal(t, http.StatusForbidden, ue.Status)
		require.Equal(t, "Account locked", ue.Message)
	})

	t.Run("forwards allow-listed headers only", func(t *testing.T) {
		backend := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "req-77", r.Header.Get("X-Request-ID"))
			require.Empty(t, r.Header.Get("Cookie"))
			_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": "at"})
		})

		hdr := http.Header{}
		hdr.Set("X-Request-ID", "req-77")
		hdr.Set("Cookie", "access_token=secret")

		_, err := backend.Authenticate(ctx, service.Credentials{
			EmailOrUsername: "ada@example.com",
			Password:        "pw",
		}, hdr)
		require.NoError(t, err)
	})

	t.Run("unconfigured backend", func(t *testing.T) {
		backend := service.NewRemoteBackend(service.RemoteConfig{})
		_, err := backend.Authenticate(ctx, service.Credentials{
			EmailOrUsername: "a", Password: "b",
		}, nil)
		require.ErrorIs(t, err, service.ErrNotConfigured)
	})
}

func TestRemoteRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotated credential in body", func(t *testing.T) {
		backend := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/refresh", r.URL.Path)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "rt-old", body["refreshToken"])

			_ = json.NewEncoder(w).Encode(map[string]any{
				"accessToken":  "at-new",
				"refreshToken": "rt-new",
				"expiresIn":    600,
			})
		})

		got, err := backend.Refresh(ctx, "rt-old", nil)
		require.NoError(t, err)
		require.Equal(t, "at-new", got.AccessToken)
		require.Equal(t, "rt-new", got.RefreshToken)
	})

	t.Run("rotated credential via cookie is lifted out of attachments", func(t *testing.T) {
		backend := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Add("Set-Cookie", "refresh_token=rt-cookie; Path=/; HttpOnly")
			w.Header().Add("Set-Cookie", "user_session_id=s9; Path=/")
			_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": "at-new"})
		})

		got, err := backend.Refresh(ctx, "rt-old", nil)
		require.NoError(t, err)
		require.Equal(t, "rt-cookie", got.RefreshToken)
		require.Len(t, got.Attachments, 1)
		require.Equal(t, "user_session_id", got.Attachments[0].Name)
	})

	t.Run("upstream 401 is a rotation conflict", func(t *testing.T) {
		backend := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "refresh token already used"})
		})

		_, err := backend.Refresh(ctx, "rt-spent", nil)
		require.ErrorIs(t, err, service.ErrRotationConflict)
	})

	t.Run("missing access token is a hard failure", func(t *testing.T) {
		backend := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
		})

		_, err := backend.Refresh(ctx, "rt-old", nil)
		require.ErrorIs(t, err, service.ErrUpstreamUnavailable)
	})

	t.Run("breaker opens after repeated upstream failures", func(t *testing.T) {
		var hits int
		backend := newRemote(t, func(w http.ResponseWriter, _ *http.Request) {
			hits++
			w.WriteHeader(http.StatusInternalServerError)
		})

		for range 5 {
			_, err := backend.Refresh(ctx, "rt-1", nil)
			var ue *service.UpstreamError
			require.ErrorAs(t, err, &ue)
		}
		require.Equal(t, 5, hits)

		// Open breaker: the call short-circuits without an upstream round
		// trip.
		_, err := backend.Refresh(ctx, "rt-1", nil)
		require.ErrorIs(t, err, service.ErrUpstreamUnavailable)
		require.Equal(t, 5, hits)
	})

	t.Run("credential rejections never open the breaker", func(t *testing.T) {
		// A run of wrong passwords is upstream working, not upstream down.
		// The circuit must stay closed so the next correct login succeeds.
		var hits int
		backend := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["password"] != "hunter22" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": "Invalid email or password"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"accessToken": "at-ok", "refreshToken": "rt-ok"})
		})

		for range 6 {
			_, err := backend.Authenticate(ctx, service.Credentials{
				EmailOrUsername: "ada@example.com",
				Password:        "wrong",
			}, nil)
			var ue *service.UpstreamError
			require.ErrorAs(t, err, &ue)
			require.Equal(t, http.StatusUnauthorized, ue.Status)
		}

		sess, err := backend.Authenticate(ctx, service.Credentials{
			EmailOrUsername: "ada@example.com",
			Password:        "hunter22",
		}, nil)
		require.NoError(t, err)
		require.Equal(t, "at-ok", sess.Tokens.AccessToken)
		require.Equal(t, 7, hits)
	})

	t.Run("unreachable upstream", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		backend := service.NewRemoteBackend(service.RemoteConfig{BaseURL: url})
		_, err := backend.Refresh(ctx, "rt-old", nil)
		require.ErrorIs(t, err, service.ErrUpstreamUnavailable)
	})
}
