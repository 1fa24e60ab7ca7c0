package gateway_test

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillboard/quillboard/internal/gateway/app"
	"github.com/quillboard/quillboard/pkg/tokenx"
)

const (
	tokenSecret   = "0123456789abcdef0123456789abcdef"
	adminEmail    = "admin@example.com"
	adminPassword = "correct horse battery staple"
)

func baseConfig(t *testing.T) app.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := app.LoadConfig()
	cfg.TokenSecret = tokenSecret
	cfg.DatabaseFile = filepath.Join(dir, "gateway.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.ExcludedRoutes = []string{"/login"}
	cfg.LogLevel = "error"
	return cfg
}

// startGateway boots a full gateway around a trivial protected app and
// serves it over a test listener.
func startGateway(t *testing.T, cfg app.Config) *httptest.Server {
	t.Helper()

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown() })

	application.SetApp(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("app ok"))
	}))

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// newBrowser returns a client with a cookie jar that does not follow
// redirects, so tests can assert on Location headers.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func gatewayCodec() *tokenx.Codec {
	return &tokenx.Codec{
		Secret:     []byte(tokenSecret),
		Issuer:     "quillboard-gateway",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}
}

// mintExpiredAccess fabricates an access credential that expired long ago,
// signed with the gateway's secret.
func mintExpiredAccess(t *testing.T, p tokenx.Principal) string {
	t.Helper()
	codec := gatewayCodec()
	codec.Now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	tok, err := codec.Mint(p, tokenx.KindAccess)
	require.NoError(t, err)
	return tok
}
