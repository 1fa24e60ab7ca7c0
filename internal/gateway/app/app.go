// Package app wires the gateway together: configuration, logging, the
// identity backend, the request gate and the HTTP server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillboard/quillboard/internal/gateway/domain"
	gatewayhttp "github.com/quillboard/quillboard/internal/gateway/http"
	"github.com/quillboard/quillboard/internal/gateway/service"
	"github.com/quillboard/quillboard/internal/gateway/store"
	"github.com/quillboard/quillboard/internal/gateway/store/drivers/sqlite"
	"github.com/quillboard/quillboard/pkg/cryptox"
	"github.com/quillboard/quillboard/pkg/idx"
	"github.com/quillboard/quillboard/pkg/slogx"
	"github.com/quillboard/quillboard/pkg/tokenx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the gateway with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// db is nil when AUTH_BACKEND=remote.
	db store.Store

	codec          *tokenx.Codec
	backend        service.Backend
	refreshService *service.RefreshService
	gate           *service.Gate

	server *http.Server
	router *gatewayhttp.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gateway",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.AuthRequired && cfg.TokenSecret == "" {
		return nil, errors.New("AUTH_TOKEN_SECRET is required when AUTH_REQUIRED is enabled")
	}

	app.codec = &tokenx.Codec{
		Secret:     []byte(cfg.TokenSecret),
		Issuer:     "quillboard-gateway",
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}

	if err := app.initBackend(); err != nil {
		return nil, err
	}

	app.refreshService = service.NewRefreshService(app.backend, cfg.IdentityTimeout)
	app.gate = service.NewGate(service.GateConfig{
		Required:          cfg.AuthRequired,
		ExcludedRoutes:    cfg.ExcludedRoutes,
		AccessCookieName:  cfg.AccessCookieName,
		RefreshCookieName: cfg.RefreshCookieName,
		LoginPath:         cfg.LoginPath,
		FailClosed:        cfg.GateFailClosed,
	}, app.codec, app.refreshService, nil)

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("gateway starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"backend", app.backend.Name(),
		"auth_required", app.cfg.AuthRequired,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			return err
		}
	}

	app.logger.Info("gateway stopped")
	return nil
}

// initBackend selects and initializes the identity backend.
func (app *Application) initBackend() error {
	switch app.cfg.AuthBackend {
	case "local", "":
		if err := app.initDatabase(); err != nil {
			return err
		}
		app.backend = service.NewLocalBackend(app.db, app.codec)
	case "remote":
		if app.cfg.IdentityBaseURL == "" {
			// The backend stays wired but answers ErrNotConfigured; a typo
			// here must surface as a loud 500, not a silent local fallback.
			app.logger.Warn("AUTH_BACKEND=remote without IDENTITY_BASE_URL")
		}
		app.backend = service.NewRemoteBackend(service.RemoteConfig{
			BaseURL:           app.cfg.IdentityBaseURL,
			AppID:             app.cfg.IdentityAppID,
			Timeout:           app.cfg.IdentityTimeout,
			DefaultAccessTTL:  int64(app.cfg.AccessTokenTTL.Seconds()),
			DefaultRefreshTTL: int64(app.cfg.RefreshTokenTTL.Seconds()),
			RefreshCookieName: app.cfg.RefreshCookieName,
		})
	default:
		return fmt.Errorf("unknown AUTH_BACKEND %q (want local or remote)", app.cfg.AuthBackend)
	}
	return nil
}

// initDatabase opens the sqlite store, applies migrations and seeds the
// admin account on an empty store.
func (app *Application) initDatabase() error {
	cryptox.SetPepperPath(app.cfg.PepperFile)

	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database migrations applied successfully")

	if err := app.seedAdmin(context.Background()); err != nil {
		_ = db.Close()
		return err
	}
	return nil
}

// seedAdmin creates the configured admin account when the user store is
// empty, so a fresh deployment has a way in.
func (app *Application) seedAdmin(ctx context.Context) error {
	if app.cfg.AdminEmail == "" || app.cfg.AdminPassword == "" {
		return nil
	}

	empty, err := app.db.Users().IsEmpty(ctx)
	if err != nil {
		return fmt.Errorf("failed to check user store: %w", err)
	}
	if !empty {
		return nil
	}

	hash, err := cryptox.HashPassword(app.cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	user := domain.User{
		ID:           idx.New().String(),
		Email:        app.cfg.AdminEmail,
		Name:         app.cfg.AdminName,
		Role:         "admin",
		PasswordHash: hash,
	}
	if err := app.db.Users().CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	app.logger.Info("seeded admin user", "email", user.Email, "user_id", user.ID)
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := gatewayhttp.NewRouter(BuildVersion, app.logger)
	router.Store = app.db
	router.Backend = app.backend
	router.RefreshService = app.refreshService
	router.Gate = app.gate
	router.Cookies = gatewayhttp.CookieConfig{
		AccessName:  app.cfg.AccessCookieName,
		RefreshName: app.cfg.RefreshCookieName,
		Secure:      app.cfg.Env == "prod",
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// SetApp installs the protected application the gate fronts. Without one
// every gated route serves 404.
func (app *Application) SetApp(h http.Handler) {
	app.router.App = h
}

// Handler exposes the composed router, mainly for end-to-end tests that
// drive the gateway without binding a socket.
func (app *Application) Handler() http.Handler {
	return app.router
}
