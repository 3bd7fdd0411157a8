// Package app assembles the service: store, container runtime, lifecycle
// manager, expiry reconciler, and the HTTP API.
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

	"github.com/bdobrica/spaces/internal/spaces/clubs"
	"github.com/bdobrica/spaces/internal/spaces/config"
	"github.com/bdobrica/spaces/internal/spaces/httpapi"
	"github.com/bdobrica/spaces/internal/spaces/lifecycle"
	"github.com/bdobrica/spaces/internal/spaces/oauth"
	"github.com/bdobrica/spaces/internal/spaces/runtime/docker"
	"github.com/bdobrica/spaces/internal/spaces/store"
	"github.com/bdobrica/spaces/internal/spaces/verify"
)

// App is the assembled service.
type App struct {
	cfg        *config.Config
	store      *store.Store
	reconciler *lifecycle.Reconciler
	httpServer *http.Server
}

// New wires everything together.
func New(cfg *config.Config) (*App, error) {
	setupLogging(cfg.LogLevel)

	slog.Info("opening database", "driver", cfg.Database.Driver)
	st, err := store.New(store.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rt, err := docker.New()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize container runtime: %w", err)
	}

	manager := lifecycle.NewManager(st, rt, lifecycle.URLComposer{
		BaseURL:  cfg.BaseURL,
		PathMode: cfg.PathMode,
	}, slog.Default(), cfg.OpTimeout.Std())

	reconciler := lifecycle.NewReconciler(st, rt, lifecycle.ReconcilerConfig{
		Interval:      cfg.Reconciler.Interval.Std(),
		SessionBudget: cfg.Reconciler.SessionBudget.Std(),
	}, slog.Default())

	clubService := clubs.NewService(st,
		clubs.NewHTTPDirectory(cfg.Directory.BaseURL, cfg.Directory.APIKey), slog.Default())
	verifier := verify.New(verify.NewHTTPSender(cfg.Mail.Endpoint, cfg.Mail.APIKey), slog.Default())

	_, handler, err := httpapi.NewServer(httpapi.Options{
		Store:          st,
		Manager:        manager,
		Clubs:          clubService,
		Verifier:       verifier,
		OAuth:          oauth.New(cfg.OAuth),
		Logger:         slog.Default(),
		AllowedOrigins: cfg.AllowedOrigins,
		FrontendURL:    cfg.FrontendURL,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to build http server: %w", err)
	}

	return &App{
		cfg:        cfg,
		store:      st,
		reconciler: reconciler,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run starts the reconciler and serves HTTP until an interrupt arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.reconciler.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", a.cfg.HTTPAddr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown incomplete", "err", err)
	}
	return nil
}

// Stop releases resources held by the app.
func (a *App) Stop() {
	slog.Info("closing database")
	a.store.Close()
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
