package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/izzyreal/wishjournal/internal/config"
	"github.com/izzyreal/wishjournal/internal/content"
	"github.com/izzyreal/wishjournal/internal/scriptrun"
	"github.com/izzyreal/wishjournal/internal/store"
	"github.com/izzyreal/wishjournal/internal/widget"
)

const (
	reapInterval     = 5 * time.Second
	widgetMaxIdle    = time.Hour
	limiterMaxIdle   = 3 * time.Minute
	shutdownDeadline = 5 * time.Second
)

// stateStore holds everything the handlers share.
type stateStore struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *store.Store
	lib      *content.Library
	widgets  *widget.Registry
	host     *widget.Host
	sessions *scriptrun.Manager
	limiter  *loginLimiter
	pages    map[string]*template.Template

	// scriptBackend builds the backend for a resolved script path.
	scriptBackend func(script string) scriptrun.Backend
}

func newStateStore(cfg config.Config, db *store.Store, lib *content.Library, logger *slog.Logger) (*stateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	registry := widget.NewRegistry(logger.With("component", "widgets"))
	widget.RegisterBuiltins(registry)

	return &stateStore{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		lib:     lib,
		widgets: registry,
		host:    widget.NewHost(),
		sessions: scriptrun.NewManager(scriptrun.Options{
			Timeout: cfg.ScriptTimeout,
			MaxAge:  cfg.SessionMaxAge,
			Logger:  logger.With("component", "sessions"),
		}),
		limiter: newLoginLimiter(loginAttemptsPerMinute, loginBurst),
		pages:   pages,
		scriptBackend: func(script string) scriptrun.Backend {
			return scriptrun.PythonBackend(cfg.Python, script)
		},
	}, nil
}

// Run serves the blog until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	lib := content.New(cfg.ContentPath, logger.With("component", "content"))
	if err := lib.Load(); err != nil {
		logger.Warn("initial content load failed", "path", cfg.ContentPath, "error", err)
	}

	s, err := newStateStore(cfg, db, lib, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go lib.Watch(ctx, cfg.WatchInterval, config.WatchDebounce)
	go s.sessions.Run(ctx, reapInterval)
	go s.reap(ctx, reapInterval)

	stopMDNS := startMDNSAdvertiser(cfg, lib)
	defer stopMDNS()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           buildRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("wishjournal server started", "addr", cfg.Addr, "content", cfg.ContentPath, "production", cfg.Production)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen and serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownDeadline)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		logger.Info("wishjournal server stopped")
		return nil
	case err := <-errCh:
		if err != nil {
			return err
		}
		logger.Info("wishjournal server stopped")
		return nil
	}
}

// reap drops idle widget instances and stale login limiters.
func (s *stateStore) reap(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.host.Prune(widgetMaxIdle); n > 0 {
				s.logger.Debug("pruned widget instances", "count", n)
			}
			s.limiter.prune(limiterMaxIdle)
		}
	}
}
