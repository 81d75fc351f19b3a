// Package server exposes the browser manager over HTTP. Clients create
// sessions and pages, then drive pages with generic commands and read back
// the captured console and network logs.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
	"github.com/xkilldash9x/spyglass/internal/browser"
	"github.com/xkilldash9x/spyglass/internal/config"
)

// PageHandle is the per-page surface the handlers need. *browser.Page
// satisfies it; tests use fakes.
type PageHandle interface {
	schemas.PageCommander
	ID() string
	SessionID() string
	PageErrors(q schemas.LogQuery) []schemas.ConsoleLog
	Close(ctx context.Context) error
}

// Backend abstracts the browser manager away from the HTTP layer.
type Backend interface {
	CreateSession(ctx context.Context) (schemas.SessionInfo, error)
	ListSessions() []schemas.SessionInfo
	SessionExists(sessionID string) bool
	CloseSession(ctx context.Context, sessionID string) error
	CreatePage(ctx context.Context, sessionID, url string) (string, error)
	LookupPage(pageID string) (PageHandle, bool)
	Counts() (sessions, pages int)
}

// managerBackend adapts *browser.Manager to the Backend interface.
type managerBackend struct {
	m *browser.Manager
}

func (b *managerBackend) CreateSession(ctx context.Context) (schemas.SessionInfo, error) {
	s, err := b.m.NewSession(ctx)
	if err != nil {
		return schemas.SessionInfo{}, err
	}
	return s.Info(), nil
}

func (b *managerBackend) ListSessions() []schemas.SessionInfo { return b.m.ListSessions() }

func (b *managerBackend) SessionExists(sessionID string) bool {
	_, ok := b.m.Session(sessionID)
	return ok
}

func (b *managerBackend) CloseSession(ctx context.Context, sessionID string) error {
	return b.m.CloseSession(ctx, sessionID)
}

func (b *managerBackend) CreatePage(ctx context.Context, sessionID, url string) (string, error) {
	s, ok := b.m.Session(sessionID)
	if !ok {
		return "", ErrNotFound
	}
	p, err := s.NewPage(ctx, url)
	if p == nil {
		return "", err
	}
	return p.ID(), err
}

func (b *managerBackend) LookupPage(pageID string) (PageHandle, bool) {
	p, ok := b.m.Page(pageID)
	if !ok {
		return nil, false
	}
	return p, true
}

func (b *managerBackend) Counts() (int, int) { return b.m.Counts() }

// ErrNotFound marks lookups of unknown sessions or pages.
var ErrNotFound = errors.New("not found")

// Server is the HTTP front end over a browser backend.
type Server struct {
	logger  *zap.Logger
	cfg     config.ServerConfig
	backend Backend
	version string

	httpServer *http.Server
}

// New builds a server over a live browser manager.
func New(cfg *config.Config, logger *zap.Logger, m *browser.Manager, version string) *Server {
	return newWithBackend(cfg.Server, logger, &managerBackend{m: m}, version)
}

func newWithBackend(cfg config.ServerConfig, logger *zap.Logger, backend Backend, version string) *Server {
	return &Server{
		logger:  logger.Named("server"),
		cfg:     cfg,
		backend: backend,
		version: version,
	}
}

// Routes assembles the router. Exposed so tests can drive it with httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.cfg.AuthToken != "" {
			r.Use(s.bearerAuth)
		}

		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions/{sessionID}", s.handleCloseSession)
		r.Post("/sessions/{sessionID}/pages", s.handleCreatePage)

		r.Post("/pages/{pageID}/command", s.handleCommand)
		r.Get("/pages/{pageID}/console", s.handleConsoleLogs)
		r.Get("/pages/{pageID}/network", s.handleNetworkLogs)
		r.Get("/pages/{pageID}/errors", s.handleErrorLogs)

		r.Get("/get_screenshot/{sessionID}/{pageID}", s.handleScreenshot)
	})

	return r
}

// Start runs the HTTP server until ctx is canceled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
