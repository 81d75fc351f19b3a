// Package browser owns the Chrome processes behind the server: isolated
// sessions (browser contexts), their pages (tabs), and the per-page console
// and network capture that clients query later.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
	"github.com/xkilldash9x/spyglass/internal/config"
)

// Manager manages the lifecycle of the browser process and the creation of
// isolated sessions.
type Manager struct {
	logger  *zap.Logger
	cfg     *config.Config
	persona schemas.Persona

	// ChromeDP allocator context manages the underlying browser executable.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	pages    map[string]*Page // Page IDs are unique across all sessions.
}

// NewManager creates and initializes the browser manager.
func NewManager(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*Manager, error) {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		persona:  personaOrDefault(schemas.Persona{}),
		sessions: make(map[string]*Session),
		pages:    make(map[string]*Page),
	}

	opts := m.generateAllocatorOptions()
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, opts...)

	m.logger.Info("Browser manager initialized",
		zap.Bool("headless", cfg.Browser.Headless),
		zap.Int("viewport_width", cfg.Browser.ViewportWidth),
		zap.Int("viewport_height", cfg.Browser.ViewportHeight),
	)
	return m, nil
}

// generateAllocatorOptions configures the flags for the browser executable.
func (m *Manager) generateAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	browserCfg := m.cfg.Browser
	if browserCfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	opts = append(opts,
		// Automation detection avoidance.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		// Stability flags for long-lived server use.
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-extensions", true),

		// GPU often causes issues in headless/containerized environments.
		chromedp.Flag("disable-gpu", browserCfg.Headless),

		chromedp.Flag("ignore-certificate-errors", browserCfg.IgnoreTLSErrors),

		chromedp.UserAgent(m.persona.UserAgent),
		chromedp.Flag("lang", m.persona.Locale),

		chromedp.WindowSize(browserCfg.ViewportWidth, browserCfg.ViewportHeight),
	)

	return opts
}

// NewSession creates a new, isolated browser session addressed by an opaque
// short ID that stateless clients carry across invocations.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.Server.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("session limit reached (%d)", m.cfg.Server.MaxSessions)
	}
	m.mu.Unlock()

	sessionCtx, cancel := chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Errorf),
	)

	// Spin up the browser context with the persona before handing it out.
	actions := append(personaActions(m.persona), chromedp.Navigate("about:blank"))
	if err := chromedp.Run(sessionCtx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize new browser session: %w", err)
	}

	// Short opaque IDs; collisions are checked under the lock below.
	sessionID := uuid.New().String()[:8]

	s := newSession(sessionCtx, cancel, m, sessionID, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sessionID]; exists {
		cancel()
		return nil, fmt.Errorf("session id collision for %q", sessionID)
	}
	m.sessions[sessionID] = s

	m.logger.Info("Session created", zap.String("session_id", sessionID))
	return s, nil
}

// Session returns the live session for the given ID.
func (m *Manager) Session(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Page resolves a page by its globally unique ID.
func (m *Manager) Page(pageID string) (*Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[pageID]
	return p, ok
}

// ListSessions reports all live sessions.
func (m *Manager) ListSessions() []schemas.SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]schemas.SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// CloseSession tears down a session and all of its pages.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return s.Close(ctx)
}

// Counts reports live session and page totals for the health endpoint.
func (m *Manager) Counts() (sessions, pages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions), len(m.pages)
}

// registerPage records a page in the global index. Called by Session.NewPage.
func (m *Manager) registerPage(p *Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[p.ID()] = p
}

// unregisterPage drops a single page from the global index. Called by
// Page.Close.
func (m *Manager) unregisterPage(pageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, pageID)
}

// unregisterSession removes the session and its pages from tracking. Called
// internally by Session.Close.
func (m *Manager) unregisterSession(sessionID string, pageIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	for _, id := range pageIDs {
		delete(m.pages, id)
	}
}

// Shutdown gracefully terminates all browser processes.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager...")

	m.mu.Lock()
	sessionsToClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessionsToClose = append(sessionsToClose, s)
	}
	// Clear immediately so no new pages attach during shutdown.
	m.sessions = make(map[string]*Session)
	m.pages = make(map[string]*Page)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessionsToClose {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			// Bound each close so an unresponsive browser cannot hang us.
			closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := s.Close(closeCtx); err != nil {
				m.logger.Warn("Error closing session during shutdown",
					zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}
	wg.Wait()

	if m.allocatorCancel != nil {
		m.allocatorCancel()
	}

	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
