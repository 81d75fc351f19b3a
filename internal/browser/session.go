package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
)

// Session is one isolated browser context. Pages (tabs) are created inside
// it and addressed by their own IDs.
type Session struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	manager   *Manager
	logger    *zap.Logger
	createdAt time.Time

	mu    sync.Mutex
	pages map[string]*Page
}

func newSession(ctx context.Context, cancel context.CancelFunc, m *Manager, id string, logger *zap.Logger) *Session {
	return &Session{
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		manager:   m,
		logger:    logger.Named("session").With(zap.String("session_id", id)),
		createdAt: time.Now().UTC(),
		pages:     make(map[string]*Page),
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// Info summarizes the session for listing endpoints.
func (s *Session) Info() schemas.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.pages))
	for id := range s.pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return schemas.SessionInfo{
		SessionID: s.id,
		CreatedAt: s.createdAt,
		PageIDs:   ids,
	}
}

// NewPage opens a new tab in this session, wires its console/network capture
// and optionally navigates it.
func (s *Session) NewPage(ctx context.Context, url string) (*Page, error) {
	s.mu.Lock()
	if len(s.pages) >= s.manager.cfg.Server.MaxPagesPerSession {
		s.mu.Unlock()
		return nil, fmt.Errorf("page limit reached for session %s (%d)",
			s.id, s.manager.cfg.Server.MaxPagesPerSession)
	}
	s.mu.Unlock()

	// A derived chromedp context within the same browser context is a tab.
	pageCtx, cancel := chromedp.NewContext(s.ctx)

	if err := chromedp.Run(pageCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open new page: %w", err)
	}

	pageID := uuid.New().String()[:8]
	p := newPage(pageCtx, cancel, s, pageID, s.manager.cfg, s.logger)

	s.mu.Lock()
	s.pages[pageID] = p
	s.mu.Unlock()
	s.manager.registerPage(p)

	if url != "" {
		if err := p.Navigate(ctx, url); err != nil {
			// The page stays usable; surface the navigation failure.
			return p, fmt.Errorf("page created but initial navigation failed: %w", err)
		}
	}

	s.logger.Info("Page created", zap.String("page_id", pageID), zap.String("url", url))
	return p, nil
}

// Page returns a page belonging to this session.
func (s *Session) Page(pageID string) (*Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageID]
	return p, ok
}

// removePage drops a closed page from the session map.
func (s *Session) removePage(pageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, pageID)
}

// Close tears down the session and every page in it.
func (s *Session) Close(ctx context.Context) error {
	s.logger.Debug("Closing session")

	s.mu.Lock()
	pageIDs := make([]string, 0, len(s.pages))
	for id, p := range s.pages {
		pageIDs = append(pageIDs, id)
		p.close()
	}
	s.pages = make(map[string]*Page)
	s.mu.Unlock()

	if s.manager != nil {
		s.manager.unregisterSession(s.id, pageIDs)
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
