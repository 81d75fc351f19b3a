package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/api/schemas"
	"github.com/xkilldash9x/spyglass/internal/browser/humanoid"
	"github.com/xkilldash9x/spyglass/internal/config"
)

// Page is one browser tab. It implements schemas.PageCommander and captures
// the tab's console and network traffic into bounded buffers as a side
// effect of living.
type Page struct {
	id       string
	session  *Session
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	humanoid *humanoid.Humanoid

	console   consoleRing
	pageErrs  consoleRing
	netlog    networkRing
	inflight  map[network.RequestID]schemas.NetworkLog
	inflightM sync.Mutex

	closeOnce sync.Once
}

func newPage(ctx context.Context, cancel context.CancelFunc, s *Session, id string, cfg *config.Config, logger *zap.Logger) *Page {
	p := &Page{
		id:       id,
		session:  s,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.Named("page").With(zap.String("page_id", id)),
		inflight: make(map[network.RequestID]schemas.NetworkLog),
	}

	if cfg.Browser.Humanoid.Enabled {
		p.humanoid = humanoid.New(cfg.Browser.Humanoid, p.logger, humanoid.NewCDPExecutor())
	}

	p.attachListeners()
	// Each tab is its own CDP target, so the persona overrides run again.
	actions := append(personaActions(s.manager.persona), network.Enable(), runtime.Enable())
	if err := chromedp.Run(ctx, actions...); err != nil {
		p.logger.Warn("Failed to enable capture domains", zap.Error(err))
	}
	return p
}

// ID returns the page identifier.
func (p *Page) ID() string { return p.id }

// SessionID returns the owning session's identifier.
func (p *Page) SessionID() string { return p.session.ID() }

// attachListeners subscribes the page to console, exception and network
// events for the lifetime of its tab context.
func (p *Page) attachListeners() {
	chromedp.ListenTarget(p.ctx, func(ev any) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			p.console.add(schemas.ConsoleLog{
				Timestamp: time.Now().UTC(),
				Type:      string(e.Type),
				Text:      formatConsoleArgs(e.Args),
			})
		case *runtime.EventExceptionThrown:
			entry := schemas.ConsoleLog{
				Timestamp: time.Now().UTC(),
				Type:      "pageerror",
				Text:      exceptionText(e.ExceptionDetails),
			}
			if e.ExceptionDetails != nil && e.ExceptionDetails.URL != "" {
				entry.Location = fmt.Sprintf("%s:%d", e.ExceptionDetails.URL, e.ExceptionDetails.LineNumber)
			}
			p.pageErrs.add(entry)
		case *network.EventRequestWillBeSent:
			p.onRequest(e)
		case *network.EventResponseReceived:
			p.onResponse(e)
		case *network.EventLoadingFailed:
			p.onFailure(e)
		}
	})
}

// Request attribution bounds. Some requests never see a response or failure
// event (websockets, aborted loads), so the map is evicted by age and
// hard-capped.
const (
	maxInflightRequests = 512
	inflightTTL         = 2 * time.Minute
)

func (p *Page) onRequest(e *network.EventRequestWillBeSent) {
	entry := schemas.NetworkLog{
		Timestamp: time.Now().UTC(),
		Method:    e.Request.Method,
		URL:       e.Request.URL,
		Type:      "request",
	}
	p.inflightM.Lock()
	if len(p.inflight) >= maxInflightRequests {
		cutoff := time.Now().UTC().Add(-inflightTTL)
		for id, pending := range p.inflight {
			if pending.Timestamp.Before(cutoff) {
				delete(p.inflight, id)
			}
		}
	}
	// Still full means the page produced hundreds of dangling requests in
	// minutes; responses to these lose method/URL attribution only.
	if len(p.inflight) < maxInflightRequests {
		p.inflight[e.RequestID] = entry
	}
	p.inflightM.Unlock()
	p.netlog.add(entry)
}

func (p *Page) onResponse(e *network.EventResponseReceived) {
	p.inflightM.Lock()
	req, ok := p.inflight[e.RequestID]
	delete(p.inflight, e.RequestID)
	p.inflightM.Unlock()

	entry := schemas.NetworkLog{
		Timestamp: time.Now().UTC(),
		URL:       e.Response.URL,
		Status:    e.Response.Status,
		Type:      "response",
	}
	if ok {
		entry.Method = req.Method
	}
	p.netlog.add(entry)
}

func (p *Page) onFailure(e *network.EventLoadingFailed) {
	p.inflightM.Lock()
	req, ok := p.inflight[e.RequestID]
	delete(p.inflight, e.RequestID)
	p.inflightM.Unlock()

	entry := schemas.NetworkLog{
		Timestamp: time.Now().UTC(),
		Type:      "failure",
		Failure:   e.ErrorText,
	}
	if ok {
		entry.Method = req.Method
		entry.URL = req.URL
	}
	p.netlog.add(entry)
}

// run executes chromedp actions on the tab while honoring the caller's
// cancellation and deadline.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Report the caller's cancellation rather than the derived one.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate loads the given URL and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating", zap.String("url", url))
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Click clicks the first element matching the CSS selector. When humanoid
// simulation is enabled the cursor travels there instead of teleporting.
func (p *Page) Click(ctx context.Context, selector string) error {
	if p.humanoid != nil {
		return p.run(ctx, chromedp.ActionFunc(func(actx context.Context) error {
			return p.humanoid.Click(actx, selector)
		}))
	}
	if err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

// ClickAt clicks an absolute viewport coordinate.
func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	if p.humanoid != nil {
		return p.run(ctx, chromedp.ActionFunc(func(actx context.Context) error {
			return p.humanoid.ClickAt(actx, x, y)
		}))
	}
	if err := p.run(ctx, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("click at (%.0f, %.0f) failed: %w", x, y, err)
	}
	return nil
}

// Fill replaces the value of an input in one shot and fires an input event.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	if err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill of %q failed: %w", selector, err)
	}
	return nil
}

// Type focuses the element and types the text keystroke by keystroke. With
// humanoid simulation enabled this includes cadence, typos and corrections.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	if p.humanoid != nil {
		return p.run(ctx, chromedp.ActionFunc(func(actx context.Context) error {
			return p.humanoid.Type(actx, selector, text)
		}))
	}
	if err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("typing into %q failed: %w", selector, err)
	}
	return nil
}

// namedKeys maps the friendly key names clients send to the control runes
// chromedp's keyboard layer understands.
var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
}

// Press sends a single named key (e.g. "Enter") to the element.
func (p *Page) Press(ctx context.Context, selector, key string) error {
	chord, ok := namedKeys[strings.ToLower(key)]
	if !ok {
		chord = key
	}
	if err := p.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.KeyEvent(chord),
	); err != nil {
		return fmt.Errorf("pressing %q on %q failed: %w", key, selector, err)
	}
	return nil
}

// SelectOption picks the option with the given value on a <select> element
// and dispatches the change events a real selection would.
func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	if err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("selecting %q on %q failed: %w", value, selector, err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page, awaiting any returned
// promise. The JSON-decoded result is stored in out when non-nil.
func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	if err := p.run(ctx, chromedp.Evaluate(expression, out,
		func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithAwaitPromise(true)
		},
	)); err != nil {
		return fmt.Errorf("evaluate failed: %w", err)
	}
	return nil
}

// WaitForSelector blocks until the selector is visible or the timeout
// elapses.
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

// WaitDuration sleeps for the given duration, respecting cancellation.
func (p *Page) WaitDuration(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Screenshot captures the page as PNG bytes. With fullPage set the capture
// covers the whole scrollable document rather than the viewport.
func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := p.run(ctx, action); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Info reports the page URL, title and viewport dimensions.
func (p *Page) Info(ctx context.Context) (*schemas.PageInfo, error) {
	var info schemas.PageInfo
	err := p.run(ctx,
		chromedp.Location(&info.URL),
		chromedp.Title(&info.Title),
		chromedp.Evaluate(`({width: window.innerWidth, height: window.innerHeight})`, &info.Viewport),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read page info: %w", err)
	}
	return &info, nil
}

// ConsoleLogs returns captured console messages matching the query.
func (p *Page) ConsoleLogs(q schemas.LogQuery) []schemas.ConsoleLog {
	return p.console.query(q)
}

// PageErrors returns captured uncaught exceptions matching the query.
func (p *Page) PageErrors(q schemas.LogQuery) []schemas.ConsoleLog {
	return p.pageErrs.query(q)
}

// NetworkLogs returns captured network events.
func (p *Page) NetworkLogs(since *time.Time, limit int) []schemas.NetworkLog {
	return p.netlog.query(since, limit)
}

// Close tears down the tab and removes it from the session and manager
// registries.
func (p *Page) Close(ctx context.Context) error {
	p.close()
	p.session.removePage(p.id)
	p.session.manager.unregisterPage(p.id)
	return nil
}

// close cancels the tab context without touching the registries. Session
// teardown uses it while already holding its own locks.
func (p *Page) close() {
	p.closeOnce.Do(func() {
		p.logger.Debug("Closing page")
		if p.cancel != nil {
			p.cancel()
		}
	})
}

// formatConsoleArgs renders console call arguments the way devtools would,
// space separated.
func formatConsoleArgs(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		switch {
		case len(arg.Value) > 0:
			parts = append(parts, strings.Trim(string(arg.Value), `"`))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return strings.Join(parts, " ")
}

func exceptionText(details *runtime.ExceptionDetails) string {
	if details == nil {
		return "unknown exception"
	}
	if details.Exception != nil && details.Exception.Description != "" {
		return details.Exception.Description
	}
	return details.Text
}

var _ schemas.PageCommander = (*Page)(nil)
