package humanoid

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// MouseEventKind distinguishes the raw mouse events we dispatch.
type MouseEventKind string

const (
	MouseMove    MouseEventKind = "mouseMoved"
	MousePress   MouseEventKind = "mousePressed"
	MouseRelease MouseEventKind = "mouseReleased"
)

// MouseButton mirrors the CDP button strings.
type MouseButton string

const (
	ButtonNone MouseButton = "none"
	ButtonLeft MouseButton = "left"
)

// MouseEvent is a raw low-level mouse event to be dispatched to the browser.
type MouseEvent struct {
	Kind       MouseEventKind
	X          float64
	Y          float64
	Button     MouseButton
	Buttons    int64
	ClickCount int64
}

// Executor is the contract for the browser interactions the simulation
// requires. It exists so tests can run the full physics model against a
// recording fake instead of a live browser.
type Executor interface {
	// Sleep pauses execution for the given duration (context-aware).
	Sleep(ctx context.Context, d time.Duration) error

	// DispatchMouseEvent sends a raw mouse event.
	DispatchMouseEvent(ctx context.Context, ev MouseEvent) error

	// SendKeys types text into the currently focused element.
	SendKeys(ctx context.Context, text string) error

	// PressKey sends a single named key (e.g. "Backspace") to the focused
	// element.
	PressKey(ctx context.Context, key string) error

	// ElementBox measures the on-screen geometry of the first visible node
	// matching the selector.
	ElementBox(ctx context.Context, selector string) (*ElementGeometry, error)

	// ScrollIntoView brings the element into the viewport.
	ScrollIntoView(ctx context.Context, selector string) error
}

// CDPExecutor is the production Executor backed by chromedp.
type CDPExecutor struct{}

// NewCDPExecutor creates a production-ready executor.
func NewCDPExecutor() *CDPExecutor { return &CDPExecutor{} }

func (e *CDPExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return chromedp.Sleep(d).Do(ctx)
}

func (e *CDPExecutor) DispatchMouseEvent(ctx context.Context, ev MouseEvent) error {
	p := input.DispatchMouseEvent(input.MouseType(ev.Kind), ev.X, ev.Y).
		WithButton(input.MouseButton(ev.Button)).
		WithButtons(ev.Buttons).
		WithClickCount(ev.ClickCount)
	return p.Do(ctx)
}

func (e *CDPExecutor) SendKeys(ctx context.Context, text string) error {
	return chromedp.KeyEvent(text).Do(ctx)
}

func (e *CDPExecutor) PressKey(ctx context.Context, key string) error {
	return chromedp.KeyEvent(key).Do(ctx)
}

func (e *CDPExecutor) ElementBox(ctx context.Context, selector string) (*ElementGeometry, error) {
	var nodes []*cdp.Node
	err := chromedp.Tasks{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery),
	}.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve selector %q: %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no visible node for selector %q", selector)
	}

	box, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to measure %q: %w", selector, err)
	}
	// Content quad layout: x0,y0, x1,y1, x2,y2, x3,y3 clockwise from top-left.
	if len(box.Content) < 8 {
		return nil, fmt.Errorf("degenerate box model for %q", selector)
	}
	return &ElementGeometry{
		X:      box.Content[0],
		Y:      box.Content[1],
		Width:  box.Content[2] - box.Content[0],
		Height: box.Content[5] - box.Content[1],
	}, nil
}

func (e *CDPExecutor) ScrollIntoView(ctx context.Context, selector string) error {
	return chromedp.ScrollIntoView(selector, chromedp.ByQuery).Do(ctx)
}
