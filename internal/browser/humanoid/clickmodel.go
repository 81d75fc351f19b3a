package humanoid

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Click performs a human-like click on the element matched by the selector.
func (h *Humanoid) Click(ctx context.Context, selector string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.moveToSelector(ctx, selector); err != nil {
		return err
	}
	return h.pressAndRelease(ctx)
}

// ClickAt performs a human-like click at an absolute coordinate. Used for
// vision-derived click targets where no selector exists.
func (h *Humanoid) ClickAt(ctx context.Context, x, y float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.moveToVector(ctx, Vector2D{X: x, Y: y}); err != nil {
		return err
	}
	return h.pressAndRelease(ctx)
}

// pressAndRelease dispatches the press, hold and release sequence at the
// current position. Assumes the caller holds the lock.
func (h *Humanoid) pressAndRelease(ctx context.Context) error {
	// Final verification pause before committing.
	if err := h.cognitivePause(ctx, 50, 20); err != nil {
		return err
	}

	clickPos := h.applyClickNoise(h.currentPos)
	down := MouseEvent{
		Kind:       MousePress,
		X:          clickPos.X,
		Y:          clickPos.Y,
		Button:     ButtonLeft,
		ClickCount: 1,
		Buttons:    1,
	}
	if err := h.executor.DispatchMouseEvent(ctx, down); err != nil {
		return err
	}
	h.currentPos = clickPos
	h.currentButtonState = ButtonLeft

	// Subtle tremor while the button is held.
	if err := h.hesitate(ctx, h.clickHoldDuration()); err != nil {
		h.logger.Warn("click hold interrupted, releasing mouse", zap.Error(err))
		// The original context may already be cancelled.
		h.releaseMouse(context.Background())
		return err
	}

	h.currentPos = h.applyClickNoise(h.currentPos)
	if err := h.releaseMouse(ctx); err != nil {
		return err
	}

	h.updateFatigue(0.1)
	return nil
}

// clickHoldDuration picks how long the button stays pressed. Assumes the
// lock is held.
func (h *Humanoid) clickHoldDuration() time.Duration {
	minMs := float64(h.baseConfig.ClickHoldMinMs)
	maxMs := float64(h.baseConfig.ClickHoldMaxMs)

	// Skew towards shorter clicks: Gaussian centered slightly below the
	// midpoint of the range.
	mean := (minMs + maxMs) / 2.0 * 0.9
	stdDev := (maxMs - minMs) / 5.0

	durationMs := mean + h.rng.NormFloat64()*stdDev
	durationMs = math.Max(minMs, math.Min(maxMs, durationMs))

	// Clicks lengthen slightly when tired.
	durationMs *= 1.0 + h.fatigueLevel*0.25

	return time.Duration(durationMs) * time.Millisecond
}
