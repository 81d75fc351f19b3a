package humanoid

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// MoveTo moves the cursor to a realistic point inside the element matched by
// the selector.
func (h *Humanoid) MoveTo(ctx context.Context, selector string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moveToSelector(ctx, selector)
}

// MoveToVector moves the cursor to an absolute coordinate.
func (h *Humanoid) MoveToVector(ctx context.Context, target Vector2D) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moveToVector(ctx, target)
}

// moveToSelector assumes the caller holds the lock.
func (h *Humanoid) moveToSelector(ctx context.Context, selector string) error {
	// Scroll first; if that fails the element may still already be in view.
	if err := h.executor.ScrollIntoView(ctx, selector); err != nil {
		h.logger.Warn("failed to scroll element into view before moving",
			zap.String("selector", selector), zap.Error(err))
	}

	geo, err := h.executor.ElementBox(ctx, selector)
	if err != nil {
		return fmt.Errorf("humanoid: failed to locate target %q: %w", selector, err)
	}
	center, valid := geo.Center()
	if !valid {
		return fmt.Errorf("humanoid: element %q has invalid geometry", selector)
	}

	target := h.targetPoint(geo, center)
	return h.moveToVector(ctx, target)
}

// moveToVector is the core movement logic. Assumes the caller holds the lock.
func (h *Humanoid) moveToVector(ctx context.Context, target Vector2D) error {
	startPos := h.currentPos
	dist := startPos.Dist(target)
	if dist < 1.5 {
		return nil
	}

	h.updateFatigue(dist / 1000.0)

	if _, err := h.simulateTrajectory(ctx, startPos, target); err != nil {
		return err
	}

	// After a significant movement the user verifies the target before
	// acting (terminal phase of Fitts's law).
	if dist > 20.0 {
		pause := h.terminalFittsPause(dist)
		h.recoverFatigue(pause)
		if err := h.hesitate(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

// targetPoint picks a realistic aim point within an element's bounds rather
// than the exact center. Assumes the caller holds the lock.
func (h *Humanoid) targetPoint(geo *ElementGeometry, center Vector2D) Vector2D {
	if geo == nil || geo.Width <= 0 || geo.Height <= 0 {
		return center
	}

	// Aim for the inner 80% with a normal distribution; 99.7% of points fall
	// within three standard deviations.
	stdDevX := geo.Width * 0.8 / 6.0
	stdDevY := geo.Height * 0.8 / 6.0

	offsetX := h.rng.NormFloat64() * stdDevX
	offsetY := h.rng.NormFloat64() * stdDevY

	// Motor tremor at the point of aiming.
	offsetX += h.rng.NormFloat64() * h.dynamicConfig.ClickNoise
	offsetY += h.rng.NormFloat64() * h.dynamicConfig.ClickNoise

	finalX := center.X + offsetX
	finalY := center.Y + offsetY

	// Clamp strictly inside the element with a one-pixel margin.
	minX, maxX := center.X-geo.Width/2.0+1.0, center.X+geo.Width/2.0-1.0
	minY, maxY := center.Y-geo.Height/2.0+1.0, center.Y+geo.Height/2.0-1.0
	finalX = math.Max(minX, math.Min(maxX, finalX))
	finalY = math.Max(minY, math.Min(maxY, finalY))

	return Vector2D{X: finalX, Y: finalY}
}
