// Package humanoid simulates human mouse and keyboard behavior on top of a
// raw input dispatcher: spring-damped cursor trajectories with Perlin drift
// and Gaussian tremor, Fitts's law pauses, a fatigue model, and a typo-prone
// typing model.
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"
)

// maxVelocity is the maximum physiological cursor speed (pixels per second).
const maxVelocity = 6000.0

// Humanoid holds the state of one simulated user.
type Humanoid struct {
	// mu protects all mutable state below. Any method that reads or writes
	// simulation state must hold it.
	mu                 sync.Mutex
	baseConfig         Config
	dynamicConfig      Config
	logger             *zap.Logger
	executor           Executor
	currentPos         Vector2D
	currentButtonState MouseButton
	fatigueLevel       float64
	rng                *rand.Rand
	noiseX             *perlin.Perlin
	noiseY             *perlin.Perlin
}

// New creates and initializes a Humanoid driving the given executor.
func New(config Config, logger *zap.Logger, executor Executor) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}

	seed := time.Now().UnixNano()
	rng := config.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	}

	config.applyDefaults()
	config.clampTypoRate()

	// Standard Perlin noise parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)

	h := &Humanoid{
		baseConfig:         config,
		dynamicConfig:      config,
		logger:             logger.Named("humanoid"),
		executor:           executor,
		rng:                rng,
		currentButtonState: ButtonNone,
		noiseX:             perlin.NewPerlin(alpha, beta, n, seed),
		noiseY:             perlin.NewPerlin(alpha, beta, n, seed+1),
	}
	return h
}

// NewTestHumanoid creates an instance with fully deterministic noise and RNG
// for tests.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	config := DefaultConfig()
	config.Rng = rand.New(rand.NewSource(seed))

	h := New(config, zap.NewNop(), executor)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.noiseX = perlin.NewPerlin(2, 2, 3, seed)
	h.noiseY = perlin.NewPerlin(2, 2, 3, seed+1)

	// Fast, predictable physics for test runs.
	h.dynamicConfig.FittsA = 10.0
	h.dynamicConfig.FittsB = 15.0
	h.dynamicConfig.Omega = 30.0
	h.dynamicConfig.Zeta = 0.8
	h.dynamicConfig.PerlinAmplitude = 2.0
	h.dynamicConfig.GaussianStrength = 0.5
	h.baseConfig = h.dynamicConfig

	return h
}

// Position reports the simulated cursor position.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

// releaseMouse ensures the left button is released. Used for cleanup during
// interrupted clicks. Assumes the caller holds the lock.
func (h *Humanoid) releaseMouse(ctx context.Context) error {
	if h.currentButtonState != ButtonLeft {
		return nil
	}

	ev := MouseEvent{
		Kind:       MouseRelease,
		X:          h.currentPos.X,
		Y:          h.currentPos.Y,
		Button:     ButtonLeft,
		ClickCount: 1,
		Buttons:    0,
	}
	err := h.executor.DispatchMouseEvent(ctx, ev)
	if err != nil {
		// Update state regardless so the simulation cannot get stuck with
		// the button virtually pressed.
		h.logger.Error("failed to dispatch mouse release, updating state anyway", zap.Error(err))
	}
	h.currentButtonState = ButtonNone
	return err
}

// buttonsBitfield converts button state to the CDP bitfield representation.
func buttonsBitfield(b MouseButton) int64 {
	if b == ButtonLeft {
		return 1
	}
	return 0
}
