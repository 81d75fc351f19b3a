package humanoid

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// timeStep is the granularity of the physics simulation (200Hz).
	timeStep = 5 * time.Millisecond
	// maxSimulationTime bounds the loop if the target is never reached.
	maxSimulationTime = 10 * time.Second
)

// simulateTrajectory moves the cursor using a spring-damped system. The
// approach produces realistic velocity profiles and micro-corrections
// naturally. It returns the final velocity and assumes the caller holds the
// lock.
func (h *Humanoid) simulateTrajectory(ctx context.Context, start, end Vector2D) (Vector2D, error) {
	currentPos := start
	velocity := Vector2D{}
	t := time.Duration(0)

	omega := h.dynamicConfig.Omega
	zeta := h.dynamicConfig.Zeta

	buttons := buttonsBitfield(h.currentButtonState)
	perlinMagnitude := h.dynamicConfig.PerlinAmplitude
	const perlinFrequency = 0.8

	// Optimized submovement model state.
	currentTarget := end
	isMicroCorrection := false
	initialDist := start.Dist(end)

	startTime := time.Now()

	for t < maxSimulationTime {
		if ctx.Err() != nil {
			return velocity, ctx.Err()
		}

		distanceToTarget := currentPos.Dist(currentTarget)
		speed := velocity.Mag()

		// Terminate when close to the target and moving slowly.
		if distanceToTarget < 1.0 && speed < 50.0 {
			if currentTarget == end {
				break
			}
			// Reached a submovement target; refocus on the destination.
			currentTarget = end
			isMicroCorrection = false
			continue
		}

		// Mid-flight corrections only make sense for long movements.
		if !isMicroCorrection && initialDist > h.dynamicConfig.MicroCorrectionThreshold {
			ttc := distanceToTarget / math.Max(1.0, speed)
			if ttc < 0.1 && distanceToTarget > 15.0 && h.rng.Float64() < 0.3 {
				isMicroCorrection = true
				adjustment := 0.8 + h.rng.Float64()*0.4
				currentTarget = currentPos.Add(end.Sub(currentPos).Mul(adjustment))
				h.logger.Debug("initiating micro-correction",
					zap.Float64("distance", distanceToTarget),
					zap.Float64("velocity", speed))
			}
		}

		// Spring towards the target (k = omega^2, m = 1), damped against
		// velocity (c = 2*zeta*omega).
		springForce := currentTarget.Sub(currentPos).Mul(omega * omega)
		dampingForce := velocity.Mul(-2.0 * zeta * omega)
		acceleration := springForce.Add(dampingForce)

		// Semi-implicit Euler integration.
		dt := timeStep.Seconds()
		velocity = velocity.Add(acceleration.Mul(dt))
		if velocity.Mag() > maxVelocity {
			velocity = velocity.Normalize().Mul(maxVelocity)
		}
		currentPos = currentPos.Add(velocity.Mul(dt))

		// Perlin drift plus Gaussian tremor on the reported position.
		elapsed := time.Since(startTime).Seconds()
		drift := Vector2D{
			X: h.noiseX.Noise1D(elapsed*perlinFrequency) * perlinMagnitude,
			Y: h.noiseY.Noise1D(elapsed*perlinFrequency) * perlinMagnitude,
		}
		reported := h.applyGaussianNoise(currentPos.Add(drift))

		ev := MouseEvent{
			Kind:    MouseMove,
			X:       reported.X,
			Y:       reported.Y,
			Button:  ButtonNone,
			Buttons: buttons,
		}
		if err := h.executor.DispatchMouseEvent(ctx, ev); err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("failed to dispatch mouse move", zap.Error(err))
			}
			return velocity, err
		}

		h.currentPos = reported
		t += timeStep

		// Jitter the real-time pacing slightly to avoid perfect periodicity.
		sleep := timeStep + time.Duration(h.rng.Intn(3)-1)*time.Millisecond
		if sleep > 0 {
			if err := h.executor.Sleep(ctx, sleep); err != nil {
				return velocity, err
			}
		}
	}

	if t >= maxSimulationTime {
		h.logger.Warn("movement simulation timed out",
			zap.Any("start", start), zap.Any("end", end))
	}
	return velocity, nil
}

// terminalFittsPause determines the verification time after a movement and
// before the action. Assumes the lock is held.
func (h *Humanoid) terminalFittsPause(distance float64) time.Duration {
	const targetWidth = 20.0

	id := math.Log2(1.0 + distance/targetWidth)
	mt := h.dynamicConfig.FittsA + h.dynamicConfig.FittsB*id
	mt += mt * (h.rng.Float64()*0.3 - 0.15)
	if mt < 0 {
		mt = 0
	}
	return time.Duration(mt) * time.Millisecond
}
