package humanoid

import "math/rand"

// Config tunes the human input simulation. All timing values are in
// milliseconds unless noted.
type Config struct {
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`

	// Fitts's law parameters for movement time estimation (MT = A + B*ID).
	FittsA float64 `mapstructure:"fitts_a" json:"fitts_a" yaml:"fitts_a"`
	FittsB float64 `mapstructure:"fitts_b" json:"fitts_b" yaml:"fitts_b"`

	// Spring-damped trajectory parameters. Omega is the natural frequency
	// (higher is faster), Zeta the damping ratio (lower oscillates more).
	Omega float64 `mapstructure:"omega" json:"omega" yaml:"omega"`
	Zeta  float64 `mapstructure:"zeta" json:"zeta" yaml:"zeta"`

	// Noise amplitudes: Perlin drift (low frequency waver) and Gaussian
	// tremor (high frequency jitter), both in pixels.
	PerlinAmplitude  float64 `mapstructure:"perlin_amplitude" json:"perlin_amplitude" yaml:"perlin_amplitude"`
	GaussianStrength float64 `mapstructure:"gaussian_strength" json:"gaussian_strength" yaml:"gaussian_strength"`

	// ClickNoise is the involuntary displacement when pressing the button.
	ClickNoise float64 `mapstructure:"click_noise" json:"click_noise" yaml:"click_noise"`

	ClickHoldMinMs int `mapstructure:"click_hold_min_ms" json:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int `mapstructure:"click_hold_max_ms" json:"click_hold_max_ms" yaml:"click_hold_max_ms"`

	// MicroCorrectionThreshold is the minimum movement distance (pixels)
	// before mid-flight submovement corrections are considered.
	MicroCorrectionThreshold float64 `mapstructure:"micro_correction_threshold" json:"micro_correction_threshold" yaml:"micro_correction_threshold"`

	// TypoRate is the per-character probability of a typing error.
	TypoRate float64 `mapstructure:"typo_rate" json:"typo_rate" yaml:"typo_rate"`

	// Fatigue model rates. Fatigue slows movement and raises noise.
	FatigueIncreaseRate float64 `mapstructure:"fatigue_increase_rate" json:"fatigue_increase_rate" yaml:"fatigue_increase_rate"`
	FatigueRecoveryRate float64 `mapstructure:"fatigue_recovery_rate" json:"fatigue_recovery_rate" yaml:"fatigue_recovery_rate"`

	// Rng allows tests to inject a deterministic source.
	Rng *rand.Rand `mapstructure:"-" json:"-" yaml:"-"`
}

// DefaultConfig returns parameters tuned for believable desktop mouse use.
func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		FittsA:                   120.0,
		FittsB:                   180.0,
		Omega:                    22.0,
		Zeta:                     0.85,
		PerlinAmplitude:          1.6,
		GaussianStrength:         0.4,
		ClickNoise:               1.2,
		ClickHoldMinMs:           45,
		ClickHoldMaxMs:           130,
		MicroCorrectionThreshold: 120.0,
		TypoRate:                 0.02,
		FatigueIncreaseRate:      0.01,
		FatigueRecoveryRate:      0.005,
	}
}

// applyDefaults fills zero-valued physics and timing fields so a partial
// config cannot produce a motionless spring model.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.FittsA == 0 {
		c.FittsA = def.FittsA
	}
	if c.FittsB == 0 {
		c.FittsB = def.FittsB
	}
	if c.Omega == 0 {
		c.Omega = def.Omega
	}
	if c.Zeta == 0 {
		c.Zeta = def.Zeta
	}
	if c.PerlinAmplitude == 0 {
		c.PerlinAmplitude = def.PerlinAmplitude
	}
	if c.GaussianStrength == 0 {
		c.GaussianStrength = def.GaussianStrength
	}
	if c.ClickNoise == 0 {
		c.ClickNoise = def.ClickNoise
	}
	if c.ClickHoldMinMs == 0 {
		c.ClickHoldMinMs = def.ClickHoldMinMs
	}
	if c.ClickHoldMaxMs == 0 {
		c.ClickHoldMaxMs = def.ClickHoldMaxMs
	}
	if c.MicroCorrectionThreshold == 0 {
		c.MicroCorrectionThreshold = def.MicroCorrectionThreshold
	}
	if c.FatigueIncreaseRate == 0 {
		c.FatigueIncreaseRate = def.FatigueIncreaseRate
	}
	if c.FatigueRecoveryRate == 0 {
		c.FatigueRecoveryRate = def.FatigueRecoveryRate
	}
}

// clampTypoRate keeps the configured typo probability sane.
func (c *Config) clampTypoRate() {
	if c.TypoRate < 0 {
		c.TypoRate = 0
	}
	if c.TypoRate > 0.25 {
		c.TypoRate = 0.25
	}
}
