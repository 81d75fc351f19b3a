package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/spyglass/internal/browser/humanoid"
)

// SetDefaults registers default values so the app can run with a minimal
// config file or none at all.
func SetDefaults(v *viper.Viper) {
	// Logger
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "spyglass")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// Server
	v.SetDefault("server.addr", "127.0.0.1:8000")
	v.SetDefault("server.screenshot_dir", "screenshots")
	v.SetDefault("server.max_sessions", 10)
	v.SetDefault("server.max_pages_per_session", 20)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	// Browser
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	hum := humanoid.DefaultConfig()
	v.SetDefault("browser.humanoid.enabled", hum.Enabled)
	v.SetDefault("browser.humanoid.fitts_a", hum.FittsA)
	v.SetDefault("browser.humanoid.fitts_b", hum.FittsB)
	v.SetDefault("browser.humanoid.omega", hum.Omega)
	v.SetDefault("browser.humanoid.zeta", hum.Zeta)
	v.SetDefault("browser.humanoid.perlin_amplitude", hum.PerlinAmplitude)
	v.SetDefault("browser.humanoid.gaussian_strength", hum.GaussianStrength)
	v.SetDefault("browser.humanoid.click_noise", hum.ClickNoise)
	v.SetDefault("browser.humanoid.click_hold_min_ms", hum.ClickHoldMinMs)
	v.SetDefault("browser.humanoid.click_hold_max_ms", hum.ClickHoldMaxMs)
	v.SetDefault("browser.humanoid.micro_correction_threshold", hum.MicroCorrectionThreshold)
	v.SetDefault("browser.humanoid.typo_rate", hum.TypoRate)
	v.SetDefault("browser.humanoid.fatigue_increase_rate", hum.FatigueIncreaseRate)
	v.SetDefault("browser.humanoid.fatigue_recovery_rate", hum.FatigueRecoveryRate)

	// Client
	v.SetDefault("client.server_url", "http://127.0.0.1:8000")
	v.SetDefault("client.timeout", 60*time.Second)
	v.SetDefault("client.retry_count", 2)
	v.SetDefault("client.state_file", "session_info.json")

	// Vision
	v.SetDefault("vision.model", "gemini-2.5-flash")
	v.SetDefault("vision.endpoint", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("vision.temperature", 0.5)
	v.SetDefault("vision.calls", 1)
	v.SetDefault("vision.api_timeout", 90*time.Second)

	// Probe
	v.SetDefault("probe.target_url", "https://fuzzycode.dev")
	v.SetDefault("probe.output_dir", "probe_output")
	v.SetDefault("probe.waits.short", 1*time.Second)
	v.SetDefault("probe.waits.medium", 2*time.Second)
	v.SetDefault("probe.waits.long", 3*time.Second)
	v.SetDefault("probe.waits.extra", 5*time.Second)
}

// NewDefaultConfig returns a Config populated entirely from defaults.
// Primarily used by tests.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		// Defaults always unmarshal; a failure here is a programming error.
		panic(err)
	}
	return cfg
}
