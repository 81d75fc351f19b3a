// Package config holds the application's root configuration, shared by the
// server and client command trees.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/spyglass/internal/browser/humanoid"
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Server  ServerConfig  `mapstructure:"server"`
	Browser BrowserConfig `mapstructure:"browser"`
	Client  ClientConfig  `mapstructure:"client"`
	Vision  VisionConfig  `mapstructure:"vision"`
	Probe   ProbeConfig   `mapstructure:"probe"`
}

// ColorConfig defines the color settings for different log levels. These are
// used for console output to make logs more readable.
type ColorConfig struct {
	Debug string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" json:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error string `mapstructure:"error" json:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// ServerConfig holds settings for the browser server process.
type ServerConfig struct {
	Addr               string        `mapstructure:"addr"`
	AuthToken          string        `mapstructure:"auth_token"`
	ScreenshotDir      string        `mapstructure:"screenshot_dir"`
	MaxSessions        int           `mapstructure:"max_sessions"`
	MaxPagesPerSession int           `mapstructure:"max_pages_per_session"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// BrowserConfig holds settings for the headless browser.
type BrowserConfig struct {
	Headless        bool            `mapstructure:"headless"`
	IgnoreTLSErrors bool            `mapstructure:"ignore_tls_errors"`
	ViewportWidth   int             `mapstructure:"viewport_width"`
	ViewportHeight  int             `mapstructure:"viewport_height"`
	Humanoid        humanoid.Config `mapstructure:"humanoid"`
}

// ClientConfig holds settings for talking to a remote browser server.
type ClientConfig struct {
	ServerURL  string        `mapstructure:"server_url"`
	AuthToken  string        `mapstructure:"auth_token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
	StateFile  string        `mapstructure:"state_file"`
}

// VisionConfig holds settings for the Gemini bounding box detector.
type VisionConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Endpoint    string        `mapstructure:"endpoint"`
	Temperature float64       `mapstructure:"temperature"`
	Calls       int           `mapstructure:"calls"`
	APITimeout  time.Duration `mapstructure:"api_timeout"`
}

// ProbeConfig holds settings for the step flow against the target site.
type ProbeConfig struct {
	TargetURL string      `mapstructure:"target_url"`
	Username  string      `mapstructure:"username"`
	Password  string      `mapstructure:"password"`
	OutputDir string      `mapstructure:"output_dir"`
	Waits     WaitsConfig `mapstructure:"waits"`
}

// WaitsConfig tiers the bounded waits used between probe actions.
type WaitsConfig struct {
	Short  time.Duration `mapstructure:"short"`
	Medium time.Duration `mapstructure:"medium"`
	Long   time.Duration `mapstructure:"long"`
	Extra  time.Duration `mapstructure:"extra"`
}

// Validate performs sanity checks that cannot be expressed as defaults.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Client.ServerURL != "" {
		if _, err := url.Parse(c.Client.ServerURL); err != nil {
			return fmt.Errorf("client.server_url is not a valid URL: %w", err)
		}
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("server.max_sessions must be positive")
	}
	if c.Server.MaxPagesPerSession <= 0 {
		return fmt.Errorf("server.max_pages_per_session must be positive")
	}
	if c.Vision.Temperature < 0 || c.Vision.Temperature > 2 {
		return fmt.Errorf("vision.temperature %f outside [0, 2]", c.Vision.Temperature)
	}
	if c.Vision.Calls < 1 {
		return fmt.Errorf("vision.calls must be at least 1")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	return nil
}

// Load unmarshals the viper state into a Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}
