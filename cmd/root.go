// Package cmd wires the CLI: serve runs the browser server, probe drives
// the step flow, detect/shot/sessions are one-off client operations.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/internal/config"
	"github.com/xkilldash9x/spyglass/internal/observability"
)

// Version is stamped by the build.
var Version = "dev"

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "spyglass",
	Short:   "Remote browser probing toolkit with vision-guided clicking.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		loaded, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Configuration loaded",
			zap.String("version", Version),
			zap.String("config_file", viper.ConfigFileUsed()),
		)
		return nil
	},
}

// Execute runs the CLI with the signal-aware context from main.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if ctx.Err() == nil {
			if logger := observability.GetLogger(); logger != nil {
				logger.Error("Command failed", zap.Error(err))
			} else {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(shotCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// initializeConfig layers defaults, an optional config file, a .env file
// and SPYGLASS_* environment variables.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	// A local .env carries the Gemini key and test credentials.
	_ = godotenv.Load()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SPYGLASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The key is commonly exported without the prefix.
	_ = v.BindEnv("vision.api_key", "SPYGLASS_VISION_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("probe.username", "SPYGLASS_PROBE_USERNAME", "TEST_USERNAME")
	_ = v.BindEnv("probe.password", "SPYGLASS_PROBE_PASSWORD", "TEST_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		// Only the explicitly requested file is mandatory.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		if os.IsNotExist(err) && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}
