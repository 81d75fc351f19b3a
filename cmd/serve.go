package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/spyglass/internal/browser"
	"github.com/xkilldash9x/spyglass/internal/observability"
	"github.com/xkilldash9x/spyglass/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browser server.",
	Long: `Starts the HTTP server that owns the headless browser. Clients create
sessions and pages against it and drive them with commands.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	serveCmd.Flags().Bool("headless", true, "run the browser headless")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless, _ = cmd.Flags().GetBool("headless")
	}

	ctx := cmd.Context()
	manager, err := browser.NewManager(ctx, logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to start browser manager: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown incomplete", zap.Error(err))
		}
	}()

	srv := server.New(cfg, logger, manager, Version)
	return srv.Start(ctx)
}
