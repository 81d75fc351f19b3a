package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/spyglass/internal/client"
	"github.com/xkilldash9x/spyglass/internal/observability"
)

var (
	shotOutput   string
	shotFullPage bool
)

var shotCmd = &cobra.Command{
	Use:   "shot [output.png]",
	Short: "Screenshot the page from the saved session state.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShot,
}

func init() {
	shotCmd.Flags().BoolVar(&shotFullPage, "full-page", false, "capture the whole scrollable page")
}

func runShot(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	state, err := client.LoadState(cfg.Client.StateFile)
	if err != nil {
		return fmt.Errorf("no saved session, run the probe navigate step first: %w", err)
	}

	output := "screenshot.png"
	if len(args) == 1 {
		output = args[0]
	}

	c := client.New(cfg.Client, logger)
	ctx := cmd.Context()
	if err := c.ConnectSession(ctx, state.SessionID); err != nil {
		return err
	}
	if err := c.ScreenshotToFile(ctx, state.PageID, output, shotFullPage); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s (session %s, page %s)\n", output, state.SessionID, state.PageID)
	return nil
}
