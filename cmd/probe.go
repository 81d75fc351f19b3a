package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/spyglass/internal/client"
	"github.com/xkilldash9x/spyglass/internal/observability"
	"github.com/xkilldash9x/spyglass/internal/probe"
	"github.com/xkilldash9x/spyglass/internal/vision"
)

var (
	probeFrom int
	probeTo   int
	probeStep string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Run the exploration step flow against the target site.",
	Long: `Runs the ordered step flow (navigate, open-login, find-login-frame,
fill-login, submit-login, close-modal, generate-code, check-state) against
the configured target. Session state persists in the state file so steps can
run across separate invocations.`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().IntVar(&probeFrom, "from", 0, "first step to run (1-based)")
	probeCmd.Flags().IntVar(&probeTo, "to", 0, "last step to run (1-based)")
	probeCmd.Flags().StringVar(&probeStep, "step", "", "run a single named step")
}

func runProbe(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	c := client.New(cfg.Client, logger)
	var finder probe.ElementFinder
	if cfg.Vision.APIKey != "" {
		finder = vision.New(cfg.Vision, logger)
	}

	runner, err := probe.NewRunner(c, finder, cfg.Probe, cfg.Client.StateFile, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if probeStep != "" {
		outcome, err := runner.RunNamed(ctx, probeStep)
		if outcome != nil {
			printOutcomes(cmd, []probe.Outcome{*outcome})
		}
		return err
	}

	outcomes, err := runner.Run(ctx, probeFrom, probeTo)
	printOutcomes(cmd, outcomes)
	return err
}

func printOutcomes(cmd *cobra.Command, outcomes []probe.Outcome) {
	for _, o := range outcomes {
		status := "FAIL"
		if o.Result.OK {
			status = "ok"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "step %02d %-18s %-4s %s\n", o.Index, o.Name, status, o.Result.Notes)
		for _, ev := range o.Result.Evidence {
			fmt.Fprintf(cmd.OutOrStdout(), "        evidence: %s\n", ev)
		}
	}
}
