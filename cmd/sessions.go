package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/spyglass/internal/client"
	"github.com/xkilldash9x/spyglass/internal/observability"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage sessions on the browser server.",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(cfg.Client, observability.GetLogger())
		sessions, err := c.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no live sessions")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  created %s  pages [%s]\n",
				s.SessionID,
				s.CreatedAt.Format("2006-01-02 15:04:05"),
				strings.Join(s.PageIDs, ", "),
			)
		}
		return nil
	},
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a session and all of its pages.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(cfg.Client, observability.GetLogger())
		if err := c.CloseSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCloseCmd)
}
