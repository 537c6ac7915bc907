package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <run-id>",
	Short: "Open a GitHub pull request or issue for a saved run",
	Long: `Submit publishes a saved run's Markdown report.

In pr mode the report is committed to .fixfactory/reports/<run-id>.md on
branch fixfactory/run-<short-id>, pushed, and a pull request is opened (or
the existing one for that branch reused). In issue mode an issue is opened
with the report as its body. Requires the gh CLI to be authenticated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		if base, _ := cmd.Flags().GetString("base"); base != "" {
			cfg.GitHub.Base = base
		}

		run, err := savedRun(args[0])
		if err != nil {
			return err
		}

		res, err := newSubmitter(cfg, mode).Submit(cmd.Context(), run)
		if err != nil {
			return fmt.Errorf("submit run %s: %w", run.ShortID(), err)
		}

		if cfg.Store.History {
			if d, cleanup, dbErr := openDB(cfg); dbErr == nil {
				defer cleanup()
				_ = d.LogRunEvent(run.ID, "submitted", run.Phase, res.URL)
			}
		}

		verb := "Opened"
		if res.Reused {
			verb = "Updated"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", verb, res.Created, res.URL)
		return nil
	},
}

func init() {
	submitCmd.Flags().String("mode", "", "pr or issue (default from config)")
	submitCmd.Flags().String("base", "", "Base branch for the pull request")
}
