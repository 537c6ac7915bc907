package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
	"github.com/lucasnoah/fixfactory/internal/report"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved analysis runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		phase, _ := cmd.Flags().GetString("phase")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := openStore(cfg).List(pipeline.Phase(phase))
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		if limit > 0 && len(runs) > limit {
			runs = runs[:limit]
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-10s %-20s %-8s %-12s %-20s %s\n", "RUN", "PHASE", "RECORDS", "SUGGESTIONS", "STARTED", "SOURCE")
		fmt.Fprintf(w, "%-10s %-20s %-8s %-12s %-20s %s\n",
			strings.Repeat("-", 10),
			strings.Repeat("-", 20),
			strings.Repeat("-", 8),
			strings.Repeat("-", 12),
			strings.Repeat("-", 20),
			strings.Repeat("-", 6))
		for _, r := range runs {
			fmt.Fprintf(w, "%-10s %-20s %-8d %-12d %-20s %s\n",
				r.ShortID(), r.Phase, len(r.Records), len(r.Suggestions),
				r.StartedAt.Local().Format(time.DateTime), r.Source)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Render a saved run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}
		run, err := savedRun(args[0])
		if err != nil {
			return err
		}
		return report.Render(cmd.OutOrStdout(), format, run)
	},
}

var runsEventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "Show the phase events recorded for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := savedRun(args[0])
		if err != nil {
			return err
		}
		d, cleanup, err := openDB(cfg)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer cleanup()

		events, err := d.GetRunEvents(run.ID)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, e := range events {
			line := fmt.Sprintf("%s  %-18s %-20s", e.Timestamp, e.Event, e.Phase)
			if e.Detail != "" {
				line += "  " + e.Detail
			}
			fmt.Fprintln(w, strings.TrimRight(line, " "))
		}
		return nil
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show error counts per kind across the run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, cleanup, err := openDB(cfg)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer cleanup()

		counts, err := d.KindCounts()
		if err != nil {
			return err
		}
		recent, err := d.ListRuns(0)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Runs in history: %d\n\n", len(recent))
		if len(counts) == 0 {
			fmt.Fprintln(w, "No records.")
			return nil
		}
		fmt.Fprintf(w, "%-22s %s\n", "KIND", "COUNT")
		for _, c := range counts {
			fmt.Fprintf(w, "%-22s %d\n", c.Kind, c.Count)
		}
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a saved run from the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := savedRun(args[0])
		if err != nil {
			return err
		}
		if err := openStore(cfg).Delete(run.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", run.ID)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("phase", "", "Only show runs in this phase (e.g. completed, failed)")
	runsListCmd.Flags().Int("limit", 20, "Maximum runs to show (0 for all)")
	runsShowCmd.Flags().StringP("format", "o", "text", "Output format: text, json or markdown")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsEventsCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}
