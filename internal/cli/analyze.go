package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/orchestrator"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
	"github.com/lucasnoah/fixfactory/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [log-file|-]",
	Short: "Analyze a log and propose a fix for every error in it",
	Long: `Analyze reads a log file (or stdin when the argument is "-" or omitted),
detects every error block, resolves the failing source lines and prints a
report with one fix suggestion per error.

The run is saved to the run store and history unless --no-save is given.
A failed run (unreadable input, unreachable repository, interrupt) still
prints and saves whatever was gathered, then exits non-zero.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}
		noSave, _ := cmd.Flags().GetBool("no-save")
		progress, _ := cmd.Flags().GetBool("progress")
		submit, _ := cmd.Flags().GetBool("submit")

		source, raw, err := readInput(cmd, args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s := &sinks{}
		if !noSave {
			s, err = openSinks(ctx, cfg)
			if err != nil {
				return err
			}
		}
		defer s.Close()

		po := pipelineOpts{events: s.events()}
		if progress {
			po.progress = cmd.ErrOrStderr()
		}
		o, err := buildOrchestrator(cfg, po)
		if err != nil {
			return err
		}
		defer closeOrchestrator(o)

		run, runErr := o.Analyze(ctx, orchestrator.Input{Source: source, Raw: raw})

		consumers := []report.Named{{Name: "stdout", Consumer: report.WriterConsumer{W: cmd.OutOrStdout(), Format: format}}}
		consumers = append(consumers, s.consumers...)
		if submit {
			consumers = append(consumers, report.Named{Name: "github", Consumer: newSubmitter(cfg, "")})
		}
		if !noSave {
			if err := openStore(cfg).SaveInput(run.ID, raw); err != nil {
				logger().Warn("could not save raw input", zap.String("run_id", run.ID), zap.Error(err))
			}
		}

		deliverErr := report.Deliver(context.WithoutCancel(ctx), logger(), run, consumers...)
		if !noSave {
			fmt.Fprintf(cmd.ErrOrStderr(), "run %s saved\n", run.ID)
		}
		if runErr != nil {
			return runErr
		}
		return deliverErr
	},
}

// readInput returns the source name and raw bytes for a log argument.
func readInput(cmd *cobra.Command, args []string) (string, []byte, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", nil, fmt.Errorf("read stdin: %w", err)
		}
		return "stdin", raw, nil
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return "", nil, fmt.Errorf("read log: %w", err)
	}
	return args[0], raw, nil
}

func closeOrchestrator(o *orchestrator.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Close(ctx); err != nil {
		logger().Warn("progress notifier did not drain", zap.Error(err))
	}
	if n := o.Dropped(); n > 0 {
		logger().Debug("progress notifications dropped", zap.Int64("count", n))
	}
}

// savedRun loads a run by full ID or unique prefix.
func savedRun(id string) (*pipeline.AnalysisRun, error) {
	run, err := openStore(cfg).Get(id)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return run, nil
}

func init() {
	analyzeCmd.Flags().StringP("format", "o", "text", "Output format: text, json or markdown")
	analyzeCmd.Flags().Bool("no-save", false, "Do not save the run to the store or history")
	analyzeCmd.Flags().Bool("progress", false, "Print phase progress to stderr")
	analyzeCmd.Flags().Bool("submit", false, "Open a GitHub pull request (or issue) with the report")
}
