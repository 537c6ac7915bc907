package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/orchestrator"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
	"github.com/lucasnoah/fixfactory/internal/report"
	"github.com/lucasnoah/fixfactory/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <log-file>",
	Short: "Follow a growing log and analyze each burst of new lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}
		opts := watch.Options{
			FlushAfter: cfg.Watch.FlushAfter,
			FromStart:  cfg.Watch.FromStart,
			Poll:       cfg.Watch.Poll,
			Logger:     logger(),
		}
		if cmd.Flags().Changed("from-start") {
			opts.FromStart, _ = cmd.Flags().GetBool("from-start")
		}
		if cmd.Flags().Changed("poll") {
			opts.Poll, _ = cmd.Flags().GetBool("poll")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSinks(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		o, err := buildOrchestrator(cfg, pipelineOpts{events: s.events()})
		if err != nil {
			return err
		}
		defer closeOrchestrator(o)

		path := args[0]
		h := &burstHandler{
			orch:      o,
			store:     openStore(cfg),
			source:    path,
			consumers: append([]report.Named{{Name: "stdout", Consumer: report.WriterConsumer{W: cmd.OutOrStdout(), Format: format}}}, s.consumers...),
			log:       logger().Named("watch"),
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "watching %s (Ctrl-C to stop)\n", path)
		if err := watch.New(path, opts).Run(ctx, h.emit); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// burstHandler analyzes one burst of log lines and delivers the run. Runs
// interrupted by cancellation are delivered with what they gathered.
type burstHandler struct {
	orch      *orchestrator.Orchestrator
	store     *pipeline.Store
	source    string
	consumers []report.Named
	log       *zap.Logger
}

func (h *burstHandler) emit(ctx context.Context, chunk []byte) error {
	run, err := h.orch.Analyze(ctx, orchestrator.Input{Source: h.source, Raw: chunk})
	switch {
	case err != nil && ctx.Err() != nil:
		h.log.Info("analysis interrupted, delivering partial run", zap.String("run_id", run.ID))
	case err != nil:
		h.log.Warn("analysis failed", zap.String("run_id", run.ID), zap.Error(err))
	case len(run.Records) == 0:
		return nil
	}
	if err := h.store.SaveInput(run.ID, chunk); err != nil {
		h.log.Warn("could not save raw input", zap.String("run_id", run.ID), zap.Error(err))
	}
	_ = report.Deliver(context.WithoutCancel(ctx), h.log, run, h.consumers...)
	return nil
}

func init() {
	watchCmd.Flags().StringP("format", "o", "text", "Output format: text, json or markdown")
	watchCmd.Flags().Bool("from-start", false, "Analyze the existing file content before following")
	watchCmd.Flags().Bool("poll", false, "Poll for changes instead of using filesystem notifications")
}
