package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/config"
	"github.com/lucasnoah/fixfactory/internal/observability"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fixfactory",
	Short: "fixfactory turns application error logs into fix suggestions",
	Long: `fixfactory parses application logs, classifies each error, pulls the
surrounding source from a repository and proposes a fix for every error.

Runs are stored as JSON under ~/.fixfactory/runs and indexed in a SQLite
history database. Reports can be printed, pushed to PostgreSQL, or opened
as a GitHub pull request or issue.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console"})
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("config loaded",
			zap.String("source", cfg.Source),
			zap.String("version", version))
		return nil
	},
}

func Execute() error {
	defer observability.Sync()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./fixfactory.yaml or ~/.fixfactory/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
