package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/fixfactory/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and check error pattern catalogs",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the error kinds in the active catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-20s %-9s %-5s %s\n", "KIND", "SEVERITY", "SIGS", "TITLE")
		for _, e := range cat.Entries() {
			fmt.Fprintf(w, "%-20s %-9s %-5d %s\n", e.Kind, e.Severity, len(e.Signatures), e.Template.Title)
		}
		return nil
	},
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Check that a catalog file (YAML or TOML) loads and compiles",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Catalog.Path
		if len(args) == 1 {
			path = args[0]
		}
		var (
			cat *catalog.Catalog
			err error
		)
		if path == "" {
			path = "built-in"
			cat, err = catalog.Default()
		} else {
			cat, err = catalog.LoadFile(path)
		}
		if err != nil {
			return fmt.Errorf("catalog %s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Catalog %s is valid: %d kinds.\n", path, cat.Len())
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogCheckCmd)
}
