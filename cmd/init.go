package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the dbconn store",
	Long:  "Creates the ~/.dbconn/ directory, opens the configured store and runs a consistency pass.",
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := config.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	a, err := openApp()
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer a.Close()

	report, err := a.catalog.RunMaintenance(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Store ready (%s backend)\n", a.cfg.Backend)
	if report.Changed() {
		fmt.Printf("Repaired %d placeholder(s), normalized %d connection string(s), removed %d orphan(s)\n",
			report.PlaceholdersRepaired(), report.SecretsNormalized(), report.OrphansRemoved())
	}
	return nil
}
