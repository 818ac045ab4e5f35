package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
	"github.com/microsoft/vscode-documentdb-sub002/internal/transfer"
)

var (
	exportAllZones bool
	exportRedact   bool
	exportOut      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored items to a JSON bundle",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().BoolVar(&exportAllZones, "all-zones", false, "Export every zone instead of --zone")
	exportCmd.Flags().BoolVar(&exportRedact, "redact", false, "Leave connection secrets out of the bundle")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := transfer.ExportOptions{RedactSecrets: exportRedact}
	if !exportAllZones {
		zone, err := currentZone()
		if err != nil {
			return err
		}
		opts.Zones = []db.Zone{zone}
	}

	bundle, err := transfer.Export(cmd.Context(), a.store, opts)
	if err != nil {
		return err
	}

	if exportOut == "" {
		return transfer.Write(os.Stdout, bundle)
	}
	f, err := os.OpenFile(exportOut, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", exportOut, err)
	}
	defer f.Close()
	if err := transfer.Write(f, bundle); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported to %s\n", exportOut)
	return nil
}
