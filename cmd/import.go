package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/transfer"
)

var (
	importMerge     bool
	importOverwrite bool
	importFile      string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a JSON bundle (reads stdin)",
	RunE:  runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importMerge, "merge", false, "Keep local items on id conflicts instead of failing")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "Replace local items on id conflicts")
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Read from file instead of stdin")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var in io.Reader = os.Stdin
	if importFile != "" {
		f, err := os.Open(importFile)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", importFile, err)
		}
		defer f.Close()
		in = f
	}

	bundle, err := transfer.Read(in)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	res, err := transfer.Apply(ctx, a.store, bundle, importOverwrite)
	if err != nil {
		return err
	}

	// Imported items may be legacy or orphaned.
	report, err := a.catalog.RunMaintenance(ctx)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, _ := json.MarshalIndent(map[string]any{"import": res, "maintenance": report}, "", "  ")
		fmt.Println(string(data))
	default:
		fmt.Printf("Imported: %d item(s), %d conflict(s)\n", res.Applied, res.Conflicts)
		if len(res.NameClashes) > 0 {
			fmt.Printf("Skipped %d item(s) whose name is already used by a sibling: %s\n",
				len(res.NameClashes), strings.Join(res.NameClashes, ", "))
		}
		if bundle.Redacted && importOverwrite {
			fmt.Println("Bundle is redacted: local secrets were kept for overwritten items")
		}
		if report.OrphansRemoved() > 0 {
			fmt.Printf("Removed %d orphaned item(s)\n", report.OrphansRemoved())
		}
	}

	if res.Conflicts > 0 && !importMerge && !importOverwrite {
		return fmt.Errorf("%d item(s) already exist; rerun with --merge or --overwrite", res.Conflicts)
	}
	return nil
}
