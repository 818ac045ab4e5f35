package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <id|path> <new-name>",
	Short: "Rename a folder or connection",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

func init() {
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	zone, err := currentZone()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	item, err := resolveArg(ctx, a, zone, args[0])
	if err != nil {
		return err
	}

	renamed, err := a.catalog.Rename(ctx, zone, item.ID, args[1])
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, _ := json.MarshalIndent(renamed, "", "  ")
		fmt.Println(string(data))
	default:
		fmt.Printf("Renamed: %s → %s\n", item.Name, renamed.Name)
	}
	return nil
}
