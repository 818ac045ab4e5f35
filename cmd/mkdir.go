package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
)

var mkdirParent string

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runMkdir,
}

func init() {
	mkdirCmd.Flags().StringVar(&mkdirParent, "parent", "", "Parent folder id, id prefix or path")
	rootCmd.AddCommand(mkdirCmd)
}

func runMkdir(cmd *cobra.Command, args []string) error {
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
	parentID, err := resolveParent(ctx, a, zone, mkdirParent)
	if err != nil {
		return err
	}

	item, err := a.catalog.CreateFolder(ctx, catalog.CreateFolderInput{
		Zone:     zone,
		Name:     args[0],
		ParentID: parentID,
	})
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, _ := json.MarshalIndent(item, "", "  ")
		fmt.Println(string(data))
	default:
		fmt.Printf("Created folder: %s\n", item.ID)
	}
	return nil
}
