package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/view"
)

var (
	treeUnder           string
	treeConnectionsOnly bool
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Render the folder tree of a zone",
	RunE:  runTree,
}

func init() {
	treeCmd.Flags().StringVar(&treeUnder, "under", "", "Only render below this folder (id, id prefix or path)")
	treeCmd.Flags().BoolVar(&treeConnectionsOnly, "connections-only", false, "Hide folders without connections")
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
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
	under, err := resolveParent(ctx, a, zone, treeUnder)
	if err != nil {
		return err
	}
	tree, err := a.catalog.Snapshot(ctx, zone)
	if err != nil {
		return err
	}
	v, err := view.Compose(tree, view.ComposeOptions{Under: under, ConnectionsOnly: treeConnectionsOnly})
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(data))
	default:
		fmt.Print(view.RenderTemplate(v, format))
	}
	return nil
}
