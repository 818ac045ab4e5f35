package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
)

var (
	listType   string
	listParent string
	listAll    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List items in a folder",
	Long:  "Lists the direct children of --parent (default: root). Use --all to list every item in the zone.",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by type: connection, folder")
	listCmd.Flags().StringVar(&listParent, "parent", "", "Folder to list (id, id prefix or path)")
	listCmd.Flags().BoolVar(&listAll, "all", false, "List the whole zone")
	rootCmd.AddCommand(listCmd)
}

type listEntry struct {
	*catalog.StoredItem
	Path string `json:"path"`
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	zone, err := currentZone()
	if err != nil {
		return err
	}

	var filter []catalog.ItemType
	if listType != "" {
		t := catalog.ItemType(listType)
		if !t.Valid() {
			return fmt.Errorf("unknown type %q", listType)
		}
		filter = append(filter, t)
	}

	ctx := cmd.Context()
	tree, err := a.catalog.Snapshot(ctx, zone)
	if err != nil {
		return err
	}

	var items []*catalog.StoredItem
	if listAll {
		for _, item := range tree.Items() {
			if len(filter) == 0 || item.Type == filter[0] {
				items = append(items, item)
			}
		}
	} else {
		parentID, err := resolveParent(ctx, a, zone, listParent)
		if err != nil {
			return err
		}
		items = tree.Children(parentID, filter...)
	}

	entries := make([]listEntry, len(items))
	for i, item := range items {
		entries[i] = listEntry{StoredItem: item, Path: tree.Path(item.ID)}
	}

	switch format {
	case "json":
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
	default:
		if len(entries) == 0 {
			fmt.Println("No items found.")
			return nil
		}
		for _, e := range entries {
			marker := " "
			if e.IsFolder() {
				marker = "/"
			}
			fmt.Printf("[%s] %s%s\n", shortID(e.ID), e.Path, marker)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
