package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find items whose path contains text",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	zone, err := currentZone()
	if err != nil {
		return err
	}
	tree, err := a.catalog.Snapshot(cmd.Context(), zone)
	if err != nil {
		return err
	}

	needle := strings.ToLower(args[0])
	var found []listEntry
	for _, item := range tree.Items() {
		path := tree.Path(item.ID)
		if strings.Contains(strings.ToLower(path), needle) {
			found = append(found, listEntry{StoredItem: item, Path: path})
		}
	}

	switch format {
	case "json":
		data, _ := json.MarshalIndent(found, "", "  ")
		fmt.Println(string(data))
	default:
		if len(found) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		for _, e := range found {
			fmt.Printf("[%s] %s: %s\n", shortID(e.ID), e.Type, e.Path)
		}
	}
	return nil
}
