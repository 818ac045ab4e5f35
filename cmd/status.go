package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/config"
	"github.com/microsoft/vscode-documentdb-sub002/internal/db"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type zoneCounts struct {
	Zone        db.Zone `json:"zone"`
	Folders     int     `json:"folders"`
	Connections int     `json:"connections"`
	Orphans     int     `json:"orphans"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	location := a.cfg.DBPath
	switch a.cfg.Backend {
	case config.BackendBadger:
		location = a.cfg.BadgerDir
	case config.BackendPostgres:
		location = "postgres"
	}

	var fileSize int64
	if a.cfg.Backend == config.BackendSQLite {
		if info, err := os.Stat(a.cfg.DBPath); err == nil {
			fileSize = info.Size()
		}
	}

	var zones []zoneCounts
	for _, zone := range a.catalog.Zones() {
		tree, err := a.catalog.Snapshot(cmd.Context(), zone)
		if err != nil {
			return err
		}
		zc := zoneCounts{Zone: zone, Orphans: len(tree.Orphans())}
		for _, item := range tree.Items() {
			if item.IsFolder() {
				zc.Folders++
			} else {
				zc.Connections++
			}
		}
		zones = append(zones, zc)
	}

	switch format {
	case "json":
		out := map[string]any{
			"backend":   a.cfg.Backend,
			"location":  location,
			"file_size": fileSize,
			"zones":     zones,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	default:
		fmt.Printf("Store: %s (%s)", location, a.cfg.Backend)
		if fileSize > 0 {
			fmt.Printf(" %.1f KB", float64(fileSize)/1024)
		}
		fmt.Println()
		for _, z := range zones {
			fmt.Printf("  %s: %d folder(s), %d connection(s)", z.Zone, z.Folders, z.Connections)
			if z.Orphans > 0 {
				fmt.Printf(", %d orphan(s)", z.Orphans)
			}
			fmt.Println()
		}
	}
	return nil
}
