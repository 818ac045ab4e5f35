package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showSecrets bool

var showCmd = &cobra.Command{
	Use:   "show <id|path>",
	Short: "Show an item",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print the connection string with credentials")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
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
	path, err := a.catalog.GetPath(ctx, zone, item.ID)
	if err != nil {
		return err
	}
	descendants, err := a.catalog.CountDescendants(ctx, zone, item.ID)
	if err != nil {
		return err
	}

	connStr := item.Secrets.ConnectionString
	if showSecrets {
		connStr = item.Secrets.EffectiveConnectionString()
	}

	switch format {
	case "json":
		out := map[string]any{
			"item":        item,
			"path":        path,
			"descendants": descendants,
		}
		if item.IsConnection() {
			out["connection_string"] = connStr
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	default:
		fmt.Printf("ID:      %s\n", item.ID)
		fmt.Printf("Name:    %s\n", item.Name)
		fmt.Printf("Type:    %s\n", item.Type)
		fmt.Printf("Zone:    %s\n", item.Zone)
		fmt.Printf("Path:    %s\n", path)
		if item.IsFolder() {
			fmt.Printf("Nested:  %d item(s)\n", descendants)
			return nil
		}
		fmt.Printf("URI:     %s\n", connStr)
		if item.Properties.API != "" {
			fmt.Printf("API:     %s\n", item.Properties.API)
		}
		if len(item.Properties.AvailableAuthMethods) > 0 {
			fmt.Printf("Auth:    %s (available: %s)\n", item.Properties.SelectedAuthMethod,
				strings.Join(item.Properties.AvailableAuthMethods, ", "))
		}
		if item.Secrets.NativeAuth != nil {
			fmt.Printf("User:    %s\n", item.Secrets.NativeAuth.Username)
		}
		if emu := item.Properties.EmulatorConfiguration; emu != nil && emu.IsEmulator {
			fmt.Printf("Emulator: yes (security disabled: %t)\n", emu.DisableEmulatorSecurity)
		}
	}
	return nil
}
