package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/catalog"
)

var addCmd = &cobra.Command{
	Use:   "add <name> [connection-string]",
	Short: "Add a connection",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runAdd,
}

var (
	addParent         string
	addAPI            string
	addUsername       string
	addPassword       string
	addTenantID       string
	addSubscriptionID string
	addAuthMethod     string
	addEmulator       bool
	addNoEmuSecurity  bool
	addStdin          bool
)

func init() {
	addCmd.Flags().StringVar(&addParent, "parent", "", "Parent folder id, id prefix or path")
	addCmd.Flags().StringVar(&addAPI, "api", "", "API kind (e.g. DocumentDB, MongoRU)")
	addCmd.Flags().StringVar(&addUsername, "username", "", "Username (overrides credentials in the connection string)")
	addCmd.Flags().StringVar(&addPassword, "password", "", "Password")
	addCmd.Flags().StringVar(&addTenantID, "tenant-id", "", "Microsoft Entra ID tenant")
	addCmd.Flags().StringVar(&addSubscriptionID, "subscription-id", "", "Azure subscription")
	addCmd.Flags().StringVar(&addAuthMethod, "auth", "", "Selected auth method: NativeAuth, MicrosoftEntraID")
	addCmd.Flags().BoolVar(&addEmulator, "emulator", false, "Mark as a local emulator")
	addCmd.Flags().BoolVar(&addNoEmuSecurity, "disable-emulator-security", false, "Skip TLS verification for the emulator")
	addCmd.Flags().BoolVar(&addStdin, "stdin", false, "Read the connection string from stdin")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	zone, err := currentZone()
	if err != nil {
		return err
	}

	var connStr string
	if addStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		connStr = strings.TrimSpace(string(data))
	} else if len(args) > 1 {
		connStr = args[1]
	} else {
		return fmt.Errorf("connection string is required (provide as argument or use --stdin)")
	}

	ctx := cmd.Context()
	parentID, err := resolveParent(ctx, a, zone, addParent)
	if err != nil {
		return err
	}

	item, err := a.catalog.CreateConnection(ctx, catalog.CreateConnectionInput{
		Zone:                    zone,
		Name:                    args[0],
		ParentID:                parentID,
		ConnectionString:        connStr,
		API:                     addAPI,
		Username:                addUsername,
		Password:                addPassword,
		TenantID:                addTenantID,
		SubscriptionID:          addSubscriptionID,
		AuthMethod:              addAuthMethod,
		IsEmulator:              addEmulator,
		DisableEmulatorSecurity: addNoEmuSecurity,
	})
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, _ := json.MarshalIndent(item, "", "  ")
		fmt.Println(string(data))
	default:
		fmt.Printf("Added connection: %s\n", item.ID)
	}
	return nil
}
