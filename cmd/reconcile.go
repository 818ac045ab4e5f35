package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair folder placeholders and remove orphaned items",
	Long: `Runs the consistency passes over every zone: folders missing their placeholder
secret are repaired, connection strings are normalized and items whose parent
no longer exists are removed until none remain.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.catalog.RunMaintenance(cmd.Context())
	if report != nil {
		switch format {
		case "json":
			data, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(data))
		default:
			for _, z := range report.Zones {
				fmt.Printf("%s: %d placeholder(s) repaired, %d connection string(s) normalized, %d orphan(s) removed in %d pass(es)\n",
					z.Zone, z.PlaceholdersRepaired, z.SecretsNormalized, z.OrphansRemoved, z.Iterations)
				if z.Stalled {
					fmt.Printf("  %s: orphan removal stalled\n", z.Zone)
				}
				if z.HitIterationLimit {
					fmt.Printf("  %s: stopped at the iteration limit\n", z.Zone)
				}
			}
		}
	}
	return err
}
