package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/orchestrate"
)

var (
	moveYes     bool
	moveDryRun  bool
	moveTargets bool
)

var moveCmd = &cobra.Command{
	Use:   "move <id|path>... <destination>",
	Short: "Move items into a folder",
	Long: `Moves the selected items under the destination folder. Use "/" for the root.
With --targets, lists the folders the selection can be moved to instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMove,
}

func init() {
	moveCmd.Flags().BoolVarP(&moveYes, "yes", "y", false, "Do not ask for confirmation")
	moveCmd.Flags().BoolVar(&moveDryRun, "dry-run", false, "Print the plan without moving")
	moveCmd.Flags().BoolVar(&moveTargets, "targets", false, "List valid destinations for the selection")
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
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

	if moveTargets {
		ids, err := resolveArgs(ctx, a, args)
		if err != nil {
			return err
		}
		targets, err := a.orch.MoveTargets(ctx, zone, ids)
		if err != nil {
			return err
		}
		if format == "json" {
			data, _ := json.MarshalIndent(targets, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		for _, t := range targets {
			fmt.Printf("[%s] %s\n", shortID(t.ID), t.Path)
		}
		return nil
	}

	if len(args) < 2 {
		return fmt.Errorf("a destination is required")
	}
	ids, err := resolveArgs(ctx, a, args[:len(args)-1])
	if err != nil {
		return err
	}
	destID, err := resolveParent(ctx, a, zone, args[len(args)-1])
	if err != nil {
		return err
	}

	if moveDryRun {
		plan, err := a.orch.PlanMove(ctx, zone, ids, destID)
		if err != nil {
			return err
		}
		fmt.Printf("Destination: %s\n", plan.DestinationPath)
		printSteps(plan.Steps)
		if plan.Report.HasNamingConflicts() {
			fmt.Printf("Blocked by existing names: %v\n", plan.Report.NamingConflicts)
		}
		return nil
	}

	var confirmer orchestrate.Confirmer = promptConfirmer(os.Stdin, os.Stdout)
	if moveYes {
		confirmer = orchestrate.AutoConfirm
	}
	result, err := a.orch.Move(ctx, zone, ids, destID, confirmer)
	if result != nil {
		printResult(result)
	}
	return err
}
