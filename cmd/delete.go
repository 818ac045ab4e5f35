package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/microsoft/vscode-documentdb-sub002/internal/orchestrate"
)

var (
	deleteYes    bool
	deleteDryRun bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id|path>...",
	Short: "Delete folders and connections",
	Long:  "Deletes the selected items and everything nested below them. Running tasks that use an affected connection block the delete.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Do not ask for confirmation")
	deleteCmd.Flags().BoolVar(&deleteDryRun, "dry-run", false, "Print the plan without deleting")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
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
	ids, err := resolveArgs(ctx, a, args)
	if err != nil {
		return err
	}

	if deleteDryRun {
		plan, err := a.orch.PlanDelete(ctx, zone, ids)
		if err != nil {
			return err
		}
		printSteps(plan.Steps)
		return nil
	}

	var confirmer orchestrate.Confirmer = promptConfirmer(os.Stdin, os.Stdout)
	if deleteYes {
		confirmer = orchestrate.AutoConfirm
	}
	result, err := a.orch.Delete(ctx, zone, ids, confirmer)
	if result != nil {
		printResult(result)
	}
	return err
}

// promptConfirmer asks on out and reads a y/N answer from in.
func promptConfirmer(in io.Reader, out io.Writer) orchestrate.Confirmer {
	reader := bufio.NewReader(in)
	return orchestrate.ConfirmFunc(func(ctx context.Context, p orchestrate.Prompt) (bool, error) {
		fmt.Fprintf(out, "%s [y/N] ", p.Message())
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	})
}

func resolveArgs(ctx context.Context, a *app, args []string) ([]string, error) {
	zone, err := currentZone()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		item, err := resolveArg(ctx, a, zone, arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func printSteps(steps []orchestrate.Step) {
	if format == "json" {
		data, _ := json.MarshalIndent(steps, "", "  ")
		fmt.Println(string(data))
		return
	}
	for _, s := range steps {
		fmt.Printf("  %s %s\n", s.Type, s.Path)
	}
}

func printResult(result *orchestrate.Result) {
	if format == "json" {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}
	for _, s := range result.Steps {
		line := fmt.Sprintf("  %-8s %s", s.Status, s.Path)
		if s.Error != "" {
			line += ": " + s.Error
		}
		fmt.Println(line)
	}
	fmt.Printf("%s: %d applied, %d failed, %d skipped\n", result.Op, result.Applied(), result.Failed(), result.Skipped())
}
