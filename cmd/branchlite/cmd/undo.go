package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Reverse a mutation on a branch",
	Long: `Reverse one captured mutation.

Without --log-id the branch's most recent undo entry is reversed. The
reversal is all or nothing: when the affected rows changed since capture,
nothing is touched and the entry stays available.

Examples:
  # Undo the latest mutation on Main
  branchlite undo --project demo

  # Undo a specific entry
  branchlite undo --project demo --branch feature-x --log-id 12`,
	RunE: runUndo,
}

var (
	undoProject string
	undoBranch  string
	undoLogID   int64
)

func init() {
	rootCmd.AddCommand(undoCmd)

	undoCmd.Flags().StringVarP(&undoProject, "project", "p", "", "project id or name")
	undoCmd.Flags().StringVarP(&undoBranch, "branch", "b", "", "branch id or name (default: Main)")
	undoCmd.Flags().Int64Var(&undoLogID, "log-id", 0, "undo log entry to reverse (default: latest)")
}

func runUndo(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	p, ps, err := a.projectStore(ctx, undoProject)
	if err != nil {
		return err
	}
	branch, err := resolveBranch(ctx, ps, undoBranch)
	if err != nil {
		return err
	}

	var logID *int64
	if undoLogID > 0 {
		logID = &undoLogID
	}
	res, err := a.eng.Undo(ctx, p.ID, branch.ID, logID)
	if err != nil {
		return err
	}

	fmt.Println(res.Message)
	return nil
}
