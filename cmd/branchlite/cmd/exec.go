package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <sql>",
	Short: "Execute one SQL statement on a branch",
	Long: `Execute a single SQL statement scoped to a branch.

Statements against branch-aware tables are rewritten before they run:
inserts receive the branch's scoping values, and reads and mutations are
restricted to rows the branch can see. Mutations are captured in the undo
log and report the entry id they can be reversed with.

Examples:
  # Query Main
  branchlite exec 'SELECT * FROM tasks' --project demo

  # Insert on a feature branch
  branchlite exec "INSERT INTO tasks (name) VALUES ('ship it')" \
    --project demo --branch feature-x`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

var (
	execProject string
	execBranch  string
	execMaxRows int
)

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().StringVarP(&execProject, "project", "p", "", "project id or name")
	execCmd.Flags().StringVarP(&execBranch, "branch", "b", "", "branch id or name (default: Main)")
	execCmd.Flags().IntVar(&execMaxRows, "max-rows", 0, "override the select row cap for this statement")
}

func runExec(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	p, ps, err := a.projectStore(ctx, execProject)
	if err != nil {
		return err
	}
	branch, err := resolveBranch(ctx, ps, execBranch)
	if err != nil {
		return err
	}

	res, err := a.eng.Execute(ctx, p.ID, branch.ID, args[0], execMaxRows)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("statement failed: %s", res.Error)
	}

	fmt.Print(formatResult(res))
	return nil
}
