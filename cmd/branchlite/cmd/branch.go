package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage branches within a project",
	Long: `Manage branches within a project.

A branch is an isolated workspace over the project's branch-aware tables.
Statements on a branch see Main's rows plus the branch's own; siblings
never see each other. Main always exists and cannot be deleted.`,
}

var createBranchCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new branch",
	Long: `Create a branch in a project.

Examples:
  # Create a feature branch
  branchlite branch create feature-x --project demo`,
	Args: cobra.ExactArgs(1),
	RunE: runCreateBranch,
}

var listBranchesCmd = &cobra.Command{
	Use:     "list",
	Short:   "List branches",
	Aliases: []string{"ls"},
	RunE:    runListBranches,
}

var deleteBranchCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a branch and its scoped data",
	Long: `Delete a branch from a project.

All rows scoped to the branch are removed, along with its undo log,
changelog entries and uploaded files. Main cannot be deleted.`,
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE:    runDeleteBranch,
}

var branchProject string

func init() {
	rootCmd.AddCommand(branchCmd)

	branchCmd.AddCommand(createBranchCmd)
	branchCmd.AddCommand(listBranchesCmd)
	branchCmd.AddCommand(deleteBranchCmd)

	branchCmd.PersistentFlags().StringVarP(&branchProject, "project", "p", "",
		"project id or name")
}

func runCreateBranch(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	_, ps, err := a.projectStore(ctx, branchProject)
	if err != nil {
		return err
	}
	b, err := ps.CreateBranch(ctx, args[0])
	if err != nil {
		return err
	}

	if quiet {
		fmt.Println(b.ID)
		return nil
	}
	fmt.Printf("Branch '%s' created (id %d).\n", b.Name, b.ID)
	return nil
}

func runListBranches(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	_, ps, err := a.projectStore(ctx, branchProject)
	if err != nil {
		return err
	}
	branches, err := ps.ListBranches(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEFAULT\tCREATED")
	fmt.Fprintln(w, "──\t────\t───────\t───────")
	for _, b := range branches {
		mark := ""
		if b.IsDefault {
			mark = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", b.ID, b.Name, mark, b.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

func runDeleteBranch(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	_, ps, err := a.projectStore(ctx, branchProject)
	if err != nil {
		return err
	}
	b, err := exactBranch(ctx, ps, args[0])
	if err != nil {
		return err
	}
	if err := ps.DeleteBranch(ctx, b.ID); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("Branch '%s' deleted along with its scoped data.\n", b.Name)
	}
	return nil
}
