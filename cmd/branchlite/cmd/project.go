package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
	Long: `Manage projects in the registry.

Every project owns an isolated SQLite store and file area under the data
directory. Creating a project also creates its Main branch.`,
}

var createProjectCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new project",
	Long: `Create a project and provision its store.

Examples:
  # Create a project
  branchlite project create demo

  # Create and print only the new id
  branchlite project create demo -q`,
	Args: cobra.ExactArgs(1),
	RunE: runCreateProject,
}

var listProjectsCmd = &cobra.Command{
	Use:     "list",
	Short:   "List projects",
	Aliases: []string{"ls"},
	RunE:    runListProjects,
}

var deleteProjectCmd = &cobra.Command{
	Use:   "delete <project>",
	Short: "Delete a project and its store",
	Long: `Delete a project from the registry.

The project's store directory is removed as well, uploaded files included.
This cannot be undone.`,
	Aliases: []string{"rm"},
	Args:    cobra.ExactArgs(1),
	RunE:    runDeleteProject,
}

func init() {
	rootCmd.AddCommand(projectCmd)

	projectCmd.AddCommand(createProjectCmd)
	projectCmd.AddCommand(listProjectsCmd)
	projectCmd.AddCommand(deleteProjectCmd)
}

func runCreateProject(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.stores.CreateProject(ctx, args[0])
	if err != nil {
		return err
	}

	if quiet {
		fmt.Println(p.ID)
		return nil
	}

	fmt.Printf("Project created.\n\n")
	fmt.Printf("  ID:   %d\n", p.ID)
	fmt.Printf("  Name: %s\n", p.Name)
	fmt.Printf("\nUse 'branchlite shell --project %s' to start working with it.\n", p.Name)
	return nil
}

func runListProjects(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	projects, err := a.stores.ListProjects(ctx)
	if err != nil {
		return err
	}

	if len(projects) == 0 {
		fmt.Println("No projects.")
		fmt.Println("\nCreate one with: branchlite project create <name>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED")
	fmt.Fprintln(w, "──\t────\t───────")
	for _, p := range projects {
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.ID, p.Name, p.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

func runDeleteProject(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.resolveProject(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.stores.DeleteProject(ctx, p.ID); err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("Project '%s' deleted, store directory included.\n", p.Name)
	}
	return nil
}
