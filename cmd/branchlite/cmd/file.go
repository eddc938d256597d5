package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage uploaded files",
	Long: `Manage a project's uploaded files.

Files belong to the branch they were added on. A branch lists Main's files
plus its own; merging a branch copies its files to Main under a
collision-free name.`,
}

var addFileCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Upload a file to a branch",
	Long: `Copy a local file into the project's file area.

Examples:
  # Upload to Main
  branchlite file add report.csv --project demo

  # Upload to a feature branch with a display name
  branchlite file add raw.csv --project demo --branch feature-x --name "Raw data"`,
	Args: cobra.ExactArgs(1),
	RunE: runAddFile,
}

var listFilesCmd = &cobra.Command{
	Use:     "list",
	Short:   "List files visible to a branch",
	Aliases: []string{"ls"},
	RunE:    runListFiles,
}

var getFileCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Retrieve a stored file",
	Long: `Print a stored file to stdout, or write it with --output.

Examples:
  branchlite file get 3 --project demo
  branchlite file get 3 --project demo --output ./report.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runGetFile,
}

var (
	fileProject     string
	fileBranch      string
	fileDisplayName string
	fileOutput      string
)

func init() {
	rootCmd.AddCommand(fileCmd)

	fileCmd.AddCommand(addFileCmd)
	fileCmd.AddCommand(listFilesCmd)
	fileCmd.AddCommand(getFileCmd)

	fileCmd.PersistentFlags().StringVarP(&fileProject, "project", "p", "", "project id or name")
	fileCmd.PersistentFlags().StringVarP(&fileBranch, "branch", "b", "", "branch id or name (default: Main)")
	addFileCmd.Flags().StringVar(&fileDisplayName, "name", "", "display name for the file")
	getFileCmd.Flags().StringVarP(&fileOutput, "output", "o", "", "write to this path instead of stdout")
}

func runAddFile(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	_, ps, err := a.projectStore(ctx, fileProject)
	if err != nil {
		return err
	}
	branch, err := resolveBranch(ctx, ps, fileBranch)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	rec, err := ps.SaveFile(ctx, branch.ID, filepath.Base(args[0]), data, fileDisplayName)
	if err != nil {
		return err
	}

	if quiet {
		fmt.Println(rec.ID)
		return nil
	}
	fmt.Printf("File '%s' added to branch '%s' (%s).\n", rec.Filename, branch.Name, formatSize(rec.SizeBytes))
	return nil
}

func runGetFile(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("file id must be an integer, got %q", args[0])
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	_, ps, err := a.projectStore(ctx, fileProject)
	if err != nil {
		return err
	}
	rec, data, err := ps.FileContent(ctx, id)
	if err != nil {
		return err
	}

	if fileOutput == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(fileOutput, data, 0o640); err != nil {
		return fmt.Errorf("writing %s: %w", fileOutput, err)
	}
	if !quiet {
		fmt.Printf("Wrote '%s' to %s (%s).\n", rec.Filename, fileOutput, formatSize(int64(len(data))))
	}
	return nil
}

func runListFiles(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	_, ps, err := a.projectStore(ctx, fileProject)
	if err != nil {
		return err
	}
	branch, err := resolveBranch(ctx, ps, fileBranch)
	if err != nil {
		return err
	}
	filterIDs, err := ps.BranchFilterIDs(ctx, branch)
	if err != nil {
		return err
	}
	files, err := ps.ListFiles(ctx, filterIDs)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		fmt.Println("No files.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIZE\tTYPE\tADDED")
	fmt.Fprintln(w, "──\t────\t────\t────\t─────")
	for _, f := range files {
		name := f.Filename
		if f.DisplayName != "" {
			name = fmt.Sprintf("%s (%s)", f.DisplayName, f.Filename)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			f.ID, name, formatSize(f.SizeBytes), f.MimeType, f.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}
