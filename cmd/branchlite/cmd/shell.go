package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"

	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/schema"
	"github.com/branchlite/branchlite/internal/store"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive SQL shell on a branch",
	Long: `Start an interactive shell bound to one project and branch.

Plain input runs as SQL scoped to the current branch. Backslash commands
control the session: switch branches, merge into Main, undo mutations,
inspect tables. Type \help inside the shell for the full list.

Examples:
  branchlite shell --project demo
  branchlite shell --project demo --branch feature-x`,
	RunE: runShell,
}

var (
	shellProject string
	shellBranch  string
)

func init() {
	rootCmd.AddCommand(shellCmd)

	shellCmd.Flags().StringVarP(&shellProject, "project", "p", "", "project id or name")
	shellCmd.Flags().StringVarP(&shellBranch, "branch", "b", "", "branch id or name (default: Main)")
}

func runShell(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	p, ps, err := a.projectStore(ctx, shellProject)
	if err != nil {
		return err
	}
	branch, err := resolveBranch(ctx, ps, shellBranch)
	if err != nil {
		return err
	}

	sess := newShellSession(a, p, ps, branch)

	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:          sess.prompt(),
		HistoryFile:     historyPath(),
		HistoryLimit:    500,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer func() { _ = rl.Close() }()
	sess.rl = rl

	fmt.Printf("branchlite shell — project '%s', branch '%s'\n", p.Name, branch.Name)
	fmt.Println(`Type SQL to run it, \help for commands, \q to quit`)
	fmt.Println()

	for {
		line, err := rl.ReadLine()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == `\q` || line == `\quit` || strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			break
		}
		if err := sess.Execute(line); err != nil {
			fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
		}
	}
	fmt.Println()
	return nil
}

// shellSession holds the interactive state: the bound project store and the
// branch statements currently run against.
type shellSession struct {
	app     *app
	project *core.Project
	ps      *store.ProjectStore
	branch  *core.Branch
	rl      *readline.Instance
	out     io.Writer // destination for shell output (default os.Stdout)
}

func newShellSession(a *app, p *core.Project, ps *store.ProjectStore, branch *core.Branch) *shellSession {
	return &shellSession{
		app:     a,
		project: p,
		ps:      ps,
		branch:  branch,
		out:     os.Stdout,
	}
}

func (s *shellSession) prompt() string {
	return fmt.Sprintf("%s/%s> ", s.project.Name, s.branch.Name)
}

// Execute runs one line of input: backslash commands control the session,
// everything else is SQL on the current branch.
func (s *shellSession) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, `\`) {
		return s.runCommand(line)
	}
	return s.runSQL(line)
}

func (s *shellSession) runCommand(line string) error {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case `\help`, `\h`:
		s.printHelp()
		return nil
	case `\branches`:
		return s.cmdBranches()
	case `\branch`:
		if len(args) != 1 {
			return errors.New(`usage: \branch <name>`)
		}
		return s.cmdSwitchBranch(args[0])
	case `\merge`:
		return s.cmdMerge()
	case `\undo`:
		return s.cmdUndo(args)
	case `\tables`:
		return s.cmdTables()
	case `\d`:
		if len(args) != 1 {
			return errors.New(`usage: \d <table>`)
		}
		return s.cmdDescribe(args[0])
	default:
		return fmt.Errorf(`unknown command: %s (type \help for commands)`, name)
	}
}

func (s *shellSession) runSQL(line string) error {
	res, err := s.app.eng.Execute(context.Background(), s.project.ID, s.branch.ID, line, 0)
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Error)
	}
	_, _ = fmt.Fprint(s.out, formatResult(res))
	return nil
}

func (s *shellSession) cmdBranches() error {
	branches, err := s.ps.ListBranches(context.Background())
	if err != nil {
		return err
	}
	for _, b := range branches {
		mark := " "
		if b.ID == s.branch.ID {
			mark = "*"
		}
		if b.IsDefault {
			_, _ = fmt.Fprintf(s.out, "  %s %s (default)\n", mark, b.Name)
		} else {
			_, _ = fmt.Fprintf(s.out, "  %s %s\n", mark, b.Name)
		}
	}
	return nil
}

func (s *shellSession) cmdSwitchBranch(name string) error {
	b, err := s.ps.BranchByName(context.Background(), name)
	if err != nil {
		return err
	}
	s.branch = b
	if s.rl != nil {
		s.rl.SetPrompt(s.prompt())
	}
	_, _ = fmt.Fprintf(s.out, "  Switched to branch '%s'\n", b.Name)
	return nil
}

func (s *shellSession) cmdMerge() error {
	if s.branch.IsMain() {
		return errors.New("already on Main; switch to a branch first")
	}
	rep, err := s.app.merger.ToMain(context.Background(), s.project.ID, s.branch.ID)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(s.out, formatMergeReport(rep))
	return nil
}

func (s *shellSession) cmdUndo(args []string) error {
	var logID *int64
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("undo log id must be an integer, got %q", args[0])
		}
		logID = &id
	}
	res, err := s.app.eng.Undo(context.Background(), s.project.ID, s.branch.ID, logID)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(s.out, "  %s\n", res.Message)
	return nil
}

func (s *shellSession) cmdTables() error {
	ctx := context.Background()
	insp := schema.New(s.ps.DB())
	tables, err := insp.Tables(ctx)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		_, _ = fmt.Fprintln(s.out, "  No tables")
		return nil
	}
	for _, name := range tables {
		tbl, err := insp.Describe(ctx, name)
		if err == nil && tbl.BranchAware {
			_, _ = fmt.Fprintf(s.out, "  %s (branch-aware)\n", name)
		} else {
			_, _ = fmt.Fprintf(s.out, "  %s\n", name)
		}
	}
	return nil
}

func (s *shellSession) cmdDescribe(name string) error {
	tbl, err := schema.New(s.ps.DB()).Describe(context.Background(), name)
	if err != nil {
		return err
	}
	rows := make([][]string, len(tbl.Columns))
	for i, c := range tbl.Columns {
		null := "YES"
		if c.NotNull {
			null = "NO"
		}
		dflt := ""
		if c.Default.Valid {
			dflt = c.Default.String
		}
		pk := ""
		if c.PKOrdinal > 0 {
			pk = strconv.Itoa(c.PKOrdinal)
		}
		rows[i] = []string{c.Name, c.Type, null, dflt, pk}
	}
	_, _ = fmt.Fprint(s.out, formatTable([]string{"column", "type", "null", "default", "pk"}, rows))
	if tbl.BranchAware {
		_, _ = fmt.Fprintln(s.out, "Branch-aware: rows are scoped per branch")
	}
	return nil
}

func (s *shellSession) printHelp() {
	_, _ = fmt.Fprintln(s.out, `
  SQL:
    Any other input runs as a single SQL statement on the current
    branch. Mutations report the undo log id they can be reversed with.

  Session:
    \branches            List branches (* marks the current one)
    \branch <name>       Switch to another branch
    \merge               Merge the current branch into Main
    \undo [id]           Reverse the latest mutation, or a specific entry
    \tables              List tables
    \d <table>           Describe a table
    \help                Show this help
    \q                   Quit (also: exit, quit, Ctrl+D)

  Readline:
    Up/Down              Navigate history
    Ctrl+R               Reverse history search
    Ctrl+C               Cancel current line`)
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".branchlite_history")
}
