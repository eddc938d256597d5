package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/logging"
	"github.com/branchlite/branchlite/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.ProjectStore) {
	t.Helper()
	m, err := store.NewManager(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	ctx := context.Background()
	p, err := m.CreateProject(ctx, "demo")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	ps, err := m.Project(ctx, p.ID)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	return New(m, logging.NewNop()), ps
}

func mustExec(t *testing.T, e *Engine, ps *store.ProjectStore, branchID int64, sqlText string) *core.ExecResult {
	t.Helper()
	res, err := e.Execute(context.Background(), ps.ProjectID(), branchID, sqlText, 0)
	if err != nil {
		t.Fatalf("Execute(%q) failed: %v", sqlText, err)
	}
	if !res.Success {
		t.Fatalf("Execute(%q) did not succeed: %s", sqlText, res.Error)
	}
	return res
}

func mustBranch(t *testing.T, ps *store.ProjectStore, name string) *core.Branch {
	t.Helper()
	b, err := ps.CreateBranch(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateBranch(%q) failed: %v", name, err)
	}
	return b
}

func mainBranch(t *testing.T, ps *store.ProjectStore) *core.Branch {
	t.Helper()
	b, err := ps.MainBranch(context.Background())
	if err != nil {
		t.Fatalf("MainBranch failed: %v", err)
	}
	return b
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	var derr *core.DomainError
	if !errors.As(err, &derr) {
		t.Fatalf("want DomainError with code %s, got %v", code, err)
	}
	if derr.Code != code {
		t.Fatalf("want code %s, got %s (%s)", code, derr.Code, derr.Message)
	}
}

func selectTitles(t *testing.T, e *Engine, ps *store.ProjectStore, branchID int64) []string {
	t.Helper()
	res := mustExec(t, e, ps, branchID, "SELECT title FROM notes ORDER BY id")
	titles := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		titles = append(titles, string(row[0].(core.Text)))
	}
	return titles
}

func TestExecuteEmptyStatement(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	main := mainBranch(t, ps)

	_, err := e.Execute(context.Background(), ps.ProjectID(), main.ID, "   \n\t", 0)
	wantCode(t, err, core.CodeEmptyStatement)
}

func TestExecuteInsertScopesToActiveBranch(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	feature := mustBranch(t, ps, "feature")

	res := mustExec(t, e, ps, feature.ID, "INSERT INTO notes (title) VALUES ('scoped')")
	if res.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1", res.RowCount)
	}
	if res.UndoLogID == nil {
		t.Fatal("UndoLogID not set for insert")
	}

	var projectID, branchID int64
	err := ps.DB().QueryRowContext(context.Background(),
		`SELECT project_id, branch_id FROM notes WHERE title = 'scoped'`).Scan(&projectID, &branchID)
	if err != nil {
		t.Fatalf("reading inserted row: %v", err)
	}
	if projectID != ps.ProjectID() {
		t.Errorf("project_id = %d, want %d", projectID, ps.ProjectID())
	}
	if branchID != feature.ID {
		t.Errorf("branch_id = %d, want %d", branchID, feature.ID)
	}
}

func TestExecuteSelectVisibility(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	main := mainBranch(t, ps)
	feature := mustBranch(t, ps, "feature")
	other := mustBranch(t, ps, "other")

	mustExec(t, e, ps, main.ID, "INSERT INTO notes (title) VALUES ('on main')")
	mustExec(t, e, ps, feature.ID, "INSERT INTO notes (title) VALUES ('on feature')")
	mustExec(t, e, ps, other.ID, "INSERT INTO notes (title) VALUES ('on other')")

	// Main rolls up every branch.
	if got := selectTitles(t, e, ps, main.ID); len(got) != 3 {
		t.Fatalf("Main sees %v, want all three rows", got)
	}
	// A feature branch overlays its rows on Main's and nothing else.
	got := selectTitles(t, e, ps, feature.ID)
	want := []string{"on main", "on feature"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("feature sees %v, want %v", got, want)
	}
	if got := selectTitles(t, e, ps, other.ID); len(got) != 2 {
		t.Fatalf("other sees %v, want Main's row plus its own", got)
	}
}

func TestExecuteUpdateStaysInScope(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	feature := mustBranch(t, ps, "feature")
	other := mustBranch(t, ps, "other")

	mustExec(t, e, ps, feature.ID, "INSERT INTO notes (title, content) VALUES ('n1', 'v1')")

	// A sibling branch cannot reach the feature row.
	res := mustExec(t, e, ps, other.ID, "UPDATE notes SET content = 'stolen' WHERE title = 'n1'")
	if res.RowCount != 0 {
		t.Fatalf("sibling update affected %d rows, want 0", res.RowCount)
	}

	res = mustExec(t, e, ps, feature.ID, "UPDATE notes SET content = 'v2' WHERE title = 'n1'")
	if res.RowCount != 1 {
		t.Fatalf("owner update affected %d rows, want 1", res.RowCount)
	}
}

func TestExecuteSelectTruncation(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	main := mainBranch(t, ps)

	for _, title := range []string{"a", "b", "c", "d", "e"} {
		mustExec(t, e, ps, main.ID, "INSERT INTO notes (title) VALUES ('"+title+"')")
	}

	res, err := e.Execute(context.Background(), ps.ProjectID(), main.ID, "SELECT title FROM notes", 3)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Rows) != 3 || res.RowCount != 3 {
		t.Fatalf("got %d rows (count %d), want 3", len(res.Rows), res.RowCount)
	}
	if !res.Truncated {
		t.Error("Truncated not set when rows were cut off")
	}

	res, err = e.Execute(context.Background(), ps.ProjectID(), main.ID, "SELECT title FROM notes", 5)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Truncated {
		t.Error("Truncated set although every row fit")
	}
}

func TestExecuteStatementFailure(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	main := mainBranch(t, ps)

	res, err := e.Execute(context.Background(), ps.ProjectID(), main.ID,
		"INSERT INTO no_such_table (x) VALUES (1)", 0)
	if err != nil {
		t.Fatalf("store failure must not be an engine error, got %v", err)
	}
	if res.Success {
		t.Fatal("Success set for failed statement")
	}
	if !strings.Contains(res.Error, "no_such_table") {
		t.Errorf("Error = %q, want the store's message", res.Error)
	}
	if res.UndoLogID != nil {
		t.Error("UndoLogID set for failed statement")
	}

	res, err = e.Execute(context.Background(), ps.ProjectID(), main.ID, "SELEC title FROM notes", 0)
	if err != nil {
		t.Fatalf("syntax error must not be an engine error, got %v", err)
	}
	if res.Success || res.Error == "" {
		t.Fatalf("syntax error not reported on result: %+v", res)
	}
}

func TestExecuteFailedStatementLeavesNoUndoEntry(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	main := mainBranch(t, ps)

	res, err := e.Execute(context.Background(), ps.ProjectID(), main.ID,
		"INSERT INTO notes (title) VALUES (NULL)", 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Success {
		t.Fatal("NOT NULL violation must fail the statement")
	}

	entry, err := store.LatestUndoEntry(context.Background(), ps.DB(), ps.ProjectID(), main.ID)
	if err != nil {
		t.Fatalf("LatestUndoEntry failed: %v", err)
	}
	if entry != nil {
		t.Fatalf("undo entry persisted for failed statement: %+v", entry)
	}
}

func TestExecuteUnknownBranchFallsBackToMain(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	main := mainBranch(t, ps)

	mustExec(t, e, ps, 9999, "INSERT INTO notes (title) VALUES ('homeless')")

	var branchID int64
	err := ps.DB().QueryRowContext(context.Background(),
		`SELECT branch_id FROM notes WHERE title = 'homeless'`).Scan(&branchID)
	if err != nil {
		t.Fatalf("reading inserted row: %v", err)
	}
	if branchID != main.ID {
		t.Errorf("branch_id = %d, want Main (%d)", branchID, main.ID)
	}
}

func TestExecutePlainTableUntouched(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	main := mainBranch(t, ps)
	feature := mustBranch(t, ps, "feature")

	mustExec(t, e, ps, main.ID, "CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)")
	res := mustExec(t, e, ps, feature.ID, "INSERT INTO widgets (name) VALUES ('cog')")
	if res.UndoLogID == nil {
		t.Fatal("plain-table mutations still capture undo state")
	}

	// No scoping columns, so every branch sees the row.
	sel := mustExec(t, e, ps, main.ID, "SELECT name FROM widgets")
	if len(sel.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(sel.Rows))
	}
}

func TestExecuteInsertCapturesRows(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	main := mainBranch(t, ps)

	res := mustExec(t, e, ps, main.ID,
		"INSERT INTO notes (title, content) VALUES ('first', 'f'), ('second', 's')")
	if res.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", res.RowCount)
	}

	entry, err := store.GetUndoEntry(context.Background(), ps.DB(), ps.ProjectID(), *res.UndoLogID)
	if err != nil {
		t.Fatalf("GetUndoEntry failed: %v", err)
	}
	if entry.Op != core.UndoOpInsert || entry.TableName != "notes" {
		t.Fatalf("entry = %s on %s, want insert on notes", entry.Op, entry.TableName)
	}
	if len(entry.RowsBefore) != 0 {
		t.Errorf("insert captured %d before rows, want 0", len(entry.RowsBefore))
	}
	if len(entry.RowsAfter) != 2 {
		t.Fatalf("insert captured %d after rows, want 2", len(entry.RowsAfter))
	}
	if v, ok := entry.RowsAfter[0].Get("title"); !ok || v != core.Text("first") {
		t.Errorf("first captured title = %v, want %q", v, "first")
	}
}

func TestExecuteDeleteCapturesRows(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	main := mainBranch(t, ps)

	mustExec(t, e, ps, main.ID, "INSERT INTO notes (title, content) VALUES ('keep', 'k')")
	mustExec(t, e, ps, main.ID, "INSERT INTO notes (title, content) VALUES ('drop', 'd')")

	res := mustExec(t, e, ps, main.ID, "DELETE FROM notes WHERE title = 'drop'")
	if res.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1", res.RowCount)
	}

	entry, err := store.GetUndoEntry(context.Background(), ps.DB(), ps.ProjectID(), *res.UndoLogID)
	if err != nil {
		t.Fatalf("GetUndoEntry failed: %v", err)
	}
	if entry.Op != core.UndoOpDelete {
		t.Fatalf("entry op = %s, want delete", entry.Op)
	}
	if len(entry.RowsBefore) != 1 || len(entry.RowsAfter) != 0 {
		t.Fatalf("captured %d before / %d after, want 1 / 0",
			len(entry.RowsBefore), len(entry.RowsAfter))
	}
	if v, _ := entry.RowsBefore[0].Get("content"); v != core.Text("d") {
		t.Errorf("captured content = %v, want %q", v, "d")
	}
}

func TestExecuteMaxRowsDefault(t *testing.T) {
	t.Parallel()
	m, err := store.NewManager(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	ctx := context.Background()
	p, err := m.CreateProject(ctx, "demo")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	ps, err := m.Project(ctx, p.ID)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}

	e := New(m, logging.NewNop(), WithMaxRows(2))
	main := mainBranch(t, ps)
	for _, title := range []string{"a", "b", "c"} {
		mustExec(t, e, ps, main.ID, "INSERT INTO notes (title) VALUES ('"+title+"')")
	}

	res, err := e.Execute(ctx, ps.ProjectID(), main.ID, "SELECT title FROM notes", 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(res.Rows) != 2 || !res.Truncated {
		t.Fatalf("got %d rows truncated=%v, want the configured cap of 2", len(res.Rows), res.Truncated)
	}
}

func TestExecuteRecordsMutationChangelog(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	feature := mustBranch(t, ps, "feature")
	ctx := context.Background()

	mustExec(t, e, ps, feature.ID, "INSERT INTO notes (title) VALUES ('logged')")
	mustExec(t, e, ps, feature.ID, "UPDATE notes SET content = 'edited' WHERE title = 'logged'")
	mustExec(t, e, ps, feature.ID, "DELETE FROM notes WHERE title = 'logged'")

	for _, action := range []string{"sql.insert", "sql.update", "sql.delete"} {
		var n int
		err := ps.DB().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM changelog WHERE action = ? AND branch_id = ?`,
			action, feature.ID).Scan(&n)
		if err != nil {
			t.Fatalf("querying changelog for %s: %v", action, err)
		}
		if n != 1 {
			t.Errorf("have %d %s entries, want 1", n, action)
		}
	}

	// Reads leave no trace.
	mustExec(t, e, ps, feature.ID, "SELECT * FROM notes")
	var n int
	if err := ps.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM changelog WHERE action = 'sql.select'`).Scan(&n); err != nil {
		t.Fatalf("querying changelog: %v", err)
	}
	if n != 0 {
		t.Errorf("have %d sql.select entries, want 0", n)
	}
}

func TestExecuteFailedMutationNotInChangelog(t *testing.T) {
	t.Parallel()
	e, ps := newTestEngine(t)
	main := mainBranch(t, ps)
	ctx := context.Background()

	res, err := e.Execute(ctx, ps.ProjectID(), main.ID,
		"INSERT INTO notes (no_such_column) VALUES ('x')", 0)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Success {
		t.Fatal("statement against a missing column succeeded")
	}

	var n int
	if err := ps.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM changelog WHERE action LIKE 'sql.%'`).Scan(&n); err != nil {
		t.Fatalf("querying changelog: %v", err)
	}
	if n != 0 {
		t.Errorf("failed statement left %d sql.* changelog entries, want 0", n)
	}
}
