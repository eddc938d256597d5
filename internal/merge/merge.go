// Package merge propagates a branch's rows into Main. The merge is
// additive and idempotent: rows whose natural key already exists under
// Main are skipped, never overwritten, and re-running a merge changes
// nothing. It is deliberately not one big transaction; each table is a
// best-effort batch, and per-item failures are reported, not fatal.
package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/branchlite/branchlite/internal/changelog"
	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/fsutil"
	"github.com/branchlite/branchlite/internal/logging"
	"github.com/branchlite/branchlite/internal/schema"
	"github.com/branchlite/branchlite/internal/sqltext"
	"github.com/branchlite/branchlite/internal/store"
)

// builtinLedgers are merged with dedicated natural keys; everything else
// branch-aware is handled generically. Infrastructure tables never merge.
var builtinLedgers = map[string]bool{
	"files":    true,
	"threads":  true,
	"datasets": true,
	"notes":    true,
}

var excludedTables = map[string]bool{
	"branches":          true,
	"changelog":         true,
	"sql_undo_log":      true,
	"schema_migrations": true,
}

// Merger copies branch data into Main.
type Merger struct {
	stores *store.Manager
	log    *logging.Logger
}

func New(stores *store.Manager, log *logging.Logger) *Merger {
	if log == nil {
		log = logging.NewNop()
	}
	return &Merger{stores: stores, log: log}
}

// ToMain merges one source branch into Main and reports what was adopted
// and what was skipped. The source branch keeps all of its rows and its
// undo log; only Main gains data.
func (m *Merger) ToMain(ctx context.Context, projectID, sourceBranchID int64) (*core.MergeReport, error) {
	ps, err := m.stores.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	branch, err := ps.ResolveBranchID(ctx, sourceBranchID)
	if err != nil {
		return nil, err
	}
	if branch.IsMain() {
		return nil, core.ErrValidation(core.CodeMergeSourceIsMain, "cannot merge Main into itself")
	}
	main, err := ps.EnsureMainBranch(ctx)
	if err != nil {
		return nil, err
	}

	log := ps.Log().WithBranch(branch.Name)
	rep := &core.MergeReport{SourceBranch: branch.Name}

	m.mergeFiles(ctx, ps, branch, main, rep)
	m.mergeLedger(ctx, ps, branch, main, rep, "threads",
		`INSERT INTO threads (project_id, branch_id, title)
		 SELECT ?, ?, s.title FROM threads s
		 WHERE s.project_id = ? AND s.branch_id = ?
		 AND NOT EXISTS (SELECT 1 FROM threads m
		   WHERE m.project_id = ? AND m.branch_id = ? AND m.title = s.title)`,
		&rep.Threads)
	m.mergeLedger(ctx, ps, branch, main, rep, "datasets",
		`INSERT INTO datasets (project_id, branch_id, name, description)
		 SELECT ?, ?, s.name, s.description FROM datasets s
		 WHERE s.project_id = ? AND s.branch_id = ?
		 AND NOT EXISTS (SELECT 1 FROM datasets m
		   WHERE m.project_id = ? AND m.branch_id = ? AND m.name = s.name)`,
		&rep.Datasets)
	m.mergeLedger(ctx, ps, branch, main, rep, "notes",
		`INSERT INTO notes (project_id, branch_id, title, content)
		 SELECT ?, ?, s.title, s.content FROM notes s
		 WHERE s.project_id = ? AND s.branch_id = ?
		 AND NOT EXISTS (SELECT 1 FROM notes m
		   WHERE m.project_id = ? AND m.branch_id = ? AND m.title = s.title)`,
		&rep.Notes)
	m.mergeUserTables(ctx, ps, branch, main, rep)
	m.adoptChangelog(ctx, ps, branch, main, rep)

	if _, err := changelog.Record(ctx, ps.DB(), ps.ProjectID(), main.ID, "branch.merge_to_main",
		map[string]any{"from_branch": branch.Name},
		map[string]any{
			"files":             rep.Files,
			"threads":           rep.Threads,
			"datasets":          rep.Datasets,
			"notes":             rep.Notes,
			"tables":            rep.Tables,
			"changelog_adopted": rep.ChangelogAdopted,
		},
		fmt.Sprintf("Merged %s into Main: files=%d, threads=%d, datasets=%d, notes=%d, tables=%d",
			branch.Name, rep.Files, rep.Threads, rep.Datasets, rep.Notes, rep.Tables)); err != nil {
		log.Warn("changelog record failed", "action", "branch.merge_to_main", "error", err)
	}

	log.Info("merge to Main finished",
		"files", rep.Files, "threads", rep.Threads, "datasets", rep.Datasets,
		"notes", rep.Notes, "tables", rep.Tables,
		"changelog_adopted", rep.ChangelogAdopted, "skipped", len(rep.Skipped))
	return rep, nil
}

// mergeFiles copies the branch's physical files into the project's file
// directory under a collision-free name, then records them on Main. A file
// whose name Main already tracks is skipped whole, copy included.
func (m *Merger) mergeFiles(ctx context.Context, ps *store.ProjectStore, branch, main *core.Branch, rep *core.MergeReport) {
	files, err := ps.ListFiles(ctx, []int64{branch.ID})
	if err != nil {
		rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "files", Item: "*", Reason: err.Error()})
		return
	}
	for _, f := range files {
		var existing int
		err := ps.DB().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM files WHERE project_id = ? AND branch_id = ? AND filename = ?`,
			ps.ProjectID(), main.ID, f.Filename).Scan(&existing)
		if err != nil {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "files", Item: f.Filename, Reason: err.Error()})
			continue
		}
		if existing > 0 {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "files", Item: f.Filename, Reason: "already on Main"})
			continue
		}

		data, err := fsutil.ReadFileUnder(ps.FilesDir(), filepath.Base(f.StoragePath))
		if err != nil {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "files", Item: f.Filename,
				Reason: "source file unreadable: " + err.Error()})
			continue
		}
		target := collisionFreePath(ps.FilesDir(), filepath.Base(f.Filename))
		if err := store.AtomicWriteFile(target, data, 0o640); err != nil {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "files", Item: f.Filename,
				Reason: "copying file: " + err.Error()})
			continue
		}

		_, err = ps.DB().ExecContext(ctx,
			`INSERT INTO files (project_id, branch_id, filename, display_name, file_key, storage_path, size_bytes, mime_type)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			ps.ProjectID(), main.ID, f.Filename, nullIfEmpty(f.DisplayName),
			store.NewFileKey(), target, int64(len(data)), nullIfEmpty(f.MimeType))
		if err != nil {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "files", Item: f.Filename, Reason: err.Error()})
			continue
		}
		rep.Files++
	}
}

// mergeLedger runs one set-based copy for a built-in ledger table. The
// query carries its own natural-key dedup, so duplicates simply do not
// transfer and are not individually reported.
func (m *Merger) mergeLedger(ctx context.Context, ps *store.ProjectStore, branch, main *core.Branch, rep *core.MergeReport, table, query string, counter *int) {
	out, err := ps.DB().ExecContext(ctx, query,
		ps.ProjectID(), main.ID, ps.ProjectID(), branch.ID, ps.ProjectID(), main.ID)
	if err != nil {
		rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: table, Item: "*", Reason: err.Error()})
		return
	}
	if n, err := out.RowsAffected(); err == nil {
		*counter += int(n)
	}
}

// mergeUserTables copies rows of every other branch-aware table. The whole
// set of non-scoping columns acts as the natural key; a generated integer
// key column is neither copied nor compared, so Main assigns fresh ids.
func (m *Merger) mergeUserTables(ctx context.Context, ps *store.ProjectStore, branch, main *core.Branch, rep *core.MergeReport) {
	insp := schema.New(ps.DB())
	tables, err := insp.Tables(ctx)
	if err != nil {
		rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "*", Item: "*", Reason: err.Error()})
		return
	}
	for _, name := range tables {
		if builtinLedgers[name] || excludedTables[name] {
			continue
		}
		if !sqltext.IsSafeIdent(name) {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: name, Item: "*", Reason: "unsafe table name"})
			continue
		}
		tbl, err := insp.Describe(ctx, name)
		if err != nil {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: name, Item: "*", Reason: err.Error()})
			continue
		}
		if !tbl.BranchAware {
			continue
		}

		cols := tbl.DataColumns()
		if alias, ok := tbl.RowIDAlias(); ok {
			cols = withoutName(cols, alias)
		}
		if len(cols) == 0 {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: name, Item: "*", Reason: "no data columns to merge"})
			continue
		}

		n, err := m.copyTableRows(ctx, ps, tbl, cols, branch, main)
		if err != nil {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: name, Item: "*", Reason: err.Error()})
			continue
		}
		if n > 0 {
			rep.Tables++
		}
	}
}

// copyTableRows copies the branch's unique rows of one table to Main in a
// single statement. Natural-key comparison uses IS so NULLs compare equal,
// and OR IGNORE lets individual constraint collisions drop out instead of
// failing the batch.
func (m *Merger) copyTableRows(ctx context.Context, ps *store.ProjectStore, tbl *schema.Table, cols []string, branch, main *core.Branch) (int64, error) {
	quotedTable := sqltext.QuoteIdent(tbl.Name)
	selects := make([]string, len(cols))
	inserts := make([]string, len(cols))
	matches := make([]string, len(cols))
	for i, c := range cols {
		q := sqltext.QuoteIdent(c)
		selects[i] = "s." + q
		inserts[i] = q
		matches[i] = fmt.Sprintf("m.%s IS s.%s", q, q)
	}

	projectCol := sqltext.QuoteIdent(schema.ProjectIDColumn)
	branchCol := sqltext.QuoteIdent(schema.BranchIDColumn)
	query := fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (%s, %s, %s)
		 SELECT %s, ?, ? FROM %s s
		 WHERE s.%s = ? AND s.%s = ?
		 AND NOT EXISTS (SELECT 1 FROM %s m
		   WHERE m.%s = ? AND m.%s = ? AND %s)`,
		quotedTable, strings.Join(inserts, ", "), projectCol, branchCol,
		strings.Join(selects, ", "), quotedTable,
		projectCol, branchCol,
		quotedTable,
		projectCol, branchCol,
		strings.Join(matches, " AND "))

	out, err := ps.DB().ExecContext(ctx, query,
		ps.ProjectID(), main.ID, ps.ProjectID(), branch.ID, ps.ProjectID(), main.ID)
	if err != nil {
		return 0, err
	}
	return out.RowsAffected()
}

// adoptChangelog copies branch changelog entries Main has not seen, keyed
// by (action, input hash), tagging each copy with where it came from. The
// duplicate set covers Main's whole changelog, so re-running a merge never
// re-adopts an entry no matter how much history Main has accumulated since.
func (m *Merger) adoptChangelog(ctx context.Context, ps *store.ProjectStore, branch, main *core.Branch, rep *core.MergeReport) {
	mainEntries, err := changelog.EntriesAsc(ctx, ps.DB(), ps.ProjectID(), main.ID)
	if err != nil {
		rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "changelog", Item: "*", Reason: err.Error()})
		return
	}
	seen := make(map[string]bool, len(mainEntries))
	for _, e := range mainEntries {
		seen[changelog.DedupKey(e.Action, e.InputJSON)] = true
	}

	branchEntries, err := changelog.EntriesAsc(ctx, ps.DB(), ps.ProjectID(), branch.ID)
	if err != nil {
		rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "changelog", Item: "*", Reason: err.Error()})
		return
	}
	for _, e := range branchEntries {
		key := changelog.DedupKey(e.Action, e.InputJSON)
		if seen[key] {
			continue
		}
		output, err := provenanceOutput(branch, e.OutputJSON)
		if err != nil {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "changelog", Item: e.Action, Reason: err.Error()})
			continue
		}
		summary := e.Summary
		if summary == "" {
			summary = fmt.Sprintf("Adopted from %s: %s", branch.Name, e.Action)
		}
		_, err = changelog.Append(ctx, ps.DB(), core.ChangelogEntry{
			ProjectID:  ps.ProjectID(),
			BranchID:   main.ID,
			Action:     e.Action,
			InputJSON:  e.InputJSON,
			OutputJSON: output,
			Summary:    summary,
		})
		if err != nil {
			rep.Skipped = append(rep.Skipped, core.MergeSkip{Table: "changelog", Item: e.Action, Reason: err.Error()})
			continue
		}
		seen[key] = true
		rep.ChangelogAdopted++
	}
}

// provenanceOutput wraps an adopted entry's original output with the
// branch it came from.
func provenanceOutput(branch *core.Branch, original string) (string, error) {
	wrapped := map[string]any{
		"merged_from_branch_id": branch.ID,
		"merged_from_branch":    branch.Name,
	}
	if strings.TrimSpace(original) != "" {
		if !json.Valid([]byte(original)) {
			return "", fmt.Errorf("entry output is not valid JSON")
		}
		wrapped["original_output"] = json.RawMessage(original)
	}
	data, err := json.Marshal(wrapped)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// collisionFreePath returns dir joined with name, appending __m1, __m2 and
// so on before the extension until the path is unused.
func collisionFreePath(dir, name string) string {
	target := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			return target
		}
		target = filepath.Join(dir, fmt.Sprintf("%s__m%d%s", stem, i, ext))
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func withoutName(names []string, drop string) []string {
	out := names[:0]
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}
