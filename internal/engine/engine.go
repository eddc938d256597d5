// Package engine runs SQL statements against project stores. Every
// statement is scoped to a branch before it reaches the store, and every
// mutation captures the rows it touches so it can be reversed later.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/branchlite/branchlite/internal/changelog"
	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/logging"
	"github.com/branchlite/branchlite/internal/rewrite"
	"github.com/branchlite/branchlite/internal/schema"
	"github.com/branchlite/branchlite/internal/store"
)

// DefaultMaxRows caps how many rows a select returns when the caller does
// not ask for a limit of its own.
const DefaultMaxRows = 500

// Engine executes statements, reverses them, and converts tables to
// branch-aware form. It is safe for concurrent use.
type Engine struct {
	stores  *store.Manager
	log     *logging.Logger
	maxRows int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRows overrides the default select row cap.
func WithMaxRows(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRows = n
		}
	}
}

func New(stores *store.Manager, log *logging.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logging.NewNop()
	}
	e := &Engine{stores: stores, log: log, maxRows: DefaultMaxRows}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a single statement for a project under the given branch.
// Statement failures inside the store are reported on the result with the
// store's own message and a nil error; a non-nil error means the engine
// rejected the statement before execution.
func (e *Engine) Execute(ctx context.Context, projectID, branchID int64, sqlText string, maxRows int) (*core.ExecResult, error) {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return nil, core.ErrValidation(core.CodeEmptyStatement, "no SQL statement provided")
	}
	if maxRows <= 0 {
		maxRows = e.maxRows
	}

	ps, err := e.stores.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	branch, err := ps.ResolveBranchID(ctx, branchID)
	if err != nil {
		return nil, err
	}
	filterIDs, err := ps.BranchFilterIDs(ctx, branch)
	if err != nil {
		return nil, err
	}

	scope := rewrite.Scope{ProjectID: ps.ProjectID(), BranchID: branch.ID, FilterIDs: filterIDs}
	rewritten, err := rewrite.New(schema.New(ps.DB())).Rewrite(ctx, scope, trimmed)
	if err != nil {
		return nil, err
	}

	log := ps.Log().WithBranch(branch.Name)
	if rewritten.Rewritten {
		log.Debug("statement scoped to branch", "table", rewritten.Table, "kind", string(rewritten.Kind))
	}

	switch rewritten.Kind {
	case core.StmtSelect:
		return e.runSelect(ctx, ps, log, rewritten, maxRows)
	case core.StmtInsert, core.StmtUpdate, core.StmtDelete:
		return e.runMutation(ctx, ps, log, branch, rewritten)
	default:
		return e.runOther(ctx, ps, log, rewritten)
	}
}

// runSelect streams up to maxRows rows into the result. One extra row is
// probed so the result can say whether the cap cut anything off.
func (e *Engine) runSelect(ctx context.Context, ps *store.ProjectStore, log *logging.Logger, r *rewrite.Result, maxRows int) (*core.ExecResult, error) {
	res := &core.ExecResult{Kind: r.Kind}
	rows, err := ps.DB().QueryContext(ctx, r.SQL)
	if err != nil {
		return failResult(log, res, err), nil
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return failResult(log, res, err), nil
	}
	res.Columns = cols

	for rows.Next() {
		if len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		vals, err := scanValues(rows, len(cols))
		if err != nil {
			return failResult(log, res, err), nil
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return failResult(log, res, err), nil
	}

	res.Success = true
	res.RowCount = len(res.Rows)
	return res, nil
}

// runMutation executes an insert, update or delete inside one transaction
// together with its undo capture. Either the statement and its undo entry
// both land, or neither does.
func (e *Engine) runMutation(ctx context.Context, ps *store.ProjectStore, log *logging.Logger, branch *core.Branch, r *rewrite.Result) (*core.ExecResult, error) {
	res := &core.ExecResult{Kind: r.Kind}

	tx, err := ps.DB().BeginTx(ctx, nil)
	if err != nil {
		return failResult(log, res, err), nil
	}
	defer func() { _ = tx.Rollback() }()

	// Mutations against tables the store does not know, or that name no
	// table at all, run without capture and surface the store's error.
	var tbl *schema.Table
	if r.Table != "" {
		tbl, err = schema.New(tx).Describe(ctx, r.Table)
		if err != nil {
			var derr *core.DomainError
			if !errors.As(err, &derr) || derr.Code != core.CodeTableNotFound {
				return nil, err
			}
			tbl = nil
		}
	}

	var before []core.Row
	if tbl != nil && (r.Kind == core.StmtUpdate || r.Kind == core.StmtDelete) {
		before, err = captureByWhere(ctx, tx, tbl, r.SQL)
		if err != nil {
			return failResult(log, res, err), nil
		}
	}

	out, err := tx.ExecContext(ctx, r.SQL)
	if err != nil {
		return failResult(log, res, err), nil
	}
	affected, err := out.RowsAffected()
	if err != nil {
		return failResult(log, res, err), nil
	}
	res.RowCount = int(affected)

	if tbl != nil {
		entry := &core.UndoLogEntry{
			ProjectID:  ps.ProjectID(),
			BranchID:   branch.ID,
			TableName:  tbl.Name,
			Op:         undoOpFor(r.Kind),
			SQLText:    r.SQL,
			PKColumns:  tbl.PKColumns(),
			RowsBefore: before,
		}
		switch r.Kind {
		case core.StmtInsert:
			entry.RowsAfter, err = captureInserted(ctx, tx, tbl, out, affected)
		case core.StmtUpdate:
			entry.RowsAfter, err = captureCurrent(ctx, tx, tbl, before, r.SQL)
		}
		if err != nil {
			return failResult(log, res, err), nil
		}
		if err := store.InsertUndoEntry(ctx, tx, entry); err != nil {
			return failResult(log, res, err), nil
		}
		res.UndoLogID = &entry.ID
	}

	if err := tx.Commit(); err != nil {
		res.UndoLogID = nil
		return failResult(log, res, err), nil
	}

	res.Success = true

	action := "sql." + string(r.Kind)
	output := map[string]any{"rows": res.RowCount}
	if res.UndoLogID != nil {
		output["undo_log_id"] = *res.UndoLogID
	}
	if _, err := changelog.Record(ctx, ps.DB(), ps.ProjectID(), branch.ID, action,
		map[string]any{"sql": r.SQL, "table": r.Table}, output,
		fmt.Sprintf("%s on %s (%d rows)", strings.ToUpper(string(r.Kind)), r.Table, res.RowCount)); err != nil {
		log.Warn("changelog record failed", "action", action, "error", err)
	}

	log.Info("statement executed",
		"kind", string(r.Kind), "table", r.Table, "rows", res.RowCount)
	return res, nil
}

// runOther covers DDL and pragmas that mutate nothing the undo log tracks.
func (e *Engine) runOther(ctx context.Context, ps *store.ProjectStore, log *logging.Logger, r *rewrite.Result) (*core.ExecResult, error) {
	res := &core.ExecResult{Kind: r.Kind}
	out, err := ps.DB().ExecContext(ctx, r.SQL)
	if err != nil {
		return failResult(log, res, err), nil
	}
	if n, err := out.RowsAffected(); err == nil {
		res.RowCount = int(n)
	}
	res.Success = true
	log.Info("statement executed", "kind", string(r.Kind))
	return res, nil
}

// failResult turns a store error into a failed result carrying the store's
// message verbatim.
func failResult(log *logging.Logger, res *core.ExecResult, err error) *core.ExecResult {
	log.Warn("statement failed", "error", err)
	res.Success = false
	res.Columns = nil
	res.Rows = nil
	res.RowCount = 0
	res.Truncated = false
	res.Error = err.Error()
	return res
}

func undoOpFor(kind core.StatementKind) core.UndoOp {
	switch kind {
	case core.StmtInsert:
		return core.UndoOpInsert
	case core.StmtUpdate:
		return core.UndoOpUpdate
	default:
		return core.UndoOpDelete
	}
}

// scanValues reads the current result row into tagged values.
func scanValues(rows *sql.Rows, n int) ([]core.Value, error) {
	raw := make([]any, n)
	ptrs := make([]any, n)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	vals := make([]core.Value, n)
	for i, v := range raw {
		val, err := core.FromDriver(v)
		if err != nil {
			return nil, err
		}
		vals[i] = val
	}
	return vals, nil
}
