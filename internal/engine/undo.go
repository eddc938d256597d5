package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/branchlite/branchlite/internal/changelog"
	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/schema"
	"github.com/branchlite/branchlite/internal/sqltext"
	"github.com/branchlite/branchlite/internal/store"
)

// Undo reverses one undo-log entry. A nil logID picks the branch's most
// recent entry; an empty log is reported as a result, not an error. The
// reversal is all or nothing: on success the entry is consumed in the same
// transaction, and on conflict the store is untouched and the entry stays
// available.
func (e *Engine) Undo(ctx context.Context, projectID, branchID int64, logID *int64) (*core.UndoResult, error) {
	ps, err := e.stores.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	branch, err := ps.ResolveBranchID(ctx, branchID)
	if err != nil {
		return nil, err
	}

	var entry *core.UndoLogEntry
	if logID != nil {
		entry, err = store.GetUndoEntry(ctx, ps.DB(), ps.ProjectID(), *logID)
	} else {
		entry, err = store.LatestUndoEntry(ctx, ps.DB(), ps.ProjectID(), branch.ID)
	}
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return &core.UndoResult{Undone: false, Message: "nothing to undo"}, nil
	}

	log := ps.Log().WithBranch(branch.Name).WithTable(entry.TableName)

	tx, err := ps.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, core.ErrStoreExecution(err.Error()).WithCause(err)
	}
	defer func() { _ = tx.Rollback() }()

	tbl, err := schema.New(tx).Describe(ctx, entry.TableName)
	if err != nil {
		var derr *core.DomainError
		if errors.As(err, &derr) && derr.Code == core.CodeTableNotFound {
			return nil, core.ErrUndoConflict(
				fmt.Sprintf("table %s no longer exists", entry.TableName)).WithCause(err)
		}
		return nil, err
	}
	if err := checkCapturedColumns(tbl, entry); err != nil {
		return nil, err
	}

	switch entry.Op {
	case core.UndoOpInsert:
		err = undoInsert(ctx, tx, tbl, entry)
	case core.UndoOpDelete:
		err = undoDelete(ctx, tx, tbl, entry)
	case core.UndoOpUpdate:
		err = undoUpdate(ctx, tx, tbl, entry)
	default:
		err = core.ErrUndoConflict(fmt.Sprintf("unknown undo operation %q", entry.Op))
	}
	if err != nil {
		log.Warn("undo aborted", "undo_log_id", entry.ID, "error", err)
		return nil, err
	}

	if err := store.DeleteUndoEntry(ctx, tx, ps.ProjectID(), entry.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, core.ErrStoreExecution(err.Error()).WithCause(err)
	}

	rows := len(entry.RowsBefore)
	if entry.Op == core.UndoOpInsert {
		rows = len(entry.RowsAfter)
	}

	if _, err := changelog.Record(ctx, ps.DB(), ps.ProjectID(), branch.ID, "sql.undo",
		map[string]any{"undo_log_id": entry.ID, "table": entry.TableName, "op": string(entry.Op)},
		map[string]any{"rows": rows},
		fmt.Sprintf("undid %s on %s (%d rows)", strings.ToUpper(string(entry.Op)), entry.TableName, rows)); err != nil {
		log.Warn("changelog record failed", "action", "sql.undo", "error", err)
	}

	log.Info("undo applied", "undo_log_id", entry.ID, "op", string(entry.Op), "rows", rows)
	return &core.UndoResult{
		Undone:  true,
		Entry:   entry,
		Message: fmt.Sprintf("reversed %s on %s (%d rows)", strings.ToUpper(string(entry.Op)), entry.TableName, rows),
	}, nil
}

// checkCapturedColumns verifies that every column named by the entry still
// exists on the table. A schema that drifted since capture cannot be
// replayed into safely.
func checkCapturedColumns(tbl *schema.Table, entry *core.UndoLogEntry) error {
	known := make(map[string]bool, len(tbl.Columns))
	for _, c := range tbl.Columns {
		known[c.Name] = true
	}
	check := func(cols []string) error {
		for _, c := range cols {
			if !known[c] {
				return core.ErrUndoConflict(
					fmt.Sprintf("column %s of %s no longer exists", c, tbl.Name))
			}
		}
		return nil
	}
	if err := check(entry.PKColumns); err != nil {
		return err
	}
	for _, row := range entry.RowsBefore {
		if err := check(row.Columns); err != nil {
			return err
		}
	}
	for _, row := range entry.RowsAfter {
		if err := check(row.Columns); err != nil {
			return err
		}
	}
	return nil
}

// undoInsert deletes the rows the insert created. Every captured row must
// still match exactly one stored row.
func undoInsert(ctx context.Context, tx *sql.Tx, tbl *schema.Table, entry *core.UndoLogEntry) error {
	for _, row := range entry.RowsAfter {
		query, args, err := deleteRowQuery(tbl, row)
		if err != nil {
			return err
		}
		out, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return core.ErrUndoConflict("removing inserted row: " + err.Error()).WithCause(err)
		}
		if err := expectOneRow(out, "inserted row to remove"); err != nil {
			return err
		}
	}
	return nil
}

// undoDelete restores every captured row with its full original column set.
func undoDelete(ctx context.Context, tx *sql.Tx, tbl *schema.Table, entry *core.UndoLogEntry) error {
	for _, row := range entry.RowsBefore {
		if len(row.Columns) == 0 {
			continue
		}
		quoted := make([]string, len(row.Columns))
		args := make([]any, len(row.Values))
		for i, c := range row.Columns {
			quoted[i] = sqltext.QuoteIdent(c)
			args[i] = core.Arg(row.Values[i])
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			sqltext.QuoteIdent(tbl.Name), strings.Join(quoted, ", "), sqltext.Placeholders(len(args)))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return core.ErrUndoConflict("restoring deleted row: " + err.Error()).WithCause(err)
		}
	}
	return nil
}

// undoUpdate writes each row's captured values back, keyed by primary key.
// Tables without one are matched against their captured current state
// instead.
func undoUpdate(ctx context.Context, tx *sql.Tx, tbl *schema.Table, entry *core.UndoLogEntry) error {
	pks := tbl.PKColumns()
	if len(pks) == 0 {
		return undoUpdateByMatch(ctx, tx, tbl, entry)
	}

	skip := map[string]bool{
		schema.ProjectIDColumn: tbl.BranchAware,
		schema.BranchIDColumn:  tbl.BranchAware,
	}
	for _, pk := range pks {
		skip[pk] = true
	}

	for _, row := range entry.RowsBefore {
		var sets []string
		var args []any
		for i, c := range row.Columns {
			if skip[c] {
				continue
			}
			sets = append(sets, sqltext.QuoteIdent(c)+" = ?")
			args = append(args, core.Arg(row.Values[i]))
		}
		if len(sets) == 0 {
			continue
		}
		cond, condArgs, err := keyPredicate(tbl, pks, row)
		if err != nil {
			return err
		}
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			sqltext.QuoteIdent(tbl.Name), strings.Join(sets, ", "), cond)
		out, err := tx.ExecContext(ctx, query, append(args, condArgs...)...)
		if err != nil {
			return core.ErrUndoConflict("restoring updated row: " + err.Error()).WithCause(err)
		}
		if err := expectOneRow(out, "updated row to restore"); err != nil {
			return err
		}
	}
	return nil
}

// undoUpdateByMatch handles tables with no primary key. Each before row is
// paired by position with its captured after state, and exactly one row
// matching that state is rewritten.
func undoUpdateByMatch(ctx context.Context, tx *sql.Tx, tbl *schema.Table, entry *core.UndoLogEntry) error {
	if len(entry.RowsBefore) != len(entry.RowsAfter) {
		return core.ErrUndoConflict("captured row sets no longer pair up")
	}
	table := sqltext.QuoteIdent(tbl.Name)
	for i, before := range entry.RowsBefore {
		if len(before.Columns) == 0 {
			continue
		}
		sets := make([]string, len(before.Columns))
		args := make([]any, len(before.Values))
		for j, c := range before.Columns {
			sets[j] = sqltext.QuoteIdent(c) + " = ?"
			args[j] = core.Arg(before.Values[j])
		}
		cond, condArgs := fullMatchPredicate(entry.RowsAfter[i])
		query := fmt.Sprintf("UPDATE %s SET %s WHERE rowid IN (SELECT rowid FROM %s WHERE %s LIMIT 1)",
			table, strings.Join(sets, ", "), table, cond)
		out, err := tx.ExecContext(ctx, query, append(args, condArgs...)...)
		if err != nil {
			return core.ErrUndoConflict("restoring updated row: " + err.Error()).WithCause(err)
		}
		if err := expectOneRow(out, "updated row to restore"); err != nil {
			return err
		}
	}
	return nil
}

// deleteRowQuery builds the delete that removes one captured row: by key
// when the table has a primary key, otherwise one arbitrary row matching
// every captured value.
func deleteRowQuery(tbl *schema.Table, row core.Row) (string, []any, error) {
	table := sqltext.QuoteIdent(tbl.Name)
	if pks := tbl.PKColumns(); len(pks) > 0 {
		cond, args, err := keyPredicate(tbl, pks, row)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("DELETE FROM %s WHERE %s", table, cond), args, nil
	}
	cond, args := fullMatchPredicate(row)
	query := fmt.Sprintf("DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s WHERE %s LIMIT 1)",
		table, table, cond)
	return query, args, nil
}

// keyPredicate identifies one row by primary key, extended with the scoping
// columns on branch-aware tables so reversals stay inside their branch.
func keyPredicate(tbl *schema.Table, pks []string, row core.Row) (string, []any, error) {
	cols := append([]string{}, pks...)
	if tbl.BranchAware {
		for _, c := range []string{schema.ProjectIDColumn, schema.BranchIDColumn} {
			if !containsName(cols, c) {
				cols = append(cols, c)
			}
		}
	}
	conds := make([]string, 0, len(cols))
	var args []any
	for _, c := range cols {
		v, ok := row.Get(c)
		if !ok {
			return "", nil, core.ErrUndoConflict(fmt.Sprintf("captured row is missing column %s", c))
		}
		if _, isNull := v.(core.Null); isNull {
			conds = append(conds, sqltext.QuoteIdent(c)+" IS NULL")
			continue
		}
		conds = append(conds, sqltext.QuoteIdent(c)+" = ?")
		args = append(args, core.Arg(v))
	}
	return strings.Join(conds, " AND "), args, nil
}

// fullMatchPredicate matches every captured column value, null-safe.
func fullMatchPredicate(row core.Row) (string, []any) {
	conds := make([]string, 0, len(row.Columns))
	var args []any
	for i, c := range row.Columns {
		if _, isNull := row.Values[i].(core.Null); isNull {
			conds = append(conds, sqltext.QuoteIdent(c)+" IS NULL")
			continue
		}
		conds = append(conds, sqltext.QuoteIdent(c)+" = ?")
		args = append(args, core.Arg(row.Values[i]))
	}
	return strings.Join(conds, " AND "), args
}

func expectOneRow(out sql.Result, what string) error {
	n, err := out.RowsAffected()
	if err != nil {
		return core.ErrUndoConflict("checking affected rows: " + err.Error()).WithCause(err)
	}
	if n != 1 {
		return core.ErrUndoConflict(fmt.Sprintf("%s no longer matches (%d rows affected)", what, n))
	}
	return nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
