package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/branchlite/branchlite/internal/core"
)

// InsertUndoEntry persists a captured undo entry. It is called inside the
// transaction that ran the statement the entry describes, so a failed
// statement never leaves an orphaned entry behind.
func InsertUndoEntry(ctx context.Context, q Querier, e *core.UndoLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	pkJSON, err := marshalColumnList(e.PKColumns)
	if err != nil {
		return fmt.Errorf("encoding pk columns: %w", err)
	}
	before, err := core.MarshalRows(e.RowsBefore)
	if err != nil {
		return fmt.Errorf("encoding rows_before: %w", err)
	}
	after, err := core.MarshalRows(e.RowsAfter)
	if err != nil {
		return fmt.Errorf("encoding rows_after: %w", err)
	}

	res, err := q.ExecContext(ctx,
		`INSERT INTO sql_undo_log (project_id, branch_id, table_name, op, sql_text, pk_columns, rows_before, rows_after, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProjectID, e.BranchID, e.TableName, string(e.Op), e.SQLText,
		pkJSON, string(before), string(after), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting undo entry: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading undo entry id: %w", err)
	}
	return nil
}

// GetUndoEntry loads one undo entry by id.
func GetUndoEntry(ctx context.Context, q Querier, projectID, id int64) (*core.UndoLogEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, project_id, branch_id, table_name, op, sql_text, pk_columns, rows_before, rows_after, created_at
		 FROM sql_undo_log WHERE project_id = ? AND id = ?`,
		projectID, id)
	e, err := scanUndoEntry(row)
	if err == sql.ErrNoRows {
		return nil, &core.DomainError{
			Category: core.ErrCatNotFound,
			Code:     core.CodeUndoNotFound,
			Message:  fmt.Sprintf("undo entry not found: %d", id),
		}
	}
	return e, err
}

// LatestUndoEntry returns the newest undo entry recorded on a branch, or
// (nil, nil) when the branch has nothing to undo.
func LatestUndoEntry(ctx context.Context, q Querier, projectID, branchID int64) (*core.UndoLogEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, project_id, branch_id, table_name, op, sql_text, pk_columns, rows_before, rows_after, created_at
		 FROM sql_undo_log WHERE project_id = ? AND branch_id = ?
		 ORDER BY id DESC LIMIT 1`,
		projectID, branchID)
	e, err := scanUndoEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// DeleteUndoEntry removes a consumed entry.
func DeleteUndoEntry(ctx context.Context, q Querier, projectID, id int64) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM sql_undo_log WHERE project_id = ? AND id = ?`, projectID, id); err != nil {
		return fmt.Errorf("deleting undo entry %d: %w", id, err)
	}
	return nil
}

func scanUndoEntry(row *sql.Row) (*core.UndoLogEntry, error) {
	var e core.UndoLogEntry
	var op, pkJSON, before, after string
	err := row.Scan(&e.ID, &e.ProjectID, &e.BranchID, &e.TableName, &op, &e.SQLText,
		&pkJSON, &before, &after, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Op = core.UndoOp(op)
	if err := json.Unmarshal([]byte(pkJSON), &e.PKColumns); err != nil {
		return nil, fmt.Errorf("decoding pk columns: %w", err)
	}
	if e.RowsBefore, err = core.UnmarshalRows([]byte(before)); err != nil {
		return nil, fmt.Errorf("decoding rows_before: %w", err)
	}
	if e.RowsAfter, err = core.UnmarshalRows([]byte(after)); err != nil {
		return nil, fmt.Errorf("decoding rows_after: %w", err)
	}
	return &e, nil
}

func marshalColumnList(cols []string) (string, error) {
	if cols == nil {
		cols = []string{}
	}
	data, err := json.Marshal(cols)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
