package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/rewrite"
	"github.com/branchlite/branchlite/internal/schema"
	"github.com/branchlite/branchlite/internal/sqltext"
	"github.com/branchlite/branchlite/internal/store"
)

// captureByWhere snapshots the rows an update or delete is about to touch
// by re-running the statement's own WHERE clause as a select. An absent
// clause snapshots the whole table.
func captureByWhere(ctx context.Context, q store.Querier, tbl *schema.Table, sqlText string) ([]core.Row, error) {
	query := "SELECT " + quotedColumnList(tbl) + " FROM " + sqltext.QuoteIdent(tbl.Name)
	if where, ok := rewrite.WhereClause(sqlText); ok {
		query += " WHERE " + where
	}
	return queryRows(ctx, q, tbl, query)
}

// captureInserted re-reads the rows an insert created. SQLite assigns the
// new rows a contiguous run of rowids ending at LastInsertId, so the last
// n rowids are the inserted rows.
func captureInserted(ctx context.Context, q store.Querier, tbl *schema.Table, out sql.Result, affected int64) ([]core.Row, error) {
	if affected <= 0 {
		return nil, nil
	}
	last, err := out.LastInsertId()
	if err != nil {
		return nil, err
	}
	if last <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE rowid BETWEEN ? AND ? ORDER BY rowid",
		quotedColumnList(tbl), sqltext.QuoteIdent(tbl.Name))
	return queryRows(ctx, q, tbl, query, last-affected+1, last)
}

// captureCurrent re-reads the current state of previously captured rows,
// by primary key when the table has one. Without a primary key the
// statement's WHERE clause is replayed instead, which pairs rows with the
// before capture by position.
func captureCurrent(ctx context.Context, q store.Querier, tbl *schema.Table, before []core.Row, sqlText string) ([]core.Row, error) {
	pks := tbl.PKColumns()
	if len(pks) == 0 {
		return captureByWhere(ctx, q, tbl, sqlText)
	}
	if len(before) == 0 {
		return nil, nil
	}

	preds := make([]string, 0, len(before))
	var args []any
	for _, row := range before {
		cond, condArgs, err := pkPredicate(pks, row)
		if err != nil {
			return nil, err
		}
		preds = append(preds, cond)
		args = append(args, condArgs...)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		quotedColumnList(tbl), sqltext.QuoteIdent(tbl.Name), strings.Join(preds, " OR "))
	return queryRows(ctx, q, tbl, query, args...)
}

// queryRows runs a capture query and converts every row into tagged values.
// The column order follows the table definition, not the query text.
func queryRows(ctx context.Context, q store.Querier, tbl *schema.Table, query string, args ...any) ([]core.Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols := tbl.ColumnNames()
	var out []core.Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := core.Row{Columns: cols, Values: make([]core.Value, len(cols))}
		for i, v := range raw {
			val, err := core.FromDriver(v)
			if err != nil {
				return nil, err
			}
			row.Values[i] = val
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// pkPredicate identifies one captured row by its primary key columns.
func pkPredicate(pks []string, row core.Row) (string, []any, error) {
	conds := make([]string, len(pks))
	args := make([]any, 0, len(pks))
	for i, pk := range pks {
		v, ok := row.Get(pk)
		if !ok {
			return "", nil, fmt.Errorf("captured row is missing key column %q", pk)
		}
		if _, isNull := v.(core.Null); isNull {
			conds[i] = sqltext.QuoteIdent(pk) + " IS NULL"
			continue
		}
		conds[i] = sqltext.QuoteIdent(pk) + " = ?"
		args = append(args, core.Arg(v))
	}
	return "(" + strings.Join(conds, " AND ") + ")", args, nil
}

func quotedColumnList(tbl *schema.Table) string {
	names := tbl.ColumnNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = sqltext.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
