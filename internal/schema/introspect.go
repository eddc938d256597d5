// Package schema introspects SQLite stores: table listings, column shapes,
// primary keys, and whether a table carries branch scoping columns.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/sqltext"
)

// ProjectIDColumn and BranchIDColumn are the scoping columns a branch-aware
// table carries. A table either has both or neither; one without the other
// is a malformed store.
const (
	ProjectIDColumn = "project_id"
	BranchIDColumn  = "branch_id"
)

// Column describes one column of a table. PKOrdinal is 0 for columns outside
// the primary key, else the 1-based position within it.
type Column struct {
	Name      string
	Type      string
	NotNull   bool
	Default   sql.NullString
	PKOrdinal int
}

// Table describes one table's shape.
type Table struct {
	Name        string
	Columns     []Column
	BranchAware bool
}

// ColumnNames returns all column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the table declares a column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// PKColumns returns primary key column names in key order.
func (t *Table) PKColumns() []string {
	type pkCol struct {
		name string
		ord  int
	}
	var pks []pkCol
	for _, c := range t.Columns {
		if c.PKOrdinal > 0 {
			pks = append(pks, pkCol{c.Name, c.PKOrdinal})
		}
	}
	sort.Slice(pks, func(i, j int) bool { return pks[i].ord < pks[j].ord })
	names := make([]string, len(pks))
	for i, pk := range pks {
		names[i] = pk.name
	}
	return names
}

// RowIDAlias returns the single INTEGER PRIMARY KEY column, if the table has
// one. Such a column aliases SQLite's rowid and is assigned by the store.
func (t *Table) RowIDAlias() (string, bool) {
	pks := t.PKColumns()
	if len(pks) != 1 {
		return "", false
	}
	for _, c := range t.Columns {
		if c.Name == pks[0] && strings.EqualFold(c.Type, "INTEGER") {
			return c.Name, true
		}
	}
	return "", false
}

// DataColumns returns column names excluding the scoping columns.
func (t *Table) DataColumns() []string {
	var names []string
	for _, c := range t.Columns {
		if c.Name == ProjectIDColumn || c.Name == BranchIDColumn {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}

// Querier is the statement surface the introspector needs, satisfied by
// both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Introspector reads schema metadata from one store.
type Introspector struct {
	db Querier
}

// New creates an introspector over a store handle.
func New(db Querier) *Introspector {
	return &Introspector{db: db}
}

// Tables lists user tables, excluding SQLite internals, in name order.
func (i *Introspector) Tables(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasTable reports whether a table exists.
func (i *Introspector) HasTable(ctx context.Context, name string) (bool, error) {
	var count int
	err := i.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return count > 0, nil
}

// Describe returns a table's shape. The name is validated before use; a
// missing table yields a TABLE_NOT_FOUND error, and a table carrying exactly
// one of the two scoping columns yields a SCHEMA_INVALID error.
func (i *Introspector) Describe(ctx context.Context, name string) (*Table, error) {
	safe, err := sqltext.SafeIdent(name)
	if err != nil {
		return nil, err
	}

	rows, err := i.db.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, safe)
	if err != nil {
		return nil, fmt.Errorf("describing table %s: %w", safe, err)
	}
	defer rows.Close()

	t := &Table{Name: safe}
	for rows.Next() {
		var c Column
		var notNull int
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &c.Default, &c.PKOrdinal); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", safe, err)
		}
		c.NotNull = notNull != 0
		t.Columns = append(t.Columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(t.Columns) == 0 {
		return nil, core.ErrTableNotFound(safe)
	}

	hasProject := t.HasColumn(ProjectIDColumn)
	hasBranch := t.HasColumn(BranchIDColumn)
	if hasProject != hasBranch {
		return nil, core.ErrState(core.CodeSchemaInvalid,
			fmt.Sprintf("table %s has partial branch scoping: project_id=%v branch_id=%v", safe, hasProject, hasBranch))
	}
	t.BranchAware = hasProject && hasBranch
	return t, nil
}
