// Package rewrite scopes raw SQL statements to a project branch. Statements
// against branch-aware tables get project_id/branch_id injected; everything
// else passes through untouched. Classification is keyword scanning on
// purpose: the job is scoping a statement, not understanding arbitrary SQL,
// and a statement touching several tables is only rewritten with respect to
// its root table.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/branchlite/branchlite/internal/core"
	"github.com/branchlite/branchlite/internal/schema"
	"github.com/branchlite/branchlite/internal/sqltext"
)

// Scope carries the branch context one statement executes under. FilterIDs
// is the resolved read visibility: every branch id when positioned on Main,
// otherwise {Main, active}.
type Scope struct {
	ProjectID int64
	BranchID  int64
	FilterIDs []int64
}

// Result is the rewriter's verdict on one statement.
type Result struct {
	SQL       string
	Rewritten bool
	Kind      core.StatementKind
	Table     string
	Aware     bool
}

// Rewriter resolves table scoping against live schema metadata.
type Rewriter struct {
	insp *schema.Introspector
}

func New(insp *schema.Introspector) *Rewriter {
	return &Rewriter{insp: insp}
}

// Classify determines the statement kind from its leading keyword. WITH,
// VALUES, PRAGMA, and EXPLAIN all produce result rows, so they classify as
// select-like.
func Classify(sql string) core.StatementKind {
	word, _ := firstWord(sql, 0)
	switch word {
	case "select", "with", "values", "pragma", "explain":
		return core.StmtSelect
	case "insert", "replace":
		return core.StmtInsert
	case "update":
		return core.StmtUpdate
	case "delete":
		return core.StmtDelete
	default:
		return core.StmtOther
	}
}

// RootTable extracts the statement's primary table name: the INSERT INTO or
// UPDATE target, the DELETE FROM target, or the first top-level FROM table
// of a select-like statement.
func RootTable(sql string) (string, bool) {
	switch Classify(sql) {
	case core.StmtInsert:
		return tableAfterKeyword(sql, "into")
	case core.StmtUpdate:
		return updateTable(sql)
	case core.StmtDelete:
		return tableAfterKeyword(sql, "from")
	case core.StmtSelect:
		return tableAfterKeyword(sql, "from")
	}
	return "", false
}

// Rewrite scopes one statement. Statements whose root table is missing,
// unresolvable, or not branch-aware come back unchanged; an unsafe root
// table name fails the whole statement rather than executing unscoped.
func (r *Rewriter) Rewrite(ctx context.Context, scope Scope, sql string) (*Result, error) {
	res := &Result{SQL: sql, Kind: Classify(sql)}

	table, ok := RootTable(sql)
	if !ok {
		return res, nil
	}
	if _, err := sqltext.SafeIdent(table); err != nil {
		return nil, err
	}
	res.Table = table

	tbl, err := r.insp.Describe(ctx, table)
	if err != nil {
		var domErr *core.DomainError
		if errors.As(err, &domErr) && domErr.Code == core.CodeTableNotFound {
			// Let execution surface the store's own error.
			return res, nil
		}
		return nil, err
	}
	res.Aware = tbl.BranchAware
	if !tbl.BranchAware {
		return res, nil
	}

	switch res.Kind {
	case core.StmtInsert:
		res.SQL, res.Rewritten = injectInsertScope(sql, scope)
	case core.StmtSelect, core.StmtUpdate, core.StmtDelete:
		res.SQL = augmentWhere(sql, scope)
		res.Rewritten = true
	}
	return res, nil
}

// WhereClause returns the text of the statement's top-level WHERE predicate.
func WhereClause(sql string) (string, bool) {
	toks := tokens(sql)
	for k, t := range toks {
		if t.depth != 0 || t.text != "where" {
			continue
		}
		start := t.end
		end := statementEnd(sql)
		for _, u := range toks[k+1:] {
			if u.depth == 0 && terminatesWhere(u.text) {
				end = u.start
				break
			}
		}
		for end > start && isSpaceByte(sql[end-1]) {
			end--
		}
		if end <= start {
			return "", false
		}
		return sql[start:end], true
	}
	return "", false
}

func tableAfterKeyword(sql, keyword string) (string, bool) {
	for _, t := range tokens(sql) {
		if t.depth == 0 && t.text == keyword {
			name, _, ok := tableAfter(sql, t.end)
			return name, ok
		}
	}
	return "", false
}

func updateTable(sql string) (string, bool) {
	toks := tokens(sql)
	if len(toks) == 0 || toks[0].text != "update" {
		return "", false
	}
	pos := toks[0].end
	// UPDATE OR ROLLBACK|ABORT|REPLACE|FAIL|IGNORE <table>
	if len(toks) >= 3 && toks[1].text == "or" {
		switch toks[2].text {
		case "rollback", "abort", "replace", "fail", "ignore":
			pos = toks[2].end
		}
	}
	name, _, ok := tableAfter(sql, pos)
	return name, ok
}

// injectInsertScope adds the scoping columns and their literal values to an
// INSERT's explicit column list and each VALUES tuple. Statements without a
// column list, with a SELECT source, or already naming the scoping columns
// come back unchanged.
func injectInsertScope(sql string, scope Scope) (string, bool) {
	var intoEnd = -1
	for _, t := range tokens(sql) {
		if t.depth == 0 && t.text == "into" {
			intoEnd = t.end
			break
		}
	}
	if intoEnd < 0 {
		return sql, false
	}
	_, tblEnd, ok := tableAfter(sql, intoEnd)
	if !ok {
		return sql, false
	}

	open := skipSpace(sql, tblEnd)
	if open >= len(sql) || sql[open] != '(' {
		return sql, false
	}
	closing := matchingParen(sql, open)
	if closing < 0 {
		return sql, false
	}
	cols := columnNames(sql[open+1 : closing])
	if len(cols) == 0 {
		return sql, false
	}
	needProject := !containsFold(cols, schema.ProjectIDColumn)
	needBranch := !containsFold(cols, schema.BranchIDColumn)
	if !needProject && !needBranch {
		return sql, false
	}

	word, wordEnd := firstWord(sql, closing+1)
	if word != "values" {
		return sql, false
	}

	var addCols, addVals []string
	if needProject {
		addCols = append(addCols, schema.ProjectIDColumn)
		addVals = append(addVals, fmt.Sprintf("%d", scope.ProjectID))
	}
	if needBranch {
		addCols = append(addCols, schema.BranchIDColumn)
		addVals = append(addVals, fmt.Sprintf("%d", scope.BranchID))
	}

	splices := []splice{{closing, ", " + strings.Join(addCols, ", ")}}
	valText := ", " + strings.Join(addVals, ", ")

	i := wordEnd
	for {
		i = skipSpace(sql, i)
		if i >= len(sql) || sql[i] != '(' {
			break
		}
		tupleClose := matchingParen(sql, i)
		if tupleClose < 0 {
			return sql, false
		}
		splices = append(splices, splice{tupleClose, valText})
		i = skipSpace(sql, tupleClose+1)
		if i < len(sql) && sql[i] == ',' {
			i++
			continue
		}
		break
	}
	if len(splices) < 2 {
		return sql, false
	}
	return applySplices(sql, splices), true
}

// augmentWhere conjoins the branch scope predicate with the statement's
// WHERE clause, or appends one when the statement has none.
func augmentWhere(sql string, scope Scope) string {
	clause := scopeClause(scope)
	toks := tokens(sql)

	whereIdx := -1
	for k, t := range toks {
		if t.depth == 0 && t.text == "where" {
			whereIdx = k
			break
		}
	}

	if whereIdx >= 0 {
		predStart := skipSpace(sql, toks[whereIdx].end)
		predEnd := statementEnd(sql)
		for _, t := range toks[whereIdx+1:] {
			if t.depth == 0 && terminatesWhere(t.text) {
				predEnd = t.start
				break
			}
		}
		for predEnd > predStart && isSpaceByte(sql[predEnd-1]) {
			predEnd--
		}
		if predEnd <= predStart {
			return sql
		}
		return applySplices(sql, []splice{
			{predStart, "("},
			{predEnd, ") AND " + clause},
		})
	}

	insertAt := statementEnd(sql)
	for _, t := range toks {
		if t.depth == 0 && terminatesWhere(t.text) {
			insertAt = t.start
			break
		}
	}
	return applySplices(sql, []splice{{insertAt, whereText(sql, insertAt, clause)}})
}

// whereText spaces a fresh WHERE clause for its insertion point.
func whereText(sql string, at int, clause string) string {
	text := "WHERE " + clause
	if at > 0 && !isSpaceByte(sql[at-1]) {
		text = " " + text
	}
	if at < len(sql) && !isSpaceByte(sql[at]) && sql[at] != ';' {
		text += " "
	}
	return text
}

func scopeClause(scope Scope) string {
	ids := scope.FilterIDs
	if len(ids) == 0 {
		ids = []int64{scope.BranchID}
	}
	return fmt.Sprintf("%s = %d AND %s IN (%s)",
		schema.ProjectIDColumn, scope.ProjectID,
		schema.BranchIDColumn, sqltext.Int64List(ids))
}

func terminatesWhere(word string) bool {
	switch word {
	case "group", "having", "window", "order", "limit", "offset", "returning", "union", "intersect", "except":
		return true
	}
	return false
}

func columnNames(body string) []string {
	var names []string
	for _, part := range splitTop(body) {
		name, _, ok := scanIdent(part, skipSpace(part, 0))
		if !ok {
			continue
		}
		names = append(names, name)
	}
	return names
}

func containsFold(names []string, want string) bool {
	for _, n := range names {
		if strings.EqualFold(n, want) {
			return true
		}
	}
	return false
}
