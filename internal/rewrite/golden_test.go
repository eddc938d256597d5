package rewrite

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// The golden file pins the exact text the rewriter produces for a catalog of
// statements, so any change to spacing or clause placement shows up as a
// diff. Regenerate with: go test ./internal/rewrite -update
func TestRewriteGolden(t *testing.T) {
	rw := newTestRewriter(t)
	ctx := context.Background()
	scope := testScope()

	cases := []struct {
		name string
		sql  string
	}{
		{"select no where", "SELECT * FROM notes"},
		{"select with where", "SELECT * FROM notes WHERE id = 1"},
		{"select with tail clauses", "SELECT id FROM notes WHERE id > 2 ORDER BY id LIMIT 5"},
		{"select join scopes root table", "SELECT n.id FROM notes n JOIN plain p ON p.id = n.id"},
		{"select keyword inside literal", "SELECT * FROM notes WHERE body = 'where order by'"},
		{"select plain table", "SELECT * FROM plain WHERE id = 1"},
		{"select missing table", "SELECT * FROM ghosts"},
		{"select without from", "SELECT 1 + 2"},
		{"insert single tuple", "INSERT INTO notes (body) VALUES ('hi')"},
		{"insert multiple tuples", "INSERT INTO notes (body) VALUES ('a'), ('b')"},
		{"insert scope already present", "INSERT INTO notes (body, project_id, branch_id) VALUES ('x', 7, 1)"},
		{"insert without column list", "INSERT INTO notes VALUES (1, 'x', 7, 3)"},
		{"insert from select", "INSERT INTO notes (body) SELECT body FROM plain"},
		{"update with where", "UPDATE notes SET body = 'z' WHERE id = 4"},
		{"update without where", "UPDATE notes SET body = 'z'"},
		{"delete with where", "DELETE FROM notes WHERE id = 9"},
		{"delete with semicolon", "DELETE FROM notes;"},
		{"create table untouched", "CREATE TABLE zig (id INTEGER)"},
	}

	var buf bytes.Buffer
	for _, tc := range cases {
		res, err := rw.Rewrite(ctx, scope, tc.sql)
		if err != nil {
			t.Fatalf("%s: Rewrite failed: %v", tc.name, err)
		}
		status := "unchanged"
		if res.Rewritten {
			status = "rewritten"
		}
		fmt.Fprintf(&buf, "-- %s\n%s\n=> [%s] %s\n\n", tc.name, tc.sql, status, res.SQL)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "rewrite", buf.Bytes())
}
