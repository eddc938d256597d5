package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/branchlite/branchlite/internal/core"
)

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", formatValue(core.Null{}))
	assert.Equal(t, "42", formatValue(core.Integer(42)))
	assert.Equal(t, "-7", formatValue(core.Integer(-7)))
	assert.Equal(t, "3.5", formatValue(core.Float(3.5)))
	assert.Equal(t, "hello", formatValue(core.Text("hello")))
}

func TestFormatTable(t *testing.T) {
	out := formatTable([]string{"id", "name"}, [][]string{
		{"1", "alpha"},
		{"2", "beta-long"},
	})
	want := strings.Join([]string{
		"+----+-----------+",
		"| id | name      |",
		"+----+-----------+",
		"| 1  | alpha     |",
		"| 2  | beta-long |",
		"+----+-----------+",
		"(2 rows)",
		"",
	}, "\n")
	assert.Equal(t, want, out)
}

func TestFormatTable_SingleRow(t *testing.T) {
	out := formatTable([]string{"n"}, [][]string{{"1"}})
	assert.True(t, strings.HasSuffix(out, "(1 row)\n"))
}

func TestFormatTable_NoColumns(t *testing.T) {
	assert.Equal(t, "(0 rows)\n", formatTable(nil, nil))
}

func TestFormatResult_Select(t *testing.T) {
	res := &core.ExecResult{
		Success: true,
		Kind:    core.StmtSelect,
		Columns: []string{"id", "title"},
		Rows: [][]core.Value{
			{core.Integer(1), core.Text("first")},
			{core.Integer(2), core.Null{}},
		},
		RowCount: 2,
	}
	want := strings.Join([]string{
		"+----+-------+",
		"| id | title |",
		"+----+-------+",
		"| 1  | first |",
		"| 2  | NULL  |",
		"+----+-------+",
		"(2 rows)",
		"",
	}, "\n")
	assert.Equal(t, want, formatResult(res))
}

func TestFormatResult_Truncated(t *testing.T) {
	res := &core.ExecResult{
		Success:   true,
		Kind:      core.StmtSelect,
		Columns:   []string{"n"},
		Rows:      [][]core.Value{{core.Integer(1)}, {core.Integer(2)}},
		RowCount:  2,
		Truncated: true,
	}
	assert.True(t, strings.HasSuffix(formatResult(res), "(truncated at 2 rows)\n"))
}

func TestFormatResult_Mutation(t *testing.T) {
	id := int64(7)
	res := &core.ExecResult{Success: true, Kind: core.StmtInsert, RowCount: 1, UndoLogID: &id}
	assert.Equal(t, "INSERT: 1 row (undo log id 7)\n", formatResult(res))

	res = &core.ExecResult{Success: true, Kind: core.StmtUpdate, RowCount: 3}
	assert.Equal(t, "UPDATE: 3 rows\n", formatResult(res))

	res = &core.ExecResult{Success: true, Kind: core.StmtDelete, RowCount: 0}
	assert.Equal(t, "DELETE: 0 rows\n", formatResult(res))
}

func TestFormatResult_Other(t *testing.T) {
	res := &core.ExecResult{Success: true, Kind: core.StmtOther}
	assert.Equal(t, "OK\n", formatResult(res))
}

func TestFormatMergeReport(t *testing.T) {
	rep := &core.MergeReport{
		SourceBranch:     "feature",
		Files:            1,
		Notes:            2,
		Tables:           1,
		ChangelogAdopted: 3,
		Skipped:          []core.MergeSkip{{Table: "files", Item: "a.csv", Reason: "already on Main"}},
	}
	out := formatMergeReport(rep)
	assert.Contains(t, out, "Merged branch 'feature' into Main")
	assert.Contains(t, out, "files:     1")
	assert.Contains(t, out, "notes:     2")
	assert.Contains(t, out, "changelog: 3")
	assert.Contains(t, out, "Skipped 1 item(s):")
	assert.Contains(t, out, "files/a.csv: already on Main")
}

func TestFormatMergeReport_NoSkips(t *testing.T) {
	out := formatMergeReport(&core.MergeReport{SourceBranch: "feature"})
	assert.NotContains(t, out, "Skipped")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", formatSize(0))
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.0 KiB", formatSize(1024))
	assert.Equal(t, "1.5 MiB", formatSize(1536*1024))
}
