package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/branchlite/branchlite/internal/core"
)

// formatValue renders one result cell.
func formatValue(v core.Value) string {
	switch val := v.(type) {
	case core.Null:
		return "NULL"
	case core.Integer:
		return strconv.FormatInt(int64(val), 10)
	case core.Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case core.Text:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatResult renders a successful execution result: selects as an ASCII
// table, mutations as a one-line summary with the undo log id.
func formatResult(res *core.ExecResult) string {
	if res.Kind == core.StmtSelect {
		rows := make([][]string, len(res.Rows))
		for i, r := range res.Rows {
			cells := make([]string, len(r))
			for j, v := range r {
				cells[j] = formatValue(v)
			}
			rows[i] = cells
		}
		out := formatTable(res.Columns, rows)
		if res.Truncated {
			out += fmt.Sprintf("(truncated at %d rows)\n", len(res.Rows))
		}
		return out
	}

	var b strings.Builder
	if res.Kind.Mutates() {
		fmt.Fprintf(&b, "%s: %d row", strings.ToUpper(string(res.Kind)), res.RowCount)
		if res.RowCount != 1 {
			b.WriteByte('s')
		}
		if res.UndoLogID != nil {
			fmt.Fprintf(&b, " (undo log id %d)", *res.UndoLogID)
		}
	} else {
		b.WriteString("OK")
	}
	b.WriteByte('\n')
	return b.String()
}

func formatTable(columns []string, rows [][]string) string {
	if len(columns) == 0 {
		return "(0 rows)\n"
	}

	// Calculate column widths.
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = len(c)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder

	sep := buildSeparator(widths)

	b.WriteString(sep)
	b.WriteByte('|')
	for i, c := range columns {
		fmt.Fprintf(&b, " %-*s |", widths[i], c)
	}
	b.WriteByte('\n')
	b.WriteString(sep)

	for _, row := range rows {
		b.WriteByte('|')
		for i, cell := range row {
			fmt.Fprintf(&b, " %-*s |", widths[i], cell)
		}
		b.WriteByte('\n')
	}

	b.WriteString(sep)

	n := len(rows)
	if n == 1 {
		b.WriteString("(1 row)\n")
	} else {
		fmt.Fprintf(&b, "(%d rows)\n", n)
	}

	return b.String()
}

func buildSeparator(widths []int) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, w := range widths {
		for j := 0; j < w+2; j++ {
			b.WriteByte('-')
		}
		b.WriteByte('+')
	}
	b.WriteByte('\n')
	return b.String()
}

// formatMergeReport renders what a merge adopted and what it skipped.
func formatMergeReport(rep *core.MergeReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Merged branch '%s' into Main\n", rep.SourceBranch)
	fmt.Fprintf(&b, "  files:     %d\n", rep.Files)
	fmt.Fprintf(&b, "  threads:   %d\n", rep.Threads)
	fmt.Fprintf(&b, "  datasets:  %d\n", rep.Datasets)
	fmt.Fprintf(&b, "  notes:     %d\n", rep.Notes)
	fmt.Fprintf(&b, "  tables:    %d\n", rep.Tables)
	fmt.Fprintf(&b, "  changelog: %d\n", rep.ChangelogAdopted)
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(&b, "Skipped %d item(s):\n", len(rep.Skipped))
		for _, s := range rep.Skipped {
			fmt.Fprintf(&b, "  %s/%s: %s\n", s.Table, s.Item, s.Reason)
		}
	}
	return b.String()
}

// formatSize renders a byte count the way file listings expect it.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
