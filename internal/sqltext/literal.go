package sqltext

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/branchlite/branchlite/internal/core"
)

// QuoteValue renders a Value as a standalone SQL literal. Text doubles
// single quotes; there is no backslash escaping in SQLite string literals.
func QuoteValue(v core.Value) string {
	switch val := v.(type) {
	case core.Null:
		return "NULL"
	case core.Integer:
		return strconv.FormatInt(int64(val), 10)
	case core.Float:
		f := float64(val)
		switch {
		case math.IsNaN(f):
			// SQLite stores NaN as NULL.
			return "NULL"
		case math.IsInf(f, 1):
			return "9e999"
		case math.IsInf(f, -1):
			return "-9e999"
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case core.Text:
		return QuoteString(string(val))
	default:
		// The Value interface is sealed; this is unreachable for real values.
		return "NULL"
	}
}

// QuoteString renders a string as a single-quoted SQL literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Int64List renders ids as a comma-separated literal list for IN clauses.
func Int64List(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

// Placeholders returns n comma-separated "?" markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// AssignList renders "col = ?" pairs for UPDATE SET clauses. Columns are
// quoted; values are bound separately.
func AssignList(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s = ?", QuoteIdent(c))
	}
	return strings.Join(parts, ", ")
}
