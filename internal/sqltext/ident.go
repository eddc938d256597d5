// Package sqltext provides identifier sanitization and literal quoting for
// generated SQL. Every identifier interpolated into statement text goes
// through SafeIdent; every value embedded as a literal goes through
// QuoteValue. There is no other path into generated SQL.
package sqltext

import (
	"strings"

	"github.com/branchlite/branchlite/internal/core"
)

// MaxIdentLen bounds accepted identifier length.
const MaxIdentLen = 128

// SafeIdent validates a SQL identifier against a strict allow-list: an
// ASCII letter or underscore followed by letters, digits or underscores.
// It returns the identifier unchanged on success so call sites can
// interpolate the result directly.
func SafeIdent(name string) (string, error) {
	if name == "" || len(name) > MaxIdentLen {
		return "", core.ErrInvalidIdentifier(name)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return "", core.ErrInvalidIdentifier(name)
			}
		default:
			return "", core.ErrInvalidIdentifier(name)
		}
	}
	return name, nil
}

// IsSafeIdent reports whether name passes SafeIdent.
func IsSafeIdent(name string) bool {
	_, err := SafeIdent(name)
	return err == nil
}

// QuoteIdent double-quotes an identifier for use in generated statements,
// doubling any embedded quotes. Use for introspected names that may collide
// with keywords; names from user statements must pass SafeIdent first.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
