package rewrite

import "strings"

// The scanner knows just enough SQL to walk a statement without being
// confused by string literals, quoted identifiers, or comments. It is not a
// parser; statement rewriting only needs keyword positions and paren depth.

func isSpaceByte(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z')
}

// skipSpace advances past whitespace and comments.
func skipSpace(s string, i int) int {
	for i < len(s) {
		switch {
		case isSpaceByte(s[i]):
			i++
		case strings.HasPrefix(s[i:], "--"):
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return len(s)
			}
			i += 2 + end + 2
		default:
			return i
		}
	}
	return i
}

// skipQuoted advances past the quoted region opening at i. Doubled closing
// quotes inside the region are escapes. An unterminated region runs to the
// end of the input.
func skipQuoted(s string, i int) int {
	open := s[i]
	closing := open
	if open == '[' {
		closing = ']'
	}
	i++
	for i < len(s) {
		if s[i] != closing {
			i++
			continue
		}
		if closing != ']' && i+1 < len(s) && s[i+1] == closing {
			i += 2
			continue
		}
		return i + 1
	}
	return i
}

func isQuoteByte(c byte) bool {
	return c == '\'' || c == '"' || c == '`' || c == '['
}

// token is one bare word with its byte range and paren depth.
type token struct {
	text  string
	start int
	end   int
	depth int
}

// tokens returns the statement's bare word tokens, lowercased. Words inside
// strings, quoted identifiers, and comments do not appear.
func tokens(s string) []token {
	var out []token
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isSpaceByte(c):
			i++
		case strings.HasPrefix(s[i:], "--") || strings.HasPrefix(s[i:], "/*"):
			i = skipSpace(s, i)
		case isQuoteByte(c):
			i = skipQuoted(s, i)
		case c == '(':
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			i++
		case isWordByte(c):
			start := i
			for i < len(s) && isWordByte(s[i]) {
				i++
			}
			out = append(out, token{text: strings.ToLower(s[start:i]), start: start, end: i, depth: depth})
		default:
			i++
		}
	}
	return out
}

// scanIdent reads a possibly-quoted identifier at i and returns its unquoted
// text with the index just past it.
func scanIdent(s string, i int) (string, int, bool) {
	if i >= len(s) {
		return "", i, false
	}
	c := s[i]
	if isQuoteByte(c) && c != '\'' {
		closing := c
		if c == '[' {
			closing = ']'
		}
		end := skipQuoted(s, i)
		if end <= i+1 || s[end-1] != closing {
			return "", end, false
		}
		inner := s[i+1 : end-1]
		if c != '[' {
			inner = strings.ReplaceAll(inner, string(c)+string(c), string(c))
		}
		return inner, end, true
	}
	if !isWordByte(c) {
		return "", i, false
	}
	start := i
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	return s[start:i], i, true
}

// tableAfter reads a table name starting at i, resolving a schema qualifier
// like "main.notes" to its table part.
func tableAfter(s string, i int) (string, int, bool) {
	i = skipSpace(s, i)
	name, end, ok := scanIdent(s, i)
	if !ok {
		return "", end, false
	}
	for end < len(s) && s[end] == '.' {
		next, nextEnd, ok := scanIdent(s, end+1)
		if !ok {
			break
		}
		name, end = next, nextEnd
	}
	return name, end, true
}

// firstWord reads the next bare word at or after i.
func firstWord(s string, i int) (string, int) {
	i = skipSpace(s, i)
	start := i
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	return strings.ToLower(s[start:i]), i
}

// matchingParen returns the index of the ')' closing the '(' at open, or -1.
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); {
		c := s[i]
		switch {
		case strings.HasPrefix(s[i:], "--") || strings.HasPrefix(s[i:], "/*"):
			i = skipSpace(s, i)
		case isQuoteByte(c):
			i = skipQuoted(s, i)
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
			i++
		default:
			i++
		}
	}
	return -1
}

// splitTop splits s on top-level commas.
func splitTop(s string) []string {
	var parts []string
	start := 0
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case strings.HasPrefix(s[i:], "--") || strings.HasPrefix(s[i:], "/*"):
			i = skipSpace(s, i)
		case isQuoteByte(c):
			i = skipQuoted(s, i)
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			i++
			start = i
		default:
			i++
		}
	}
	return append(parts, s[start:])
}

// statementEnd returns the insertion point at the end of the statement's
// real content: before any trailing semicolon or comment.
func statementEnd(s string) int {
	end := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isSpaceByte(c):
			i++
		case strings.HasPrefix(s[i:], "--") || strings.HasPrefix(s[i:], "/*"):
			i = skipSpace(s, i)
		case isQuoteByte(c):
			i = skipQuoted(s, i)
			end = i
		case c == ';':
			return end
		default:
			i++
			end = i
		}
	}
	return end
}

// splice is one pending text insertion.
type splice struct {
	pos  int
	text string
}

// applySplices inserts each splice's text at its position. Positions refer
// to the original string and must be ascending.
func applySplices(s string, splices []splice) string {
	var b strings.Builder
	b.Grow(len(s) + 64)
	prev := 0
	for _, sp := range splices {
		b.WriteString(s[prev:sp.pos])
		b.WriteString(sp.text)
		prev = sp.pos
	}
	b.WriteString(s[prev:])
	return b.String()
}
