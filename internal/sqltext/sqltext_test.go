package sqltext

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/branchlite/branchlite/internal/core"
)

func TestSafeIdent_Accepts(t *testing.T) {
	for _, name := range []string{
		"users",
		"_private",
		"Table1",
		"snake_case_name",
		"a",
		"_",
		"UPPER",
		strings.Repeat("x", MaxIdentLen),
	} {
		got, err := SafeIdent(name)
		if err != nil {
			t.Errorf("SafeIdent(%q) rejected valid identifier: %v", name, err)
			continue
		}
		if got != name {
			t.Errorf("SafeIdent(%q) = %q, want unchanged", name, got)
		}
	}
}

func TestSafeIdent_Rejects(t *testing.T) {
	for _, name := range []string{
		"",
		"1table",
		"9",
		"user-name",
		"user name",
		"users;",
		`users"`,
		"users'",
		"tab\tle",
		"users; DROP TABLE users",
		"naïve",
		"таблица",
		"semi;colon",
		"dot.ted",
		"paren(",
		strings.Repeat("x", MaxIdentLen+1),
	} {
		if _, err := SafeIdent(name); err == nil {
			t.Errorf("SafeIdent(%q) accepted unsafe identifier", name)
		}
	}
}

func TestSafeIdent_ErrorKind(t *testing.T) {
	_, err := SafeIdent("bad name")
	var domErr *core.DomainError
	if !errors.As(err, &domErr) {
		t.Fatalf("expected DomainError, got %T", err)
	}
	if domErr.Code != core.CodeInvalidIdentifier {
		t.Fatalf("unexpected code %s", domErr.Code)
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := QuoteIdent("order"); got != `"order"` {
		t.Fatalf("QuoteIdent(order) = %s", got)
	}
	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("QuoteIdent escaping = %s", got)
	}
}

func TestQuoteValue(t *testing.T) {
	cases := []struct {
		name string
		in   core.Value
		want string
	}{
		{"null", core.Null{}, "NULL"},
		{"integer", core.Integer(42), "42"},
		{"negative", core.Integer(-1), "-1"},
		{"float", core.Float(0.5), "0.5"},
		{"float whole", core.Float(3), "3"},
		{"text", core.Text("plain"), "'plain'"},
		{"text quote", core.Text("it's"), "'it''s'"},
		{"text double quote", core.Text(`say "hi"`), `'say "hi"'`},
		{"text backslash", core.Text(`a\b`), `'a\b'`},
		{"nan", core.Float(math.NaN()), "NULL"},
		{"inf", core.Float(math.Inf(1)), "9e999"},
		{"neg inf", core.Float(math.Inf(-1)), "-9e999"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := QuoteValue(tc.in); got != tc.want {
				t.Fatalf("QuoteValue = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestInt64List(t *testing.T) {
	if got := Int64List([]int64{1}); got != "1" {
		t.Fatalf("Int64List([1]) = %q", got)
	}
	if got := Int64List([]int64{3, 1, 2}); got != "3, 1, 2" {
		t.Fatalf("Int64List keeps order, got %q", got)
	}
	if got := Int64List(nil); got != "" {
		t.Fatalf("Int64List(nil) = %q", got)
	}
}

func TestPlaceholders(t *testing.T) {
	if got := Placeholders(3); got != "?, ?, ?" {
		t.Fatalf("Placeholders(3) = %q", got)
	}
	if got := Placeholders(0); got != "" {
		t.Fatalf("Placeholders(0) = %q", got)
	}
}

func TestAssignList(t *testing.T) {
	got := AssignList([]string{"title", "order"})
	want := `"title" = ?, "order" = ?`
	if got != want {
		t.Fatalf("AssignList = %q, want %q", got, want)
	}
}
