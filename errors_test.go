package main

import (
	"strings"
	"testing"
)

func TestSuggestionFor(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"ALTER statements are not allowed in a declarative schema file", "CREATE TABLE"},
		{"DROP statements are not allowed in a declarative schema file", "Remove the object"},
		{"unexpected end of input", "parentheses"},
		{"something unrelated", ""},
	}
	for _, tc := range cases {
		got := suggestionFor(tc.message)
		if tc.want == "" {
			if got != "" {
				t.Errorf("suggestionFor(%q) = %q, want none", tc.message, got)
			}
			continue
		}
		if !strings.Contains(got, tc.want) {
			t.Errorf("suggestionFor(%q) = %q, want mention of %q", tc.message, got, tc.want)
		}
	}
}

func TestFormatError_ParserError(t *testing.T) {
	var sb strings.Builder
	FormatError(&sb, &ParserError{
		FilePath:   "schema.sql",
		Line:       3,
		Column:     7,
		SQLSnippet: "DROP TABLE users;",
		Message:    "DROP statements are not allowed in a declarative schema file",
	})
	out := sb.String()

	if !strings.Contains(out, "schema.sql:3:7") {
		t.Errorf("location missing from output:\n%s", out)
	}
	if !strings.Contains(out, "DROP TABLE users;") {
		t.Errorf("statement missing from output:\n%s", out)
	}
	if !strings.Contains(out, "Hint:") {
		t.Errorf("hint missing from output:\n%s", out)
	}
}

func TestFormatError_MigrationError(t *testing.T) {
	var sb strings.Builder
	FormatError(&sb, &MigrationError{
		Statement: `ALTER TABLE "t" DROP COLUMN "c"`,
		Code:      "42703",
		Detail:    "the column is gone",
		Position:  12,
		Message:   "column does not exist",
	})
	out := sb.String()

	for _, want := range []string{"column does not exist", "42703", "the column is gone", "position: 12", `DROP COLUMN "c"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatError_DependencyError(t *testing.T) {
	var sb strings.Builder
	FormatError(&sb, &DependencyError{
		Message: "foreign key references a missing table",
		Missing: "public.nowhere",
	})
	out := sb.String()
	if !strings.Contains(out, "public.nowhere") {
		t.Errorf("missing reference not rendered:\n%s", out)
	}
}

func TestParserError_ErrorString(t *testing.T) {
	err := &ParserError{FilePath: "s.sql", Line: 2, Column: 5, Message: "boom"}
	if got := err.Error(); got != "boom (s.sql:2:5)" {
		t.Errorf("unexpected error string: %q", got)
	}
}
