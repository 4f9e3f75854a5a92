package main

import (
	"testing"
)

func TestQuoteIdent(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"users", `"users"`},
		{"Weird Name", `"Weird Name"`},
		{`has"quote`, `"has""quote"`},
	}
	for _, tc := range cases {
		if got := QuoteIdent(tc.input); got != tc.want {
			t.Errorf("QuoteIdent(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestQualifiedIdent(t *testing.T) {
	if got := QualifiedIdent("public", "users"); got != `"public"."users"` {
		t.Errorf("QualifiedIdent = %q", got)
	}
	if got := QualifiedIdent("", "users"); got != `"users"` {
		t.Errorf("QualifiedIdent with empty schema = %q", got)
	}
}

func TestSQLBuilder_SingleSpacesBetweenPhrases(t *testing.T) {
	got := NewSQL("ALTER", "TABLE").Ident("public", "users").Keyword("DROP", "COLUMN").Ident("name").String()
	want := `ALTER TABLE "public"."users" DROP COLUMN "name"`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSQLBuilder_Body(t *testing.T) {
	b := NewSQL("CREATE", "TABLE").Ident("public", "users").OpenBody()
	b.BodyLine(`"id" integer`, false)
	b.BodyLine(`"email" text`, true)
	got := b.CloseBody().String()

	want := `CREATE TABLE "public"."users" (
  "id" integer,
  "email" text
)`
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestSQLBuilder_IdentListAndLiteral(t *testing.T) {
	got := NewSQL("CREATE", "INDEX").Ident("idx").Keyword("ON").Ident("public", "t").IdentList("a", "b").String()
	want := `CREATE INDEX "idx" ON "public"."t" ("a", "b")`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	lit := NewSQL("ALTER", "TYPE").Ident("public", "status").Keyword("ADD", "VALUE").Literal("it's new").String()
	wantLit := `ALTER TYPE "public"."status" ADD VALUE 'it''s new'`
	if lit != wantLit {
		t.Errorf("got %q, want %q", lit, wantLit)
	}
}
