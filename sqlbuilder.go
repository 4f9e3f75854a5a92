package main

import (
	"strings"
)

// SQLBuilder assembles DDL statements phrase by phrase. It guarantees a
// single space between phrases, comma separators that replace any
// pending whitespace, and indented multi-line bodies for readability.
// All identifiers pass through QuoteIdent.
type SQLBuilder struct {
	sb        strings.Builder
	needSpace bool
}

// NewSQL starts a builder with the given leading keywords
func NewSQL(keywords ...string) *SQLBuilder {
	b := &SQLBuilder{}
	return b.Keyword(keywords...)
}

// Keyword appends uppercase SQL keywords
func (b *SQLBuilder) Keyword(words ...string) *SQLBuilder {
	for _, w := range words {
		b.writePhrase(strings.ToUpper(w))
	}
	return b
}

// Ident appends a quoted identifier; multiple parts are dot-joined, so
// Ident("public", "users") yields "public"."users".
func (b *SQLBuilder) Ident(parts ...string) *SQLBuilder {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = QuoteIdent(p)
	}
	b.writePhrase(strings.Join(quoted, "."))
	return b
}

// Raw appends pre-formed SQL text as a phrase
func (b *SQLBuilder) Raw(text string) *SQLBuilder {
	if text != "" {
		b.writePhrase(text)
	}
	return b
}

// Literal appends a single-quoted string literal with embedded quotes
// doubled
func (b *SQLBuilder) Literal(value string) *SQLBuilder {
	b.writePhrase("'" + strings.ReplaceAll(value, "'", "''") + "'")
	return b
}

// IdentList appends a parenthesized, comma-separated list of quoted
// identifiers
func (b *SQLBuilder) IdentList(names ...string) *SQLBuilder {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	b.writePhrase("(" + strings.Join(quoted, ", ") + ")")
	return b
}

// Comma replaces any pending separator with ", "
func (b *SQLBuilder) Comma() *SQLBuilder {
	b.sb.WriteString(",")
	b.needSpace = true
	return b
}

// OpenBody starts an indented parenthesized body: " (\n"
func (b *SQLBuilder) OpenBody() *SQLBuilder {
	b.sb.WriteString(" (\n")
	b.needSpace = false
	return b
}

// BodyLine appends one indented line inside a body; comma handling is
// the caller's via last
func (b *SQLBuilder) BodyLine(line string, last bool) *SQLBuilder {
	b.sb.WriteString("  ")
	b.sb.WriteString(line)
	if !last {
		b.sb.WriteString(",")
	}
	b.sb.WriteString("\n")
	b.needSpace = false
	return b
}

// CloseBody closes an indented body
func (b *SQLBuilder) CloseBody() *SQLBuilder {
	b.sb.WriteString(")")
	b.needSpace = true
	return b
}

// String returns the assembled statement
func (b *SQLBuilder) String() string {
	return b.sb.String()
}

func (b *SQLBuilder) writePhrase(phrase string) {
	if b.needSpace {
		b.sb.WriteString(" ")
	}
	b.sb.WriteString(phrase)
	b.needSpace = true
}

// QuoteIdent double-quotes an identifier, doubling embedded quotes
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedIdent returns the schema-qualified quoted form of a name
func QualifiedIdent(schema, name string) string {
	if schema == "" {
		return QuoteIdent(name)
	}
	return QuoteIdent(schema) + "." + QuoteIdent(name)
}
