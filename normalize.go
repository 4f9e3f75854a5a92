package main

import (
	"regexp"
	"strings"
)

// Normalization makes parsed and introspected snapshots comparable.
// Every function here is pure; inputs are never mutated. The differ
// applies these lazily while comparing, so snapshots always carry the
// surface text they were built from.

// typeAliases maps lowercase base type names to their canonical form.
// Parameterized types keep their parameters; only the base name is
// rewritten.
var typeAliases = map[string]string{
	"int":               "integer",
	"int4":              "integer",
	"integer":           "integer",
	"int8":              "bigint",
	"bigint":            "bigint",
	"int2":              "smallint",
	"smallint":          "smallint",
	"varchar":           "character varying",
	"character varying": "character varying",
	"char":              "character",
	"character":         "character",
	"text":              "text",
	"bool":              "boolean",
	"boolean":           "boolean",
	"float4":            "real",
	"real":              "real",
	"float8":            "double precision",
	"double precision":  "double precision",
	"decimal":           "numeric",
	"numeric":           "numeric",
	"timestamptz":       "timestamp with time zone",
	"timetz":            "time with time zone",
}

// serialTypes maps the SERIAL pseudo-types to their underlying integer
// family. The implicit owned sequence and nextval default are handled
// by the differ, not here.
var serialTypes = map[string]string{
	"serial":      "integer",
	"serial4":     "integer",
	"bigserial":   "bigint",
	"serial8":     "bigint",
	"smallserial": "smallint",
	"serial2":     "smallint",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeType canonicalizes a surface type string: case is folded,
// whitespace collapsed, aliases rewritten, and the pg_catalog prefix
// stripped. "VARCHAR(255)" and "character varying(255)" normalize to
// the same text.
func NormalizeType(typeText string) string {
	canonical, _ := normalizeTypeSerial(typeText)
	return canonical
}

// normalizeTypeSerial canonicalizes a type and additionally reports
// whether the surface text was a SERIAL pseudo-type, which implies an
// owned sequence and a nextval default.
func normalizeTypeSerial(typeText string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(typeText))
	t = whitespaceRe.ReplaceAllString(t, " ")
	t = strings.TrimPrefix(t, "pg_catalog.")

	// Split off the parameter list and any trailing time zone phrase
	base := t
	params := ""
	suffix := ""
	if open := strings.Index(t, "("); open >= 0 {
		if close := strings.LastIndex(t, ")"); close > open {
			base = strings.TrimSpace(t[:open])
			params = t[open : close+1]
			suffix = strings.TrimSpace(t[close+1:])
		}
	}
	params = strings.ReplaceAll(params, " ", "")

	if serial, ok := serialTypes[base]; ok {
		return serial, true
	}

	// "timestamp(3) without time zone" keeps its precision against the
	// rewritten base name
	if suffix == "with time zone" || suffix == "without time zone" {
		return base + params + " " + suffix, false
	}
	if base == "timestamp" {
		return "timestamp" + params + " without time zone", false
	}
	if base == "time" {
		return "time" + params + " without time zone", false
	}

	if canonical, ok := typeAliases[base]; ok {
		return canonical + params, false
	}
	if suffix != "" {
		return base + params + " " + suffix, false
	}
	return base + params, false
}

// castSuffixRe matches a trailing ::type cast, optionally parameterized
// or carrying a time zone phrase, e.g. ::character varying(255) or
// ::timestamp with time zone.
var castSuffixRe = regexp.MustCompile(`::"?[a-zA-Z_][a-zA-Z0-9_ ]*"?(\(\d+(,\s*\d+)?\))?(\s+with(out)?\s+time\s+zone)?$`)

// defaultFuncAliases canonicalizes the well-known volatile function
// defaults the catalogs report in several spellings. Unknown function
// calls are left alone, so mismatched spellings compare unequal and the
// differ errs toward re-emission.
var defaultFuncAliases = map[string]string{
	"now()":                   "now()",
	"current_timestamp":       "now()",
	"current_timestamp()":     "now()",
	"transaction_timestamp()": "now()",
	"current_date":            "current_date",
	"current_time":            "current_time",
}

// NormalizeDefault canonicalizes a default expression for comparison.
// Trailing type casts are stripped (they are representation noise from
// the catalogs), except ::regclass casts inside nextval calls, which
// carry the identity of the owned sequence. String-literal quoting is
// preserved.
func NormalizeDefault(expr string) string {
	d := strings.TrimSpace(expr)

	// Cast stripping and paren unwrapping feed each other: the catalogs
	// print ('x'::text) as well as 'x'::text. Iterate to a fixpoint.
	for {
		before := d

		if loc := castSuffixRe.FindStringIndex(d); loc != nil {
			cast := d[loc[0]:loc[1]]
			// A regclass cast carries identity; a cast marker inside a
			// string literal is not a cast at all
			if !strings.Contains(cast, "regclass") && strings.Count(d[:loc[0]], "'")%2 == 0 {
				d = strings.TrimSpace(d[:loc[0]])
			}
		}

		// Unwrap redundant grouping parens around the whole expression,
		// the way the catalogs print computed defaults
		if strings.HasPrefix(d, "(") && strings.HasSuffix(d, ")") && balancedParens(d[1:len(d)-1]) {
			d = strings.TrimSpace(d[1 : len(d)-1])
		}

		if d == before {
			break
		}
	}

	if alias, ok := defaultFuncAliases[strings.ToLower(d)]; ok {
		return alias
	}
	return d
}

func balancedParens(s string) bool {
	depth := 0
	inString := false
	for _, r := range s {
		switch {
		case r == '\'':
			inString = !inString
		case inString:
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// EqualDefaults reports whether two default expressions are equal after
// normalization. Absent defaults compare equal to each other only.
func EqualDefaults(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return NormalizeDefault(*a) == NormalizeDefault(*b)
}

// serialDefaultRe recognizes the nextval default PostgreSQL attaches to
// SERIAL columns: nextval('users_id_seq'::regclass)
var serialDefaultRe = regexp.MustCompile(`^nextval\('[^']*_seq'(::regclass)?\)$`)

// IsSerialDefault reports whether a default expression is the implicit
// sequence default of a SERIAL column.
func IsSerialDefault(expr string) bool {
	return serialDefaultRe.MatchString(strings.TrimSpace(expr))
}

// NormalizeIdent canonicalizes an identifier: quoted identifiers keep
// their exact case with the quotes removed; unquoted identifiers fold
// to lowercase. Comparison afterwards is case-sensitive.
func NormalizeIdent(ident string) string {
	if len(ident) >= 2 && strings.HasPrefix(ident, `"`) && strings.HasSuffix(ident, `"`) {
		return strings.ReplaceAll(ident[1:len(ident)-1], `""`, `"`)
	}
	return strings.ToLower(ident)
}

// NormalizeViewBody canonicalizes a view definition enough to detect
// textual drift: whitespace collapsed, case folded, trailing semicolon
// dropped. Anything that still differs causes a drop-and-recreate,
// which is always safe for views.
func NormalizeViewBody(body string) string {
	b := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), ";"))
	b = whitespaceRe.ReplaceAllString(b, " ")
	return strings.ToLower(b)
}
