package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// The four error families the tool surfaces. Each carries enough
// structured context for the top-level formatter to render a location,
// the offending statement, and a remediation hint.

// ParserError reports a failure turning the desired-state file into a
// snapshot: a syntax error, a missing file, or a forbidden statement.
type ParserError struct {
	FilePath   string
	Line       int // 1-based; 0 when unknown
	Column     int // 1-based; 0 when unknown
	SQLSnippet string
	Message    string
}

func (e *ParserError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.FilePath != "" {
		sb.WriteString(" (")
		sb.WriteString(e.FilePath)
		if e.Line > 0 {
			fmt.Fprintf(&sb, ":%d", e.Line)
			if e.Column > 0 {
				fmt.Fprintf(&sb, ":%d", e.Column)
			}
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// MigrationError reports a DDL statement that failed during execution,
// or an advisory-lock acquisition timeout. Driver diagnostics are
// carried through when the driver provides them.
type MigrationError struct {
	Statement string
	Code      string
	Detail    string
	Hint      string
	Position  int
	Message   string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Statement == "" {
		return e.Message
	}
	return fmt.Sprintf("%s while executing: %s", e.Message, e.Statement)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// DependencyError reports an unresolvable ordering: a foreign key
// pointing at a table that exists in neither snapshot, or a dependency
// cycle the planner cannot break.
type DependencyError struct {
	Message string
	Missing string
	Cycle   []string
}

func (e *DependencyError) Error() string {
	return e.Message
}

// ValidationError reports a semantic violation detected before any
// statement executes, such as removing a value from an enum type.
type ValidationError struct {
	Object  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// suggestionFor maps an error message onto a remediation hint shown
// under the error. Empty when nothing useful applies.
func suggestionFor(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "alter"):
		return "Describe the end state with CREATE TABLE; the tool emits ALTER statements for you."
	case strings.Contains(lower, "drop") || strings.Contains(lower, "truncate"):
		return "Remove the object from your schema file instead; absent objects are dropped for you."
	case strings.Contains(lower, "insert") || strings.Contains(lower, "update") || strings.Contains(lower, "delete"):
		return "The schema file is declarative DDL only; run data changes through your normal query path."
	case strings.Contains(lower, "grant") || strings.Contains(lower, "revoke"):
		return "Privileges are not managed here; apply grants out-of-band."
	case strings.Contains(lower, "comment"):
		return "Use SQL comments (--) in the schema file; COMMENT ON mutates catalog state."
	case strings.Contains(lower, "unexpected end of input"):
		return "Check for missing parentheses or semicolons."
	}
	return ""
}

// FormatError renders any core error for the terminal: location first,
// then the statement involved, then the driver diagnostics and a hint
// where one exists.
func FormatError(w io.Writer, err error) {
	var parserErr *ParserError
	var migErr *MigrationError
	var depErr *DependencyError
	var valErr *ValidationError

	switch {
	case errors.As(err, &parserErr):
		fmt.Fprintf(w, "Error: %s\n", parserErr.Message)
		if parserErr.FilePath != "" {
			loc := parserErr.FilePath
			if parserErr.Line > 0 {
				loc = fmt.Sprintf("%s:%d", loc, parserErr.Line)
				if parserErr.Column > 0 {
					loc = fmt.Sprintf("%s:%d", loc, parserErr.Column)
				}
			}
			fmt.Fprintf(w, "  at %s\n", loc)
		}
		if parserErr.SQLSnippet != "" {
			fmt.Fprintf(w, "\n    %s\n", strings.ReplaceAll(parserErr.SQLSnippet, "\n", "\n    "))
		}
		if hint := suggestionFor(parserErr.Message); hint != "" {
			fmt.Fprintf(w, "\nHint: %s\n", hint)
		}

	case errors.As(err, &migErr):
		fmt.Fprintf(w, "Error: %s\n", migErr.Message)
		if migErr.Statement != "" {
			fmt.Fprintf(w, "\n    %s\n", strings.ReplaceAll(migErr.Statement, "\n", "\n    "))
		}
		if migErr.Code != "" {
			fmt.Fprintf(w, "\n  code: %s\n", migErr.Code)
		}
		if migErr.Detail != "" {
			fmt.Fprintf(w, "  detail: %s\n", migErr.Detail)
		}
		if migErr.Position > 0 {
			fmt.Fprintf(w, "  position: %d\n", migErr.Position)
		}
		if migErr.Hint != "" {
			fmt.Fprintf(w, "\nHint: %s\n", migErr.Hint)
		}

	case errors.As(err, &depErr):
		fmt.Fprintf(w, "Error: %s\n", depErr.Message)
		if depErr.Missing != "" {
			fmt.Fprintf(w, "  missing: %s\n", depErr.Missing)
		}
		if len(depErr.Cycle) > 0 {
			fmt.Fprintf(w, "  cycle: %s\n", strings.Join(depErr.Cycle, " -> "))
		}

	case errors.As(err, &valErr):
		fmt.Fprintf(w, "Error: %s\n", valErr.Message)
		if valErr.Object != "" {
			fmt.Fprintf(w, "  object: %s\n", valErr.Object)
		}

	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}
