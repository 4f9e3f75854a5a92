package database

import (
	"context"
	"database/sql"
)

// Snapshot represents the full set of managed schema objects, either
// parsed from a desired-state SQL file or introspected from a live
// database. Types, defaults and identifiers are stored pre-normalization;
// the differ normalizes both sides when comparing.
type Snapshot struct {
	Schemas    []string    `json:"schemas,omitempty"`
	Extensions []Extension `json:"extensions,omitempty"`
	Enums      []EnumType  `json:"enums,omitempty"`
	Tables     []Table     `json:"tables"`
	Views      []View      `json:"views,omitempty"`
	Sequences  []Sequence  `json:"sequences,omitempty"`
	Functions  []Function  `json:"functions,omitempty"`
	Triggers   []Trigger   `json:"triggers,omitempty"`
}

// Table represents a database table
type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  *PrimaryKey  `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Uniques     []Unique     `json:"uniques,omitempty"`
	Checks      []Check      `json:"checks,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
}

// Column represents a table column. Type holds the surface type text as
// written or as reported by the catalog (e.g. "VARCHAR(255)").
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	Default      *string `json:"default,omitempty"`
	IsPrimaryKey bool    `json:"is_primary_key"`
}

// PrimaryKey represents a table's primary key constraint, inline or composite
type PrimaryKey struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
}

// ForeignKey represents a foreign key constraint. ReferencedSchema may
// name a schema outside the managed set; such references are preserved
// as-is and never dropped.
type ForeignKey struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedSchema  string   `json:"referenced_schema,omitempty"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
	OnDelete          string   `json:"on_delete,omitempty"`
	OnUpdate          string   `json:"on_update,omitempty"`
	Deferrable        bool     `json:"deferrable,omitempty"`
}

// Unique represents a unique constraint
type Unique struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Check represents a check constraint
type Check struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// Index represents a table index
type Index struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	Unique     bool     `json:"unique"`
	Concurrent bool     `json:"concurrent,omitempty"`
}

// View check options
const (
	CheckOptionNone     = "NONE"
	CheckOptionLocal    = "LOCAL"
	CheckOptionCascaded = "CASCADED"
)

// View represents a view or materialized view. Definition holds the
// SELECT body without the leading AS keyword or a trailing semicolon.
type View struct {
	Schema          string `json:"schema"`
	Name            string `json:"name"`
	Definition      string `json:"definition"`
	Materialized    bool   `json:"materialized,omitempty"`
	CheckOption     string `json:"check_option,omitempty"`
	SecurityBarrier bool   `json:"security_barrier,omitempty"`
}

// EnumType represents a CREATE TYPE ... AS ENUM definition. Values keep
// their declared order; the differ only ever adds values (at the end or
// before an existing value) and never removes or reorders them.
type EnumType struct {
	Schema string   `json:"schema"`
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Extension represents an installed database extension
type Extension struct {
	Name string `json:"name"`
}

// Sequence represents a standalone sequence. Sequences owned by SERIAL
// columns are implicit and not tracked here.
type Sequence struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// Function represents a function or procedure. Definition holds the
// full CREATE statement; functions are matched by name only and are
// created when missing, never altered or dropped.
type Function struct {
	Schema     string `json:"schema"`
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// Trigger represents a trigger on a table. Like functions, triggers are
// created when missing and otherwise left alone.
type Trigger struct {
	Schema     string `json:"schema"`
	Table      string `json:"table"`
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// MigrationPlan is the ordered output of the differ. Transactional
// statements run inside a single transaction; Concurrent statements run
// afterwards, one by one, outside any transaction.
type MigrationPlan struct {
	Transactional []string `json:"transactional"`
	Concurrent    []string `json:"concurrent"`
}

// HasChanges reports whether the plan contains any statements
func (p *MigrationPlan) HasChanges() bool {
	return len(p.Transactional) > 0 || len(p.Concurrent) > 0
}

// Statements returns all statements in execution order
func (p *MigrationPlan) Statements() []string {
	out := make([]string, 0, len(p.Transactional)+len(p.Concurrent))
	out = append(out, p.Transactional...)
	out = append(out, p.Concurrent...)
	return out
}

// Capabilities describes what a dialect can express. The differ consults
// this to decide whether CONCURRENTLY or ALTER COLUMN TYPE are emitted.
type Capabilities struct {
	AdvisoryLocks     bool
	ConcurrentIndexes bool
	AlterColumnType   bool
	Schemas           bool
	Extensions        bool
	Enums             bool
	MaterializedViews bool
	// ViewOptions covers WITH CHECK OPTION and the security_barrier
	// reloption on CREATE VIEW
	ViewOptions      bool
	DropTableCascade bool
}

// Introspector defines the interface for database schema introspection
type Introspector interface {
	// IntrospectSnapshot reads all objects belonging to the managed schemas
	IntrospectSnapshot(ctx context.Context, db *sql.DB, schemas []string) (*Snapshot, error)
}

// Driver represents a database dialect provider
type Driver interface {
	Introspector

	// Name returns the database driver name (e.g., "postgres", "sqlite")
	Name() string

	// Capabilities returns the dialect's capability record
	Capabilities() Capabilities
}

// FindTable locates a table by qualified name within the snapshot
func (s *Snapshot) FindTable(schema, name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Schema == schema && s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// FindView locates a view by qualified name within the snapshot
func (s *Snapshot) FindView(schema, name string) *View {
	for i := range s.Views {
		if s.Views[i].Schema == schema && s.Views[i].Name == name {
			return &s.Views[i]
		}
	}
	return nil
}

// FindEnum locates an enum type by qualified name within the snapshot
func (s *Snapshot) FindEnum(schema, name string) *EnumType {
	for i := range s.Enums {
		if s.Enums[i].Schema == schema && s.Enums[i].Name == name {
			return &s.Enums[i]
		}
	}
	return nil
}

// HasSchema reports whether the snapshot declares the named schema
func (s *Snapshot) HasSchema(name string) bool {
	for _, sch := range s.Schemas {
		if sch == name {
			return true
		}
	}
	return false
}

// HasExtension reports whether the snapshot declares the named extension
func (s *Snapshot) HasExtension(name string) bool {
	for _, ext := range s.Extensions {
		if ext.Name == name {
			return true
		}
	}
	return false
}

// FindColumn locates a column by name within the table
func (t *Table) FindColumn(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// QualifiedName returns the table's schema-qualified name for map keys
// and stable ordering
func (t *Table) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// QualifiedName returns the view's schema-qualified name
func (v *View) QualifiedName() string {
	return v.Schema + "." + v.Name
}

// QualifiedName returns the enum's schema-qualified name
func (e *EnumType) QualifiedName() string {
	return e.Schema + "." + e.Name
}

// ReferencedQualifiedName returns the qualified name of the table the
// foreign key points at, defaulting the schema to the owning table's.
func (fk *ForeignKey) ReferencedQualifiedName(owningSchema string) string {
	schema := fk.ReferencedSchema
	if schema == "" {
		schema = owningSchema
	}
	return schema + "." + fk.ReferencedTable
}
