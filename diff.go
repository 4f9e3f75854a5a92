package main

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/elitan/dbterra/database"
)

// SnapshotDiff represents all differences between the current and
// desired snapshots, grouped by object kind. The planner turns it into
// an ordered MigrationPlan.
type SnapshotDiff struct {
	AddedSchemas    []string
	AddedExtensions []database.Extension
	AddedEnums      []database.EnumType
	ExtendedEnums   []EnumDiff
	AddedSequences  []database.Sequence
	AddedTables     []database.Table
	RemovedTables   []database.Table
	ModifiedTables  []TableDiff
	AddedViews      []database.View
	RemovedViews    []database.View
	ChangedViews    []ViewDiff
	AddedFunctions  []database.Function
	AddedTriggers   []database.Trigger
}

// EnumDiff records values to add to an existing enum type, each at the
// end or before an existing value
type EnumDiff struct {
	Schema string
	Name   string
	Added  []EnumValueInsert
}

// EnumValueInsert places a new enum value, optionally before an
// existing one when the addition is not at the end.
type EnumValueInsert struct {
	Value  string
	Before string
}

// ViewDiff pairs the current and desired form of a view whose
// definition or options drifted
type ViewDiff struct {
	Old database.View
	New database.View
}

// TableDiff represents changes to a single existing table
type TableDiff struct {
	Schema string
	Name   string

	AddedColumns    []database.Column
	RemovedColumns  []database.Column
	ModifiedColumns []ColumnDiff

	AddedForeignKeys   []database.ForeignKey
	RemovedForeignKeys []database.ForeignKey
	// KeptForeignKeys are desired FKs untouched by this diff; the
	// planner needs them to know what to drop and re-add around a
	// blocking column change
	KeptForeignKeys []database.ForeignKey

	AddedUniques   []database.Unique
	RemovedUniques []database.Unique

	AddedChecks   []database.Check
	RemovedChecks []database.Check

	AddedPrimaryKey   *database.PrimaryKey
	RemovedPrimaryKey *database.PrimaryKey

	AddedIndexes   []database.Index
	RemovedIndexes []database.Index
}

// ColumnDiff represents changes to a single column
type ColumnDiff struct {
	ColumnName string
	Old        database.Column
	New        database.Column
	Changes    []string // "type", "nullable", "default"
}

// TypeChanged reports whether the column's canonical type differs
func (d *ColumnDiff) TypeChanged() bool {
	for _, c := range d.Changes {
		if c == "type" {
			return true
		}
	}
	return false
}

// IsEmpty returns true if there are no differences
func (d *TableDiff) IsEmpty() bool {
	return len(d.AddedColumns) == 0 &&
		len(d.RemovedColumns) == 0 &&
		len(d.ModifiedColumns) == 0 &&
		len(d.AddedForeignKeys) == 0 &&
		len(d.RemovedForeignKeys) == 0 &&
		len(d.AddedUniques) == 0 &&
		len(d.RemovedUniques) == 0 &&
		len(d.AddedChecks) == 0 &&
		len(d.RemovedChecks) == 0 &&
		d.AddedPrimaryKey == nil &&
		d.RemovedPrimaryKey == nil &&
		len(d.AddedIndexes) == 0 &&
		len(d.RemovedIndexes) == 0
}

// IsEmpty returns true if there are no differences
func (d *SnapshotDiff) IsEmpty() bool {
	return len(d.AddedSchemas) == 0 &&
		len(d.AddedExtensions) == 0 &&
		len(d.AddedEnums) == 0 &&
		len(d.ExtendedEnums) == 0 &&
		len(d.AddedSequences) == 0 &&
		len(d.AddedFunctions) == 0 &&
		len(d.AddedTriggers) == 0 &&
		len(d.AddedTables) == 0 &&
		len(d.RemovedTables) == 0 &&
		len(d.ModifiedTables) == 0 &&
		len(d.AddedViews) == 0 &&
		len(d.RemovedViews) == 0 &&
		len(d.ChangedViews) == 0
}

// DiffSnapshots compares the desired snapshot against the current one.
// Both inputs are read-only; comparisons normalize lazily. Output
// ordering is deterministic: every slice is sorted by (schema, name).
func DiffSnapshots(desired, current *database.Snapshot) (*SnapshotDiff, error) {
	diff := &SnapshotDiff{}

	// Schemas: only creation is managed; dropping a schema is out of
	// scope for a declarative run
	for _, s := range sortedStrings(desired.Schemas) {
		if s != "public" && !current.HasSchema(s) {
			diff.AddedSchemas = append(diff.AddedSchemas, s)
		}
	}

	for _, ext := range sortedExtensions(desired.Extensions) {
		if !current.HasExtension(ext.Name) {
			diff.AddedExtensions = append(diff.AddedExtensions, ext)
		}
	}

	if err := diffEnums(diff, desired, current); err != nil {
		return nil, err
	}

	diffSequences(diff, desired, current)
	diffTables(diff, desired, current, managedSchemaSet(desired, current))
	diffViews(diff, desired, current)
	diffRoutines(diff, desired, current)

	return diff, nil
}

// diffSequences only ever creates: a sequence absent from the desired
// file may still back application state, so it is left alone
func diffSequences(diff *SnapshotDiff, desired, current *database.Snapshot) {
	have := make(map[string]bool, len(current.Sequences))
	for _, s := range current.Sequences {
		have[s.Schema+"."+s.Name] = true
	}
	seqs := append([]database.Sequence(nil), desired.Sequences...)
	sort.Slice(seqs, func(i, j int) bool {
		return seqs[i].Schema+"."+seqs[i].Name < seqs[j].Schema+"."+seqs[j].Name
	})
	for _, s := range seqs {
		if !have[s.Schema+"."+s.Name] {
			diff.AddedSequences = append(diff.AddedSequences, s)
		}
	}
}

// diffRoutines matches functions and triggers by name only: they are
// created when missing and otherwise never touched, since comparing
// procedural bodies across catalog round-trips is not reliable.
func diffRoutines(diff *SnapshotDiff, desired, current *database.Snapshot) {
	haveFns := make(map[string]bool, len(current.Functions))
	for _, f := range current.Functions {
		haveFns[f.Schema+"."+f.Name] = true
	}
	fns := append([]database.Function(nil), desired.Functions...)
	sort.Slice(fns, func(i, j int) bool {
		return fns[i].Schema+"."+fns[i].Name < fns[j].Schema+"."+fns[j].Name
	})
	for _, f := range fns {
		if !haveFns[f.Schema+"."+f.Name] {
			diff.AddedFunctions = append(diff.AddedFunctions, f)
		}
	}

	haveTrigs := make(map[string]bool, len(current.Triggers))
	for _, t := range current.Triggers {
		haveTrigs[t.Schema+"."+t.Table+"."+t.Name] = true
	}
	trigs := append([]database.Trigger(nil), desired.Triggers...)
	sort.Slice(trigs, func(i, j int) bool {
		ki := trigs[i].Schema + "." + trigs[i].Table + "." + trigs[i].Name
		kj := trigs[j].Schema + "." + trigs[j].Table + "." + trigs[j].Name
		return ki < kj
	})
	for _, t := range trigs {
		if !haveTrigs[t.Schema+"."+t.Table+"."+t.Name] {
			diff.AddedTriggers = append(diff.AddedTriggers, t)
		}
	}
}

// managedSchemaSet collects every schema either snapshot touches. A
// foreign key referencing a schema outside this set points at an
// unmanaged table and is preserved as-is.
func managedSchemaSet(desired, current *database.Snapshot) map[string]bool {
	managed := map[string]bool{"public": true}
	for _, s := range desired.Schemas {
		managed[s] = true
	}
	for _, s := range current.Schemas {
		managed[s] = true
	}
	for _, t := range desired.Tables {
		managed[t.Schema] = true
	}
	for _, t := range current.Tables {
		managed[t.Schema] = true
	}
	return managed
}

func diffEnums(diff *SnapshotDiff, desired, current *database.Snapshot) error {
	for _, want := range sortedEnums(desired.Enums) {
		have := current.FindEnum(want.Schema, want.Name)
		if have == nil {
			diff.AddedEnums = append(diff.AddedEnums, want)
			continue
		}

		// Existing values must appear in the desired list in the same
		// relative order; anything else would require dropping values,
		// which PostgreSQL cannot do.
		inserts, err := enumValueInserts(want, have)
		if err != nil {
			return err
		}
		if len(inserts) > 0 {
			diff.ExtendedEnums = append(diff.ExtendedEnums, EnumDiff{
				Schema: want.Schema,
				Name:   want.Name,
				Added:  inserts,
			})
		}
	}
	return nil
}

// enumValueInserts verifies the current values form an ordered
// subsequence of the desired values and returns the insertions needed.
func enumValueInserts(want database.EnumType, have *database.EnumType) ([]EnumValueInsert, error) {
	desiredSet := make(map[string]bool, len(want.Values))
	for _, v := range want.Values {
		desiredSet[v] = true
	}
	for _, v := range have.Values {
		if !desiredSet[v] {
			return nil, &ValidationError{
				Object:  want.QualifiedName(),
				Message: fmt.Sprintf("enum value %q cannot be removed from type %s; enum values may only be added", v, want.QualifiedName()),
			}
		}
	}

	var inserts []EnumValueInsert
	cursor := 0
	for i, v := range want.Values {
		if cursor < len(have.Values) && have.Values[cursor] == v {
			cursor++
			continue
		}
		if containsString(have.Values, v) {
			return nil, &ValidationError{
				Object:  want.QualifiedName(),
				Message: fmt.Sprintf("enum values of type %s cannot be reordered", want.QualifiedName()),
			}
		}
		ins := EnumValueInsert{Value: v}
		// Inserting before the next existing value keeps the declared
		// order; at the tail a plain ADD VALUE suffices
		for _, rest := range want.Values[i+1:] {
			if containsString(have.Values, rest) {
				ins.Before = rest
				break
			}
		}
		inserts = append(inserts, ins)
	}
	return inserts, nil
}

func diffTables(diff *SnapshotDiff, desired, current *database.Snapshot, managed map[string]bool) {
	for _, want := range sortedTables(desired.Tables) {
		have := current.FindTable(want.Schema, want.Name)
		if have == nil {
			diff.AddedTables = append(diff.AddedTables, want)
			continue
		}
		td := diffTable(have, &want, managed)
		if !td.IsEmpty() {
			diff.ModifiedTables = append(diff.ModifiedTables, *td)
		}
	}

	for _, have := range sortedTables(current.Tables) {
		if desired.FindTable(have.Schema, have.Name) == nil {
			diff.RemovedTables = append(diff.RemovedTables, have)
		}
	}
}

// diffTable compares two tables matched by name. Columns are matched by
// name as well: renames are never inferred, so a renamed column
// presents as an add plus a drop.
func diffTable(current, desired *database.Table, managed map[string]bool) *TableDiff {
	td := &TableDiff{Schema: desired.Schema, Name: desired.Name}

	for _, want := range desired.Columns {
		have := current.FindColumn(want.Name)
		if have == nil {
			td.AddedColumns = append(td.AddedColumns, want)
			continue
		}
		if cd := diffColumn(have, &want); cd != nil {
			td.ModifiedColumns = append(td.ModifiedColumns, *cd)
		}
	}
	for _, have := range current.Columns {
		if desired.FindColumn(have.Name) == nil {
			td.RemovedColumns = append(td.RemovedColumns, have)
		}
	}
	sort.Slice(td.ModifiedColumns, func(i, j int) bool {
		return td.ModifiedColumns[i].ColumnName < td.ModifiedColumns[j].ColumnName
	})

	diffForeignKeys(td, current, desired, managed)
	diffUniques(td, current, desired)
	diffChecks(td, current, desired)
	diffPrimaryKey(td, current, desired)
	diffIndexes(td, current, desired)

	return td
}

// diffColumn compares two columns and returns nil when they are equal
// after normalization
func diffColumn(current, desired *database.Column) *ColumnDiff {
	var changes []string

	wantType, wantSerial := normalizeTypeSerial(desired.Type)
	haveType, _ := normalizeTypeSerial(current.Type)

	if wantType != haveType {
		changes = append(changes, "type")
	}
	if current.Nullable != desired.Nullable {
		changes = append(changes, "nullable")
	}
	if !serialDefaultsMatch(wantSerial, desired, current) && !EqualDefaults(desired.Default, current.Default) {
		changes = append(changes, "default")
	}

	if len(changes) == 0 {
		return nil
	}
	return &ColumnDiff{
		ColumnName: desired.Name,
		Old:        *current,
		New:        *desired,
		Changes:    changes,
	}
}

// serialDefaultsMatch treats a desired SERIAL column with no explicit
// default as matching the nextval default its owned sequence produces.
func serialDefaultsMatch(wantSerial bool, desired, current *database.Column) bool {
	if !wantSerial || desired.Default != nil {
		return false
	}
	return current.Default != nil && IsSerialDefault(*current.Default)
}

func diffForeignKeys(td *TableDiff, current, desired *database.Table, managed map[string]bool) {
	for _, want := range desired.ForeignKeys {
		have := findForeignKey(current.ForeignKeys, want.Name)
		if have == nil || !equalForeignKeys(have, &want, current.Schema) {
			td.AddedForeignKeys = append(td.AddedForeignKeys, want)
			if have != nil {
				td.RemovedForeignKeys = append(td.RemovedForeignKeys, *have)
			}
		} else {
			td.KeptForeignKeys = append(td.KeptForeignKeys, want)
		}
	}
	for _, have := range current.ForeignKeys {
		if findForeignKey(desired.ForeignKeys, have.Name) != nil {
			continue
		}
		// A reference into an unmanaged schema is outside the desired
		// file's vocabulary; keep it untouched
		if have.ReferencedSchema != "" && !managed[have.ReferencedSchema] {
			continue
		}
		td.RemovedForeignKeys = append(td.RemovedForeignKeys, have)
	}
	sortForeignKeys(td.AddedForeignKeys)
	sortForeignKeys(td.RemovedForeignKeys)
}

func equalForeignKeys(a, b *database.ForeignKey, owningSchema string) bool {
	return equalStringSlices(a.Columns, b.Columns) &&
		a.ReferencedQualifiedName(owningSchema) == b.ReferencedQualifiedName(owningSchema) &&
		equalStringSlices(a.ReferencedColumns, b.ReferencedColumns) &&
		normalizeFKAction(a.OnDelete) == normalizeFKAction(b.OnDelete) &&
		normalizeFKAction(a.OnUpdate) == normalizeFKAction(b.OnUpdate) &&
		a.Deferrable == b.Deferrable
}

func normalizeFKAction(action string) string {
	if action == "" {
		return "NO ACTION"
	}
	return strings.ToUpper(action)
}

func diffUniques(td *TableDiff, current, desired *database.Table) {
	for _, want := range desired.Uniques {
		have := findUnique(current.Uniques, want.Name)
		if have == nil || !equalStringSlices(have.Columns, want.Columns) {
			td.AddedUniques = append(td.AddedUniques, want)
			if have != nil {
				td.RemovedUniques = append(td.RemovedUniques, *have)
			}
		}
	}
	for _, have := range current.Uniques {
		if findUnique(desired.Uniques, have.Name) == nil {
			td.RemovedUniques = append(td.RemovedUniques, have)
		}
	}
}

func diffChecks(td *TableDiff, current, desired *database.Table) {
	for _, want := range desired.Checks {
		have := findCheck(current.Checks, want.Name)
		if have == nil || normalizeCheckExpr(have.Expression) != normalizeCheckExpr(want.Expression) {
			td.AddedChecks = append(td.AddedChecks, want)
			if have != nil {
				td.RemovedChecks = append(td.RemovedChecks, *have)
			}
		}
	}
	for _, have := range current.Checks {
		if findCheck(desired.Checks, have.Name) == nil {
			td.RemovedChecks = append(td.RemovedChecks, have)
		}
	}
}

// normalizeCheckExpr flattens a check expression for comparison: the
// catalogs decorate stored expressions with grouping parens and casts
// that carry no meaning for equality.
func normalizeCheckExpr(expr string) string {
	e := strings.ToLower(expr)
	e = strings.ReplaceAll(e, "(", "")
	e = strings.ReplaceAll(e, ")", "")
	e = castSuffixInlineRe.ReplaceAllString(e, "")
	e = whitespaceRe.ReplaceAllString(e, " ")
	return strings.TrimSpace(e)
}

var castSuffixInlineRe = regexp.MustCompile(`::[a-z_][a-z0-9_ ]*`)

func diffPrimaryKey(td *TableDiff, current, desired *database.Table) {
	have, want := current.PrimaryKey, desired.PrimaryKey
	switch {
	case have == nil && want != nil:
		td.AddedPrimaryKey = want
	case have != nil && want == nil:
		td.RemovedPrimaryKey = have
	case have != nil && want != nil && !equalStringSlices(have.Columns, want.Columns):
		td.RemovedPrimaryKey = have
		td.AddedPrimaryKey = want
	}
}

func diffIndexes(td *TableDiff, current, desired *database.Table) {
	for _, want := range desired.Indexes {
		have := findIndex(current.Indexes, want.Name)
		if have == nil || !equalStringSlices(have.Columns, want.Columns) || have.Unique != want.Unique {
			td.AddedIndexes = append(td.AddedIndexes, want)
			if have != nil {
				td.RemovedIndexes = append(td.RemovedIndexes, *have)
			}
		}
	}
	for _, have := range current.Indexes {
		if findIndex(desired.Indexes, have.Name) == nil {
			td.RemovedIndexes = append(td.RemovedIndexes, have)
		}
	}
	sortIndexes(td.AddedIndexes)
	sortIndexes(td.RemovedIndexes)
}

func diffViews(diff *SnapshotDiff, desired, current *database.Snapshot) {
	for _, want := range sortedViews(desired.Views) {
		have := current.FindView(want.Schema, want.Name)
		if have == nil {
			diff.AddedViews = append(diff.AddedViews, want)
			continue
		}
		if !equalViews(have, &want) {
			diff.ChangedViews = append(diff.ChangedViews, ViewDiff{Old: *have, New: want})
		}
	}
	for _, have := range sortedViews(current.Views) {
		if desired.FindView(have.Schema, have.Name) == nil {
			diff.RemovedViews = append(diff.RemovedViews, have)
		}
	}
}

func equalViews(a, b *database.View) bool {
	// security_barrier is parsed but deliberately excluded from
	// comparison until its round-trip through the catalogs is settled
	return a.Materialized == b.Materialized &&
		normalizeCheckOption(a.CheckOption) == normalizeCheckOption(b.CheckOption) &&
		NormalizeViewBody(a.Definition) == NormalizeViewBody(b.Definition)
}

func normalizeCheckOption(opt string) string {
	if opt == "" {
		return database.CheckOptionNone
	}
	return strings.ToUpper(opt)
}

// lookup helpers

func findForeignKey(fks []database.ForeignKey, name string) *database.ForeignKey {
	for i := range fks {
		if fks[i].Name == name {
			return &fks[i]
		}
	}
	return nil
}

func findUnique(uks []database.Unique, name string) *database.Unique {
	for i := range uks {
		if uks[i].Name == name {
			return &uks[i]
		}
	}
	return nil
}

func findCheck(checks []database.Check, name string) *database.Check {
	for i := range checks {
		if checks[i].Name == name {
			return &checks[i]
		}
	}
	return nil
}

func findIndex(indexes []database.Index, name string) *database.Index {
	for i := range indexes {
		if indexes[i].Name == name {
			return &indexes[i]
		}
	}
	return nil
}

// ordering helpers: the differ's output must be stable regardless of
// input order, so every scan walks a sorted copy

func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func sortedExtensions(in []database.Extension) []database.Extension {
	out := append([]database.Extension(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sortedEnums(in []database.EnumType) []database.EnumType {
	out := append([]database.EnumType(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName() < out[j].QualifiedName() })
	return out
}

func sortedTables(in []database.Table) []database.Table {
	out := append([]database.Table(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName() < out[j].QualifiedName() })
	return out
}

func sortedViews(in []database.View) []database.View {
	out := append([]database.View(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName() < out[j].QualifiedName() })
	return out
}

func sortForeignKeys(fks []database.ForeignKey) {
	sort.Slice(fks, func(i, j int) bool { return fks[i].Name < fks[j].Name })
}

func sortIndexes(indexes []database.Index) {
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].Name < indexes[j].Name })
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
