package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/elitan/dbterra/database"
)

// GeneratePlan orders a SnapshotDiff into an executable MigrationPlan.
// Statements come out in dependency-respecting phases:
//
//  1. CREATE SCHEMA
//  2. CREATE EXTENSION
//  3. CREATE TYPE / ALTER TYPE ADD VALUE
//  4. DROP VIEW for views being recreated
//  5. DROP CONSTRAINT for foreign keys that would block column changes
//  6. CREATE TABLE in foreign-key topological order
//  7. per-table column and constraint removals/changes
//  8. ADD CONSTRAINT for new and deferred constraints
//  9. CREATE VIEW in topological order
//
// 10. DROP TABLE CASCADE
// 11. index changes, CONCURRENTLY routed to the concurrent tail
//
// Ties inside a phase break on (schema, name). The same diff always
// yields the same plan.
func GeneratePlan(diff *SnapshotDiff, desired, current *database.Snapshot, caps database.Capabilities) (*database.MigrationPlan, error) {
	plan := &database.MigrationPlan{}

	// Phase 1: schemas
	if caps.Schemas {
		for _, s := range diff.AddedSchemas {
			plan.Transactional = append(plan.Transactional, NewSQL("CREATE", "SCHEMA").Ident(s).String())
		}
	}

	// Phase 2: extensions
	if caps.Extensions {
		for _, ext := range diff.AddedExtensions {
			plan.Transactional = append(plan.Transactional, NewSQL("CREATE", "EXTENSION", "IF", "NOT", "EXISTS").Ident(ext.Name).String())
		}
	}

	// Phase 3: enum types
	if caps.Enums {
		for _, enum := range diff.AddedEnums {
			plan.Transactional = append(plan.Transactional, createEnumSQL(enum))
		}
		for _, ed := range diff.ExtendedEnums {
			for _, ins := range ed.Added {
				b := NewSQL("ALTER", "TYPE").Ident(ed.Schema, ed.Name).Keyword("ADD", "VALUE").Literal(ins.Value)
				if ins.Before != "" {
					b.Keyword("BEFORE").Literal(ins.Before)
				}
				plan.Transactional = append(plan.Transactional, b.String())
			}
		}
	}

	// Standalone sequences follow extensions; like them, they are only
	// ever created
	for _, seq := range diff.AddedSequences {
		plan.Transactional = append(plan.Transactional, NewSQL("CREATE", "SEQUENCE").Ident(seq.Schema, seq.Name).String())
	}

	// Phase 4: drop views that are going away or will be recreated.
	// Conservative rule: any view touching a table this run alters is
	// rebuilt, because view-redefinition algebra is not worth solving.
	droppedViews, recreateViews := viewsToRebuild(diff, desired, current)
	for _, v := range reverseViewOrder(droppedViews) {
		plan.Transactional = append(plan.Transactional, dropViewSQL(v))
	}

	// Phase 5: drop foreign keys that block this run's column changes
	droppedFKs := foreignKeyDropsFor(diff)
	for _, d := range droppedFKs {
		plan.Transactional = append(plan.Transactional,
			NewSQL("ALTER", "TABLE").Ident(d.schema, d.table).Keyword("DROP", "CONSTRAINT").Ident(d.fk.Name).String())
	}

	// Phase 6: new tables, topologically ordered on their FK edges.
	// Cycles fall back to creation without the cyclic FKs; those are
	// deferred to phase 8.
	orderedTables, deferredFKs, err := orderTableCreations(diff.AddedTables, desired, current)
	if err != nil {
		return nil, err
	}
	for _, t := range orderedTables {
		plan.Transactional = append(plan.Transactional, createTableSQL(t, deferredFKs[t.QualifiedName()]))
	}

	// Phase 7: column-level changes to existing tables, stable order
	for _, td := range diff.ModifiedTables {
		appendTableModifications(plan, &td, caps)
	}

	// Phase 8: constraint additions, including FKs deferred from the
	// cycle break and FKs dropped in phase 5 that are still desired
	appendConstraintAdditions(plan, diff, orderedTables, deferredFKs, droppedFKs, desired)

	// Functions precede views, which may call them; both precede the
	// triggers that bind them to tables
	for _, fn := range diff.AddedFunctions {
		plan.Transactional = append(plan.Transactional, strings.TrimSuffix(strings.TrimSpace(fn.Definition), ";"))
	}

	// Phase 9: recreate and create views in dependency order
	for _, v := range orderViews(append(recreateViews, diff.AddedViews...)) {
		plan.Transactional = append(plan.Transactional, createViewSQL(v, caps))
	}

	for _, trig := range diff.AddedTriggers {
		plan.Transactional = append(plan.Transactional, strings.TrimSuffix(strings.TrimSpace(trig.Definition), ";"))
	}

	// Phase 10: dropped tables, CASCADE where the dialect has it,
	// always destructive
	for _, t := range diff.RemovedTables {
		b := NewSQL("DROP", "TABLE").Ident(t.Schema, t.Name)
		if caps.DropTableCascade {
			b.Keyword("CASCADE")
		}
		plan.Transactional = append(plan.Transactional, b.String())
	}

	// Phase 11: index changes; CONCURRENTLY cannot run in a transaction
	appendIndexChanges(plan, diff, orderedTables, caps)

	return plan, nil
}

// IsDestructiveStatement reports whether a statement can cause
// irrecoverable data loss. The executor gates on this before applying.
func IsDestructiveStatement(stmt string) bool {
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	for _, prefix := range []string{"DROP TABLE", "DROP TYPE", "DROP VIEW", "DROP MATERIALIZED VIEW"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return strings.Contains(upper, "DROP COLUMN")
}

// HasDestructiveStatements reports whether any statement in the plan is
// destructive
func HasDestructiveStatements(plan *database.MigrationPlan) bool {
	for _, stmt := range plan.Statements() {
		if IsDestructiveStatement(stmt) {
			return true
		}
	}
	return false
}

func createEnumSQL(enum database.EnumType) string {
	b := NewSQL("CREATE", "TYPE").Ident(enum.Schema, enum.Name).Keyword("AS", "ENUM")
	values := make([]string, len(enum.Values))
	for i, v := range enum.Values {
		values[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	b.Raw("(" + strings.Join(values, ", ") + ")")
	return b.String()
}

// viewsToRebuild returns the views to drop this run and the subset that
// must come back in phase 9
func viewsToRebuild(diff *SnapshotDiff, desired, current *database.Snapshot) (dropped, recreated []database.View) {
	alteredTables := make(map[string]bool)
	for _, td := range diff.ModifiedTables {
		alteredTables[td.Schema+"."+td.Name] = true
	}
	for _, t := range diff.RemovedTables {
		alteredTables[t.QualifiedName()] = true
	}

	seen := make(map[string]bool)
	addDrop := func(v database.View, recreate *database.View) {
		if seen[v.QualifiedName()] {
			return
		}
		seen[v.QualifiedName()] = true
		dropped = append(dropped, v)
		if recreate != nil {
			recreated = append(recreated, *recreate)
		}
	}

	for _, vd := range diff.ChangedViews {
		v := vd.New
		addDrop(vd.Old, &v)
	}
	for _, v := range diff.RemovedViews {
		addDrop(v, nil)
	}
	for _, v := range sortedViews(current.Views) {
		if seen[v.QualifiedName()] {
			continue
		}
		for qualified := range alteredTables {
			if viewReferences(&v, qualified) {
				if want := desired.FindView(v.Schema, v.Name); want != nil {
					w := *want
					addDrop(v, &w)
				} else {
					addDrop(v, nil)
				}
				break
			}
		}
	}
	return dropped, recreated
}

// viewReferences reports whether a view's definition mentions the
// qualified table, by bare or schema-qualified name. A word-boundary
// text scan keeps this conservative: false positives only cause an
// extra rebuild.
func viewReferences(v *database.View, qualifiedTable string) bool {
	schema, table, _ := strings.Cut(qualifiedTable, ".")
	def := strings.ToLower(v.Definition)
	if containsWord(def, strings.ToLower(schema)+"."+strings.ToLower(table)) {
		return true
	}
	return containsWord(def, strings.ToLower(table))
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		pos := strings.Index(text[idx:], word)
		if pos < 0 {
			return false
		}
		pos += idx
		beforeOK := pos == 0 || !isWordChar(text[pos-1])
		after := pos + len(word)
		afterOK := after >= len(text) || !isWordChar(text[after])
		if beforeOK && afterOK {
			return true
		}
		idx = pos + 1
	}
}

func isWordChar(c byte) bool {
	return c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func dropViewSQL(v database.View) string {
	if v.Materialized {
		return NewSQL("DROP", "MATERIALIZED", "VIEW", "IF", "EXISTS").Ident(v.Schema, v.Name).String()
	}
	return NewSQL("DROP", "VIEW", "IF", "EXISTS").Ident(v.Schema, v.Name).String()
}

func createViewSQL(v database.View, caps database.Capabilities) string {
	var b *SQLBuilder
	if v.Materialized {
		b = NewSQL("CREATE", "MATERIALIZED", "VIEW")
	} else {
		b = NewSQL("CREATE", "VIEW")
	}
	b.Ident(v.Schema, v.Name)
	if v.SecurityBarrier && !v.Materialized && caps.ViewOptions {
		b.Raw("WITH (security_barrier = true)")
	}
	b.Keyword("AS").Raw(v.Definition)
	if !v.Materialized && caps.ViewOptions {
		switch normalizeCheckOption(v.CheckOption) {
		case database.CheckOptionLocal:
			b.Keyword("WITH", "LOCAL", "CHECK", "OPTION")
		case database.CheckOptionCascaded:
			b.Keyword("WITH", "CASCADED", "CHECK", "OPTION")
		}
	}
	return b.String()
}

type droppedFK struct {
	schema string
	table  string
	fk     database.ForeignKey
	// readd marks FKs dropped only to unblock a column change; they
	// come back in phase 8
	readd bool
}

// foreignKeyDropsFor collects the FK drops for phase 5: removed FKs,
// replaced FKs, and FKs whose local or referenced columns change type
// this run.
func foreignKeyDropsFor(diff *SnapshotDiff) []droppedFK {
	var drops []droppedFK
	seen := make(map[string]bool)

	typeChanged := make(map[string]map[string]bool)
	droppedCols := make(map[string]map[string]bool)
	for _, td := range diff.ModifiedTables {
		key := td.Schema + "." + td.Name
		for _, cd := range td.ModifiedColumns {
			if cd.TypeChanged() {
				if typeChanged[key] == nil {
					typeChanged[key] = make(map[string]bool)
				}
				typeChanged[key][cd.ColumnName] = true
			}
		}
		for _, c := range td.RemovedColumns {
			if droppedCols[key] == nil {
				droppedCols[key] = make(map[string]bool)
			}
			droppedCols[key][c.Name] = true
		}
	}

	columnsAffected := func(tableKey string, cols []string) bool {
		for _, c := range cols {
			if typeChanged[tableKey][c] || droppedCols[tableKey][c] {
				return true
			}
		}
		return false
	}

	for _, td := range diff.ModifiedTables {
		tableKey := td.Schema + "." + td.Name
		for _, fk := range td.RemovedForeignKeys {
			id := tableKey + ":" + fk.Name
			if !seen[id] {
				seen[id] = true
				drops = append(drops, droppedFK{schema: td.Schema, table: td.Name, fk: fk})
			}
		}
		// Unchanged FKs still blocking a column change get dropped and
		// re-added around the change
		for _, fk := range unchangedForeignKeys(&td) {
			refKey := fk.ReferencedQualifiedName(td.Schema)
			if columnsAffected(tableKey, fk.Columns) || columnsAffected(refKey, fk.ReferencedColumns) {
				id := tableKey + ":" + fk.Name
				if !seen[id] {
					seen[id] = true
					drops = append(drops, droppedFK{schema: td.Schema, table: td.Name, fk: fk, readd: true})
				}
			}
		}
	}

	sort.Slice(drops, func(i, j int) bool {
		if drops[i].schema != drops[j].schema {
			return drops[i].schema < drops[j].schema
		}
		if drops[i].table != drops[j].table {
			return drops[i].table < drops[j].table
		}
		return drops[i].fk.Name < drops[j].fk.Name
	})
	return drops
}

// unchangedForeignKeys returns desired FKs on a modified table that are
// neither being added nor removed this run: the KeptForeignKeys that
// diffForeignKeys records for desired FKs equal to their current ones.
func unchangedForeignKeys(td *TableDiff) []database.ForeignKey {
	return td.KeptForeignKeys
}

// orderTableCreations sorts new tables so referenced tables come first.
// Foreign keys into tables that already exist do not constrain the
// order; FKs into tables existing in neither snapshot are an error.
// When the new tables form a reference cycle, every table still comes
// out, and the FKs that close cycles are returned separately for
// phase 8.
func orderTableCreations(added []database.Table, desired, current *database.Snapshot) ([]database.Table, map[string][]database.ForeignKey, error) {
	newTables := make(map[string]bool, len(added))
	for _, t := range added {
		newTables[t.QualifiedName()] = true
	}

	deps := make(map[string][]string)
	for _, t := range added {
		for _, fk := range t.ForeignKeys {
			ref := fk.ReferencedQualifiedName(t.Schema)
			if ref == t.QualifiedName() {
				continue // self-reference never constrains creation order
			}
			if newTables[ref] {
				deps[t.QualifiedName()] = append(deps[t.QualifiedName()], ref)
				continue
			}
			refSchema, refName, _ := strings.Cut(ref, ".")
			if current.FindTable(refSchema, refName) == nil && desired.FindTable(refSchema, refName) == nil {
				return nil, nil, &DependencyError{
					Missing: ref,
					Message: fmt.Sprintf("foreign key %s on table %s references table %s, which exists in neither the desired nor the current state", fk.Name, t.QualifiedName(), ref),
				}
			}
		}
	}

	ordered, acyclic := topologicalSort(added, deps, func(t database.Table) string { return t.QualifiedName() })
	deferred := make(map[string][]database.ForeignKey)
	if acyclic {
		return ordered, deferred, nil
	}

	// Cycle: create the member tables without their FKs into other new
	// tables and add those constraints afterwards
	cycleMembers := cycleParticipants(added, deps)
	result := make([]database.Table, 0, len(ordered))
	for _, t := range ordered {
		if !cycleMembers[t.QualifiedName()] {
			result = append(result, t)
			continue
		}
		stripped := t
		stripped.ForeignKeys = nil
		for _, fk := range t.ForeignKeys {
			ref := fk.ReferencedQualifiedName(t.Schema)
			if cycleMembers[ref] || ref == t.QualifiedName() {
				deferred[t.QualifiedName()] = append(deferred[t.QualifiedName()], fk)
			} else {
				stripped.ForeignKeys = append(stripped.ForeignKeys, fk)
			}
		}
		result = append(result, stripped)
	}
	return result, deferred, nil
}

// cycleParticipants finds tables on at least one dependency cycle
func cycleParticipants(tables []database.Table, deps map[string][]string) map[string]bool {
	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		inSet[t.QualifiedName()] = true
	}

	members := make(map[string]bool)
	for _, t := range tables {
		start := t.QualifiedName()
		// DFS from each node looking for a path back to it
		var stack []string
		visited := make(map[string]bool)
		stack = append(stack, deps[start]...)
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n == start {
				members[start] = true
				break
			}
			if visited[n] || !inSet[n] {
				continue
			}
			visited[n] = true
			stack = append(stack, deps[n]...)
		}
	}
	return members
}

// createTableSQL renders CREATE TABLE with columns and inline
// constraints. FKs in deferred are excluded; phase 8 adds them.
func createTableSQL(t database.Table, deferred []database.ForeignKey) string {
	deferredNames := make(map[string]bool, len(deferred))
	for _, fk := range deferred {
		deferredNames[fk.Name] = true
	}

	var lines []string
	for _, col := range t.Columns {
		lines = append(lines, columnDefinition(col, t.PrimaryKey))
	}
	if pk := t.PrimaryKey; pk != nil && len(pk.Columns) > 1 {
		lines = append(lines, constraintBody("PRIMARY KEY", pk.Name, pk.Columns))
	}
	for _, uk := range t.Uniques {
		lines = append(lines, constraintBody("UNIQUE", uk.Name, uk.Columns))
	}
	for _, chk := range t.Checks {
		line := fmt.Sprintf("CHECK (%s)", chk.Expression)
		if chk.Name != "" {
			line = fmt.Sprintf("CONSTRAINT %s %s", QuoteIdent(chk.Name), line)
		}
		lines = append(lines, line)
	}
	for _, fk := range t.ForeignKeys {
		if deferredNames[fk.Name] {
			continue
		}
		lines = append(lines, foreignKeyBody(fk, t.Schema))
	}

	b := NewSQL("CREATE", "TABLE").Ident(t.Schema, t.Name).OpenBody()
	for i, line := range lines {
		b.BodyLine(line, i == len(lines)-1)
	}
	return b.CloseBody().String()
}

// renderColumnType emits the canonical type, except the SERIAL family,
// whose canonical form (integer plus an owned sequence) only exists
// after creation
func renderColumnType(surfaceType string) string {
	canonical, serial := normalizeTypeSerial(surfaceType)
	if !serial {
		return canonical
	}
	switch canonical {
	case "bigint":
		return "bigserial"
	case "smallint":
		return "smallserial"
	}
	return "serial"
}

// columnDefinition formats one column line. A single-column primary key
// is declared inline; composite keys become a table constraint.
func columnDefinition(col database.Column, pk *database.PrimaryKey) string {
	var sb strings.Builder
	sb.WriteString(QuoteIdent(col.Name))
	sb.WriteString(" ")
	sb.WriteString(renderColumnType(col.Type))

	inlinePK := col.IsPrimaryKey && pk != nil && len(pk.Columns) == 1
	if inlinePK {
		sb.WriteString(" PRIMARY KEY")
	} else if !col.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if col.Default != nil {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(*col.Default)
	}
	return sb.String()
}

func constraintBody(kind, name string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdent(c)
	}
	body := fmt.Sprintf("%s (%s)", kind, strings.Join(quoted, ", "))
	if name != "" {
		return fmt.Sprintf("CONSTRAINT %s %s", QuoteIdent(name), body)
	}
	return body
}

func foreignKeyBody(fk database.ForeignKey, owningSchema string) string {
	local := make([]string, len(fk.Columns))
	for i, c := range fk.Columns {
		local[i] = QuoteIdent(c)
	}
	remote := make([]string, len(fk.ReferencedColumns))
	for i, c := range fk.ReferencedColumns {
		remote[i] = QuoteIdent(c)
	}

	refSchema := fk.ReferencedSchema
	if refSchema == "" {
		refSchema = owningSchema
	}

	var sb strings.Builder
	if fk.Name != "" {
		fmt.Fprintf(&sb, "CONSTRAINT %s ", QuoteIdent(fk.Name))
	}
	fmt.Fprintf(&sb, "FOREIGN KEY (%s) REFERENCES %s (%s)",
		strings.Join(local, ", "), QualifiedIdent(refSchema, fk.ReferencedTable), strings.Join(remote, ", "))
	if action := normalizeFKAction(fk.OnDelete); action != "NO ACTION" {
		sb.WriteString(" ON DELETE " + action)
	}
	if action := normalizeFKAction(fk.OnUpdate); action != "NO ACTION" {
		sb.WriteString(" ON UPDATE " + action)
	}
	if fk.Deferrable {
		sb.WriteString(" DEFERRABLE")
	}
	return sb.String()
}

// appendTableModifications emits phase 7 for one table: added columns
// first (so replacement columns exist before their predecessors drop),
// then dropped columns, then per-column alteration groups, then
// constraint removals.
func appendTableModifications(plan *database.MigrationPlan, td *TableDiff, caps database.Capabilities) {
	for _, col := range td.AddedColumns {
		plan.Transactional = append(plan.Transactional,
			NewSQL("ALTER", "TABLE").Ident(td.Schema, td.Name).Keyword("ADD", "COLUMN").Raw(columnDefinition(col, nil)).String())
	}
	for _, col := range td.RemovedColumns {
		plan.Transactional = append(plan.Transactional,
			NewSQL("ALTER", "TABLE").Ident(td.Schema, td.Name).Keyword("DROP", "COLUMN").Ident(col.Name).String())
	}
	for _, cd := range td.ModifiedColumns {
		plan.Transactional = append(plan.Transactional, alterColumnStatements(td, &cd, caps)...)
	}

	if pk := td.RemovedPrimaryKey; pk != nil && pk.Name != "" {
		plan.Transactional = append(plan.Transactional,
			NewSQL("ALTER", "TABLE").Ident(td.Schema, td.Name).Keyword("DROP", "CONSTRAINT").Ident(pk.Name).String())
	}
	for _, uk := range td.RemovedUniques {
		plan.Transactional = append(plan.Transactional,
			NewSQL("ALTER", "TABLE").Ident(td.Schema, td.Name).Keyword("DROP", "CONSTRAINT").Ident(uk.Name).String())
	}
	for _, chk := range td.RemovedChecks {
		plan.Transactional = append(plan.Transactional,
			NewSQL("ALTER", "TABLE").Ident(td.Schema, td.Name).Keyword("DROP", "CONSTRAINT").Ident(chk.Name).String())
	}
}

// alterColumnStatements emits the strict micro-ordering for a changed
// column:
//
//  1. DROP DEFAULT when the type changes and the current column has a
//     default, so the old default cannot fail the cast
//  2. ALTER TYPE with USING whenever canonical types differ
//  3. SET DEFAULT when the desired default differs from what survives
//     the cast
//  4. SET / DROP NOT NULL last, after the new default is in place
func alterColumnStatements(td *TableDiff, cd *ColumnDiff, caps database.Capabilities) []string {
	var stmts []string
	alter := func() *SQLBuilder {
		return NewSQL("ALTER", "TABLE").Ident(td.Schema, td.Name).Keyword("ALTER", "COLUMN").Ident(cd.ColumnName)
	}

	typeChanged := cd.TypeChanged() && caps.AlterColumnType
	defaultDropped := false

	if typeChanged && cd.Old.Default != nil {
		stmts = append(stmts, alter().Keyword("DROP", "DEFAULT").String())
		defaultDropped = true
	}

	if typeChanged {
		newType := NormalizeType(cd.New.Type)
		stmts = append(stmts, alter().
			Keyword("TYPE").Raw(newType).
			Keyword("USING").Raw(QuoteIdent(cd.ColumnName)+"::"+newType).String())
	}

	// After a cast the surviving default is none when it was dropped,
	// otherwise whatever was there before
	var surviving *string
	if !defaultDropped {
		surviving = cd.Old.Default
	}
	_, wantSerial := normalizeTypeSerial(cd.New.Type)
	if !wantSerial && !EqualDefaults(cd.New.Default, surviving) {
		if cd.New.Default != nil {
			stmts = append(stmts, alter().Keyword("SET", "DEFAULT").Raw(*cd.New.Default).String())
		} else if surviving != nil {
			stmts = append(stmts, alter().Keyword("DROP", "DEFAULT").String())
		}
	}

	if cd.Old.Nullable != cd.New.Nullable {
		if cd.New.Nullable {
			stmts = append(stmts, alter().Keyword("DROP", "NOT", "NULL").String())
		} else {
			stmts = append(stmts, alter().Keyword("SET", "NOT", "NULL").String())
		}
	}

	return stmts
}

// appendConstraintAdditions emits phase 8
func appendConstraintAdditions(plan *database.MigrationPlan, diff *SnapshotDiff, newTables []database.Table, deferredFKs map[string][]database.ForeignKey, droppedFKs []droppedFK, desired *database.Snapshot) {
	addConstraint := func(schema, table, body string) {
		plan.Transactional = append(plan.Transactional,
			NewSQL("ALTER", "TABLE").Ident(schema, table).Keyword("ADD").Raw(body).String())
	}

	// FKs deferred from cyclic table creation, in table order
	for _, t := range newTables {
		for _, fk := range deferredFKs[t.QualifiedName()] {
			addConstraint(t.Schema, t.Name, foreignKeyBody(fk, t.Schema))
		}
	}

	// FKs dropped in phase 5 purely to unblock column changes
	for _, d := range droppedFKs {
		if d.readd {
			addConstraint(d.schema, d.table, foreignKeyBody(d.fk, d.schema))
		}
	}

	for _, td := range diff.ModifiedTables {
		for _, fk := range td.AddedForeignKeys {
			addConstraint(td.Schema, td.Name, foreignKeyBody(fk, td.Schema))
		}
		if pk := td.AddedPrimaryKey; pk != nil {
			addConstraint(td.Schema, td.Name, constraintBody("PRIMARY KEY", pk.Name, pk.Columns))
		}
		for _, uk := range td.AddedUniques {
			addConstraint(td.Schema, td.Name, constraintBody("UNIQUE", uk.Name, uk.Columns))
		}
		for _, chk := range td.AddedChecks {
			body := fmt.Sprintf("CHECK (%s)", chk.Expression)
			if chk.Name != "" {
				body = fmt.Sprintf("CONSTRAINT %s %s", QuoteIdent(chk.Name), body)
			}
			addConstraint(td.Schema, td.Name, body)
		}
	}
}

// orderViews sorts views so that a view reading from another view is
// created after it
func orderViews(views []database.View) []database.View {
	deps := make(map[string][]string)
	for i := range views {
		for j := range views {
			if i == j {
				continue
			}
			if viewReferences(&views[i], views[j].QualifiedName()) {
				deps[views[i].QualifiedName()] = append(deps[views[i].QualifiedName()], views[j].QualifiedName())
			}
		}
	}
	ordered, _ := topologicalSort(views, deps, func(v database.View) string { return v.QualifiedName() })
	return ordered
}

// reverseViewOrder drops dependents before the views they read from
func reverseViewOrder(views []database.View) []database.View {
	ordered := orderViews(views)
	out := make([]database.View, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		out = append(out, ordered[i])
	}
	return out
}

// appendIndexChanges emits phase 11. CONCURRENTLY operations go to the
// concurrent tail; everything else stays in the transaction.
func appendIndexChanges(plan *database.MigrationPlan, diff *SnapshotDiff, newTables []database.Table, caps database.Capabilities) {
	emitCreate := func(schema, table string, idx database.Index) {
		concurrent := idx.Concurrent && caps.ConcurrentIndexes
		b := NewSQL("CREATE")
		if idx.Unique {
			b.Keyword("UNIQUE")
		}
		b.Keyword("INDEX")
		if concurrent {
			b.Keyword("CONCURRENTLY")
		}
		b.Ident(idx.Name).Keyword("ON").Ident(schema, table).IdentList(idx.Columns...)
		if concurrent {
			plan.Concurrent = append(plan.Concurrent, b.String())
		} else {
			plan.Transactional = append(plan.Transactional, b.String())
		}
	}

	for _, t := range newTables {
		for _, idx := range t.Indexes {
			emitCreate(t.Schema, t.Name, idx)
		}
	}

	for _, td := range diff.ModifiedTables {
		for _, idx := range td.RemovedIndexes {
			b := NewSQL("DROP", "INDEX")
			concurrent := idx.Concurrent && caps.ConcurrentIndexes
			if concurrent {
				b.Keyword("CONCURRENTLY")
			}
			b.Ident(td.Schema, idx.Name)
			if concurrent {
				plan.Concurrent = append(plan.Concurrent, b.String())
			} else {
				plan.Transactional = append(plan.Transactional, b.String())
			}
		}
		for _, idx := range td.AddedIndexes {
			emitCreate(td.Schema, td.Name, idx)
		}
	}
}
