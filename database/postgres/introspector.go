package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/elitan/dbterra/database"
	"github.com/lib/pq"
)

// Introspector implements database.Introspector for PostgreSQL. All
// queries filter by the managed schema list; objects elsewhere are
// invisible, except tables referenced by foreign keys from managed
// tables, which surface as opaque references on the owning table.
type Introspector struct{}

// NewIntrospector creates a new PostgreSQL introspector
func NewIntrospector() *Introspector {
	return &Introspector{}
}

// IntrospectSnapshot reads every managed object into a Snapshot. Types
// and defaults are reported as the catalogs spell them; normalization
// happens later, during diffing.
func (i *Introspector) IntrospectSnapshot(ctx context.Context, db *sql.DB, schemas []string) (*database.Snapshot, error) {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}

	snap := &database.Snapshot{
		Tables: make([]database.Table, 0),
	}

	var err error
	if snap.Schemas, err = i.getSchemas(ctx, db, schemas); err != nil {
		return nil, fmt.Errorf("failed to introspect schemas: %w", err)
	}
	if snap.Extensions, err = i.getExtensions(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to introspect extensions: %w", err)
	}
	if snap.Enums, err = i.getEnums(ctx, db, schemas); err != nil {
		return nil, fmt.Errorf("failed to introspect enum types: %w", err)
	}
	if snap.Sequences, err = i.getSequences(ctx, db, schemas); err != nil {
		return nil, fmt.Errorf("failed to introspect sequences: %w", err)
	}

	tables, err := i.getTables(ctx, db, schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect tables: %w", err)
	}

	for _, tbl := range tables {
		table := database.Table{Schema: tbl.schema, Name: tbl.name}

		if table.Columns, err = i.getColumns(ctx, db, tbl.schema, tbl.name); err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s.%s: %w", tbl.schema, tbl.name, err)
		}
		if table.PrimaryKey, err = i.getPrimaryKey(ctx, db, tbl.schema, tbl.name); err != nil {
			return nil, fmt.Errorf("failed to get primary key for table %s.%s: %w", tbl.schema, tbl.name, err)
		}
		if table.PrimaryKey != nil {
			for _, pkCol := range table.PrimaryKey.Columns {
				if col := table.FindColumn(pkCol); col != nil {
					col.IsPrimaryKey = true
					col.Nullable = false
				}
			}
		}
		if table.ForeignKeys, err = i.getForeignKeys(ctx, db, tbl.schema, tbl.name); err != nil {
			return nil, fmt.Errorf("failed to get foreign keys for table %s.%s: %w", tbl.schema, tbl.name, err)
		}
		if table.Uniques, err = i.getUniques(ctx, db, tbl.schema, tbl.name); err != nil {
			return nil, fmt.Errorf("failed to get unique constraints for table %s.%s: %w", tbl.schema, tbl.name, err)
		}
		if table.Checks, err = i.getChecks(ctx, db, tbl.schema, tbl.name); err != nil {
			return nil, fmt.Errorf("failed to get check constraints for table %s.%s: %w", tbl.schema, tbl.name, err)
		}
		if table.Indexes, err = i.getIndexes(ctx, db, tbl.schema, tbl.name); err != nil {
			return nil, fmt.Errorf("failed to get indexes for table %s.%s: %w", tbl.schema, tbl.name, err)
		}

		snap.Tables = append(snap.Tables, table)
	}

	if snap.Views, err = i.getViews(ctx, db, schemas); err != nil {
		return nil, fmt.Errorf("failed to introspect views: %w", err)
	}
	if snap.Functions, err = i.getFunctions(ctx, db, schemas); err != nil {
		return nil, fmt.Errorf("failed to introspect functions: %w", err)
	}
	if snap.Triggers, err = i.getTriggers(ctx, db, schemas); err != nil {
		return nil, fmt.Errorf("failed to introspect triggers: %w", err)
	}

	return snap, nil
}

type qualifiedTable struct {
	schema string
	name   string
}

func (i *Introspector) getSchemas(ctx context.Context, db *sql.DB, schemas []string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT nspname
		FROM pg_catalog.pg_namespace
		WHERE nspname = ANY($1)
		ORDER BY nspname
	`, pq.Array(schemas))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (i *Introspector) getExtensions(ctx context.Context, db *sql.DB) ([]database.Extension, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT extname
		FROM pg_catalog.pg_extension
		WHERE extname <> 'plpgsql'
		ORDER BY extname
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []database.Extension
	for rows.Next() {
		var ext database.Extension
		if err := rows.Scan(&ext.Name); err != nil {
			return nil, err
		}
		out = append(out, ext)
	}
	return out, rows.Err()
}

func (i *Introspector) getEnums(ctx context.Context, db *sql.DB, schemas []string) ([]database.EnumType, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT n.nspname, t.typname, e.enumlabel
		FROM pg_catalog.pg_type t
		JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		JOIN pg_catalog.pg_enum e ON e.enumtypid = t.oid
		WHERE t.typtype = 'e'
		  AND n.nspname = ANY($1)
		ORDER BY n.nspname, t.typname, e.enumsortorder
	`, pq.Array(schemas))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []database.EnumType
	var current *database.EnumType
	for rows.Next() {
		var schema, name, label string
		if err := rows.Scan(&schema, &name, &label); err != nil {
			return nil, err
		}
		if current == nil || current.Schema != schema || current.Name != name {
			out = append(out, database.EnumType{Schema: schema, Name: name})
			current = &out[len(out)-1]
		}
		current.Values = append(current.Values, label)
	}
	return out, rows.Err()
}

func (i *Introspector) getSequences(ctx context.Context, db *sql.DB, schemas []string) ([]database.Sequence, error) {
	// Sequences owned by SERIAL columns are implicit; skip them here so
	// the differ never tries to manage them directly.
	rows, err := db.QueryContext(ctx, `
		SELECT n.nspname, c.relname
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'S'
		  AND n.nspname = ANY($1)
		  AND NOT EXISTS (
			SELECT 1 FROM pg_catalog.pg_depend d
			WHERE d.objid = c.oid AND d.deptype = 'a'
		  )
		ORDER BY n.nspname, c.relname
	`, pq.Array(schemas))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []database.Sequence
	for rows.Next() {
		var seq database.Sequence
		if err := rows.Scan(&seq.Schema, &seq.Name); err != nil {
			return nil, err
		}
		out = append(out, seq)
	}
	return out, rows.Err()
}

func (i *Introspector) getTables(ctx context.Context, db *sql.DB, schemas []string) ([]qualifiedTable, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema = ANY($1)
		  AND table_type = 'BASE TABLE'
		ORDER BY table_schema, table_name
	`, pq.Array(schemas))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []qualifiedTable
	for rows.Next() {
		var t qualifiedTable
		if err := rows.Scan(&t.schema, &t.name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (i *Introspector) getColumns(ctx context.Context, db *sql.DB, schema, tableName string) ([]database.Column, error) {
	// data_type alone loses length/precision modifiers, so the full
	// surface type comes from format_type over the attribute.
	query := `
		SELECT
			a.attname,
			pg_catalog.format_type(a.atttypid, a.atttypmod),
			NOT a.attnotnull,
			pg_catalog.pg_get_expr(ad.adbin, ad.adrelid)
		FROM pg_catalog.pg_attribute a
		JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_catalog.pg_attrdef ad
			ON ad.adrelid = a.attrelid AND ad.adnum = a.attnum
		WHERE n.nspname = $1
		  AND c.relname = $2
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		ORDER BY a.attnum
	`

	rows, err := db.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []database.Column
	for rows.Next() {
		var col database.Column
		var defaultVal sql.NullString

		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &defaultVal); err != nil {
			return nil, err
		}

		col.Type = strings.TrimSpace(col.Type)
		if defaultVal.Valid {
			d := defaultVal.String
			col.Default = &d
		}

		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (i *Introspector) getPrimaryKey(ctx context.Context, db *sql.DB, schema, tableName string) (*database.PrimaryKey, error) {
	query := `
		SELECT con.conname, a.attname
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_catalog.pg_attribute a
			ON a.attrelid = c.oid AND a.attnum = k.attnum
		WHERE con.contype = 'p'
		  AND n.nspname = $1
		  AND c.relname = $2
		ORDER BY k.ord
	`

	rows, err := db.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var pk *database.PrimaryKey
	for rows.Next() {
		var name, column string
		if err := rows.Scan(&name, &column); err != nil {
			return nil, err
		}
		if pk == nil {
			pk = &database.PrimaryKey{Name: name}
		}
		pk.Columns = append(pk.Columns, column)
	}
	return pk, rows.Err()
}

func (i *Introspector) getForeignKeys(ctx context.Context, db *sql.DB, schema, tableName string) ([]database.ForeignKey, error) {
	// Referenced tables may live in unmanaged schemas; the reference is
	// kept verbatim so the differ can leave it alone.
	query := `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_schema AS foreign_table_schema,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name,
			rc.update_rule,
			rc.delete_rule,
			tc.is_deferrable = 'YES'
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.constraint_schema = tc.constraint_schema
		JOIN information_schema.referential_constraints AS rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	rows, err := db.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	fkMap := make(map[string]*database.ForeignKey)
	var fkNames []string

	for rows.Next() {
		var constraintName, columnName, foreignSchema, foreignTable, foreignColumn string
		var updateRule, deleteRule string
		var deferrable bool

		if err := rows.Scan(&constraintName, &columnName, &foreignSchema, &foreignTable, &foreignColumn, &updateRule, &deleteRule, &deferrable); err != nil {
			return nil, err
		}

		fk, exists := fkMap[constraintName]
		if !exists {
			fk = &database.ForeignKey{
				Name:             constraintName,
				ReferencedSchema: foreignSchema,
				ReferencedTable:  foreignTable,
				OnUpdate:         updateRule,
				OnDelete:         deleteRule,
				Deferrable:       deferrable,
			}
			fkMap[constraintName] = fk
			fkNames = append(fkNames, constraintName)
		}

		fk.Columns = append(fk.Columns, columnName)
		fk.ReferencedColumns = append(fk.ReferencedColumns, foreignColumn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var foreignKeys []database.ForeignKey
	for _, name := range fkNames {
		foreignKeys = append(foreignKeys, *fkMap[name])
	}
	return foreignKeys, nil
}

func (i *Introspector) getUniques(ctx context.Context, db *sql.DB, schema, tableName string) ([]database.Unique, error) {
	query := `
		SELECT con.conname, a.attname
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_catalog.pg_attribute a
			ON a.attrelid = c.oid AND a.attnum = k.attnum
		WHERE con.contype = 'u'
		  AND n.nspname = $1
		  AND c.relname = $2
		ORDER BY con.conname, k.ord
	`

	rows, err := db.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ukMap := make(map[string]*database.Unique)
	var ukNames []string
	for rows.Next() {
		var name, column string
		if err := rows.Scan(&name, &column); err != nil {
			return nil, err
		}
		uk, exists := ukMap[name]
		if !exists {
			uk = &database.Unique{Name: name}
			ukMap[name] = uk
			ukNames = append(ukNames, name)
		}
		uk.Columns = append(uk.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var uniques []database.Unique
	for _, name := range ukNames {
		uniques = append(uniques, *ukMap[name])
	}
	return uniques, nil
}

func (i *Introspector) getChecks(ctx context.Context, db *sql.DB, schema, tableName string) ([]database.Check, error) {
	query := `
		SELECT con.conname, pg_catalog.pg_get_constraintdef(con.oid)
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE con.contype = 'c'
		  AND n.nspname = $1
		  AND c.relname = $2
		ORDER BY con.conname
	`

	rows, err := db.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var checks []database.Check
	for rows.Next() {
		var chk database.Check
		var def string
		if err := rows.Scan(&chk.Name, &def); err != nil {
			return nil, err
		}
		chk.Expression = stripCheckClause(def)
		checks = append(checks, chk)
	}
	return checks, rows.Err()
}

// stripCheckClause unwraps "CHECK (expr)" down to expr
func stripCheckClause(def string) string {
	trimmed := strings.TrimSpace(def)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "CHECK") {
		trimmed = strings.TrimSpace(trimmed[len("CHECK"):])
	}
	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		trimmed = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	}
	return trimmed
}

func (i *Introspector) getIndexes(ctx context.Context, db *sql.DB, schema, tableName string) ([]database.Index, error) {
	// Indexes backing PRIMARY KEY or UNIQUE constraints are reported as
	// constraints, not indexes.
	query := `
		SELECT
			ic.relname,
			ix.indisunique,
			a.attname
		FROM pg_catalog.pg_index ix
		JOIN pg_catalog.pg_class ic ON ic.oid = ix.indexrelid
		JOIN pg_catalog.pg_class tc ON tc.oid = ix.indrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = tc.relnamespace
		JOIN unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_catalog.pg_attribute a
			ON a.attrelid = tc.oid AND a.attnum = k.attnum
		WHERE n.nspname = $1
		  AND tc.relname = $2
		  AND NOT ix.indisprimary
		  AND NOT EXISTS (
			SELECT 1 FROM pg_catalog.pg_constraint con
			WHERE con.conindid = ix.indexrelid
			  AND con.contype IN ('p', 'u')
		  )
		ORDER BY ic.relname, k.ord
	`

	rows, err := db.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	idxMap := make(map[string]*database.Index)
	var idxNames []string
	for rows.Next() {
		var name, column string
		var unique bool
		if err := rows.Scan(&name, &unique, &column); err != nil {
			return nil, err
		}
		idx, exists := idxMap[name]
		if !exists {
			idx = &database.Index{Name: name, Unique: unique}
			idxMap[name] = idx
			idxNames = append(idxNames, name)
		}
		idx.Columns = append(idx.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var indexes []database.Index
	for _, name := range idxNames {
		indexes = append(indexes, *idxMap[name])
	}
	return indexes, nil
}

func (i *Introspector) getFunctions(ctx context.Context, db *sql.DB, schemas []string) ([]database.Function, error) {
	// Functions installed by extensions belong to the extension, not
	// the schema file
	query := `
		SELECT n.nspname, p.proname, pg_catalog.pg_get_functiondef(p.oid)
		FROM pg_catalog.pg_proc p
		JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = ANY($1)
		  AND p.prokind IN ('f', 'p')
		  AND NOT EXISTS (
			SELECT 1 FROM pg_catalog.pg_depend d
			WHERE d.objid = p.oid AND d.deptype = 'e'
		  )
		ORDER BY n.nspname, p.proname
	`

	rows, err := db.QueryContext(ctx, query, pq.Array(schemas))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []database.Function
	for rows.Next() {
		var fn database.Function
		if err := rows.Scan(&fn.Schema, &fn.Name, &fn.Definition); err != nil {
			return nil, err
		}
		out = append(out, fn)
	}
	return out, rows.Err()
}

func (i *Introspector) getTriggers(ctx context.Context, db *sql.DB, schemas []string) ([]database.Trigger, error) {
	query := `
		SELECT n.nspname, c.relname, t.tgname, pg_catalog.pg_get_triggerdef(t.oid)
		FROM pg_catalog.pg_trigger t
		JOIN pg_catalog.pg_class c ON c.oid = t.tgrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE NOT t.tgisinternal
		  AND n.nspname = ANY($1)
		ORDER BY n.nspname, c.relname, t.tgname
	`

	rows, err := db.QueryContext(ctx, query, pq.Array(schemas))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []database.Trigger
	for rows.Next() {
		var trig database.Trigger
		if err := rows.Scan(&trig.Schema, &trig.Table, &trig.Name, &trig.Definition); err != nil {
			return nil, err
		}
		out = append(out, trig)
	}
	return out, rows.Err()
}

func (i *Introspector) getViews(ctx context.Context, db *sql.DB, schemas []string) ([]database.View, error) {
	query := `
		SELECT
			v.schemaname,
			v.viewname,
			v.definition,
			false AS materialized,
			COALESCE(iv.check_option, 'NONE'),
			COALESCE(c.reloptions @> ARRAY['security_barrier=true'], false)
		FROM pg_catalog.pg_views v
		JOIN pg_catalog.pg_class c ON c.relname = v.viewname
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace AND n.nspname = v.schemaname
		LEFT JOIN information_schema.views iv
			ON iv.table_schema = v.schemaname AND iv.table_name = v.viewname
		WHERE v.schemaname = ANY($1)
		UNION ALL
		SELECT
			m.schemaname,
			m.matviewname,
			m.definition,
			true AS materialized,
			'NONE',
			false
		FROM pg_catalog.pg_matviews m
		WHERE m.schemaname = ANY($1)
		ORDER BY 1, 2
	`

	rows, err := db.QueryContext(ctx, query, pq.Array(schemas))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var views []database.View
	for rows.Next() {
		var v database.View
		if err := rows.Scan(&v.Schema, &v.Name, &v.Definition, &v.Materialized, &v.CheckOption, &v.SecurityBarrier); err != nil {
			return nil, err
		}
		v.Definition = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v.Definition), ";"))
		views = append(views, v)
	}
	return views, rows.Err()
}
