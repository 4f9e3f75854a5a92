package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/elitan/dbterra/database"
)

// Introspector implements database.Introspector for SQLite. SQLite has
// a single implicit schema; the managed-schema list is ignored and
// objects are reported under "main".
type Introspector struct{}

// NewIntrospector creates a new SQLite introspector
func NewIntrospector() *Introspector {
	return &Introspector{}
}

// IntrospectSnapshot reads the SQLite database schema
func (i *Introspector) IntrospectSnapshot(ctx context.Context, db *sql.DB, schemas []string) (*database.Snapshot, error) {
	snap := &database.Snapshot{
		Schemas: []string{"main"},
		Tables:  make([]database.Table, 0),
	}

	tables, err := i.getTables(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	for _, tableName := range tables {
		table := database.Table{Schema: "main", Name: tableName}

		if table.Columns, table.PrimaryKey, err = i.getColumns(ctx, db, tableName); err != nil {
			return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
		}
		if table.Indexes, table.Uniques, err = i.getIndexes(ctx, db, tableName); err != nil {
			return nil, fmt.Errorf("failed to get indexes for table %s: %w", tableName, err)
		}
		if table.ForeignKeys, err = i.getForeignKeys(ctx, db, tableName); err != nil {
			return nil, fmt.Errorf("failed to get foreign keys for table %s: %w", tableName, err)
		}

		snap.Tables = append(snap.Tables, table)
	}

	if snap.Views, err = i.getViews(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}

	return snap, nil
}

func (i *Introspector) getTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tableNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tableNames = append(tableNames, name)
	}
	return tableNames, rows.Err()
}

func (i *Introspector) getColumns(ctx context.Context, db *sql.DB, tableName string) ([]database.Column, *database.PrimaryKey, error) {
	// PRAGMA table_info returns: cid, name, type, notnull, dflt_value, pk
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", tableName))
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []database.Column
	var pk *database.PrimaryKey
	for rows.Next() {
		var cid int
		var col database.Column
		var notNull, pkOrdinal int
		var defaultVal sql.NullString

		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultVal, &pkOrdinal); err != nil {
			return nil, nil, err
		}

		col.Nullable = notNull == 0
		if defaultVal.Valid {
			d := defaultVal.String
			col.Default = &d
		}
		if pkOrdinal > 0 {
			col.IsPrimaryKey = true
			col.Nullable = false
			if pk == nil {
				pk = &database.PrimaryKey{}
			}
			pk.Columns = append(pk.Columns, col.Name)
		}

		columns = append(columns, col)
	}
	return columns, pk, rows.Err()
}

func (i *Introspector) getIndexes(ctx context.Context, db *sql.DB, tableName string) ([]database.Index, []database.Unique, error) {
	// PRAGMA index_list returns: seq, name, unique, origin, partial.
	// origin 'u' marks an index backing a UNIQUE constraint; 'pk' the
	// primary key index. Both are reported as constraints, not indexes.
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%q)", tableName))
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	type indexEntry struct {
		name   string
		unique bool
		origin string
	}
	var entries []indexEntry
	for rows.Next() {
		var seq int
		var e indexEntry
		var uniqueInt, partial int
		if err := rows.Scan(&seq, &e.name, &uniqueInt, &e.origin, &partial); err != nil {
			return nil, nil, err
		}
		e.unique = uniqueInt == 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var indexes []database.Index
	var uniques []database.Unique
	for _, e := range entries {
		if e.origin == "pk" {
			continue
		}

		columns, err := i.getIndexColumns(ctx, db, e.name)
		if err != nil {
			return nil, nil, err
		}

		if e.origin == "u" {
			uniques = append(uniques, database.Unique{Name: e.name, Columns: columns})
			continue
		}
		indexes = append(indexes, database.Index{Name: e.name, Columns: columns, Unique: e.unique})
	}
	return indexes, uniques, nil
}

func (i *Introspector) getIndexColumns(ctx context.Context, db *sql.DB, indexName string) ([]string, error) {
	// PRAGMA index_info returns: seqno, cid, name
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%q)", indexName))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			columns = append(columns, name.String)
		}
	}
	return columns, rows.Err()
}

func (i *Introspector) getForeignKeys(ctx context.Context, db *sql.DB, tableName string) ([]database.ForeignKey, error) {
	// PRAGMA foreign_key_list returns: id, seq, table, from, to, on_update, on_delete, match
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", tableName))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	fkMap := make(map[int]*database.ForeignKey)
	var fkIDs []int
	for rows.Next() {
		var id, seq int
		var refTable, from string
		var to sql.NullString
		var onUpdate, onDelete, match string

		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}

		fk, exists := fkMap[id]
		if !exists {
			fk = &database.ForeignKey{
				// SQLite does not name inline foreign keys; synthesize a
				// stable one so diffing has something to match on.
				Name:            fmt.Sprintf("%s_%s_fkey", tableName, from),
				ReferencedTable: refTable,
				OnUpdate:        onUpdate,
				OnDelete:        onDelete,
			}
			fkMap[id] = fk
			fkIDs = append(fkIDs, id)
		}

		fk.Columns = append(fk.Columns, from)
		if to.Valid {
			fk.ReferencedColumns = append(fk.ReferencedColumns, to.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var foreignKeys []database.ForeignKey
	for _, id := range fkIDs {
		foreignKeys = append(foreignKeys, *fkMap[id])
	}
	return foreignKeys, nil
}

func (i *Introspector) getViews(ctx context.Context, db *sql.DB) ([]database.View, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, sql FROM sqlite_master
		WHERE type = 'view'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var views []database.View
	for rows.Next() {
		var v database.View
		var createSQL string
		if err := rows.Scan(&v.Name, &createSQL); err != nil {
			return nil, err
		}
		v.Schema = "main"
		v.Definition = viewBodyFromCreate(createSQL)
		views = append(views, v)
	}
	return views, rows.Err()
}

// viewBodyFromCreate extracts the SELECT body from the stored
// CREATE VIEW text, since sqlite_master keeps the whole statement.
func viewBodyFromCreate(createSQL string) string {
	upper := strings.ToUpper(createSQL)
	if idx := strings.Index(upper, " AS "); idx >= 0 {
		body := createSQL[idx+len(" AS "):]
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), ";"))
	}
	return strings.TrimSpace(createSQL)
}
