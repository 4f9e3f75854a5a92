package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/elitan/dbterra/database"
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/pganalyze/pg_query_go/v6/parser"
)

// ParseSchemaFile reads and parses a desired-state SQL file
func ParseSchemaFile(path string) (*database.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ParserError{
				FilePath: path,
				Message:  fmt.Sprintf("Schema file not found: %s", path),
			}
		}
		return nil, &ParserError{
			FilePath: path,
			Message:  fmt.Sprintf("failed to read schema file: %v", err),
		}
	}
	return parseSQLText(string(data), path)
}

// ParseSQL parses desired-state SQL text into a Snapshot. Only
// declarative CREATE statements are accepted; anything that mutates
// rather than describes state is rejected with a remediation hint.
func ParseSQL(sqlText string) (*database.Snapshot, error) {
	return parseSQLText(sqlText, "")
}

func parseSQLText(sqlText, filePath string) (*database.Snapshot, error) {
	// Reserved keywords in column position are quoted on the author's
	// behalf before the strict parser sees the text
	quoted := QuoteReservedColumnIdents(sqlText)

	tree, err := pg_query.Parse(quoted)
	if err != nil {
		return nil, parserErrorFrom(err, quoted, filePath)
	}

	snap := &database.Snapshot{
		Tables: []database.Table{},
	}

	for _, raw := range tree.Stmts {
		if raw.Stmt == nil {
			continue
		}
		if err := parseStatement(snap, tree, raw, quoted, filePath); err != nil {
			return nil, err
		}
	}

	return snap, nil
}

// parserErrorFrom converts a pg_query parse failure into a ParserError
// with a 1-based line and column derived from the cursor position.
func parserErrorFrom(err error, sqlText, filePath string) error {
	perr := &ParserError{
		FilePath: filePath,
		Message:  strings.TrimPrefix(err.Error(), "failed to parse SQL: "),
	}

	var pgErr *parser.Error
	if errors.As(err, &pgErr) {
		perr.Message = pgErr.Message
		if pgErr.Cursorpos > 0 && pgErr.Cursorpos <= len(sqlText)+1 {
			perr.Line, perr.Column = lineColAt(sqlText, pgErr.Cursorpos-1)
			perr.SQLSnippet = snippetAt(sqlText, pgErr.Cursorpos-1)
		}
	}
	return perr
}

// lineColAt converts a 0-based byte offset to a 1-based line/column pair
func lineColAt(text string, offset int) (int, int) {
	line, col := 1, 1
	for i := 0; i < offset && i < len(text); i++ {
		if text[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// snippetAt returns the source line containing the offset
func snippetAt(text string, offset int) string {
	if offset > len(text) {
		offset = len(text)
	}
	start := strings.LastIndexByte(text[:offset], '\n') + 1
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		end = len(text)
	} else {
		end += offset
	}
	return strings.TrimSpace(text[start:end])
}

// statementStart returns the byte offset of the statement's first
// non-whitespace character; StmtLocation points just past the previous
// semicolon, which may be a newline away from the statement itself
func statementStart(sqlText string, raw *pg_query.RawStmt) int {
	start := int(raw.StmtLocation)
	if start < 0 {
		start = 0
	}
	for start < len(sqlText) && (sqlText[start] == ' ' || sqlText[start] == '\t' || sqlText[start] == '\n' || sqlText[start] == '\r') {
		start++
	}
	return start
}

// statementText slices the raw statement out of the source for error
// reporting and view bodies
func statementText(sqlText string, raw *pg_query.RawStmt) string {
	start := int(raw.StmtLocation)
	if start < 0 {
		start = 0
	}
	end := len(sqlText)
	if raw.StmtLen > 0 && start+int(raw.StmtLen) <= len(sqlText) {
		end = start + int(raw.StmtLen)
	}
	return strings.TrimSpace(sqlText[start:end])
}

// forbiddenVerb names the primary verb of a rejected statement node, or
// "" when the statement is declarative and welcome.
func forbiddenVerb(node interface{}) string {
	switch n := node.(type) {
	case *pg_query.Node_AlterTableStmt, *pg_query.Node_AlterDomainStmt,
		*pg_query.Node_AlterEnumStmt, *pg_query.Node_AlterSeqStmt,
		*pg_query.Node_AlterOwnerStmt, *pg_query.Node_RenameStmt:
		return "ALTER"
	case *pg_query.Node_DropStmt, *pg_query.Node_DropdbStmt, *pg_query.Node_DropRoleStmt:
		return "DROP"
	case *pg_query.Node_TruncateStmt:
		return "TRUNCATE"
	case *pg_query.Node_InsertStmt:
		return "INSERT"
	case *pg_query.Node_UpdateStmt:
		return "UPDATE"
	case *pg_query.Node_DeleteStmt:
		return "DELETE"
	case *pg_query.Node_GrantStmt:
		if !n.GrantStmt.IsGrant {
			return "REVOKE"
		}
		return "GRANT"
	case *pg_query.Node_GrantRoleStmt:
		if !n.GrantRoleStmt.IsGrant {
			return "REVOKE"
		}
		return "GRANT"
	case *pg_query.Node_CommentStmt:
		return "COMMENT ON"
	}
	return ""
}

func parseStatement(snap *database.Snapshot, tree *pg_query.ParseResult, raw *pg_query.RawStmt, sqlText, filePath string) error {
	if verb := forbiddenVerb(raw.Stmt.Node); verb != "" {
		line, col := lineColAt(sqlText, statementStart(sqlText, raw))
		return &ParserError{
			FilePath:   filePath,
			Line:       line,
			Column:     col,
			SQLSnippet: statementText(sqlText, raw),
			Message:    fmt.Sprintf("%s statements are not allowed in a declarative schema file", verb),
		}
	}

	switch node := raw.Stmt.Node.(type) {
	case *pg_query.Node_CreateStmt:
		table, err := parseCreateTable(node.CreateStmt)
		if err != nil {
			return wrapParseError(err, sqlText, raw, filePath)
		}
		snap.Tables = append(snap.Tables, *table)

	case *pg_query.Node_IndexStmt:
		if err := parseCreateIndex(snap, node.IndexStmt); err != nil {
			return wrapParseError(err, sqlText, raw, filePath)
		}

	case *pg_query.Node_ViewStmt:
		view, err := parseCreateView(tree, node.ViewStmt, sqlText, raw)
		if err != nil {
			return wrapParseError(err, sqlText, raw, filePath)
		}
		snap.Views = append(snap.Views, *view)

	case *pg_query.Node_CreateTableAsStmt:
		view, err := parseCreateMaterializedView(tree, node.CreateTableAsStmt, sqlText, raw)
		if err != nil {
			return wrapParseError(err, sqlText, raw, filePath)
		}
		snap.Views = append(snap.Views, *view)

	case *pg_query.Node_CreateEnumStmt:
		enum, err := parseCreateEnum(node.CreateEnumStmt)
		if err != nil {
			return wrapParseError(err, sqlText, raw, filePath)
		}
		snap.Enums = append(snap.Enums, *enum)

	case *pg_query.Node_CreateExtensionStmt:
		snap.Extensions = append(snap.Extensions, database.Extension{
			Name: node.CreateExtensionStmt.Extname,
		})

	case *pg_query.Node_CreateSchemaStmt:
		snap.Schemas = append(snap.Schemas, node.CreateSchemaStmt.Schemaname)

	case *pg_query.Node_CreateSeqStmt:
		if rel := node.CreateSeqStmt.Sequence; rel != nil {
			snap.Sequences = append(snap.Sequences, database.Sequence{
				Schema: schemaOrPublic(rel.Schemaname),
				Name:   rel.Relname,
			})
		}

	case *pg_query.Node_CreateFunctionStmt:
		fn := database.Function{Schema: "public", Definition: statementText(sqlText, raw)}
		var nameParts []string
		for _, n := range node.CreateFunctionStmt.Funcname {
			if s, ok := n.Node.(*pg_query.Node_String_); ok {
				nameParts = append(nameParts, s.String_.Sval)
			}
		}
		switch len(nameParts) {
		case 1:
			fn.Name = nameParts[0]
		case 2:
			fn.Schema = nameParts[0]
			fn.Name = nameParts[1]
		default:
			return wrapParseError(fmt.Errorf("CREATE FUNCTION missing name"), sqlText, raw, filePath)
		}
		snap.Functions = append(snap.Functions, fn)

	case *pg_query.Node_CreateTrigStmt:
		trig := node.CreateTrigStmt
		if trig.Relation == nil || trig.Trigname == "" {
			return wrapParseError(fmt.Errorf("CREATE TRIGGER missing name or table"), sqlText, raw, filePath)
		}
		snap.Triggers = append(snap.Triggers, database.Trigger{
			Schema:     schemaOrPublic(trig.Relation.Schemaname),
			Table:      trig.Relation.Relname,
			Name:       trig.Trigname,
			Definition: statementText(sqlText, raw),
		})

	default:
		line, col := lineColAt(sqlText, statementStart(sqlText, raw))
		return &ParserError{
			FilePath:   filePath,
			Line:       line,
			Column:     col,
			SQLSnippet: statementText(sqlText, raw),
			Message:    "unsupported statement in schema file; only CREATE statements describe desired state",
		}
	}

	return nil
}

func wrapParseError(err error, sqlText string, raw *pg_query.RawStmt, filePath string) error {
	var perr *ParserError
	if errors.As(err, &perr) {
		return err
	}
	// Semantic violations keep their own type for the formatter
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	line, col := lineColAt(sqlText, statementStart(sqlText, raw))
	return &ParserError{
		FilePath:   filePath,
		Line:       line,
		Column:     col,
		SQLSnippet: statementText(sqlText, raw),
		Message:    err.Error(),
	}
}

func schemaOrPublic(schema string) string {
	if schema == "" {
		return "public"
	}
	return schema
}

// parseCreateTable converts a CreateStmt AST node to a Table
func parseCreateTable(stmt *pg_query.CreateStmt) (*database.Table, error) {
	if stmt.Relation == nil {
		return nil, fmt.Errorf("CREATE TABLE missing relation")
	}

	table := &database.Table{
		Schema:  schemaOrPublic(stmt.Relation.Schemaname),
		Name:    stmt.Relation.Relname,
		Columns: []database.Column{},
	}

	for _, elt := range stmt.TableElts {
		if elt.Node == nil {
			continue
		}

		switch node := elt.Node.(type) {
		case *pg_query.Node_ColumnDef:
			col, colConstraints, err := parseColumnDef(node.ColumnDef)
			if err != nil {
				return nil, err
			}
			table.Columns = append(table.Columns, *col)
			for _, c := range colConstraints {
				if err := applyColumnTableConstraint(table, col.Name, c); err != nil {
					return nil, err
				}
			}

		case *pg_query.Node_Constraint:
			if err := parseTableConstraint(table, node.Constraint); err != nil {
				return nil, err
			}
		}
	}

	// An inline PRIMARY KEY column also forms the table's primary-key
	// constraint
	if table.PrimaryKey == nil {
		for _, col := range table.Columns {
			if col.IsPrimaryKey {
				table.PrimaryKey = &database.PrimaryKey{Columns: []string{col.Name}}
				break
			}
		}
	}

	return table, nil
}

// parseColumnDef converts a ColumnDef AST node to a Column. Constraints
// that belong to the table (UNIQUE, REFERENCES, CHECK) are returned for
// the caller to attach.
func parseColumnDef(colDef *pg_query.ColumnDef) (*database.Column, []*pg_query.Constraint, error) {
	if colDef.Colname == "" {
		return nil, nil, fmt.Errorf("column missing name")
	}

	col := &database.Column{
		Name:     colDef.Colname,
		Nullable: true,
	}

	if colDef.TypeName != nil {
		col.Type = formatTypeName(colDef.TypeName)
	}

	var tableConstraints []*pg_query.Constraint
	for _, constraint := range colDef.Constraints {
		cons, ok := constraint.Node.(*pg_query.Node_Constraint)
		if !ok || cons.Constraint == nil {
			continue
		}

		switch cons.Constraint.Contype {
		case pg_query.ConstrType_CONSTR_NOTNULL:
			col.Nullable = false
		case pg_query.ConstrType_CONSTR_NULL:
			col.Nullable = true
		case pg_query.ConstrType_CONSTR_DEFAULT:
			if cons.Constraint.RawExpr != nil {
				defaultStr := formatExpr(cons.Constraint.RawExpr)
				col.Default = &defaultStr
			}
		case pg_query.ConstrType_CONSTR_PRIMARY:
			col.IsPrimaryKey = true
			col.Nullable = false
		case pg_query.ConstrType_CONSTR_UNIQUE, pg_query.ConstrType_CONSTR_FOREIGN, pg_query.ConstrType_CONSTR_CHECK:
			tableConstraints = append(tableConstraints, cons.Constraint)
		}
	}

	return col, tableConstraints, nil
}

// applyColumnTableConstraint lifts a column-level UNIQUE, REFERENCES or
// CHECK clause into the table-level constraint sets.
func applyColumnTableConstraint(table *database.Table, columnName string, constraint *pg_query.Constraint) error {
	switch constraint.Contype {
	case pg_query.ConstrType_CONSTR_UNIQUE:
		table.Uniques = append(table.Uniques, database.Unique{
			Name:    constraintName(constraint, table.Name, columnName+"_key"),
			Columns: []string{columnName},
		})

	case pg_query.ConstrType_CONSTR_CHECK:
		if constraint.RawExpr == nil {
			return fmt.Errorf("CHECK constraint on column %s missing expression", columnName)
		}
		table.Checks = append(table.Checks, database.Check{
			Name:       constraintName(constraint, table.Name, columnName+"_check"),
			Expression: formatExpr(constraint.RawExpr),
		})

	case pg_query.ConstrType_CONSTR_FOREIGN:
		fk := foreignKeyFromConstraint(constraint, table, []string{columnName})
		if fk.ReferencedTable == "" {
			return fmt.Errorf("REFERENCES on column %s missing referenced table", columnName)
		}
		table.ForeignKeys = append(table.ForeignKeys, fk)
	}
	return nil
}

// parseTableConstraint applies a table-level constraint
func parseTableConstraint(table *database.Table, constraint *pg_query.Constraint) error {
	switch constraint.Contype {
	case pg_query.ConstrType_CONSTR_PRIMARY:
		pk := &database.PrimaryKey{Name: constraint.Conname}
		for _, key := range constraint.Keys {
			if keyNode, ok := key.Node.(*pg_query.Node_String_); ok {
				colName := keyNode.String_.Sval
				pk.Columns = append(pk.Columns, colName)
				if col := table.FindColumn(colName); col != nil {
					col.IsPrimaryKey = true
					col.Nullable = false
				}
			}
		}
		if len(pk.Columns) > 0 {
			table.PrimaryKey = pk
		}

	case pg_query.ConstrType_CONSTR_UNIQUE:
		uk := database.Unique{Name: constraint.Conname}
		for _, key := range constraint.Keys {
			if keyNode, ok := key.Node.(*pg_query.Node_String_); ok {
				uk.Columns = append(uk.Columns, keyNode.String_.Sval)
			}
		}
		if uk.Name == "" && len(uk.Columns) > 0 {
			uk.Name = fmt.Sprintf("%s_%s_key", table.Name, strings.Join(uk.Columns, "_"))
		}
		if len(uk.Columns) > 0 {
			table.Uniques = append(table.Uniques, uk)
		}

	case pg_query.ConstrType_CONSTR_CHECK:
		if constraint.RawExpr == nil {
			return fmt.Errorf("CHECK constraint missing expression")
		}
		table.Checks = append(table.Checks, database.Check{
			Name:       constraintName(constraint, table.Name, "check"),
			Expression: formatExpr(constraint.RawExpr),
		})

	case pg_query.ConstrType_CONSTR_FOREIGN:
		var columns []string
		for _, key := range constraint.FkAttrs {
			if keyNode, ok := key.Node.(*pg_query.Node_String_); ok {
				columns = append(columns, keyNode.String_.Sval)
			}
		}
		fk := foreignKeyFromConstraint(constraint, table, columns)
		if len(fk.Columns) == 0 || fk.ReferencedTable == "" {
			return fmt.Errorf("FOREIGN KEY on table %s missing columns or referenced table", table.Name)
		}
		if len(fk.Columns) != len(fk.ReferencedColumns) && len(fk.ReferencedColumns) > 0 {
			return fmt.Errorf("FOREIGN KEY %s column count does not match referenced columns", fk.Name)
		}
		table.ForeignKeys = append(table.ForeignKeys, fk)
	}

	return nil
}

func foreignKeyFromConstraint(constraint *pg_query.Constraint, table *database.Table, columns []string) database.ForeignKey {
	fk := database.ForeignKey{
		Columns:    columns,
		OnDelete:   formatForeignKeyAction(constraint.FkDelAction),
		OnUpdate:   formatForeignKeyAction(constraint.FkUpdAction),
		Deferrable: constraint.Deferrable,
	}

	if constraint.Pktable != nil {
		fk.ReferencedSchema = constraint.Pktable.Schemaname
		fk.ReferencedTable = constraint.Pktable.Relname
	}
	for _, key := range constraint.PkAttrs {
		if keyNode, ok := key.Node.(*pg_query.Node_String_); ok {
			fk.ReferencedColumns = append(fk.ReferencedColumns, keyNode.String_.Sval)
		}
	}

	fk.Name = constraint.Conname
	if fk.Name == "" {
		fk.Name = fmt.Sprintf("%s_%s_fkey", table.Name, strings.Join(columns, "_"))
	}
	return fk
}

// constraintName returns the declared constraint name or a generated one
func constraintName(constraint *pg_query.Constraint, tableName, suffix string) string {
	if constraint.Conname != "" {
		return constraint.Conname
	}
	return fmt.Sprintf("%s_%s", tableName, suffix)
}

// parseCreateIndex handles standalone CREATE INDEX statements
func parseCreateIndex(snap *database.Snapshot, stmt *pg_query.IndexStmt) error {
	if stmt.Relation == nil || stmt.Relation.Relname == "" {
		return fmt.Errorf("CREATE INDEX missing table name")
	}

	schema := schemaOrPublic(stmt.Relation.Schemaname)
	table := snap.FindTable(schema, stmt.Relation.Relname)
	if table == nil {
		return fmt.Errorf("CREATE INDEX references unknown table: %s.%s", schema, stmt.Relation.Relname)
	}

	idx := database.Index{
		Name:       stmt.Idxname,
		Unique:     stmt.Unique,
		Concurrent: stmt.Concurrent,
	}

	for _, elem := range stmt.IndexParams {
		if indexElem, ok := elem.Node.(*pg_query.Node_IndexElem); ok {
			if indexElem.IndexElem.Name != "" {
				idx.Columns = append(idx.Columns, indexElem.IndexElem.Name)
			}
		}
	}

	if idx.Name == "" {
		idx.Name = fmt.Sprintf("%s_%s_idx", table.Name, strings.Join(idx.Columns, "_"))
	}
	if len(idx.Columns) > 0 {
		table.Indexes = append(table.Indexes, idx)
	}
	return nil
}

// parseCreateView handles CREATE VIEW. The body is captured as the
// deparsed sub-SELECT, trimmed of the AS keyword and any trailing
// semicolon.
func parseCreateView(tree *pg_query.ParseResult, stmt *pg_query.ViewStmt, sqlText string, raw *pg_query.RawStmt) (*database.View, error) {
	if stmt.View == nil {
		return nil, fmt.Errorf("CREATE VIEW missing relation")
	}

	view := &database.View{
		Schema:      schemaOrPublic(stmt.View.Schemaname),
		Name:        stmt.View.Relname,
		CheckOption: database.CheckOptionNone,
	}

	switch stmt.WithCheckOption {
	case pg_query.ViewCheckOption_LOCAL_CHECK_OPTION:
		view.CheckOption = database.CheckOptionLocal
	case pg_query.ViewCheckOption_CASCADED_CHECK_OPTION:
		view.CheckOption = database.CheckOptionCascaded
	}

	for _, opt := range stmt.Options {
		if defElem, ok := opt.Node.(*pg_query.Node_DefElem); ok {
			if strings.EqualFold(defElem.DefElem.Defname, "security_barrier") {
				view.SecurityBarrier = defElemBoolValue(defElem.DefElem)
			}
		}
	}

	body, err := deparseQuery(tree, stmt.Query)
	if err != nil {
		body = viewBodyFromStatement(statementText(sqlText, raw))
	}
	view.Definition = body
	return view, nil
}

// parseCreateMaterializedView handles CREATE MATERIALIZED VIEW, which
// the grammar represents as CREATE TABLE AS.
func parseCreateMaterializedView(tree *pg_query.ParseResult, stmt *pg_query.CreateTableAsStmt, sqlText string, raw *pg_query.RawStmt) (*database.View, error) {
	if stmt.Objtype != pg_query.ObjectType_OBJECT_MATVIEW {
		return nil, fmt.Errorf("CREATE TABLE AS is not allowed in a declarative schema file")
	}
	if stmt.Into == nil || stmt.Into.Rel == nil {
		return nil, fmt.Errorf("CREATE MATERIALIZED VIEW missing relation")
	}

	view := &database.View{
		Schema:       schemaOrPublic(stmt.Into.Rel.Schemaname),
		Name:         stmt.Into.Rel.Relname,
		Materialized: true,
		CheckOption:  database.CheckOptionNone,
	}

	body, err := deparseQuery(tree, stmt.Query)
	if err != nil {
		body = viewBodyFromStatement(statementText(sqlText, raw))
	}
	view.Definition = body
	return view, nil
}

// deparseQuery renders a sub-query node back to SQL text
func deparseQuery(tree *pg_query.ParseResult, query *pg_query.Node) (string, error) {
	if query == nil {
		return "", fmt.Errorf("missing query")
	}
	wrapper := &pg_query.ParseResult{
		Version: tree.Version,
		Stmts:   []*pg_query.RawStmt{{Stmt: query}},
	}
	out, err := pg_query.Deparse(wrapper)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(out), ";")), nil
}

// viewBodyFromStatement falls back to slicing the raw statement text
// after the top-level AS keyword
func viewBodyFromStatement(stmtText string) string {
	upper := strings.ToUpper(stmtText)
	if idx := strings.Index(upper, " AS "); idx >= 0 {
		body := stmtText[idx+len(" AS "):]
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), ";"))
	}
	return stmtText
}

func defElemBoolValue(d *pg_query.DefElem) bool {
	if d.Arg == nil {
		return true
	}
	switch v := d.Arg.Node.(type) {
	case *pg_query.Node_String_:
		return strings.EqualFold(v.String_.Sval, "true") || v.String_.Sval == "on"
	case *pg_query.Node_Integer:
		return v.Integer.Ival != 0
	case *pg_query.Node_Boolean:
		return v.Boolean.Boolval
	}
	return false
}

// parseCreateEnum handles CREATE TYPE ... AS ENUM
func parseCreateEnum(stmt *pg_query.CreateEnumStmt) (*database.EnumType, error) {
	enum := &database.EnumType{Schema: "public"}

	var nameParts []string
	for _, n := range stmt.TypeName {
		if s, ok := n.Node.(*pg_query.Node_String_); ok {
			nameParts = append(nameParts, s.String_.Sval)
		}
	}
	switch len(nameParts) {
	case 1:
		enum.Name = nameParts[0]
	case 2:
		enum.Schema = nameParts[0]
		enum.Name = nameParts[1]
	default:
		return nil, fmt.Errorf("CREATE TYPE missing name")
	}

	seen := make(map[string]bool)
	for _, v := range stmt.Vals {
		if s, ok := v.Node.(*pg_query.Node_String_); ok {
			if seen[s.String_.Sval] {
				return nil, &ValidationError{
					Object:  enum.Schema + "." + enum.Name,
					Message: fmt.Sprintf("enum type %s declares duplicate value %q", enum.Name, s.String_.Sval),
				}
			}
			seen[s.String_.Sval] = true
			enum.Values = append(enum.Values, s.String_.Sval)
		}
	}
	if len(enum.Values) == 0 {
		return nil, &ValidationError{
			Object:  enum.Schema + "." + enum.Name,
			Message: fmt.Sprintf("enum type %s declares no values", enum.Name),
		}
	}
	return enum, nil
}

// formatTypeName converts TypeName AST to its surface string form
func formatTypeName(typeName *pg_query.TypeName) string {
	var parts []string
	for _, name := range typeName.Names {
		if nameNode, ok := name.Node.(*pg_query.Node_String_); ok {
			parts = append(parts, nameNode.String_.Sval)
		}
	}
	typeStr := strings.Join(parts, ".")

	if len(typeName.Typmods) > 0 {
		var mods []string
		for _, mod := range typeName.Typmods {
			if constNode, ok := mod.Node.(*pg_query.Node_AConst); ok {
				if ival := constNode.AConst.GetIval(); ival != nil {
					mods = append(mods, fmt.Sprintf("%d", ival.Ival))
				}
			}
		}
		if len(mods) > 0 {
			typeStr = fmt.Sprintf("%s(%s)", typeStr, strings.Join(mods, ","))
		}
	}

	if len(typeName.ArrayBounds) > 0 {
		typeStr += "[]"
	}

	return typeStr
}

// formatForeignKeyAction converts a foreign key action code to its SQL form
func formatForeignKeyAction(action string) string {
	switch action {
	case "", "a":
		return "NO ACTION"
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	}
	return action
}

// formatExpr renders a default or check expression AST back to SQL
// text. It covers the expression shapes declarative schemas use;
// anything beyond that renders as NULL and compares unequal, which is
// the safe direction.
func formatExpr(node *pg_query.Node) string {
	if node == nil {
		return ""
	}

	switch expr := node.Node.(type) {
	case *pg_query.Node_AConst:
		if expr.AConst.Isnull {
			return "NULL"
		}
		if ival := expr.AConst.GetIval(); ival != nil {
			return fmt.Sprintf("%d", ival.Ival)
		}
		if fval := expr.AConst.GetFval(); fval != nil {
			return fval.Fval
		}
		if sval := expr.AConst.GetSval(); sval != nil {
			return "'" + strings.ReplaceAll(sval.Sval, "'", "''") + "'"
		}
		if bval := expr.AConst.GetBoolval(); bval != nil {
			if bval.Boolval {
				return "true"
			}
			return "false"
		}

	case *pg_query.Node_FuncCall:
		var nameParts []string
		for _, n := range expr.FuncCall.Funcname {
			if s, ok := n.Node.(*pg_query.Node_String_); ok {
				if s.String_.Sval == "pg_catalog" {
					continue
				}
				nameParts = append(nameParts, strings.ToLower(s.String_.Sval))
			}
		}
		var args []string
		for _, a := range expr.FuncCall.Args {
			args = append(args, formatExpr(a))
		}
		return strings.Join(nameParts, ".") + "(" + strings.Join(args, ", ") + ")"

	case *pg_query.Node_TypeCast:
		inner := formatExpr(expr.TypeCast.Arg)
		if expr.TypeCast.TypeName != nil {
			castType := formatTypeName(expr.TypeCast.TypeName)
			// regclass casts carry sequence identity and must survive
			if strings.EqualFold(castType, "regclass") {
				return inner + "::regclass"
			}
			return inner + "::" + castType
		}
		return inner

	case *pg_query.Node_ColumnRef:
		var parts []string
		for _, f := range expr.ColumnRef.Fields {
			if s, ok := f.Node.(*pg_query.Node_String_); ok {
				parts = append(parts, s.String_.Sval)
			}
		}
		return strings.Join(parts, ".")

	case *pg_query.Node_AExpr:
		op := ""
		if len(expr.AExpr.Name) > 0 {
			if s, ok := expr.AExpr.Name[0].Node.(*pg_query.Node_String_); ok {
				op = s.String_.Sval
			}
		}
		return fmt.Sprintf("%s %s %s", formatExpr(expr.AExpr.Lexpr), op, formatExpr(expr.AExpr.Rexpr))

	case *pg_query.Node_BoolExpr:
		var parts []string
		for _, a := range expr.BoolExpr.Args {
			parts = append(parts, formatExpr(a))
		}
		switch expr.BoolExpr.Boolop {
		case pg_query.BoolExprType_AND_EXPR:
			return strings.Join(parts, " AND ")
		case pg_query.BoolExprType_OR_EXPR:
			return strings.Join(parts, " OR ")
		case pg_query.BoolExprType_NOT_EXPR:
			if len(parts) == 1 {
				return "NOT " + parts[0]
			}
		}

	case *pg_query.Node_NullTest:
		arg := formatExpr(expr.NullTest.Arg)
		if expr.NullTest.Nulltesttype == pg_query.NullTestType_IS_NULL {
			return arg + " IS NULL"
		}
		return arg + " IS NOT NULL"
	}

	return "NULL"
}
