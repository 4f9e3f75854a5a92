package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/elitan/dbterra/database"
)

func mustParse(t *testing.T, sqlText string) *database.Snapshot {
	t.Helper()
	snap, err := ParseSQL(sqlText)
	if err != nil {
		t.Fatalf("ParseSQL failed: %v", err)
	}
	return snap
}

func TestParseSQL_CreateTable(t *testing.T) {
	snap := mustParse(t, `
		CREATE TABLE users (
			id SERIAL PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			age INT,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)

	if len(snap.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(snap.Tables))
	}
	table := snap.Tables[0]
	if table.Schema != "public" || table.Name != "users" {
		t.Errorf("unexpected table identity: %s.%s", table.Schema, table.Name)
	}
	if len(table.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(table.Columns))
	}

	id := table.Columns[0]
	if !id.IsPrimaryKey || id.Nullable {
		t.Errorf("id must be a non-nullable primary key: %+v", id)
	}
	if NormalizeType(id.Type) != "integer" {
		t.Errorf("SERIAL must canonicalize to integer, surface was %q", id.Type)
	}
	if table.PrimaryKey == nil || len(table.PrimaryKey.Columns) != 1 || table.PrimaryKey.Columns[0] != "id" {
		t.Errorf("inline primary key must surface as table constraint: %+v", table.PrimaryKey)
	}

	email := table.Columns[1]
	if email.Nullable {
		t.Error("email must be NOT NULL")
	}
	if NormalizeType(email.Type) != "character varying(255)" {
		t.Errorf("unexpected email type %q", email.Type)
	}

	age := table.Columns[2]
	if !age.Nullable || age.IsPrimaryKey {
		t.Errorf("age must be plain nullable: %+v", age)
	}

	created := table.Columns[3]
	if created.Default == nil || NormalizeDefault(*created.Default) != "now()" {
		t.Errorf("unexpected created_at default: %v", created.Default)
	}
}

func TestParseSQL_SurfaceTypeTextIsPreserved(t *testing.T) {
	snap := mustParse(t, `CREATE TABLE t (price DECIMAL(10,2));`)
	col := snap.Tables[0].Columns[0]
	// Canonicalization is the normalizer's job, not the parser's
	if NormalizeType(col.Type) != "numeric(10,2)" {
		t.Errorf("surface type %q must canonicalize to numeric(10,2)", col.Type)
	}
	if !strings.Contains(col.Type, "(10,2)") {
		t.Errorf("parameters must be captured: %q", col.Type)
	}
}

func TestParseSQL_ReservedKeywordColumns(t *testing.T) {
	snap := mustParse(t, `CREATE TABLE events (year INT, user TEXT);`)
	table := snap.Tables[0]
	if len(table.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %+v", table.Columns)
	}
	if table.Columns[0].Name != "year" || table.Columns[1].Name != "user" {
		t.Errorf("reserved keyword columns must parse unquoted: %+v", table.Columns)
	}
}

func TestParseSQL_ForeignKeys(t *testing.T) {
	snap := mustParse(t, `
		CREATE TABLE users (id SERIAL PRIMARY KEY);
		CREATE TABLE posts (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL,
			CONSTRAINT posts_user_id_fkey FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE ON UPDATE RESTRICT
		);
	`)

	posts := snap.FindTable("public", "posts")
	if posts == nil || len(posts.ForeignKeys) != 1 {
		t.Fatalf("expected 1 foreign key on posts, got %+v", posts)
	}
	fk := posts.ForeignKeys[0]
	if fk.Name != "posts_user_id_fkey" {
		t.Errorf("unexpected FK name %q", fk.Name)
	}
	if fk.ReferencedTable != "users" || fk.OnDelete != "CASCADE" || fk.OnUpdate != "RESTRICT" {
		t.Errorf("unexpected FK shape: %+v", fk)
	}
	if len(fk.Columns) != len(fk.ReferencedColumns) {
		t.Errorf("FK column arity mismatch: %+v", fk)
	}
}

func TestParseSQL_InlineReferences(t *testing.T) {
	snap := mustParse(t, `
		CREATE TABLE users (id SERIAL PRIMARY KEY);
		CREATE TABLE posts (user_id INT REFERENCES users (id) ON DELETE SET NULL);
	`)
	posts := snap.FindTable("public", "posts")
	if posts == nil || len(posts.ForeignKeys) != 1 {
		t.Fatalf("inline REFERENCES must produce a foreign key, got %+v", posts)
	}
	if posts.ForeignKeys[0].OnDelete != "SET NULL" {
		t.Errorf("unexpected action: %+v", posts.ForeignKeys[0])
	}
}

func TestParseSQL_UniqueAndCheck(t *testing.T) {
	snap := mustParse(t, `
		CREATE TABLE products (
			sku TEXT UNIQUE,
			price NUMERIC(10,2),
			CONSTRAINT price_positive CHECK (price > 0),
			UNIQUE (sku, price)
		);
	`)
	table := snap.Tables[0]
	if len(table.Uniques) != 2 {
		t.Errorf("expected 2 unique constraints, got %+v", table.Uniques)
	}
	if len(table.Checks) != 1 || table.Checks[0].Name != "price_positive" {
		t.Errorf("expected named check, got %+v", table.Checks)
	}
}

func TestParseSQL_Enum(t *testing.T) {
	snap := mustParse(t, `CREATE TYPE order_status AS ENUM ('pending', 'shipped', 'delivered');`)
	if len(snap.Enums) != 1 {
		t.Fatalf("expected 1 enum, got %+v", snap.Enums)
	}
	enum := snap.Enums[0]
	if enum.Schema != "public" || enum.Name != "order_status" {
		t.Errorf("unexpected enum identity: %+v", enum)
	}
	if len(enum.Values) != 3 || enum.Values[0] != "pending" || enum.Values[2] != "delivered" {
		t.Errorf("enum values out of order: %v", enum.Values)
	}
}

func TestParseSQL_EnumDuplicateValueRejected(t *testing.T) {
	_, err := ParseSQL(`CREATE TYPE s AS ENUM ('a', 'a');`)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for duplicate enum value, got %v", err)
	}
}

func TestParseSQL_View(t *testing.T) {
	snap := mustParse(t, `CREATE VIEW active_users AS SELECT id FROM users WHERE active;`)
	if len(snap.Views) != 1 {
		t.Fatalf("expected 1 view, got %+v", snap.Views)
	}
	v := snap.Views[0]
	if v.Materialized {
		t.Error("plain view must not be materialized")
	}
	body := strings.ToUpper(v.Definition)
	if strings.HasPrefix(body, "AS ") || strings.HasSuffix(v.Definition, ";") {
		t.Errorf("view body must be trimmed of AS and semicolons: %q", v.Definition)
	}
	if !strings.Contains(body, "SELECT") {
		t.Errorf("view body lost its SELECT: %q", v.Definition)
	}
}

func TestParseSQL_ViewCheckOption(t *testing.T) {
	snap := mustParse(t, `CREATE VIEW v AS SELECT 1 AS one WITH LOCAL CHECK OPTION;`)
	if snap.Views[0].CheckOption != database.CheckOptionLocal {
		t.Errorf("expected LOCAL check option, got %q", snap.Views[0].CheckOption)
	}
}

func TestParseSQL_MaterializedView(t *testing.T) {
	snap := mustParse(t, `CREATE MATERIALIZED VIEW stats AS SELECT count(*) AS n FROM users;`)
	if len(snap.Views) != 1 || !snap.Views[0].Materialized {
		t.Fatalf("expected materialized view, got %+v", snap.Views)
	}
}

func TestParseSQL_SchemaExtensionSequence(t *testing.T) {
	snap := mustParse(t, `
		CREATE SCHEMA billing;
		CREATE EXTENSION pgcrypto;
		CREATE SEQUENCE invoice_numbers;
	`)
	if len(snap.Schemas) != 1 || snap.Schemas[0] != "billing" {
		t.Errorf("unexpected schemas: %v", snap.Schemas)
	}
	if len(snap.Extensions) != 1 || snap.Extensions[0].Name != "pgcrypto" {
		t.Errorf("unexpected extensions: %v", snap.Extensions)
	}
	if len(snap.Sequences) != 1 || snap.Sequences[0].Name != "invoice_numbers" {
		t.Errorf("unexpected sequences: %v", snap.Sequences)
	}
}

func TestParseSQL_FunctionAndTrigger(t *testing.T) {
	snap := mustParse(t, `
		CREATE TABLE users (id INT PRIMARY KEY, updated_at TIMESTAMPTZ);
		CREATE FUNCTION touch_updated_at() RETURNS trigger AS $$
		BEGIN
			NEW.updated_at := now();
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;
		CREATE TRIGGER users_touch BEFORE UPDATE ON users
		FOR EACH ROW EXECUTE FUNCTION touch_updated_at();
	`)

	if len(snap.Functions) != 1 {
		t.Fatalf("expected 1 function, got %+v", snap.Functions)
	}
	fn := snap.Functions[0]
	if fn.Schema != "public" || fn.Name != "touch_updated_at" {
		t.Errorf("unexpected function identity: %+v", fn)
	}
	if !strings.Contains(fn.Definition, "CREATE FUNCTION") {
		t.Errorf("function definition must keep the full statement: %q", fn.Definition)
	}

	if len(snap.Triggers) != 1 {
		t.Fatalf("expected 1 trigger, got %+v", snap.Triggers)
	}
	trig := snap.Triggers[0]
	if trig.Table != "users" || trig.Name != "users_touch" {
		t.Errorf("unexpected trigger identity: %+v", trig)
	}
}

func TestParseSQL_ForbiddenStatements(t *testing.T) {
	cases := []struct {
		sql  string
		verb string
	}{
		{"ALTER TABLE users ADD COLUMN x INT;", "ALTER"},
		{"DROP TABLE users;", "DROP"},
		{"TRUNCATE users;", "TRUNCATE"},
		{"INSERT INTO users (id) VALUES (1);", "INSERT"},
		{"UPDATE users SET id = 2;", "UPDATE"},
		{"DELETE FROM users;", "DELETE"},
		{"GRANT SELECT ON users TO alice;", "GRANT"},
		{"COMMENT ON TABLE users IS 'people';", "COMMENT ON"},
	}

	for _, tc := range cases {
		_, err := ParseSQL(tc.sql)
		var perr *ParserError
		if !errors.As(err, &perr) {
			t.Errorf("%q: expected ParserError, got %v", tc.sql, err)
			continue
		}
		if !strings.Contains(perr.Message, tc.verb) {
			t.Errorf("%q: message %q must name the %s verb", tc.sql, perr.Message, tc.verb)
		}
		if perr.Line == 0 {
			t.Errorf("%q: forbidden-statement error must carry a line number", tc.sql)
		}
		if suggestionFor(perr.Message) == "" {
			t.Errorf("%q: no remediation hint for %q", tc.sql, perr.Message)
		}
	}
}

func TestParseSQL_OnDeleteSubclauseIsAllowed(t *testing.T) {
	// ON DELETE / ON UPDATE inside CREATE TABLE describe constraints,
	// not actions, and must pass
	_, err := ParseSQL(`
		CREATE TABLE a (id INT PRIMARY KEY);
		CREATE TABLE b (a_id INT REFERENCES a (id) ON DELETE CASCADE ON UPDATE SET NULL);
	`)
	if err != nil {
		t.Fatalf("ON DELETE/ON UPDATE subclauses must be accepted: %v", err)
	}
}

func TestParseSQL_SyntaxErrorHasPosition(t *testing.T) {
	_, err := ParseSQL("CREATE TABLE users (\n  id INT,\n);")
	var perr *ParserError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParserError, got %v", err)
	}
	if perr.Line == 0 || perr.Column == 0 {
		t.Errorf("syntax error must carry 1-based line and column: %+v", perr)
	}
}

func TestParseSchemaFile_NotFound(t *testing.T) {
	_, err := ParseSchemaFile("/nonexistent/schema.sql")
	var perr *ParserError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParserError, got %v", err)
	}
	if !strings.HasPrefix(perr.Message, "Schema file not found") {
		t.Errorf("message must start with 'Schema file not found': %q", perr.Message)
	}
	if perr.FilePath != "/nonexistent/schema.sql" {
		t.Errorf("file path must be carried: %q", perr.FilePath)
	}
}

func TestParseEmitRoundTrip(t *testing.T) {
	desired := tableSnapshot(database.Table{
		Schema: "public",
		Name:   "users",
		Columns: []database.Column{
			{Name: "id", Type: "serial", Nullable: false, IsPrimaryKey: true},
			{Name: "email", Type: "VARCHAR(255)", Nullable: false},
			{Name: "age", Type: "INT", Nullable: true},
		},
		PrimaryKey: &database.PrimaryKey{Columns: []string{"id"}},
	})

	diff, err := DiffSnapshots(desired, &database.Snapshot{})
	if err != nil {
		t.Fatalf("DiffSnapshots failed: %v", err)
	}
	plan, err := GeneratePlan(diff, desired, &database.Snapshot{}, pgCaps())
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	reparsed := mustPlan2Snapshot(t, plan)
	rediff, err := DiffSnapshots(desired, reparsed)
	if err != nil {
		t.Fatalf("DiffSnapshots on reparsed output failed: %v", err)
	}
	if !rediff.IsEmpty() {
		t.Errorf("parse(emit(snapshot)) must equal snapshot, diff: %+v", rediff)
	}
}

func mustPlan2Snapshot(t *testing.T, plan *database.MigrationPlan) *database.Snapshot {
	t.Helper()
	var sb strings.Builder
	for _, stmt := range plan.Transactional {
		sb.WriteString(stmt)
		sb.WriteString(";\n")
	}
	return mustParse(t, sb.String())
}
