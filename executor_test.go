package main

import (
	"strings"
	"testing"

	"github.com/elitan/dbterra/database"
	"github.com/lib/pq"
)

func TestIsDestructiveStatement(t *testing.T) {
	destructive := []string{
		`DROP TABLE "public"."users" CASCADE`,
		`drop table t`,
		`DROP TYPE "public"."status"`,
		`DROP VIEW IF EXISTS "v"`,
		`DROP MATERIALIZED VIEW "m"`,
		`ALTER TABLE "t" DROP COLUMN "c"`,
	}
	for _, stmt := range destructive {
		if !IsDestructiveStatement(stmt) {
			t.Errorf("%q must be destructive", stmt)
		}
	}

	safe := []string{
		`CREATE TABLE "t" ("id" integer)`,
		`ALTER TABLE "t" ADD COLUMN "c" text`,
		`ALTER TABLE "t" ALTER COLUMN "c" DROP DEFAULT`,
		`ALTER TABLE "t" ALTER COLUMN "c" DROP NOT NULL`,
		`DROP INDEX "i"`,
		`ALTER TABLE "t" DROP CONSTRAINT "fk"`,
	}
	for _, stmt := range safe {
		if IsDestructiveStatement(stmt) {
			t.Errorf("%q must not be destructive", stmt)
		}
	}
}

func TestMigrationErrorFor_CarriesDriverDiagnostics(t *testing.T) {
	pqErr := &pq.Error{
		Code:     "42703",
		Message:  `column "missing" does not exist`,
		Detail:   "some detail",
		Hint:     "some hint",
		Position: "17",
	}

	merr := migrationErrorFor(`ALTER TABLE "t" DROP COLUMN "missing"`, pqErr)
	if merr.Code != "42703" {
		t.Errorf("code not carried: %q", merr.Code)
	}
	if merr.Detail != "some detail" || merr.Hint != "some hint" {
		t.Errorf("detail/hint not carried: %+v", merr)
	}
	if merr.Position != 17 {
		t.Errorf("position not parsed: %d", merr.Position)
	}
	if merr.Statement == "" {
		t.Error("failing statement must be carried")
	}
	if !strings.Contains(merr.Error(), "while executing") {
		t.Errorf("error text must include the statement context: %s", merr.Error())
	}
}

func TestMigrationErrorFor_PlainError(t *testing.T) {
	merr := migrationErrorFor("CREATE TABLE t ()", errTest)
	if merr.Code != "" || merr.Position != 0 {
		t.Errorf("non-driver errors must not invent diagnostics: %+v", merr)
	}
	if merr.Statement != "CREATE TABLE t ()" {
		t.Errorf("statement must be carried: %q", merr.Statement)
	}
}

var errTest = &testError{}

type testError struct{}

func (e *testError) Error() string { return "boom" }

func TestExecuteOptions_Defaults(t *testing.T) {
	if DefaultLockName != "dbterra_migrate_execute" {
		t.Errorf("unexpected default lock name %q", DefaultLockName)
	}
	if DefaultLockTimeout.Seconds() != 10 {
		t.Errorf("unexpected default lock timeout %s", DefaultLockTimeout)
	}
}

func TestPlanStatements_OrderAndHasChanges(t *testing.T) {
	plan := &database.MigrationPlan{
		Transactional: []string{"A", "B"},
		Concurrent:    []string{"C"},
	}
	all := plan.Statements()
	if len(all) != 3 || all[0] != "A" || all[2] != "C" {
		t.Errorf("transactional statements must precede concurrent ones: %v", all)
	}
	if !plan.HasChanges() {
		t.Error("non-empty plan must report changes")
	}
	if (&database.MigrationPlan{}).HasChanges() {
		t.Error("empty plan must report no changes")
	}
}
