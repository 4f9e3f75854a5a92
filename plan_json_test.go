package main

import (
	"encoding/json"
	"testing"

	"github.com/elitan/dbterra/database"
)

func TestPlanDocument_RoundTrip(t *testing.T) {
	plan := &database.MigrationPlan{
		Transactional: []string{
			`CREATE TABLE "public"."users" ("id" integer)`,
			`DROP TABLE "public"."posts" CASCADE`,
		},
		Concurrent: []string{
			`CREATE INDEX CONCURRENTLY "idx" ON "public"."users" ("id")`,
		},
	}

	doc := NewPlanDocument(plan)
	data, err := doc.MarshalIndent()
	if err != nil {
		t.Fatalf("MarshalIndent failed: %v", err)
	}

	var decoded PlanDocument
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round-trip unmarshal failed: %v", err)
	}
	if decoded.Version != 1 || !decoded.HasChanges {
		t.Errorf("unexpected document header: %+v", decoded)
	}
	if len(decoded.Transactional) != 2 || len(decoded.Concurrent) != 1 {
		t.Errorf("statement counts lost: %+v", decoded)
	}
	if !decoded.Transactional[1].Destructive {
		t.Error("DROP TABLE must be flagged destructive in the document")
	}
	if decoded.Transactional[0].Destructive {
		t.Error("CREATE TABLE must not be flagged destructive")
	}
}

func TestPlanDocument_EmptyPlanValidates(t *testing.T) {
	doc := NewPlanDocument(&database.MigrationPlan{})
	data, err := doc.MarshalIndent()
	if err != nil {
		t.Fatalf("empty plan must still serialize: %v", err)
	}
	if err := ValidatePlanDocument(data); err != nil {
		t.Errorf("empty plan document must validate: %v", err)
	}
}

func TestValidatePlanDocument_RejectsMalformed(t *testing.T) {
	if err := ValidatePlanDocument([]byte(`{"version": "one"}`)); err == nil {
		t.Error("malformed document must fail validation")
	}
	if err := ValidatePlanDocument([]byte(`{"version": 1, "has_changes": false, "transactional": [], "concurrent": [{"sql": "SELECT 1"}]}`)); err == nil {
		t.Error("statement missing destructive flag must fail validation")
	}
}
