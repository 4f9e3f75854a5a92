package main

import (
	"encoding/json"
	"fmt"

	"github.com/elitan/dbterra/database"
	"github.com/xeipuuv/gojsonschema"
)

// PlanDocument is the machine-readable form of a migration plan,
// emitted by --dry-run --format json. The document is validated against
// planDocumentSchema before it leaves the process, so downstream
// tooling can rely on the shape.
type PlanDocument struct {
	Version       int             `json:"version"`
	HasChanges    bool            `json:"has_changes"`
	Transactional []PlanStatement `json:"transactional"`
	Concurrent    []PlanStatement `json:"concurrent"`
}

// PlanStatement is one DDL statement with its destructiveness flag
type PlanStatement struct {
	SQL         string `json:"sql"`
	Destructive bool   `json:"destructive"`
}

const planDocumentVersion = 1

const planDocumentSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["version", "has_changes", "transactional", "concurrent"],
	"additionalProperties": false,
	"properties": {
		"version": {"type": "integer", "minimum": 1},
		"has_changes": {"type": "boolean"},
		"transactional": {"$ref": "#/definitions/statements"},
		"concurrent": {"$ref": "#/definitions/statements"}
	},
	"definitions": {
		"statements": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["sql", "destructive"],
				"additionalProperties": false,
				"properties": {
					"sql": {"type": "string", "minLength": 1},
					"destructive": {"type": "boolean"}
				}
			}
		}
	}
}`

// NewPlanDocument converts a MigrationPlan into its document form
func NewPlanDocument(plan *database.MigrationPlan) *PlanDocument {
	doc := &PlanDocument{
		Version:       planDocumentVersion,
		HasChanges:    plan.HasChanges(),
		Transactional: []PlanStatement{},
		Concurrent:    []PlanStatement{},
	}
	for _, stmt := range plan.Transactional {
		doc.Transactional = append(doc.Transactional, PlanStatement{SQL: stmt, Destructive: IsDestructiveStatement(stmt)})
	}
	for _, stmt := range plan.Concurrent {
		doc.Concurrent = append(doc.Concurrent, PlanStatement{SQL: stmt, Destructive: IsDestructiveStatement(stmt)})
	}
	return doc
}

// MarshalIndent serializes the document after schema validation
func (d *PlanDocument) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := ValidatePlanDocument(data); err != nil {
		return nil, err
	}
	return data, nil
}

// ValidatePlanDocument checks raw JSON against the plan document schema
func ValidatePlanDocument(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(planDocumentSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("failed to validate plan document: %w", err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("plan document does not match schema: %s", first.String())
	}
	return nil
}
