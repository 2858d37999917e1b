package registry

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/liamcoop/formrules/rules"
)

// TestLoadDefinitions verifies YAML and JSON files are loaded and other files skipped
func TestLoadDefinitions(t *testing.T) {
	m := newTestManager()

	n, err := m.LoadDefinitions("testdata/definitions")
	if err != nil {
		t.Fatalf("LoadDefinitions() error = %v", err)
	}
	if n != 2 {
		t.Errorf("loaded %d forms, want 2", n)
	}
	if got, want := m.ListForms(), []string{"contact", "loan"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListForms() = %v, want %v", got, want)
	}

	loan, err := m.GetForm("loan")
	if err != nil {
		t.Fatalf("GetForm(loan) error = %v", err)
	}
	if loan.Title != "Loan application" {
		t.Errorf("title = %q", loan.Title)
	}

	ctx := context.Background()
	state := loan.Engine.ComputeFieldState(ctx, "province", map[string]any{"country": "CA"})
	if !state.Visible {
		t.Error("expected province to be visible for CA")
	}
	state = loan.Engine.ComputeFieldState(ctx, "province", map[string]any{})
	if state.Visible {
		t.Error("expected province to be hidden without a country")
	}

	contact, _ := m.GetEngine("contact")
	if state := contact.ComputeFieldState(ctx, "phone", map[string]any{"email": "a@b.c"}); !state.Readonly {
		t.Error("expected phone to be readonly once an email is present")
	}
}

// TestLoadDefinitions_Invalid verifies loading stops at an invalid definition
func TestLoadDefinitions_Invalid(t *testing.T) {
	m := newTestManager()

	n, err := m.LoadDefinitions("testdata/invalid")
	if err == nil {
		t.Fatal("expected error for invalid definition, got nil")
	}
	if n != 0 {
		t.Errorf("loaded %d forms, want 0", n)
	}
	if !strings.Contains(err.Error(), "broken.yaml") {
		t.Errorf("expected error to name the file, got: %v", err)
	}
}

// TestLoadDefinitions_MissingDir verifies an unreadable directory is reported
func TestLoadDefinitions_MissingDir(t *testing.T) {
	m := newTestManager()

	if _, err := m.LoadDefinitions("testdata/does-not-exist"); err == nil {
		t.Error("expected error for missing directory, got nil")
	}
}

// TestParseDefinition_YAMLMatchesJSON verifies both formats decode to the same definition
func TestParseDefinition_YAMLMatchesJSON(t *testing.T) {
	yamlDoc := `
id: survey
schema:
  type: object
  properties:
    tags:
      type: array
rules:
  - id: lock
    condition:
      type: contains
      field: tags
      value: locked
    action:
      type: schema
      field: tags
      schemaUpdates:
        readOnly: true
        examples: [[a], [b]]
`
	jsonDoc := `{
		"id": "survey",
		"schema": {"type": "object", "properties": {"tags": {"type": "array"}}},
		"rules": [{
			"id": "lock",
			"condition": {"type": "contains", "field": "tags", "value": "locked"},
			"action": {"type": "schema", "field": "tags", "schemaUpdates": {"readOnly": true, "examples": [["a"], ["b"]]}}
		}]
	}`

	fromYAML, err := ParseDefinition([]byte(yamlDoc), "yaml")
	if err != nil {
		t.Fatalf("ParseDefinition(yaml) error = %v", err)
	}
	fromJSON, err := ParseDefinition([]byte(jsonDoc), ".json")
	if err != nil {
		t.Fatalf("ParseDefinition(json) error = %v", err)
	}

	if !reflect.DeepEqual(fromYAML, fromJSON) {
		t.Errorf("YAML and JSON definitions differ:\nyaml: %#v\njson: %#v", fromYAML, fromJSON)
	}
	if fromYAML.Rules[0].Action.Type != rules.ActionSchema {
		t.Errorf("action type = %q", fromYAML.Rules[0].Action.Type)
	}
}

// TestParseDefinition_UnknownFormat verifies unsupported extensions are rejected
func TestParseDefinition_UnknownFormat(t *testing.T) {
	_, err := ParseDefinition([]byte("id = 'x'"), "toml")
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported format error, got: %v", err)
	}
}
