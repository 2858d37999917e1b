package registry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/liamcoop/formrules/rules"
)

const (
	// MaxRulesPerForm bounds the number of rules a definition may carry.
	MaxRulesPerForm = 500
	// MaxSchemaProperties bounds the top-level properties of a form schema.
	MaxSchemaProperties = 200
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// ValidateDefinition checks a definition before it is registered: the form
// id, the shape of the base schema, that the schema compiles, and every rule.
func ValidateDefinition(def FormDefinition) error {
	if err := validateIdentifier(def.ID); err != nil {
		return fmt.Errorf("invalid form id %q: %w", def.ID, err)
	}

	if err := validateSchemaShape(def.Schema); err != nil {
		return err
	}
	if _, err := compileSchema(def.ID, def.Schema); err != nil {
		return err
	}

	if len(def.Rules) > MaxRulesPerForm {
		return fmt.Errorf("form contains %d rules, maximum allowed is %d", len(def.Rules), MaxRulesPerForm)
	}
	seen := make(map[string]struct{}, len(def.Rules))
	for i, rule := range def.Rules {
		if err := rules.ValidateRule(rule); err != nil {
			return fmt.Errorf("rule %d (%q): %w", i, rule.ID, err)
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = struct{}{}
	}

	return nil
}

// validateIdentifier checks a form id: 1-100 characters, starting with a
// letter or underscore, followed by letters, digits, underscores or hyphens.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(name))
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern %s (start with letter or underscore, followed by letters, digits, underscores or hyphens)", identifierPattern)
	}
	return nil
}

func validateSchemaShape(schema map[string]any) error {
	if len(schema) == 0 {
		return fmt.Errorf("schema cannot be empty, must describe an object")
	}

	if t, ok := schema["type"]; ok && t != "object" {
		return fmt.Errorf("schema type must be \"object\", got %v", t)
	}

	raw, ok := schema["properties"]
	if !ok {
		return fmt.Errorf("schema must declare properties")
	}
	props, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("schema properties must be an object")
	}
	if len(props) > MaxSchemaProperties {
		return fmt.Errorf("schema contains %d properties, maximum allowed is %d", len(props), MaxSchemaProperties)
	}
	for name, prop := range props {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("schema property names cannot be blank")
		}
		if _, ok := prop.(map[string]any); !ok {
			return fmt.Errorf("schema property %q must be an object", name)
		}
	}

	return nil
}

func compileSchema(formID string, schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	url := "https://formrules.local/forms/" + formID + ".schema.json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(string(data))); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}
