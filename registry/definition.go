package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/formrules/rules"
)

// FormDefinition is the serialized form of a form: its id, base JSON schema
// and rules. Definitions are read from YAML or JSON files.
type FormDefinition struct {
	ID     string            `json:"id" yaml:"id"`
	Title  string            `json:"title,omitempty" yaml:"title,omitempty"`
	Schema map[string]any    `json:"schema" yaml:"schema"`
	Rules  []rules.FieldRule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// ParseDefinition decodes a definition. format is "yaml", "yml" or "json".
func ParseDefinition(data []byte, format string) (FormDefinition, error) {
	var def FormDefinition
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return FormDefinition{}, fmt.Errorf("failed to parse YAML definition: %w", err)
		}
		def.Schema = normalizeYAML(def.Schema).(map[string]any)
		for i := range def.Rules {
			normalizeRule(&def.Rules[i])
		}
	case "json":
		if err := json.Unmarshal(data, &def); err != nil {
			return FormDefinition{}, fmt.Errorf("failed to parse JSON definition: %w", err)
		}
	default:
		return FormDefinition{}, fmt.Errorf("unsupported definition format %q", format)
	}
	return def, nil
}

// ParseDocument decodes a JSON or YAML object, such as a form data snapshot,
// into the shapes encoding/json produces.
func ParseDocument(data []byte, format string) (map[string]any, error) {
	var doc map[string]any
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML document: %w", err)
		}
		return normalizeYAML(doc).(map[string]any), nil
	case "json", "":
		if len(strings.TrimSpace(string(data))) == 0 {
			return map[string]any{}, nil
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON document: %w", err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}
}

// ReadDefinition reads one definition file, choosing the decoder by extension.
func ReadDefinition(path string) (FormDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FormDefinition{}, fmt.Errorf("failed to read definition: %w", err)
	}
	def, err := ParseDefinition(data, filepath.Ext(path))
	if err != nil {
		return FormDefinition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDefinitions creates a form for every *.yaml, *.yml and *.json file in
// dir, in file name order. It stops at the first invalid definition and
// returns how many forms were created before it.
func (m *Manager) LoadDefinitions(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read definitions directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	loaded := 0
	for _, path := range paths {
		def, err := ReadDefinition(path)
		if err != nil {
			return loaded, err
		}
		if err := m.CreateForm(def); err != nil {
			return loaded, fmt.Errorf("failed to initialize form from %s: %w", path, err)
		}
		loaded++
	}

	return loaded, nil
}

// normalizeYAML converts yaml.v3 output to the shapes encoding/json produces:
// map[string]any for mappings and []any for sequences.
func normalizeYAML(v any) any {
	switch x := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeValue(val)
		}
		return out
	}
	return v
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalizeValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeValue(val)
		}
		return out
	}
	return v
}

func normalizeRule(rule *rules.FieldRule) {
	if rule.Action.SchemaUpdates != nil {
		rule.Action.SchemaUpdates = normalizeValue(rule.Action.SchemaUpdates).(map[string]any)
	}
	normalizeCondition(&rule.Condition)
}

func normalizeCondition(cond *rules.RuleCondition) {
	cond.Value = normalizeValue(cond.Value)
	for i := range cond.Conditions {
		normalizeCondition(&cond.Conditions[i])
	}
}
