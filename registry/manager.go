package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/liamcoop/formrules/fieldpath"
	"github.com/liamcoop/formrules/internal/logger"
	"github.com/liamcoop/formrules/rules"
)

var (
	// ErrFormNotFound is returned when a form id is unknown.
	ErrFormNotFound = errors.New("form not found")
	// ErrFormExists is returned by CreateForm when the id is taken.
	ErrFormExists = errors.New("form already exists")
)

// Form is a registered form: its base schema, the compiled validator for it
// and the rule engine evaluating its rules.
type Form struct {
	ID     string
	Title  string
	Schema map[string]any
	Engine *rules.Engine

	validator *jsonschema.Schema
}

// Definition returns the form's current definition, including the rules held
// by its engine.
func (f *Form) Definition() FormDefinition {
	return FormDefinition{
		ID:     f.ID,
		Title:  f.Title,
		Schema: fieldpath.CloneMap(f.Schema),
		Rules:  f.Engine.GetRules(""),
	}
}

// Manager holds one rule engine per form. Every engine shares the manager's
// script runner and engine configuration.
type Manager struct {
	forms        map[string]*Form
	runner       rules.ScriptRunner
	engineConfig rules.EngineConfig
	mu           sync.RWMutex
}

// NewManager creates a manager whose engines run scripts on runner.
func NewManager(runner rules.ScriptRunner, engineConfig rules.EngineConfig) *Manager {
	return &Manager{
		forms:        make(map[string]*Form),
		runner:       runner,
		engineConfig: engineConfig,
	}
}

// CreateForm validates def and registers a form with an engine holding its rules.
func (m *Manager) CreateForm(def FormDefinition) error {
	form, err := m.buildForm(def.ID, def.Title, def.Schema, def.Rules)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.forms[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrFormExists, def.ID)
	}
	m.forms[def.ID] = form

	logger.Info("Form created", "form_id", def.ID, "rules", len(def.Rules))
	return nil
}

// GetForm retrieves a form by id.
func (m *Manager) GetForm(formID string) (*Form, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	form, exists := m.forms[formID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFormNotFound, formID)
	}
	return form, nil
}

// GetEngine retrieves the engine for a form.
func (m *Manager) GetEngine(formID string) (*rules.Engine, error) {
	form, err := m.GetForm(formID)
	if err != nil {
		return nil, err
	}
	return form.Engine, nil
}

// UpdateFormSchema replaces a form's base schema. A new engine is built with
// the current rules and swapped in, so evaluations already holding the old
// engine finish against it. An unknown form is created.
func (m *Manager) UpdateFormSchema(formID string, schema map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.forms[formID]
	if !exists {
		form, err := m.buildForm(formID, "", schema, nil)
		if err != nil {
			return err
		}
		m.forms[formID] = form
		logger.Info("Form created", "form_id", formID, "rules", 0)
		return nil
	}

	current := existing.Engine.GetRules("")
	form, err := m.buildForm(formID, existing.Title, schema, current)
	if err != nil {
		return err
	}
	m.forms[formID] = form

	logger.Info("Form schema updated", "form_id", formID, "rules", len(current))
	return nil
}

// ListForms returns every form id in sorted order.
func (m *Manager) ListForms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.forms))
	for id := range m.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeleteForm removes a form and its engine.
func (m *Manager) DeleteForm(formID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.forms[formID]; !exists {
		return fmt.Errorf("%w: %s", ErrFormNotFound, formID)
	}

	delete(m.forms, formID)
	logger.Info("Form deleted", "form_id", formID)
	return nil
}

func (m *Manager) buildForm(id, title string, schema map[string]any, ruleList []rules.FieldRule) (*Form, error) {
	def := FormDefinition{ID: id, Title: title, Schema: schema, Rules: ruleList}
	if err := ValidateDefinition(def); err != nil {
		return nil, fmt.Errorf("invalid definition for form %s: %w", id, err)
	}

	validator, err := compileSchema(id, schema)
	if err != nil {
		return nil, fmt.Errorf("invalid definition for form %s: %w", id, err)
	}

	engineConfig := m.engineConfig
	engineConfig.ScriptNamespace = id
	engine, err := rules.NewEngine(m.runner, engineConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	for _, rule := range ruleList {
		if err := engine.AddRule(rule); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
	}

	return &Form{
		ID:        id,
		Title:     title,
		Schema:    fieldpath.CloneMap(schema),
		Engine:    engine,
		validator: validator,
	}, nil
}
