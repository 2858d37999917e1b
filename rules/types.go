package rules

// ConditionType tags a RuleCondition variant.
type ConditionType string

const (
	ConditionAnd      ConditionType = "and"
	ConditionOr       ConditionType = "or"
	ConditionNot      ConditionType = "not"
	ConditionEquals   ConditionType = "equals"
	ConditionContains ConditionType = "contains"
	ConditionRange    ConditionType = "range"
	ConditionExists   ConditionType = "exists"
	ConditionCustom   ConditionType = "custom"

	// ConditionExpression evaluates a CEL expression over the snapshot.
	ConditionExpression ConditionType = "expression"
)

// ActionType tags a RuleAction variant.
type ActionType string

const (
	ActionVisibility ActionType = "visibility"
	ActionEnabled    ActionType = "enabled"
	ActionReadonly   ActionType = "readonly"
	ActionSchema     ActionType = "schema"
	ActionTransform  ActionType = "transform"
	ActionCustom     ActionType = "custom"
)

// FieldRule is a named condition/action pair. Rules with a higher Priority are
// evaluated first; a later matching rule overwrites what an earlier one wrote.
type FieldRule struct {
	ID          string        `json:"id" yaml:"id"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Condition   RuleCondition `json:"condition" yaml:"condition"`
	Action      RuleAction    `json:"action" yaml:"action"`
	Priority    int           `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// RuleCondition is a predicate tree over a form snapshot. Which fields are
// meaningful depends on Type:
//
//	and, or, not          Conditions
//	equals, contains      Field, Value
//	range                 Field, Min, Max
//	exists                Field
//	custom                Script
//	expression            Expression, optionally Field (bound as `value`)
type RuleCondition struct {
	Type       ConditionType   `json:"type" yaml:"type"`
	Field      string          `json:"field,omitempty" yaml:"field,omitempty"`
	Value      any             `json:"value,omitempty" yaml:"value,omitempty"`
	Min        *float64        `json:"min,omitempty" yaml:"min,omitempty"`
	Max        *float64        `json:"max,omitempty" yaml:"max,omitempty"`
	Conditions []RuleCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Script     string          `json:"script,omitempty" yaml:"script,omitempty"`
	Expression string          `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// RuleAction is applied to Field when its rule's condition holds.
//
//	visibility, enabled, readonly   Value
//	schema                          SchemaUpdates
//	transform, custom               Script
type RuleAction struct {
	Type          ActionType     `json:"type" yaml:"type"`
	Field         string         `json:"field" yaml:"field"`
	Value         *bool          `json:"value,omitempty" yaml:"value,omitempty"`
	SchemaUpdates map[string]any `json:"schemaUpdates,omitempty" yaml:"schemaUpdates,omitempty"`
	Script        string         `json:"script,omitempty" yaml:"script,omitempty"`
}

// FieldState is the accumulated UI state of one field after an evaluation pass.
type FieldState struct {
	Visible          bool           `json:"visible"`
	Enabled          bool           `json:"enabled"`
	Readonly         bool           `json:"readonly"`
	SchemaOverrides  map[string]any `json:"schemaOverrides,omitempty"`
	TransformedValue any            `json:"transformedValue,omitempty"`
}

// DefaultFieldState is the state of a field no matching rule touched.
func DefaultFieldState() FieldState {
	return FieldState{Visible: true, Enabled: true, Readonly: false}
}

// RuleError records a rule that failed during a pass.
type RuleError struct {
	RuleID  string `json:"ruleId"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// RuleEvaluationResult is the output of one EvaluateRules call.
type RuleEvaluationResult struct {
	FieldStates         map[string]*FieldState    `json:"fieldStates"`
	SchemaModifications map[string]map[string]any `json:"schemaModifications"`
	Errors              []RuleError               `json:"errors"`
}

func newEvaluationResult() *RuleEvaluationResult {
	return &RuleEvaluationResult{
		FieldStates:         make(map[string]*FieldState),
		SchemaModifications: make(map[string]map[string]any),
		Errors:              []RuleError{},
	}
}

// state returns the accumulator for field, creating it with defaults.
func (r *RuleEvaluationResult) state(field string) *FieldState {
	s, ok := r.FieldStates[field]
	if !ok {
		d := DefaultFieldState()
		s = &d
		r.FieldStates[field] = s
	}
	return s
}

func (r *RuleEvaluationResult) addError(ruleID, field, message string) {
	r.Errors = append(r.Errors, RuleError{RuleID: ruleID, Message: message, Field: field})
}
