package rules

// Rule builders produce single-condition rules and carry no behavior of
// their own.

func boolPtr(b bool) *bool { return &b }

// Bound returns a pointer to v for use as a range bound.
func Bound(v float64) *float64 { return &v }

// ShowWhen makes field visible when cond holds.
func ShowWhen(id, field string, cond RuleCondition) FieldRule {
	return flagRule(id, ActionVisibility, field, true, cond)
}

// HideWhen hides field when cond holds.
func HideWhen(id, field string, cond RuleCondition) FieldRule {
	return flagRule(id, ActionVisibility, field, false, cond)
}

// EnableWhen enables field when cond holds.
func EnableWhen(id, field string, cond RuleCondition) FieldRule {
	return flagRule(id, ActionEnabled, field, true, cond)
}

// DisableWhen disables field when cond holds.
func DisableWhen(id, field string, cond RuleCondition) FieldRule {
	return flagRule(id, ActionEnabled, field, false, cond)
}

// ReadonlyWhen makes field read-only when cond holds.
func ReadonlyWhen(id, field string, cond RuleCondition) FieldRule {
	return flagRule(id, ActionReadonly, field, true, cond)
}

// SetEnumWhen restricts field to values when cond holds.
func SetEnumWhen(id, field string, values []any, cond RuleCondition) FieldRule {
	return FieldRule{
		ID:        id,
		Condition: cond,
		Action: RuleAction{
			Type:          ActionSchema,
			Field:         field,
			SchemaUpdates: map[string]any{"enum": values},
		},
	}
}

// SetRangeWhen sets field's minimum and maximum when cond holds. A nil bound
// is left out of the update.
func SetRangeWhen(id, field string, min, max *float64, cond RuleCondition) FieldRule {
	updates := map[string]any{}
	if min != nil {
		updates["minimum"] = *min
	}
	if max != nil {
		updates["maximum"] = *max
	}
	return FieldRule{
		ID:        id,
		Condition: cond,
		Action: RuleAction{
			Type:          ActionSchema,
			Field:         field,
			SchemaUpdates: updates,
		},
	}
}

// TransformWhen replaces field's value with the result of script when cond holds.
func TransformWhen(id, field, script string, cond RuleCondition) FieldRule {
	return FieldRule{
		ID:        id,
		Condition: cond,
		Action:    RuleAction{Type: ActionTransform, Field: field, Script: script},
	}
}

func flagRule(id string, typ ActionType, field string, value bool, cond RuleCondition) FieldRule {
	return FieldRule{
		ID:        id,
		Condition: cond,
		Action:    RuleAction{Type: typ, Field: field, Value: boolPtr(value)},
	}
}

// WithPriority returns a copy of r with the given priority.
func (r FieldRule) WithPriority(priority int) FieldRule {
	r.Priority = priority
	return r
}

// WithDescription returns a copy of r with the given description.
func (r FieldRule) WithDescription(description string) FieldRule {
	r.Description = description
	return r
}

func Equals(field string, value any) RuleCondition {
	return RuleCondition{Type: ConditionEquals, Field: field, Value: value}
}

func Contains(field string, value any) RuleCondition {
	return RuleCondition{Type: ConditionContains, Field: field, Value: value}
}

func InRange(field string, min, max *float64) RuleCondition {
	return RuleCondition{Type: ConditionRange, Field: field, Min: min, Max: max}
}

func Exists(field string) RuleCondition {
	return RuleCondition{Type: ConditionExists, Field: field}
}

func And(conds ...RuleCondition) RuleCondition {
	return RuleCondition{Type: ConditionAnd, Conditions: conds}
}

func Or(conds ...RuleCondition) RuleCondition {
	return RuleCondition{Type: ConditionOr, Conditions: conds}
}

// Not holds unless every one of conds holds.
func Not(conds ...RuleCondition) RuleCondition {
	return RuleCondition{Type: ConditionNot, Conditions: conds}
}

func Custom(script string) RuleCondition {
	return RuleCondition{Type: ConditionCustom, Script: script}
}

// Expression is a CEL condition. When field is non-empty its value is bound
// as `value`; the snapshot is always bound as `data`.
func Expression(expression, field string) RuleCondition {
	return RuleCondition{Type: ConditionExpression, Expression: expression, Field: field}
}

// Always is a condition that always holds.
func Always() RuleCondition {
	return And()
}
