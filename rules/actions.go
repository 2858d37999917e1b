package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/liamcoop/formrules/fieldpath"
	"github.com/liamcoop/formrules/internal/logger"
)

var errNoRunner = errors.New("no script runner configured")

func (en *Engine) applyAction(ctx context.Context, rule FieldRule, data map[string]any, result *RuleEvaluationResult) error {
	action := rule.Action

	switch action.Type {
	case ActionVisibility, ActionEnabled, ActionReadonly:
		if action.Value == nil {
			return fmt.Errorf("%s action requires a value", action.Type)
		}
		state := result.state(action.Field)
		switch action.Type {
		case ActionVisibility:
			state.Visible = *action.Value
		case ActionEnabled:
			state.Enabled = *action.Value
		case ActionReadonly:
			state.Readonly = *action.Value
		}
		return nil

	case ActionSchema:
		mods, ok := result.SchemaModifications[action.Field]
		if !ok {
			mods = make(map[string]any, len(action.SchemaUpdates))
			result.SchemaModifications[action.Field] = mods
		}
		for k, v := range action.SchemaUpdates {
			mods[k] = fieldpath.Clone(v)
		}
		result.state(action.Field).SchemaOverrides = fieldpath.CloneMap(mods)
		return nil

	case ActionTransform:
		en.applyTransform(ctx, rule, data, result)
		return nil

	case ActionCustom:
		return en.applyCustom(ctx, rule, data, result)

	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// applyTransform stores the script's result as the field's transformed value.
// On failure the field keeps its current value.
func (en *Engine) applyTransform(ctx context.Context, rule FieldRule, data map[string]any, result *RuleEvaluationResult) {
	field := rule.Action.Field
	original, _ := fieldpath.Get(data, field)
	state := result.state(field)

	if en.runner == nil {
		logger.Warn("Transform script failed", "rule_id", rule.ID, "field", field, "error", errNoRunner)
		state.TransformedValue = original
		return
	}

	res := en.runner.ExecuteScript(ctx, en.scriptID("transform", rule.ID), rule.Action.Script, en.config.Host, map[string]any{
		"value":    fieldpath.Clone(original),
		"formData": fieldpath.CloneMap(data),
		"field":    field,
	})
	if !res.Success {
		logger.Warn("Transform script failed", "rule_id", rule.ID, "field", field, "error", res.Error)
		state.TransformedValue = original
		return
	}
	state.TransformedValue = res.Result
}

// applyCustom runs an action script with write access to the accumulated
// result through payload.evaluation. Writes are read back only when the
// script succeeds.
func (en *Engine) applyCustom(ctx context.Context, rule FieldRule, data map[string]any, result *RuleEvaluationResult) error {
	if en.runner == nil {
		return errNoRunner
	}

	evaluation := map[string]any{
		"fieldStates":         exportFieldStates(result.FieldStates),
		"schemaModifications": exportSchemaModifications(result.SchemaModifications),
	}
	res := en.runner.ExecuteScript(ctx, en.scriptID("action", rule.ID), rule.Action.Script, en.config.Host, map[string]any{
		"formData":   fieldpath.CloneMap(data),
		"field":      rule.Action.Field,
		"evaluation": evaluation,
	})
	if !res.Success {
		return errors.New(res.Error)
	}

	if states, ok := evaluation["fieldStates"].(map[string]any); ok {
		result.FieldStates = importFieldStates(states)
	}
	if mods, ok := evaluation["schemaModifications"].(map[string]any); ok {
		result.SchemaModifications = importSchemaModifications(mods)
	}
	return nil
}

func exportFieldStates(states map[string]*FieldState) map[string]any {
	out := make(map[string]any, len(states))
	for field, s := range states {
		m := map[string]any{
			"visible":  s.Visible,
			"enabled":  s.Enabled,
			"readonly": s.Readonly,
		}
		if s.SchemaOverrides != nil {
			m["schemaOverrides"] = fieldpath.CloneMap(s.SchemaOverrides)
		}
		if s.TransformedValue != nil {
			m["transformedValue"] = fieldpath.Clone(s.TransformedValue)
		}
		out[field] = m
	}
	return out
}

func importFieldStates(in map[string]any) map[string]*FieldState {
	out := make(map[string]*FieldState, len(in))
	for field, raw := range in {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		s := DefaultFieldState()
		if v, ok := m["visible"].(bool); ok {
			s.Visible = v
		}
		if v, ok := m["enabled"].(bool); ok {
			s.Enabled = v
		}
		if v, ok := m["readonly"].(bool); ok {
			s.Readonly = v
		}
		if v, ok := m["schemaOverrides"].(map[string]any); ok {
			s.SchemaOverrides = v
		}
		if v, ok := m["transformedValue"]; ok {
			s.TransformedValue = v
		}
		out[field] = &s
	}
	return out
}

func exportSchemaModifications(mods map[string]map[string]any) map[string]any {
	out := make(map[string]any, len(mods))
	for field, m := range mods {
		out[field] = fieldpath.CloneMap(m)
	}
	return out
}

func importSchemaModifications(in map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(in))
	for field, raw := range in {
		if m, ok := raw.(map[string]any); ok {
			out[field] = m
		}
	}
	return out
}
