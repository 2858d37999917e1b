package rules

import (
	"fmt"
	"strings"

	"github.com/liamcoop/formrules/fieldpath"
)

// MaxConditionDepth bounds the nesting of and/or/not conditions.
const MaxConditionDepth = 32

// ValidateRule checks a rule for programmer errors: missing id, unknown
// variants, missing payloads, unparseable field paths and excessive nesting.
// It does not compile expressions; AddRule does.
func ValidateRule(rule FieldRule) error {
	if strings.TrimSpace(rule.ID) == "" {
		return fmt.Errorf("rule id cannot be empty")
	}
	if err := validateCondition(rule.Condition, 1); err != nil {
		return fmt.Errorf("rule %q: condition: %w", rule.ID, err)
	}
	if err := validateAction(rule.Action); err != nil {
		return fmt.Errorf("rule %q: action: %w", rule.ID, err)
	}
	return nil
}

func validateCondition(cond RuleCondition, depth int) error {
	if depth > MaxConditionDepth {
		return fmt.Errorf("nesting exceeds maximum depth of %d", MaxConditionDepth)
	}

	switch cond.Type {
	case ConditionAnd, ConditionOr, ConditionNot:
		for i, sub := range cond.Conditions {
			if err := validateCondition(sub, depth+1); err != nil {
				return fmt.Errorf("%s[%d]: %w", cond.Type, i, err)
			}
		}
		return nil

	case ConditionEquals, ConditionContains, ConditionExists:
		return validateField(cond.Field)

	case ConditionRange:
		if err := validateField(cond.Field); err != nil {
			return err
		}
		if cond.Min != nil && cond.Max != nil && *cond.Min > *cond.Max {
			return fmt.Errorf("range min %v is greater than max %v", *cond.Min, *cond.Max)
		}
		return nil

	case ConditionCustom:
		if strings.TrimSpace(cond.Script) == "" {
			return fmt.Errorf("custom condition requires a script")
		}
		return nil

	case ConditionExpression:
		if strings.TrimSpace(cond.Expression) == "" {
			return fmt.Errorf("expression condition requires an expression")
		}
		if cond.Field != "" {
			return validateField(cond.Field)
		}
		return nil

	case "":
		return fmt.Errorf("condition type cannot be empty")

	default:
		return fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

func validateAction(action RuleAction) error {
	switch action.Type {
	case ActionVisibility, ActionEnabled, ActionReadonly:
		if action.Value == nil {
			return fmt.Errorf("%s action requires a boolean value", action.Type)
		}

	case ActionSchema:
		if len(action.SchemaUpdates) == 0 {
			return fmt.Errorf("schema action requires schemaUpdates")
		}

	case ActionTransform, ActionCustom:
		if strings.TrimSpace(action.Script) == "" {
			return fmt.Errorf("%s action requires a script", action.Type)
		}

	case "":
		return fmt.Errorf("action type cannot be empty")

	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}

	return validateField(action.Field)
}

func validateField(field string) error {
	if field == "" {
		return fmt.Errorf("field cannot be empty")
	}
	if _, err := fieldpath.Parse(field); err != nil {
		return err
	}
	return nil
}
