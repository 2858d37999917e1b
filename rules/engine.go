package rules

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/liamcoop/formrules/fieldpath"
	"github.com/liamcoop/formrules/internal/logger"
	"github.com/liamcoop/formrules/sandbox"
)

// ErrRuleNotFound is returned when a rule id is unknown.
var ErrRuleNotFound = errors.New("rule not found")

// ScriptRunner executes scripts for custom conditions, transform actions and
// custom actions. *sandbox.Manager satisfies it.
type ScriptRunner interface {
	ExecuteScript(ctx context.Context, scriptID, code string, host sandbox.HostContext, payload map[string]any) *sandbox.ScriptExecutionResult
}

// EngineConfig configures script-backed rules.
type EngineConfig struct {
	// Host is handed to every script the engine runs.
	Host sandbox.HostContext

	// AwaitCustomConditions makes custom conditions wait for their script and
	// use its result. When false (the default) the script is started in the
	// background and the condition holds unconditionally.
	AwaitCustomConditions bool

	// ScriptNamespace prefixes every script id the engine runs, so engines
	// sharing one sandbox do not collide on equal rule ids.
	ScriptNamespace string
}

// Engine holds a rule set and evaluates it against form snapshots.
// Rule mutation and evaluation may be called from different goroutines, but a
// pass only sees the rules present when it selected its candidates.
type Engine struct {
	rules  *RuleSet
	runner ScriptRunner
	config EngineConfig
	exprs  *expressions
}

// NewEngine creates an engine. runner may be nil when no rule uses scripts.
func NewEngine(runner ScriptRunner, config EngineConfig) (*Engine, error) {
	exprs, err := newExpressions()
	if err != nil {
		return nil, err
	}
	return &Engine{
		rules:  NewRuleSet(),
		runner: runner,
		config: config,
		exprs:  exprs,
	}, nil
}

// Config returns the engine configuration.
func (en *Engine) Config() EngineConfig {
	return en.config
}

// AddRule validates, compiles and stores a rule, replacing any rule with the
// same id.
func (en *Engine) AddRule(rule FieldRule) error {
	if err := ValidateRule(rule); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if err := en.exprs.compileRule(rule); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	if en.rules.Put(rule) {
		logger.Debug("Rule replaced", "rule_id", rule.ID)
	}
	return nil
}

// RemoveRule deletes a rule. It reports whether the rule existed.
func (en *Engine) RemoveRule(id string) bool {
	if !en.rules.Remove(id) {
		return false
	}
	en.exprs.remove(id)
	return true
}

// GetRule returns a rule by id.
func (en *Engine) GetRule(id string) (FieldRule, error) {
	rule, ok := en.rules.Get(id)
	if !ok {
		return FieldRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return rule, nil
}

// GetRules returns the rules indexed under fieldPath, or every rule when
// fieldPath is empty. Both are in insertion order.
func (en *Engine) GetRules(fieldPath string) []FieldRule {
	if fieldPath == "" {
		return en.rules.List()
	}
	return en.rules.ByField(fieldPath)
}

// Rules exposes the underlying rule set and its index.
func (en *Engine) Rules() *RuleSet {
	return en.rules
}

// EvaluateRules evaluates the rules touching changedField (every rule when it
// is empty) against formData. formData is never mutated. A failing rule is
// recorded in Errors and does not stop the pass.
func (en *Engine) EvaluateRules(ctx context.Context, formData map[string]any, changedField string) *RuleEvaluationResult {
	if formData == nil {
		formData = map[string]any{}
	}
	result := newEvaluationResult()

	for _, rule := range en.rules.Candidates(changedField) {
		en.evaluateRule(ctx, rule, formData, result)
	}
	return result
}

// ComputeFieldState evaluates every rule and returns fieldPath's state, or the
// default state when no matching rule touched it.
func (en *Engine) ComputeFieldState(ctx context.Context, fieldPath string, formData map[string]any) FieldState {
	result := en.EvaluateRules(ctx, formData, "")
	if state, ok := result.FieldStates[fieldPath]; ok {
		return *state
	}
	return DefaultFieldState()
}

func (en *Engine) evaluateRule(ctx context.Context, rule FieldRule, formData map[string]any, result *RuleEvaluationResult) {
	defer func() {
		if r := recover(); r != nil {
			en.recordError(result, rule, fmt.Sprintf("panic: %v", r))
		}
	}()

	matched, err := en.evaluateCondition(ctx, rule.ID, rule.Condition, formData)
	if err != nil {
		en.recordError(result, rule, err.Error())
		return
	}
	if !matched {
		return
	}

	if err := en.applyAction(ctx, rule, formData, result); err != nil {
		en.recordError(result, rule, err.Error())
	}
}

func (en *Engine) recordError(result *RuleEvaluationResult, rule FieldRule, message string) {
	logger.RuleFailed()
	logger.Warn("Rule evaluation failed", "rule_id", rule.ID, "field", rule.Action.Field, "error", message)
	result.addError(rule.ID, rule.Action.Field, message)
}

func (en *Engine) evaluateCondition(ctx context.Context, ruleID string, cond RuleCondition, data map[string]any) (bool, error) {
	switch cond.Type {
	case ConditionAnd:
		for _, sub := range cond.Conditions {
			ok, err := en.evaluateCondition(ctx, ruleID, sub, data)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case ConditionOr:
		for _, sub := range cond.Conditions {
			ok, err := en.evaluateCondition(ctx, ruleID, sub, data)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case ConditionNot:
		// Negation of "all hold", not of each sub-condition.
		all, err := en.evaluateCondition(ctx, ruleID, RuleCondition{Type: ConditionAnd, Conditions: cond.Conditions}, data)
		if err != nil {
			return false, err
		}
		return !all, nil

	case ConditionEquals:
		v, found := fieldpath.Get(data, cond.Field)
		return found && strictEqual(v, cond.Value), nil

	case ConditionContains:
		v, found := fieldpath.Get(data, cond.Field)
		return found && contains(v, cond.Value), nil

	case ConditionRange:
		v, found := fieldpath.Get(data, cond.Field)
		n := toNumber(v, found)
		if math.IsNaN(n) {
			return false, nil
		}
		if cond.Min != nil && n < *cond.Min {
			return false, nil
		}
		if cond.Max != nil && n > *cond.Max {
			return false, nil
		}
		return true, nil

	case ConditionExists:
		v, found := fieldpath.Get(data, cond.Field)
		if !found || v == nil {
			return false, nil
		}
		if s, ok := v.(string); ok && s == "" {
			return false, nil
		}
		return true, nil

	case ConditionCustom:
		return en.evaluateCustomCondition(ctx, ruleID, cond, data), nil

	case ConditionExpression:
		var value any
		if cond.Field != "" {
			value, _ = fieldpath.Get(data, cond.Field)
		}
		return en.exprs.eval(ruleID, cond.Expression, data, value)

	default:
		return false, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

// scriptID names a rule script for the sandbox's in-flight guard.
func (en *Engine) scriptID(kind, ruleID string) string {
	if en.config.ScriptNamespace == "" {
		return kind + ":" + ruleID
	}
	return en.config.ScriptNamespace + "/" + kind + ":" + ruleID
}

// evaluateCustomCondition runs a condition script. By default the script is
// started without waiting for it and the condition holds; its outcome only
// reaches the log. With AwaitCustomConditions the script's result decides,
// and a failed script makes the condition false.
func (en *Engine) evaluateCustomCondition(ctx context.Context, ruleID string, cond RuleCondition, data map[string]any) bool {
	if en.runner == nil {
		logger.Warn("Custom condition has no script runner", "rule_id", ruleID)
		return false
	}
	scriptID := en.scriptID("condition", ruleID)
	payload := map[string]any{
		"formData": fieldpath.CloneMap(data),
		"ruleId":   ruleID,
	}

	if !en.config.AwaitCustomConditions {
		go func(ctx context.Context) {
			res := en.runner.ExecuteScript(ctx, scriptID, cond.Script, en.config.Host, payload)
			if !res.Success {
				logger.Warn("Custom condition script failed", "rule_id", ruleID, "error", res.Error)
			}
		}(context.WithoutCancel(ctx))
		return true
	}

	res := en.runner.ExecuteScript(ctx, scriptID, cond.Script, en.config.Host, payload)
	if !res.Success {
		logger.Warn("Custom condition script failed", "rule_id", ruleID, "error", res.Error)
		return false
	}
	return truthy(res.Result)
}
