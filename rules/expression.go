package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celCostLimit bounds the work a single expression may do.
const celCostLimit = 1000000

// expressions compiles and caches CEL programs for expression conditions,
// keyed by rule id and then by source.
type expressions struct {
	env      *cel.Env
	programs map[string]map[string]cel.Program
	mu       sync.RWMutex
}

// newExpressions creates the CEL environment. Expressions see the whole
// snapshot as `data` and the condition's field value as `value`.
func newExpressions() (*expressions, error) {
	env, err := cel.NewEnv(
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("value", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &expressions{
		env:      env,
		programs: make(map[string]map[string]cel.Program),
	}, nil
}

// compile checks an expression and returns its program.
func (x *expressions) compile(expression string) (cel.Program, error) {
	ast, issues := x.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := x.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(celCostLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// compileRule compiles every expression in rule's condition tree and replaces
// the rule's programs. Nothing is stored if any expression fails.
func (x *expressions) compileRule(rule FieldRule) error {
	progs := make(map[string]cel.Program)
	var walk func(cond RuleCondition) error
	walk = func(cond RuleCondition) error {
		if cond.Type == ConditionExpression {
			if _, done := progs[cond.Expression]; !done {
				prog, err := x.compile(cond.Expression)
				if err != nil {
					return err
				}
				progs[cond.Expression] = prog
			}
		}
		for _, sub := range cond.Conditions {
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rule.Condition); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if len(progs) == 0 {
		delete(x.programs, rule.ID)
		return nil
	}
	x.programs[rule.ID] = progs
	return nil
}

func (x *expressions) remove(ruleID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.programs, ruleID)
}

// eval runs a compiled expression. Non-boolean results are treated as false.
func (x *expressions) eval(ruleID, expression string, data map[string]any, value any) (bool, error) {
	x.mu.RLock()
	prog, exists := x.programs[ruleID][expression]
	x.mu.RUnlock()

	if !exists {
		return false, fmt.Errorf("expression %q of rule %s is not compiled", expression, ruleID)
	}

	out, _, err := prog.Eval(map[string]any{
		"data":  data,
		"value": value,
	})
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}

	matched := false
	if boolVal, ok := out.Value().(bool); ok {
		matched = boolVal
	}
	return matched, nil
}
