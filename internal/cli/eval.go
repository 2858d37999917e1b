package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/liamcoop/formrules/rules"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	DataPath string
	Changed  string
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{}

	cmd := &cobra.Command{
		Use:   "eval <definition>",
		Short: "Evaluate a form's rules against a data snapshot",
		Long: `Evaluate the rules of a form definition against form data.

With --changed only rules touching that field path are evaluated. The command
exits with status 1 when any rule fails.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.DataPath, "data", "d", "", "form data file (JSON or YAML, - for stdin)")
	cmd.Flags().StringVar(&opts.Changed, "changed", "", "only evaluate rules touching this field path")

	return cmd
}

func runEval(rootOpts *RootOptions, opts *EvalOptions, defPath string, cmd *cobra.Command) error {
	env, err := newEnvironment(rootOpts, cmd)
	if err != nil {
		return err
	}
	form, err := env.loadForm(defPath)
	if err != nil {
		return err
	}
	data, err := env.readDocument(cmd, opts.DataPath)
	if err != nil {
		return err
	}

	result := form.Engine.EvaluateRules(cmd.Context(), data, opts.Changed)
	env.out.VerboseLog("Evaluated form %s (changed field %q)", form.ID, opts.Changed)

	text := func(w io.Writer) { writeEvaluation(w, form.ID, result) }
	if len(result.Errors) > 0 {
		return env.out.Failure(ErrCodeGeneric, fmt.Sprintf("%d rule(s) failed", len(result.Errors)), result, text)
	}
	return env.out.Success(result, text)
}

func writeEvaluation(w io.Writer, formID string, result *rules.RuleEvaluationResult) {
	fmt.Fprintf(w, "Form %s: %d field state(s), %d schema modification(s), %d error(s)\n",
		formID, len(result.FieldStates), len(result.SchemaModifications), len(result.Errors))

	for _, field := range sortedKeys(result.FieldStates) {
		writeFieldState(w, field, *result.FieldStates[field])
	}
	for _, field := range sortedKeys(result.SchemaModifications) {
		mods, _ := json.Marshal(result.SchemaModifications[field])
		fmt.Fprintf(w, "  schema %s: %s\n", field, mods)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  error %s [%s]: %s\n", e.RuleID, e.Field, e.Message)
	}
}

func writeFieldState(w io.Writer, field string, state rules.FieldState) {
	fmt.Fprintf(w, "  %s visible=%t enabled=%t readonly=%t", field, state.Visible, state.Enabled, state.Readonly)
	if state.TransformedValue != nil {
		v, _ := json.Marshal(state.TransformedValue)
		fmt.Fprintf(w, " value=%s", v)
	}
	fmt.Fprintln(w)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
