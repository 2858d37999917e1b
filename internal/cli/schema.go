package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "schema <definition>",
		Short: "Print the form schema with rule modifications applied",
		Long: `Evaluate the form's rules against form data and print the base JSON
schema with every schema modification merged in. The base schema in the
definition is left untouched.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(rootOpts, cmd)
			if err != nil {
				return err
			}
			form, err := env.loadForm(args[0])
			if err != nil {
				return err
			}
			data, err := env.readDocument(cmd, dataPath)
			if err != nil {
				return err
			}

			schema := form.EffectiveSchema(cmd.Context(), data)
			return env.out.Success(schema, func(w io.Writer) {
				out, _ := json.MarshalIndent(schema, "", "  ")
				fmt.Fprintln(w, string(out))
			})
		},
	}

	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "form data file (JSON or YAML, - for stdin)")

	return cmd
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:           "state <definition> <field>",
		Short:         "Print the computed state of one field",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(rootOpts, cmd)
			if err != nil {
				return err
			}
			form, err := env.loadForm(args[0])
			if err != nil {
				return err
			}
			data, err := env.readDocument(cmd, dataPath)
			if err != nil {
				return err
			}

			field := args[1]
			state := form.Engine.ComputeFieldState(cmd.Context(), field, data)
			return env.out.Success(state, func(w io.Writer) {
				writeFieldState(w, field, state)
			})
		},
	}

	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "form data file (JSON or YAML, - for stdin)")

	return cmd
}
