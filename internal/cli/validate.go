package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/liamcoop/formrules/registry"
)

// ValidationResult holds form data validation results.
type ValidationResult struct {
	Valid      bool                      `json:"valid"`
	Violations []registry.FieldViolation `json:"violations,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "validate <definition>",
		Short: "Validate form data against the rule-modified schema",
		Long: `Validate form data against the form's JSON schema after the rules'
schema modifications are applied. Exits with status 1 when the data has
violations.`,
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

			violations, err := env.forms.ValidateFormData(cmd.Context(), form.ID, data)
			if err != nil {
				return env.out.Error(ErrCodeInput, "failed to validate form data", err)
			}

			if len(violations) == 0 {
				return env.out.Success(ValidationResult{Valid: true}, func(w io.Writer) {
					fmt.Fprintln(w, "✓ Form data valid")
				})
			}

			result := ValidationResult{Valid: false, Violations: violations}
			return env.out.Failure(ErrCodeInput, fmt.Sprintf("validation failed with %d violation(s)", len(violations)), result, func(w io.Writer) {
				fmt.Fprintln(w, "✗ Validation failed")
				for _, v := range violations {
					field := v.Field
					if field == "" {
						field = "(form)"
					}
					fmt.Fprintf(w, "  %s [%s]: %s\n", field, v.Keyword, v.Message)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "form data file (JSON or YAML, - for stdin)")

	return cmd
}
