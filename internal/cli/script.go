package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/formrules/internal/host"
	"github.com/liamcoop/formrules/sandbox"
)

// ScriptRunResult is the JSON payload of script run: the execution result and
// the host state the script left behind.
type ScriptRunResult struct {
	*sandbox.ScriptExecutionResult
	Host host.State `json:"host"`
}

// NewScriptCommand creates the script command group.
func NewScriptCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Run or check sandboxed scripts",
	}

	cmd.AddCommand(newScriptRunCommand(rootOpts))
	cmd.AddCommand(newScriptValidateCommand(rootOpts))

	return cmd
}

func newScriptRunCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		payloadPath string
		scriptID    string
	)

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Execute a script in the sandbox",
		Long: `Execute a script body in the sandbox against an in-memory host.

The body runs inside an async function with context, payload, component,
data, page, app, utils and console in scope; assign to result to return a
value. Exits with status 1 when the script fails or times out.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(rootOpts, cmd)
			if err != nil {
				return err
			}
			code, err := readScript(env, args[0])
			if err != nil {
				return err
			}
			payload, err := env.readDocument(cmd, payloadPath)
			if err != nil {
				return err
			}
			if scriptID == "" {
				scriptID = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			res := env.sandbox.ExecuteScript(cmd.Context(), scriptID, code, env.host.Context(), payload)
			out := ScriptRunResult{ScriptExecutionResult: res, Host: env.host.Snapshot()}

			text := func(w io.Writer) { writeScriptResult(w, scriptID, res) }
			if !res.Success {
				errCode := ErrCodeScript
				if sandbox.IsTimeout(res.Err()) {
					errCode = ErrCodeTimeout
				}
				return env.out.Failure(errCode, res.Error, out, text)
			}
			return env.out.Success(out, text)
		},
	}

	cmd.Flags().StringVarP(&payloadPath, "payload", "p", "", "payload file (JSON or YAML, - for stdin)")
	cmd.Flags().StringVar(&scriptID, "id", "", "script id (defaults to the file name)")

	return cmd
}

func newScriptValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "validate <script>",
		Short:         "Check that a script body parses",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(rootOpts, cmd)
			if err != nil {
				return err
			}
			code, err := readScript(env, args[0])
			if err != nil {
				return err
			}

			result := env.sandbox.ValidateScript(code)
			if !result.Valid {
				return env.out.Failure(ErrCodeScript, result.Error, result, func(w io.Writer) {
					fmt.Fprintf(w, "✗ %s\n", result.Error)
				})
			}
			return env.out.Success(result, func(w io.Writer) {
				fmt.Fprintln(w, "✓ Script valid")
			})
		},
	}
}

func readScript(env *environment, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", env.out.Error(ErrCodeInput, "failed to read script", err)
	}
	return string(data), nil
}

func writeScriptResult(w io.Writer, scriptID string, res *sandbox.ScriptExecutionResult) {
	if res.Success {
		fmt.Fprintf(w, "✓ Script %s succeeded\n", scriptID)
	} else {
		fmt.Fprintf(w, "✗ Script %s failed: %s\n", scriptID, res.Error)
	}

	if res.Result != nil {
		v, _ := json.Marshal(res.Result)
		fmt.Fprintf(w, "  result: %s\n", v)
	}
	for _, id := range sortedKeys(res.ComponentUpdates) {
		v, _ := json.Marshal(res.ComponentUpdates[id])
		fmt.Fprintf(w, "  update %s: %s\n", id, v)
	}
	for _, a := range res.Actions {
		fmt.Fprintf(w, "  action %s (%s)\n", a.Type, a.ID)
	}
	for _, l := range res.Logs {
		fmt.Fprintf(w, "  [%s] %s\n", l.Level, l.Message)
	}
}
