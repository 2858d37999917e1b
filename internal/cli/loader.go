package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/liamcoop/formrules/internal/config"
	"github.com/liamcoop/formrules/internal/host"
	"github.com/liamcoop/formrules/internal/logger"
	"github.com/liamcoop/formrules/registry"
	"github.com/liamcoop/formrules/sandbox"
)

// environment is what every command runs against: the loaded config, one
// in-memory host, the script sandbox and a form registry using both.
type environment struct {
	cfg     *config.Config
	host    *host.MemoryHost
	sandbox *sandbox.Manager
	forms   *registry.Manager
	out     *OutputFormatter
}

func newEnvironment(opts *RootOptions, cmd *cobra.Command) (*environment, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	path := opts.Config
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, out.Error(ErrCodeInput, "failed to load config", err)
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if opts.Verbose {
		logger.SetLevel(logger.LevelDebug)
	}

	var hostOpts []host.Option
	if cfg.Host.APIBaseURL != "" {
		hostOpts = append(hostOpts, host.WithAPIBaseURL(cfg.Host.APIBaseURL))
	}
	h := host.NewMemoryHost(hostOpts...)
	sb := sandbox.NewManager(cfg.SandboxConfig(),
		sandbox.WithProgramCache(sandbox.NewInMemoryProgramCache(cfg.CacheConfig())))

	out.VerboseLog("Script timeout %s, console %t", cfg.Script.Timeout, cfg.SandboxConfig().AllowConsole)

	return &environment{
		cfg:     cfg,
		host:    h,
		sandbox: sb,
		forms:   registry.NewManager(sb, cfg.EngineConfig(h.Context())),
		out:     out,
	}, nil
}

// loadForm registers the definition at path and returns its form.
func (env *environment) loadForm(path string) (*registry.Form, error) {
	def, err := registry.ReadDefinition(path)
	if err != nil {
		return nil, env.out.Error(ErrCodeDefinition, "failed to read definition", err)
	}
	if err := env.forms.CreateForm(def); err != nil {
		return nil, env.out.Error(ErrCodeDefinition, "invalid definition", err)
	}
	form, err := env.forms.GetForm(def.ID)
	if err != nil {
		return nil, env.out.Error(ErrCodeNotFound, "form not registered", err)
	}
	env.out.VerboseLog("Loaded form %s with %d rule(s)", form.ID, len(def.Rules))
	return form, nil
}

// readDocument reads a JSON or YAML object from path, or from stdin when path
// is "-". An empty path yields an empty object.
func (env *environment) readDocument(cmd *cobra.Command, path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}

	var (
		data []byte
		err  error
	)
	format := filepath.Ext(path)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		format = "json"
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, env.out.Error(ErrCodeInput, "failed to read "+path, err)
	}

	doc, err := registry.ParseDocument(data, format)
	if err != nil {
		return nil, env.out.Error(ErrCodeInput, "failed to parse "+path, err)
	}
	return doc, nil
}
