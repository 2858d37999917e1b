package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"golang.org/x/sync/singleflight"

	"github.com/liamcoop/formrules/internal/logger"
)

const (
	wrapperPrefix = "(async function(context, payload, component, data, page, app, utils, console) {\nlet result;\n"
	wrapperSuffix = "\n;return result === undefined ? {} : result;\n})"
)

// ErrWrapperEscape is returned for bodies that close the wrapper function early.
var ErrWrapperEscape = errors.New("script body must not escape its function wrapper")

// Manager compiles and runs scripts. One Manager is shared by every rule
// engine of a process; executions on it may run concurrently, except that a
// script id is never executed twice at once.
type Manager struct {
	cfgMu  sync.RWMutex
	config Config

	mu     sync.Mutex
	active map[string]struct{}

	cache ProgramCache
	group singleflight.Group
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithProgramCache replaces the default in-memory program cache.
func WithProgramCache(cache ProgramCache) Option {
	return func(m *Manager) {
		m.cache = cache
	}
}

// WithClock overrides the time source used for timestamps and elapsed time.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a sandbox manager with the given configuration.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		config: cfg.normalized(),
		active: make(map[string]struct{}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = NewInMemoryProgramCache(DefaultCacheConfig())
	}
	return m
}

// Config returns the configuration applied to new executions.
func (m *Manager) Config() Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.config
}

// UpdateConfig replaces the configuration. Executions already running keep
// the configuration they started with.
func (m *Manager) UpdateConfig(cfg Config) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.config = cfg.normalized()
	logger.Info("Sandbox configuration updated",
		"max_execution_time_ms", m.config.MaxExecutionTime.Milliseconds(),
		"allow_console", m.config.AllowConsole)
}

// ActiveExecutionsCount returns the number of script ids currently executing.
func (m *Manager) ActiveExecutionsCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// IsActive reports whether scriptID is executing.
func (m *Manager) IsActive(scriptID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[scriptID]
	return ok
}

func (m *Manager) acquire(scriptID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.active[scriptID]; busy {
		return false
	}
	m.active[scriptID] = struct{}{}
	return true
}

func (m *Manager) release(scriptID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, scriptID)
}

// ExecuteScript runs code against the capability object built from host and
// payload. It never returns nil and never panics; every failure is reported
// through the result.
func (m *Manager) ExecuteScript(ctx context.Context, scriptID, code string, host HostContext, payload map[string]any) *ScriptExecutionResult {
	if !m.acquire(scriptID) {
		logger.ScriptRejected()
		logger.Warn("Script rejected, already executing", "script_id", scriptID)
		return failedResult(reentrantError(), nil)
	}
	defer m.release(scriptID)

	logger.ScriptExecutions.Add(1)
	cfg := m.Config()
	start := m.now()

	prg, err := m.compile(code)
	if err != nil {
		logger.ScriptFailed()
		logger.Warn("Script compilation failed", "script_id", scriptID, "error", err)
		return failedResult(executionError(err.Error()), nil)
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.MaxExecutionTime)
	defer cancel()

	ex := newExecution(runCtx, scriptID, cfg, host, m.now)
	done := ex.start(prg, payload)

	var out outcome
	select {
	case out = <-done:
	case <-runCtx.Done():
		ex.vm.Interrupt(runCtx.Err())
		out = outcome{err: runCtx.Err()}
	}

	if out.err != nil {
		return m.failure(scriptID, cfg, out.err, ex.snapshotLogs())
	}

	result := &ScriptExecutionResult{
		Success: true,
		Result:  out.value,
		Logs:    ex.snapshotLogs(),
	}
	if fields, ok := out.value.(map[string]any); ok {
		if updates, ok := fields["componentUpdates"].(map[string]any); ok {
			result.ComponentUpdates = updates
		}
		result.Actions = actionsFrom(fields["actions"])
	}

	elapsed := m.now().Sub(start)
	result.Logs = append(result.Logs, LogEntry{
		Level:     "debug",
		Message:   fmt.Sprintf("Script executed in %dms", elapsed.Milliseconds()),
		Timestamp: m.now(),
	})
	logger.Debug("Script executed", "script_id", scriptID, "elapsed_ms", elapsed.Milliseconds())
	return result
}

func (m *Manager) failure(scriptID string, cfg Config, err error, logs []LogEntry) *ScriptExecutionResult {
	var interrupted *goja.InterruptedError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &interrupted):
		logger.ScriptTimedOut()
		logger.Warn("Script execution timed out", "script_id", scriptID,
			"limit_ms", cfg.MaxExecutionTime.Milliseconds())
		return failedResult(timeoutError(cfg.MaxExecutionTime.Milliseconds()), logs)
	default:
		logger.ScriptFailed()
		logger.Warn("Script execution failed", "script_id", scriptID, "error", err)
		return failedResult(executionError(err.Error()), logs)
	}
}

// ValidateScript reports whether code parses as a script body. It performs no
// semantic analysis; a syntactically valid infinite loop is valid.
func (m *Manager) ValidateScript(code string) ValidationResult {
	if _, err := parseWrapped(wrapScript(code)); err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}
	return ValidationResult{Valid: true}
}

// InvalidateCache drops every compiled program.
func (m *Manager) InvalidateCache() {
	m.cache.Invalidate()
}

func (m *Manager) compile(code string) (*goja.Program, error) {
	src := wrapScript(code)
	key := xxhash.Sum64String(src)
	if prg := m.cache.Get(key); prg != nil {
		return prg, nil
	}

	v, err, _ := m.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		parsed, err := parseWrapped(src)
		if err != nil {
			return nil, err
		}
		prg, err := goja.CompileAST(parsed, false)
		if err != nil {
			return nil, fmt.Errorf("compile error: %w", err)
		}
		m.cache.Set(key, prg)
		return prg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*goja.Program), nil
}

func wrapScript(code string) string {
	return wrapperPrefix + code + wrapperSuffix
}

// parseWrapped parses the wrapped source and checks that it is still a single
// function expression.
func parseWrapped(src string) (*ast.Program, error) {
	parsed, err := goja.Parse("script", src)
	if err != nil {
		return nil, err
	}
	if len(parsed.Body) != 1 {
		return nil, ErrWrapperEscape
	}
	stmt, ok := parsed.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, ErrWrapperEscape
	}
	if _, ok := stmt.Expression.(*ast.FunctionLiteral); !ok {
		return nil, ErrWrapperEscape
	}
	return parsed, nil
}
