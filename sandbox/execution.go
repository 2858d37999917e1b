package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/liamcoop/formrules/internal/logger"
)

// execution is the state of one ExecuteScript call. The runtime is owned by
// the goroutine started in start; other goroutines may only call Interrupt and
// read the logs.
type execution struct {
	ctx      context.Context
	scriptID string
	config   Config
	host     HostContext
	vm       *goja.Runtime
	now      func() time.Time

	// jobs carries promise settlements from host goroutines back onto the loop.
	jobs chan func() error

	logMu sync.Mutex
	logs  []LogEntry
}

type outcome struct {
	value any
	err   error
}

// scriptError is a value thrown by the script.
type scriptError struct {
	message string
}

func (e *scriptError) Error() string { return e.message }

func newExecution(ctx context.Context, scriptID string, cfg Config, host HostContext, now func() time.Time) *execution {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	vm.GlobalObject().Delete("eval")

	return &execution{
		ctx:      ctx,
		scriptID: scriptID,
		config:   cfg,
		host:     host,
		vm:       vm,
		now:      now,
		jobs:     make(chan func() error),
		logs:     []LogEntry{},
	}
}

// start runs prg on a new goroutine and delivers exactly one outcome.
func (ex *execution) start(prg *goja.Program, payload map[string]any) <-chan outcome {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		value, err := ex.run(prg, payload)
		done <- outcome{value: value, err: err}
	}()
	return done
}

func (ex *execution) run(prg *goja.Program, payload map[string]any) (any, error) {
	for name, api := range ex.config.CustomAPIs {
		if err := ex.vm.Set(name, api); err != nil {
			return nil, fmt.Errorf("custom API %q: %w", name, err)
		}
	}

	fnValue, err := ex.vm.RunProgram(prg)
	if err != nil {
		return nil, ex.translate(err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, errors.New("script did not compile to a function")
	}

	if payload == nil {
		payload = map[string]any{}
	}
	component := ex.componentFacade()
	data := ex.dataFacade()
	page := ex.pageFacade()
	app := ex.appFacade()
	utils := ex.utilsObject()
	console := ex.consoleObject()
	payloadValue := ex.vm.ToValue(payload)

	scriptCtx := ex.vm.NewObject()
	_ = scriptCtx.Set("scriptId", ex.scriptID)
	_ = scriptCtx.Set("payload", payloadValue)
	_ = scriptCtx.Set("component", component)
	_ = scriptCtx.Set("data", data)
	_ = scriptCtx.Set("page", page)
	_ = scriptCtx.Set("app", app)
	_ = scriptCtx.Set("utils", utils)
	_ = scriptCtx.Set("console", console)
	for name, api := range ex.config.CustomAPIs {
		_ = scriptCtx.Set(name, api)
	}

	ret, err := fn(goja.Undefined(), scriptCtx, payloadValue, component, data, page, app, utils, console)
	if err != nil {
		return nil, ex.translate(err)
	}

	promise, ok := ret.Export().(*goja.Promise)
	if !ok {
		return ret.Export(), nil
	}

	for promise.State() == goja.PromiseStatePending {
		select {
		case job := <-ex.jobs:
			if err := job(); err != nil {
				return nil, ex.translate(err)
			}
		case <-ex.ctx.Done():
			return nil, ex.ctx.Err()
		}
	}

	if promise.State() == goja.PromiseStateRejected {
		return nil, &scriptError{message: ex.describe(promise.Result())}
	}
	return promise.Result().Export(), nil
}

// enqueue hands a settlement to the loop, dropping it once the execution is over.
func (ex *execution) enqueue(job func() error) {
	select {
	case ex.jobs <- job:
	case <-ex.ctx.Done():
	}
}

// async runs call on its own goroutine and returns a Promise settled on the loop.
func (ex *execution) async(call func(ctx context.Context) (any, error)) goja.Value {
	promise, resolve, reject := ex.vm.NewPromise()
	go func() {
		value, err := call(ex.ctx)
		ex.enqueue(func() error {
			if err != nil {
				return reject(ex.vm.NewGoError(err))
			}
			return resolve(value)
		})
	}()
	return ex.vm.ToValue(promise)
}

func (ex *execution) translate(err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return &scriptError{message: ex.describe(exc.Value())}
	}
	return err
}

// describe extracts the message of a thrown value: its message property when
// it has one, its string form otherwise.
func (ex *execution) describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "unknown error"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) && !goja.IsNull(msg) {
			if s := msg.String(); s != "" {
				return s
			}
		}
	}
	return v.String()
}

func (ex *execution) appendLog(level, message string) {
	entry := LogEntry{Level: level, Message: message, Timestamp: ex.now()}
	ex.logMu.Lock()
	ex.logs = append(ex.logs, entry)
	ex.logMu.Unlock()
}

func (ex *execution) snapshotLogs() []LogEntry {
	ex.logMu.Lock()
	defer ex.logMu.Unlock()
	logs := make([]LogEntry, len(ex.logs))
	copy(logs, ex.logs)
	return logs
}

func (ex *execution) consoleObject() *goja.Object {
	console := ex.vm.NewObject()
	for _, method := range []string{"log", "info", "warn", "error", "debug"} {
		level := method
		if level == "log" {
			level = "info"
		}
		_ = console.Set(method, func(call goja.FunctionCall) goja.Value {
			if !ex.config.AllowConsole {
				return goja.Undefined()
			}
			msg := formatConsoleArgs(call.Arguments)
			ex.appendLog(level, msg)
			logger.Debug("script console", "script_id", ex.scriptID, "level", level, "message", msg)
			return goja.Undefined()
		})
	}
	return console
}

func formatConsoleArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil || goja.IsUndefined(arg) {
			parts = append(parts, "undefined")
			continue
		}
		switch v := arg.Export().(type) {
		case string:
			parts = append(parts, v)
		case map[string]any, []any:
			if b, err := json.Marshal(v); err == nil {
				parts = append(parts, string(b))
				continue
			}
			parts = append(parts, arg.String())
		default:
			parts = append(parts, arg.String())
		}
	}
	return strings.Join(parts, " ")
}
