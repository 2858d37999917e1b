package sandbox

import "time"

// ScriptExecutionResult is the outcome of one ExecuteScript call.
type ScriptExecutionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Result is the exported value the script assigned to `result` (or
	// returned); an empty object when it did neither.
	Result any `json:"result,omitempty"`

	ComponentUpdates map[string]any `json:"componentUpdates,omitempty"`
	Actions          []Action       `json:"actions,omitempty"`
	Logs             []LogEntry     `json:"logs"`

	err *SandboxError
}

// Err returns the typed failure, or nil on success.
func (r *ScriptExecutionResult) Err() error {
	if r == nil || r.err == nil {
		return nil
	}
	return r.err
}

// Action is a host-bound instruction produced by utils.createAction.
type Action struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
	ID        string `json:"id"`
}

// LogEntry is one captured console line.
type LogEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidationResult reports whether a script body parses.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func failedResult(err *SandboxError, logs []LogEntry) *ScriptExecutionResult {
	if logs == nil {
		logs = []LogEntry{}
	}
	return &ScriptExecutionResult{
		Success: false,
		Error:   err.Message,
		Logs:    logs,
		err:     err,
	}
}

// actionsFrom converts the script's result.actions entries. Entries that are
// not objects carrying a string type are skipped.
func actionsFrom(v any) []Action {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	actions := make([]Action, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typ, ok := m["type"].(string)
		if !ok {
			continue
		}
		a := Action{Type: typ, Payload: m["payload"]}
		if id, ok := m["id"].(string); ok {
			a.ID = id
		}
		switch ts := m["timestamp"].(type) {
		case int64:
			a.Timestamp = ts
		case float64:
			a.Timestamp = int64(ts)
		}
		actions = append(actions, a)
	}
	return actions
}
