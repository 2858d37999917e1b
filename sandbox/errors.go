package sandbox

import "fmt"

// Deterministic error codes for sandbox failures.
const (
	ErrCodeReentrant = "ERR_SCRIPT_REENTRANT"
	ErrCodeTimeout   = "ERR_SCRIPT_TIMEOUT"
	ErrCodeFailed    = "ERR_SCRIPT_FAILED"
)

// MsgAlreadyExecuting is returned when a script id is already in flight.
const MsgAlreadyExecuting = "Script is already executing"

// SandboxError is a typed failure carried by ScriptExecutionResult.
type SandboxError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reentrantError() *SandboxError {
	return &SandboxError{Code: ErrCodeReentrant, Message: MsgAlreadyExecuting}
}

func timeoutError(limit int64) *SandboxError {
	return &SandboxError{
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("Script execution failed: Script execution timeout (%dms)", limit),
	}
}

func executionError(msg string) *SandboxError {
	return &SandboxError{
		Code:    ErrCodeFailed,
		Message: "Script execution failed: " + msg,
	}
}

// IsTimeout reports whether err is a sandbox timeout.
func IsTimeout(err error) bool {
	se, ok := err.(*SandboxError)
	return ok && se.Code == ErrCodeTimeout
}
