package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. Callers match with errors.Is.
var (
	ErrInvalidConfig     = fmt.Errorf("invalid agent config")
	ErrAgentExists       = fmt.Errorf("agent already exists")
	ErrAgentNotFound     = fmt.Errorf("agent not found")
	ErrSpawnFailed       = fmt.Errorf("agent spawn failed")
	ErrTaskFailed        = fmt.Errorf("task execution failed")
	ErrInvalidExecution  = fmt.Errorf("invalid execution request")
	ErrWaitTimeout       = fmt.Errorf("wait timed out")
	ErrRemoteUnavailable = fmt.Errorf("remote service unavailable")
	ErrRemoteRejected    = fmt.Errorf("remote service rejected request")
	ErrNotImplemented    = fmt.Errorf("not implemented")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Spawn")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeInvalidConfig     ErrorCode = "INVALID_CONFIG"
	CodeAgentExists       ErrorCode = "AGENT_EXISTS"
	CodeAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	CodeSpawnFailed       ErrorCode = "SPAWN_FAILED"
	CodeTaskFailed        ErrorCode = "TASK_FAILED"
	CodeInvalidExecution  ErrorCode = "INVALID_EXECUTION"
	CodeWaitTimeout       ErrorCode = "WAIT_TIMEOUT"
	CodeRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	CodeRemoteRejected    ErrorCode = "REMOTE_REJECTED"
	CodeNotImplemented    ErrorCode = "NOT_IMPLEMENTED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidConfig:     CodeInvalidConfig,
	ErrAgentExists:       CodeAgentExists,
	ErrAgentNotFound:     CodeAgentNotFound,
	ErrSpawnFailed:       CodeSpawnFailed,
	ErrTaskFailed:        CodeTaskFailed,
	ErrInvalidExecution:  CodeInvalidExecution,
	ErrWaitTimeout:       CodeWaitTimeout,
	ErrRemoteUnavailable: CodeRemoteUnavailable,
	ErrRemoteRejected:    CodeRemoteRejected,
	ErrNotImplemented:    CodeNotImplemented,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and walks the chain with errors.Is.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
