package core

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable machine-readable classification carried by terminal
// error events. Kinds never change once shipped; clients switch on them.
type ErrorKind string

const (
	// KindPlanning covers planning model failures and structurally invalid plans.
	KindPlanning ErrorKind = "planning_error"
	// KindToolNotFound is caught during plan validation and never surfaces at runtime.
	KindToolNotFound ErrorKind = "tool_not_found"
	// KindToolExecution covers tool errors and tool timeouts.
	KindToolExecution ErrorKind = "tool_execution_error"
	// KindSynthesis covers failures of the final answer model call.
	KindSynthesis ErrorKind = "synthesis_error"
	// KindTransport covers unreachable or broken client connections.
	KindTransport ErrorKind = "transport_error"
	// KindSessionTimeout covers breaches of the overall session deadline.
	KindSessionTimeout ErrorKind = "session_timeout"
	// KindCancelled marks client-driven cancellation.
	KindCancelled ErrorKind = "cancelled"
)

// CoreError is the common shape of every orchestration error. Kind drives the
// terminal error event; Message is the human-readable part.
type CoreError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *CoreError) Unwrap() error { return e.Err }

// NewPlanningError wraps a planning failure (model transport or invalid plan).
func NewPlanningError(message string, err error) *CoreError {
	return &CoreError{Kind: KindPlanning, Message: message, Err: err}
}

// NewToolNotFoundError reports a registry miss for the given tool name.
func NewToolNotFoundError(name string) *CoreError {
	return &CoreError{Kind: KindToolNotFound, Message: fmt.Sprintf("tool %q not registered", name)}
}

// NewToolExecutionError wraps a tool failure or timeout for the given tool.
func NewToolExecutionError(name string, err error) *CoreError {
	return &CoreError{Kind: KindToolExecution, Message: fmt.Sprintf("tool %q failed", name), Err: err}
}

// NewSynthesisError wraps a failure of the final answer model call.
func NewSynthesisError(err error) *CoreError {
	return &CoreError{Kind: KindSynthesis, Message: "synthesis call failed", Err: err}
}

// NewTransportError wraps a failed write to the client connection.
func NewTransportError(err error) *CoreError {
	return &CoreError{Kind: KindTransport, Message: "client unreachable", Err: err}
}

// NewSessionTimeoutError reports breach of the overall session deadline.
func NewSessionTimeoutError() *CoreError {
	return &CoreError{Kind: KindSessionTimeout, Message: "session deadline exceeded"}
}

// ErrDuplicateTool is returned by the registry when a name is already taken by
// a different definition and override was not requested.
var ErrDuplicateTool = errors.New("tool already registered")

// ErrInvocationTimeout marks a tool call that exceeded its per-call budget,
// including time spent queued in the dispatch pool.
var ErrInvocationTimeout = errors.New("tool invocation timed out")

// ErrPoolClosed is returned when work is submitted to a stopped dispatch pool.
var ErrPoolClosed = errors.New("dispatch pool closed")

// KindOf extracts the ErrorKind from err, defaulting to KindToolExecution for
// plain tool errors and KindTransport only when explicitly classified.
func KindOf(err error) ErrorKind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindToolExecution
}
