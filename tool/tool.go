// Package tool implements the callable-capability subsystem: the uniform
// interface every tool satisfies, a generic function adapter with schema
// validated arguments, and consistent error codes for downstream handling.
package tool

import (
	"context"
	"fmt"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/internal/util"
)

// Tool is the explicit interface every capability registered with the
// registry must satisfy. The registry stores definition/implementation pairs
// directly; no runtime introspection of function signatures is involved.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions (snake_case names)
//   - Declare every accepted parameter in the definition
//   - Handle errors gracefully and return *ToolError where possible
//   - Be safe for concurrent use; one instance serves all sessions
type Tool interface {
	// Definition returns the immutable schema-described metadata.
	Definition() core.ToolDefinition

	// Invoke executes the tool. Arguments have already been validated against
	// the definition by the caller. Implementations must honor ctx
	// cancellation for long-running work.
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Blocker is an optional interface tools implement to tell the dispatch
// adapter how to run them. Tools not implementing it are treated as blocking
// and routed through the shared worker pool.
type Blocker interface {
	// Blocking reports whether Invoke may stall the calling goroutine on I/O
	// or computation.
	Blocking() bool
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeTimeout    = "TIMEOUT"
)

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// ParameterSchema converts a definition's ordered parameter specs into the
// minimal JSON-schema-like map understood by util.ValidateParameters.
func ParameterSchema(def core.ToolDefinition) map[string]any {
	properties := make(map[string]any, len(def.Parameters))
	required := make([]string, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ValidateArgs checks args against the definition's parameter specs.
func ValidateArgs(def core.ToolDefinition, args map[string]any) error {
	return util.ValidateParameters(args, ParameterSchema(def))
}
