package tool

import (
	"context"

	"github.com/quickrewind/agentcore/core"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// registrable tool.
//
// Responsibilities:
//   - Holds the explicit ToolDefinition (no reflection over signatures)
//   - Validates supplied arguments against the definition before execution
//   - Normalizes error handling so callers receive *ToolError with consistent
//     codes: VALIDATION_ERROR for schema mismatch, EXECUTION_ERROR for an
//     underlying function error (custom codes preserved when the function
//     returns *ToolError directly)
//
// Concurrency: a FunctionTool has no internal mutable state after
// construction and is safe for concurrent use by multiple goroutines.
type FunctionTool struct {
	def      core.ToolDefinition
	fn       func(ctx context.Context, args map[string]any) (any, error)
	blocking bool
}

// Options configure a FunctionTool.
type Options struct {
	// NonBlocking marks the implementation as returning promptly without
	// stalling on I/O; the dispatch adapter then invokes it inline instead of
	// through the worker pool.
	NonBlocking bool
}

// NewFunctionTool constructs a FunctionTool from an explicit definition and
// implementation.
//
// Example:
//
//	sumTool := tool.NewFunctionTool(
//	  core.ToolDefinition{
//	    Name:        "calculate_sum",
//	    Description: "Calculate the sum of two numbers",
//	    Parameters: []core.ToolParameter{
//	      {Name: "a", Type: "number", Required: true},
//	      {Name: "b", Type: "number", Required: true},
//	    },
//	  },
//	  func(_ context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	def core.ToolDefinition,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *Options),
) *FunctionTool {
	opts := Options{}
	for _, f := range optFns {
		f(&opts)
	}
	return &FunctionTool{def: def, fn: fn, blocking: !opts.NonBlocking}
}

// Definition returns the immutable tool metadata.
func (t *FunctionTool) Definition() core.ToolDefinition { return t.def }

// Blocking reports whether the dispatch adapter should route the invocation
// through the shared worker pool.
func (t *FunctionTool) Blocking() bool { return t.blocking }

// Invoke validates the provided args against the declared parameters then
// calls the underlying function. Validation or execution failures are wrapped
// (or passed through) as *ToolError for uniform downstream handling.
func (t *FunctionTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	if err := ValidateArgs(t.def, args); err != nil {
		return nil, &ToolError{
			Tool:    t.def.Name,
			Message: "parameter validation failed: " + err.Error(),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok { // Already a ToolError -> forward
			return nil, toolErr
		}
		return nil, &ToolError{
			Tool:    t.def.Name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	return result, nil
}
