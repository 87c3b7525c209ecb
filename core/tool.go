package core

import "time"

// ToolParameter describes a single named parameter of a tool. Parameters are
// ordered; the order is preserved when the definition is rendered into a
// planning prompt.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, number, integer, boolean, array, object
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolDefinition is the immutable, schema-described metadata of a registered
// tool. The name is the unique registry key. Returns is a free-form
// description of the result shape shown to the planning model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
	Returns     string          `json:"returns,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
}

// Equal reports whether two definitions describe the same tool contract.
// Used by the registry to treat identical re-registration as a no-op.
func (d ToolDefinition) Equal(other ToolDefinition) bool {
	if d.Name != other.Name || d.Description != other.Description || d.Returns != other.Returns {
		return false
	}
	if len(d.Parameters) != len(other.Parameters) {
		return false
	}
	for i := range d.Parameters {
		if d.Parameters[i] != other.Parameters[i] {
			return false
		}
	}
	if len(d.Tags) != len(other.Tags) {
		return false
	}
	for i := range d.Tags {
		if d.Tags[i] != other.Tags[i] {
			return false
		}
	}
	return true
}

// ToolResponse is the uniform result of a tool invocation. Result is opaque
// to the orchestration core; the Executor only forwards it into the running
// step context and the synthesis prompt.
type ToolResponse struct {
	Success  bool          `json:"success"`
	Result   any           `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OkResponse builds a successful ToolResponse.
func OkResponse(result any, dur time.Duration) ToolResponse {
	return ToolResponse{Success: true, Result: result, Duration: dur}
}

// ErrResponse builds a failed ToolResponse carrying the error message.
func ErrResponse(err error, dur time.Duration) ToolResponse {
	return ToolResponse{Success: false, Error: err.Error(), Duration: dur}
}
