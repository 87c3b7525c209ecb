package core

// PlanStep is one step of a validated plan. Index is 1-based and contiguous
// within a plan. A step with an empty ToolName is reasoning-only: the Executor
// appends its description to the running context without invoking anything.
type PlanStep struct {
	Index       int            `json:"index"`
	Description string         `json:"description"`
	ToolName    string         `json:"tool_name,omitempty"`
	Arguments   map[string]any `json:"arguments,omitempty"`
}

// IsToolStep reports whether the step names a tool to invoke.
func (s PlanStep) IsToolStep() bool { return s.ToolName != "" }

// Plan is the ordered output of a single planning call, already validated
// against the registry (unknown tool names downgraded to reasoning-only steps).
type Plan struct {
	Steps     []PlanStep `json:"steps"`
	Reasoning string     `json:"reasoning,omitempty"`
}

// Descriptions returns the step descriptions in index order, as embedded in
// the planning_complete event payload.
func (p Plan) Descriptions() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Description
	}
	return out
}
