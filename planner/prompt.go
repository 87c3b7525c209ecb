package planner

import (
	"fmt"
	"strings"

	"github.com/quickrewind/agentcore/core"
)

const systemPrompt = `You are a planning assistant. Given a user request and a catalog of
available tools, produce a short step-by-step plan that fulfils the request.

Respond with a single JSON object and nothing else:

{
  "reasoning": "one or two sentences explaining the approach",
  "steps": [
    {
      "description": "what this step accomplishes",
      "tool": "tool_name or empty string for a reasoning-only step",
      "arguments": {"param": "value"}
    }
  ]
}

Rules:
- Use only tools from the catalog below. Leave "tool" empty for steps that
  need no tool.
- Provide every required parameter in "arguments".
- Keep the plan minimal; do not add steps the request does not need.

Available tools:
%s`

// buildPrompt renders the planning system prompt with the current tool
// catalog embedded.
func buildPrompt(defs []core.ToolDefinition) string {
	if len(defs) == 0 {
		return fmt.Sprintf(systemPrompt, "(none)")
	}

	var b strings.Builder
	for _, def := range defs {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		for _, p := range def.Parameters {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return fmt.Sprintf(systemPrompt, strings.TrimRight(b.String(), "\n"))
}
