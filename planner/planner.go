// Package planner turns a natural-language request into a validated step
// plan with a single model call. The model sees the live tool catalog and
// responds with JSON; the planner parses, validates and normalizes that
// response into a core.Plan the executor can run without further model
// involvement.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/logging"
	"github.com/quickrewind/agentcore/model"
	"github.com/quickrewind/agentcore/registry"
)

// DefaultMaxSteps bounds plan length when no limit is configured.
const DefaultMaxSteps = 10

// Options configure the planner.
type Options struct {
	MaxSteps int
	Logger   logging.Logger
	// OnModelCall observes every planning completion call (metrics).
	OnModelCall func(provider string, success bool)
}

// Planner produces step plans from user requests.
type Planner struct {
	completion  model.Completion
	registry    *registry.Registry
	maxSteps    int
	logger      logging.Logger
	onModelCall func(provider string, success bool)
}

// New creates a planner bound to a completion model and a tool registry.
func New(completion model.Completion, reg *registry.Registry, optFns ...func(o *Options)) *Planner {
	opts := Options{MaxSteps: DefaultMaxSteps, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxSteps < 1 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &Planner{
		completion:  completion,
		registry:    reg,
		maxSteps:    opts.MaxSteps,
		logger:      opts.Logger,
		onModelCall: opts.OnModelCall,
	}
}

// rawPlan mirrors the JSON shape the model is asked to produce.
type rawPlan struct {
	Reasoning string    `json:"reasoning"`
	Steps     []rawStep `json:"steps"`
}

type rawStep struct {
	Description string         `json:"description"`
	Tool        string         `json:"tool"`
	Arguments   map[string]any `json:"arguments"`
}

// Plan issues exactly one completion call and returns the validated plan.
// Steps naming tools absent from the registry are downgraded to
// reasoning-only steps rather than failing the whole session; an empty or
// over-long plan is a planning error.
func (p *Planner) Plan(ctx context.Context, request string) (*core.Plan, error) {
	start := time.Now()
	resp, err := p.completion.Complete(ctx, model.Request{
		System:   buildPrompt(p.registry.List()),
		Messages: []model.Message{model.UserMessage(request)},
	})
	logging.LogModelCall(p.logger, p.completion.Name(), time.Since(start), err == nil, err)
	if p.onModelCall != nil {
		p.onModelCall(p.completion.Name(), err == nil)
	}
	if err != nil {
		return nil, core.NewPlanningError("planning model call failed", err)
	}

	raw, err := parsePlanJSON(resp.Text)
	if err != nil {
		return nil, core.NewPlanningError("model returned an unparseable plan", err)
	}

	if len(raw.Steps) == 0 {
		return nil, core.NewPlanningError("model returned an empty plan", nil)
	}
	if len(raw.Steps) > p.maxSteps {
		return nil, core.NewPlanningError(
			fmt.Sprintf("plan has %d steps, limit is %d", len(raw.Steps), p.maxSteps), nil)
	}

	plan := &core.Plan{Reasoning: raw.Reasoning}
	for i, rs := range raw.Steps {
		step := core.PlanStep{
			Index:       i + 1,
			Description: strings.TrimSpace(rs.Description),
			ToolName:    strings.TrimSpace(rs.Tool),
			Arguments:   rs.Arguments,
		}
		if step.Description == "" {
			return nil, core.NewPlanningError(
				fmt.Sprintf("step %d has no description", i+1), nil)
		}
		if step.ToolName != "" && !p.registry.Has(step.ToolName) {
			p.logger.Warn("plan names unknown tool, downgrading to reasoning step",
				"tool", step.ToolName, "index", step.Index)
			step.ToolName = ""
			step.Arguments = nil
		}
		plan.Steps = append(plan.Steps, step)
	}

	return plan, nil
}

// parsePlanJSON extracts the plan object from the model text, tolerating
// code fences and prose around the JSON.
func parsePlanJSON(text string) (*rawPlan, error) {
	candidate := extractJSONObject(text)
	if candidate == "" {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	var raw rawPlan
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// extractJSONObject finds the first balanced top-level JSON object in text.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
