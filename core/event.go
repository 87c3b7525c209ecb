package core

import "time"

// EventType identifies a lifecycle event pushed to the client. The set is
// closed; transports serialize every type identically.
type EventType string

const (
	// EventConnected is emitted once when a transport attaches to a session.
	EventConnected EventType = "connected"
	// EventPlanningStart marks the beginning of the planning model call.
	EventPlanningStart EventType = "planning_start"
	// EventPlanningComplete carries the validated plan and its reasoning.
	EventPlanningComplete EventType = "planning_complete"
	// EventExecutionStart marks the beginning of the step loop.
	EventExecutionStart EventType = "execution_start"
	// EventStepStart marks the beginning of one plan step.
	EventStepStart EventType = "step_start"
	// EventStepComplete carries the terminal status of one plan step.
	EventStepComplete EventType = "step_complete"
	// EventComplete is the successful terminal event.
	EventComplete EventType = "complete"
	// EventError is the failure terminal event.
	EventError EventType = "error"
)

// StreamEvent is one frame of the per-session progress stream. Sequence is
// assigned by the event bus, starts at 1 and increases without gaps within a
// session. Heartbeats are not StreamEvents and never consume a sequence
// number.
type StreamEvent struct {
	Type     EventType      `json:"type"`
	Sequence uint64         `json:"sequence"`
	Payload  map[string]any `json:"payload,omitempty"`
	Time     time.Time      `json:"time"`
}

// ConnectedEvent builds the initial handshake event.
func ConnectedEvent(sessionID string) StreamEvent {
	return newEvent(EventConnected, map[string]any{"session_id": sessionID})
}

// PlanningStartEvent builds a planning_start event.
func PlanningStartEvent() StreamEvent {
	return newEvent(EventPlanningStart, nil)
}

// PlanningCompleteEvent embeds the step descriptions and reasoning summary.
func PlanningCompleteEvent(p *Plan) StreamEvent {
	return newEvent(EventPlanningComplete, map[string]any{
		"plan":      p.Descriptions(),
		"reasoning": p.Reasoning,
	})
}

// ExecutionStartEvent carries the total step count.
func ExecutionStartEvent(totalSteps int) StreamEvent {
	return newEvent(EventExecutionStart, map[string]any{"total_steps": totalSteps})
}

// StepStartEvent marks the start of the 1-based step.
func StepStartEvent(index int, description string) StreamEvent {
	return newEvent(EventStepStart, map[string]any{
		"index":       index,
		"description": description,
	})
}

// StepCompleteEvent carries the step outcome. resultExcerpt is a bounded
// preview of the tool result, never the full payload; duration is in
// milliseconds.
func StepCompleteEvent(index int, status StepStatus, resultExcerpt string, dur time.Duration) StreamEvent {
	return newEvent(EventStepComplete, map[string]any{
		"index":          index,
		"status":         string(status),
		"result_excerpt": resultExcerpt,
		"duration":       dur.Milliseconds(),
	})
}

// CompleteEvent is the successful terminal event for a session.
func CompleteEvent(finalAnswer string, references []map[string]any, processing time.Duration) StreamEvent {
	return newEvent(EventComplete, map[string]any{
		"final_answer":         finalAnswer,
		"extracted_references": references,
		"processing_time":      processing.Seconds(),
	})
}

// ErrorEvent is the failure terminal event carrying a stable error kind plus
// a human-readable message.
func ErrorEvent(kind ErrorKind, message string) StreamEvent {
	return newEvent(EventError, map[string]any{
		"kind":    string(kind),
		"message": message,
	})
}

func newEvent(t EventType, payload map[string]any) StreamEvent {
	return StreamEvent{Type: t, Payload: payload, Time: time.Now().UTC()}
}
