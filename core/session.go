package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Session. Transitions only move forward
// through the enumeration; CANCELLED may be entered from any non-terminal
// state.
type Status int

const (
	// StatusCreated is the initial state after request receipt.
	StatusCreated Status = iota
	// StatusPlanning means the planning model call is in flight.
	StatusPlanning
	// StatusExecuting means plan steps are being processed sequentially.
	StatusExecuting
	// StatusSynthesizing means the final answer model call is in flight.
	StatusSynthesizing
	// StatusCompleted is the successful terminal state.
	StatusCompleted
	// StatusFailed is the error terminal state.
	StatusFailed
	// StatusCancelled is the terminal state entered on client disconnect or
	// explicit cancellation.
	StatusCancelled
)

// String returns the wire representation of the status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusPlanning:
		return "PLANNING"
	case StatusExecuting:
		return "EXECUTING"
	case StatusSynthesizing:
		return "SYNTHESIZING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus tracks the runtime state of one ExecutionStep. Transitions are
// strictly forward: pending -> running -> {completed | failed}.
type StepStatus string

const (
	// StepPending means the step has not started yet.
	StepPending StepStatus = "pending"
	// StepRunning means the step is currently executing.
	StepRunning StepStatus = "running"
	// StepCompleted means the step finished successfully.
	StepCompleted StepStatus = "completed"
	// StepFailed means the step raised an error or timed out.
	StepFailed StepStatus = "failed"
)

// ExecutionStep is the runtime counterpart of a PlanStep. Steps are never
// reordered after creation.
type ExecutionStep struct {
	Index       int           `json:"index"`
	Description string        `json:"description"`
	Status      StepStatus    `json:"status"`
	Result      any           `json:"result,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Session tracks the lifetime of one user request from creation through a
// terminal event. The executor goroutine mutates it under s.mu; other
// goroutines must read through the locked accessors (Status, Step, Snapshot)
// rather than the exported fields while the session is running.
type Session struct {
	ID              string          `json:"id"`
	OriginalRequest string          `json:"original_request"`
	Plan            *Plan           `json:"plan,omitempty"`
	Steps           []ExecutionStep `json:"steps"`
	FinalAnswer     string          `json:"final_answer,omitempty"`
	Created         time.Time       `json:"created"`

	status Status
	mu     sync.RWMutex
}

// NewSession creates a Session in StatusCreated with a fresh ID.
func NewSession(request string) *Session {
	return &Session{
		ID:              NewID(),
		OriginalRequest: request,
		Created:         time.Now().UTC(),
		status:          StatusCreated,
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Transition moves the session to next if the transition is legal and
// reports whether it was applied. Illegal transitions (backwards, or out of a
// terminal state) leave the session untouched, preserving status monotonicity.
func (s *Session) Transition(next Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	if next == StatusCancelled {
		s.status = StatusCancelled
		return true
	}
	if next <= s.status {
		return false
	}
	s.status = next
	return true
}

// AttachPlan stores the validated plan and materializes its pending
// ExecutionSteps.
func (s *Session) AttachPlan(p *Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Plan = p
	s.Steps = make([]ExecutionStep, len(p.Steps))
	for i, step := range p.Steps {
		s.Steps[i] = ExecutionStep{
			Index:       step.Index,
			Description: step.Description,
			Status:      StepPending,
		}
	}
}

// StartStep marks the 1-based step as running.
func (s *Session) StartStep(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= 1 && index <= len(s.Steps) {
		s.Steps[index-1].Status = StepRunning
	}
}

// FinishStep records the terminal status, result and duration of a step.
func (s *Session) FinishStep(index int, status StepStatus, result any, dur time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= 1 && index <= len(s.Steps) {
		s.Steps[index-1].Status = status
		s.Steps[index-1].Result = result
		s.Steps[index-1].Duration = dur
	}
}

// Step returns a copy of the 1-based execution step.
func (s *Session) Step(index int) (ExecutionStep, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 1 || index > len(s.Steps) {
		return ExecutionStep{}, false
	}
	return s.Steps[index-1], true
}

// SessionView is a point-in-time copy of a session's externally visible
// state, safe to use after the lock is released.
type SessionView struct {
	ID              string          `json:"id"`
	OriginalRequest string          `json:"original_request"`
	Status          Status          `json:"status"`
	Plan            *Plan           `json:"plan,omitempty"`
	Steps           []ExecutionStep `json:"steps"`
	FinalAnswer     string          `json:"final_answer,omitempty"`
	Created         time.Time       `json:"created"`
}

// Snapshot returns a consistent copy of the session under the read lock.
// Steps are copied; the Plan pointer is shared but never mutated after
// AttachPlan.
func (s *Session) Snapshot() SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps := make([]ExecutionStep, len(s.Steps))
	copy(steps, s.Steps)
	return SessionView{
		ID:              s.ID,
		OriginalRequest: s.OriginalRequest,
		Status:          s.status,
		Plan:            s.Plan,
		Steps:           steps,
		FinalAnswer:     s.FinalAnswer,
		Created:         s.Created,
	}
}

// SetFinalAnswer attaches the synthesized answer.
func (s *Session) SetFinalAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinalAnswer = answer
}

// NewID generates a unique identifier for sessions and events.
func NewID() string { return uuid.NewString() }
