// Package executor drives a session through its lifecycle: plan the request,
// run the plan's steps in order, synthesize the final answer and publish
// progress events along the way. A session moves strictly forward through
// CREATED, PLANNING, EXECUTING, SYNTHESIZING and COMPLETED, exiting early
// into FAILED or CANCELLED; it never revisits a state.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/dispatch"
	"github.com/quickrewind/agentcore/internal/util"
	"github.com/quickrewind/agentcore/logging"
	"github.com/quickrewind/agentcore/model"
	"github.com/quickrewind/agentcore/planner"
	"github.com/quickrewind/agentcore/registry"
	"github.com/quickrewind/agentcore/session"
	"github.com/quickrewind/agentcore/stream"
)

const (
	// DefaultPlanningTimeout bounds the planning model call.
	DefaultPlanningTimeout = 60 * time.Second
	// DefaultSynthesisTimeout bounds the final answer model call.
	DefaultSynthesisTimeout = 60 * time.Second
	// DefaultToolTimeout bounds one tool invocation including queue wait.
	DefaultToolTimeout = 30 * time.Second
	// DefaultSessionTimeout bounds the whole session end to end.
	DefaultSessionTimeout = 5 * time.Minute

	// resultExcerptLimit bounds the step result preview on the stream.
	resultExcerptLimit = 200
)

// Options configure the executor. OnFinish observes every session reaching
// a terminal state; metrics hang off it.
type Options struct {
	PlanningTimeout  time.Duration
	SynthesisTimeout time.Duration
	ToolTimeout      time.Duration
	SessionTimeout   time.Duration
	Logger           logging.Logger
	OnFinish         func(sess *core.Session)
	// OnModelCall observes every synthesis completion call (metrics).
	OnModelCall func(provider string, success bool)
}

// Executor runs sessions. It is safe for concurrent use; each Run call
// drives exactly one session on the calling goroutine.
type Executor struct {
	planner    *planner.Planner
	completion model.Completion
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	bus        *stream.Bus
	store      *session.Store
	opts       Options
}

// New wires an executor from its collaborators.
func New(
	p *planner.Planner,
	completion model.Completion,
	reg *registry.Registry,
	d *dispatch.Dispatcher,
	bus *stream.Bus,
	store *session.Store,
	optFns ...func(o *Options),
) *Executor {
	opts := Options{
		PlanningTimeout:  DefaultPlanningTimeout,
		SynthesisTimeout: DefaultSynthesisTimeout,
		ToolTimeout:      DefaultToolTimeout,
		SessionTimeout:   DefaultSessionTimeout,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{
		planner:    p,
		completion: completion,
		registry:   reg,
		dispatcher: d,
		bus:        bus,
		store:      store,
		opts:       opts,
	}
}

// Start creates a session for the request, registers it in the store and
// runs it on a new goroutine. The session is returned immediately so
// transports can subscribe to its stream before the first event.
func (e *Executor) Start(ctx context.Context, request string) *core.Session {
	sess := core.NewSession(request)

	runCtx, cancel := context.WithCancel(ctx)
	e.store.Put(sess, cancel)

	go func() {
		defer cancel()
		e.Run(runCtx, sess)
	}()

	return sess
}

// Run drives one session to a terminal state and returns the failure, if
// any. The caller owns ctx; cancelling it cancels the session.
func (e *Executor) Run(ctx context.Context, sess *core.Session) error {
	log := logging.WithSession(e.opts.Logger, sess.ID)

	ctx, cancel := context.WithTimeout(ctx, e.opts.SessionTimeout)
	defer cancel()
	defer func() {
		e.store.Finish(sess.ID)
		if e.opts.OnFinish != nil {
			e.opts.OnFinish(sess)
		}
	}()

	plan, err := e.planPhase(ctx, sess, log)
	if err != nil {
		return e.fail(ctx, sess, log, err)
	}

	if err := e.executePhase(ctx, sess, plan, log); err != nil {
		return e.fail(ctx, sess, log, err)
	}

	res, err := e.synthesisPhase(ctx, sess, log)
	if err != nil {
		return e.fail(ctx, sess, log, err)
	}

	sess.SetFinalAnswer(res.FinalAnswer)
	sess.Transition(core.StatusCompleted)
	e.bus.Publish(sess.ID, core.CompleteEvent(res.FinalAnswer, res.References, processingTime(sess)))
	log.Info("session completed",
		"steps", len(sess.Steps), "duration_ms", processingTime(sess).Milliseconds())
	return nil
}

func (e *Executor) planPhase(ctx context.Context, sess *core.Session, log logging.Logger) (*core.Plan, error) {
	sess.Transition(core.StatusPlanning)
	e.bus.Publish(sess.ID, core.PlanningStartEvent())
	log.Info("planning started", "request_len", len(sess.OriginalRequest))

	planCtx, cancel := context.WithTimeout(ctx, e.opts.PlanningTimeout)
	defer cancel()

	plan, err := e.planner.Plan(planCtx, sess.OriginalRequest)
	if err != nil {
		return nil, err
	}

	sess.AttachPlan(plan)
	e.bus.Publish(sess.ID, core.PlanningCompleteEvent(plan))
	log.Info("planning completed", "steps", len(plan.Steps))
	return plan, nil
}

func (e *Executor) executePhase(ctx context.Context, sess *core.Session, plan *core.Plan, log logging.Logger) error {
	sess.Transition(core.StatusExecuting)
	e.bus.Publish(sess.ID, core.ExecutionStartEvent(len(plan.Steps)))

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		sess.StartStep(step.Index)
		e.bus.Publish(sess.ID, core.StepStartEvent(step.Index, step.Description))

		result, dur, err := e.runStep(ctx, step)
		if err != nil {
			sess.FinishStep(step.Index, core.StepFailed, nil, dur)
			e.bus.Publish(sess.ID, core.StepCompleteEvent(
				step.Index, core.StepFailed, util.Excerpt(err.Error(), resultExcerptLimit), dur))
			log.Error("step failed", "index", step.Index, "error", err)
			// A dead session context outranks the step's own error when
			// classifying the failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// One failed step aborts the remaining plan.
			return err
		}

		sess.FinishStep(step.Index, core.StepCompleted, result, dur)
		e.bus.Publish(sess.ID, core.StepCompleteEvent(
			step.Index, core.StepCompleted, util.Excerpt(stringifyResult(result), resultExcerptLimit), dur))
		log.Info("step completed", "index", step.Index, "duration_ms", dur.Milliseconds())
	}
	return nil
}

// runStep executes one plan step. Reasoning-only steps complete immediately;
// tool steps go through the dispatcher with the per-invocation timeout.
func (e *Executor) runStep(ctx context.Context, step core.PlanStep) (any, time.Duration, error) {
	if !step.IsToolStep() {
		return nil, 0, nil
	}

	tl, err := e.registry.Lookup(step.ToolName)
	if err != nil {
		return nil, 0, err
	}

	resp := e.dispatcher.Invoke(ctx, tl, step.Arguments, e.opts.ToolTimeout)
	if !resp.Success {
		return nil, resp.Duration, core.NewToolExecutionError(step.ToolName, fmt.Errorf("%s", resp.Error))
	}
	return resp.Result, resp.Duration, nil
}

func (e *Executor) synthesisPhase(ctx context.Context, sess *core.Session, log logging.Logger) (*synthesisResult, error) {
	sess.Transition(core.StatusSynthesizing)

	synthCtx, cancel := context.WithTimeout(ctx, e.opts.SynthesisTimeout)
	defer cancel()

	start := time.Now()
	res, err := synthesize(synthCtx, e.completion, sess)
	logging.LogModelCall(log, e.completion.Name(), time.Since(start), err == nil, err)
	if e.opts.OnModelCall != nil {
		e.opts.OnModelCall(e.completion.Name(), err == nil)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// fail moves the session into its terminal failure state and publishes the
// matching terminal event. Cancellation ends in CANCELLED with no complete
// event; everything else ends in FAILED with an error event carrying a
// stable kind.
func (e *Executor) fail(ctx context.Context, sess *core.Session, log logging.Logger, err error) error {
	if errors.Is(err, context.Canceled) {
		sess.Transition(core.StatusCancelled)
		e.bus.Publish(sess.ID, core.ErrorEvent(core.KindCancelled, "session cancelled"))
		log.Info("session cancelled")
		return err
	}

	kind := core.KindOf(err)
	message := err.Error()
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == context.DeadlineExceeded {
		timeoutErr := core.NewSessionTimeoutError()
		kind = core.KindSessionTimeout
		message = timeoutErr.Error()
		err = timeoutErr
	}

	sess.Transition(core.StatusFailed)
	e.bus.Publish(sess.ID, core.ErrorEvent(kind, message))
	log.Error("session failed", "kind", string(kind), "error", message)
	return err
}
