// Package agentcore provides a high-level façade over the orchestration
// core (planning, dispatch, execution and streaming) enabling rapid
// construction of tool-using agent services. Most applications interact with
// this package by:
//  1. Creating an AgentCore via New() with a completion model
//  2. Registering tools (the built-in toolkit, function tools, or custom
//     Tool implementations)
//  3. Submitting requests asynchronously (Submit) or synchronously
//     (SubmitSync) and consuming the session's event stream
//
// The façade delegates orchestration to executor.Executor while keeping
// setup ergonomics concise. All defaults are safe for local development;
// services typically supply a structured logger and tuned timeouts.
package agentcore

import (
	"context"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/dispatch"
	"github.com/quickrewind/agentcore/executor"
	"github.com/quickrewind/agentcore/logging"
	"github.com/quickrewind/agentcore/model"
	"github.com/quickrewind/agentcore/planner"
	"github.com/quickrewind/agentcore/registry"
	"github.com/quickrewind/agentcore/session"
	"github.com/quickrewind/agentcore/stream"
	"github.com/quickrewind/agentcore/tool"
	"github.com/quickrewind/agentcore/toolkit"
)

// Options configures the AgentCore instance.
type Options struct {
	// Planner bounds plan shape and the planning call.
	Planner planner.Options
	// Executor carries the phase timeouts.
	Executor executor.Options
	// Dispatch sizes the shared worker pool.
	Dispatch dispatch.Options
	// RegisterToolkit controls whether the built-in model-backed tools are
	// registered at construction.
	RegisterToolkit bool
	// Logger receives structured logs from every component.
	Logger logging.Logger
}

// AgentCore bundles the orchestration components behind a small API.
type AgentCore struct {
	completion model.Completion
	registry   *registry.Registry
	pool       *dispatch.Pool
	bus        *stream.Bus
	store      *session.Store
	executor   *executor.Executor
}

// New creates an AgentCore around a completion model.
func New(completion model.Completion, optFns ...func(o *Options)) (*AgentCore, error) {
	opts := Options{
		RegisterToolkit: true,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	reg := registry.New(func(o *registry.Options) { o.Logger = opts.Logger })
	if opts.RegisterToolkit {
		if err := toolkit.RegisterDefaults(reg, completion); err != nil {
			return nil, err
		}
	}

	pool := dispatch.NewPool(func(o *dispatch.Options) {
		if opts.Dispatch.Workers > 0 {
			o.Workers = opts.Dispatch.Workers
		}
		if opts.Dispatch.QueueDepth > 0 {
			o.QueueDepth = opts.Dispatch.QueueDepth
		}
		o.Logger = opts.Logger
	})

	bus := stream.NewBus(func(o *stream.Options) { o.Logger = opts.Logger })
	store := session.NewStore(func(o *session.Options) {
		o.Logger = opts.Logger
		o.OnEvict = bus.CloseTopic
	})

	p := planner.New(completion, reg, func(o *planner.Options) {
		if opts.Planner.MaxSteps > 0 {
			o.MaxSteps = opts.Planner.MaxSteps
		}
		o.Logger = opts.Logger
	})

	exec := executor.New(p, completion, reg,
		dispatch.NewDispatcher(pool, opts.Logger), bus, store,
		func(o *executor.Options) {
			if opts.Executor.PlanningTimeout > 0 {
				o.PlanningTimeout = opts.Executor.PlanningTimeout
			}
			if opts.Executor.SynthesisTimeout > 0 {
				o.SynthesisTimeout = opts.Executor.SynthesisTimeout
			}
			if opts.Executor.ToolTimeout > 0 {
				o.ToolTimeout = opts.Executor.ToolTimeout
			}
			if opts.Executor.SessionTimeout > 0 {
				o.SessionTimeout = opts.Executor.SessionTimeout
			}
			o.Logger = opts.Logger
		})

	return &AgentCore{
		completion: completion,
		registry:   reg,
		pool:       pool,
		bus:        bus,
		store:      store,
		executor:   exec,
	}, nil
}

// RegisterTool adds a tool to the registry.
func (a *AgentCore) RegisterTool(t tool.Tool) error {
	return a.registry.Register(t)
}

// Registry exposes the tool registry.
func (a *AgentCore) Registry() *registry.Registry { return a.registry }

// Bus exposes the event bus for attaching stream sinks.
func (a *AgentCore) Bus() *stream.Bus { return a.bus }

// Sessions exposes the live session store.
func (a *AgentCore) Sessions() *session.Store { return a.store }

// Submit starts a session asynchronously and returns it immediately;
// progress arrives on the session's event stream.
func (a *AgentCore) Submit(ctx context.Context, request string) *core.Session {
	return a.executor.Start(ctx, request)
}

// SubmitSync runs a session to completion and returns it together with the
// terminal error, if any.
func (a *AgentCore) SubmitSync(ctx context.Context, request string) (*core.Session, error) {
	sess := core.NewSession(request)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.store.Put(sess, cancel)

	err := a.executor.Run(runCtx, sess)
	return sess, err
}

// Close releases the worker pool. Sessions in flight fail their remaining
// tool invocations.
func (a *AgentCore) Close() {
	a.pool.Close()
}
