// Package dispatch routes tool invocations to the right execution path.
//
// Tools declare whether they block via the optional tool.Blocker interface.
// Blocking tools (the default) are handed to a bounded shared worker pool so
// slow calls cannot starve the rest of the process; non-blocking tools run
// inline on the caller's goroutine. Either way the caller observes the same
// synchronous API: Invoke blocks until the tool finishes, the per-invocation
// timeout fires, or the context is cancelled.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/logging"
	"github.com/quickrewind/agentcore/tool"
)

const (
	// DefaultWorkers is the worker count used when none is configured.
	DefaultWorkers = 4

	// DefaultQueueDepth bounds the number of invocations waiting for a
	// worker before further submitters block.
	DefaultQueueDepth = 64
)

// Options configure the pool.
type Options struct {
	Workers    int
	QueueDepth int
	Logger     logging.Logger
	// OnQueue observes queue occupancy changes, +1 on enqueue and -1 on
	// dequeue (metrics).
	OnQueue func(delta int)
}

// task pairs an invocation with the future its caller waits on.
type task struct {
	ctx    context.Context
	tool   tool.Tool
	args   map[string]any
	result chan Result
}

// Result is a completed invocation outcome delivered through a future.
type Result struct {
	Value any
	Err   error
}

// Pool is a bounded worker pool shared by all sessions. When every worker is
// busy and the queue is full, submitters wait FIFO for space, bounded by
// their own context deadline.
type Pool struct {
	queue   chan *task
	done    chan struct{}
	wg      sync.WaitGroup
	logger  logging.Logger
	onQueue func(delta int)
	closeMu sync.Mutex
	closed  bool
}

// NewPool starts the workers and returns a running pool.
func NewPool(optFns ...func(o *Options)) *Pool {
	opts := Options{
		Workers:    DefaultWorkers,
		QueueDepth: DefaultQueueDepth,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueDepth < 0 {
		opts.QueueDepth = 0
	}

	p := &Pool{
		queue:   make(chan *task, opts.QueueDepth),
		done:    make(chan struct{}),
		logger:  opts.Logger,
		onQueue: opts.OnQueue,
	}

	p.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case t := <-p.queue:
			p.queueChanged(-1)
			p.run(t)
		}
	}
}

func (p *Pool) queueChanged(delta int) {
	if p.onQueue != nil {
		p.onQueue(delta)
	}
}

// run executes a single queued task. The caller may already have abandoned
// the future (timeout, cancellation); the buffered result channel lets the
// worker move on without blocking and the late result is discarded.
func (p *Pool) run(t *task) {
	if err := t.ctx.Err(); err != nil {
		t.result <- Result{Err: err}
		return
	}
	value, err := t.tool.Invoke(t.ctx, t.args)
	t.result <- Result{Value: value, Err: err}
}

// Submit enqueues a blocking invocation and returns a future for its result.
// A saturated pool queues FIFO: Submit waits for queue space until ctx
// expires, and fails with core.ErrPoolClosed after Close.
func (p *Pool) Submit(ctx context.Context, tl tool.Tool, args map[string]any) (<-chan Result, error) {
	t := &task{ctx: ctx, tool: tl, args: args, result: make(chan Result, 1)}

	select {
	case <-p.done:
		return nil, core.ErrPoolClosed
	default:
	}

	select {
	case p.queue <- t:
		p.queueChanged(1)
		return t.result, nil
	case <-p.done:
		return nil, core.ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting work and waits for in-flight invocations to finish.
// Queued tasks that never reached a worker fail with core.ErrPoolClosed.
func (p *Pool) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.closeMu.Unlock()

	p.wg.Wait()

	for {
		select {
		case t := <-p.queue:
			p.queueChanged(-1)
			t.result <- Result{Err: core.ErrPoolClosed}
		default:
			return
		}
	}
}

// DispatcherOptions configure the dispatcher. OnInvoke observes every
// finished invocation; metrics hang off it.
type DispatcherOptions struct {
	OnInvoke func(toolName string, success bool, dur time.Duration)
}

// Dispatcher is the synchronous facade the executor calls. It decides per
// tool whether to run inline or through the pool and converts outcomes into
// core.ToolResponse values.
type Dispatcher struct {
	pool     *Pool
	logger   logging.Logger
	onInvoke func(string, bool, time.Duration)
}

// NewDispatcher wraps an existing pool.
func NewDispatcher(pool *Pool, logger logging.Logger, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	var opts DispatcherOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{pool: pool, logger: logger, onInvoke: opts.OnInvoke}
}

// Invoke runs one tool call to completion. The timeout covers the whole
// invocation including any time spent waiting for a free worker; zero means
// no per-invocation timeout beyond ctx.
func (d *Dispatcher) Invoke(ctx context.Context, tl tool.Tool, args map[string]any, timeout time.Duration) core.ToolResponse {
	start := time.Now()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		value any
		err   error
	)
	if blocking(tl) {
		value, err = d.pooled(ctx, tl, args)
	} else {
		value, err = tl.Invoke(ctx, args)
	}

	dur := time.Since(start)
	name := tl.Definition().Name
	logging.LogToolCall(d.logger, name, dur, err == nil, err)
	if d.onInvoke != nil {
		d.onInvoke(name, err == nil, dur)
	}

	if err != nil {
		return core.ErrResponse(normalizeError(name, ctx, err), dur)
	}
	return core.OkResponse(value, dur)
}

func (d *Dispatcher) pooled(ctx context.Context, tl tool.Tool, args map[string]any) (any, error) {
	future, err := d.pool.Submit(ctx, tl, args)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-future:
		return res.Value, res.Err
	case <-ctx.Done():
		// The worker (or the queue drain on Close) will still deliver into
		// the buffered future; nobody reads it and it is collected.
		return nil, ctx.Err()
	}
}

// blocking reports whether the tool must go through the pool. Tools that do
// not implement tool.Blocker are treated as blocking.
func blocking(tl tool.Tool) bool {
	if b, ok := tl.(tool.Blocker); ok {
		return b.Blocking()
	}
	return true
}

// normalizeError maps raw invocation failures onto the error taxonomy:
// deadline expiry becomes an invocation timeout, everything else a tool
// execution error unless it already carries a kind.
func normalizeError(toolName string, ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("tool %q: %w", toolName, core.ErrInvocationTimeout)
	}
	var coreErr *core.CoreError
	if errors.As(err, &coreErr) {
		return err
	}
	return core.NewToolExecutionError(toolName, err)
}
