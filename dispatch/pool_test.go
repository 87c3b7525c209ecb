package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/tool"
)

func echoTool(t *testing.T, optFns ...func(o *tool.Options)) tool.Tool {
	t.Helper()
	return tool.NewFunctionTool(core.ToolDefinition{
		Name:        "echo",
		Description: "Echoes its input",
		Parameters: []core.ToolParameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	}, optFns...)
}

func TestDispatcherInvokeSuccess(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	d := NewDispatcher(pool, nil)

	resp := d.Invoke(context.Background(), echoTool(t), map[string]any{"text": "hi"}, time.Second)

	assert.True(t, resp.Success)
	assert.Equal(t, "hi", resp.Result)
	assert.Empty(t, resp.Error)
}

func TestDispatcherInvokeNonBlockingRunsInline(t *testing.T) {
	// A pool with no free workers: non-blocking tools must still complete.
	pool := NewPool(func(o *Options) {
		o.Workers = 1
		o.QueueDepth = 0
	})
	defer pool.Close()

	block := make(chan struct{})
	slow := tool.NewFunctionTool(core.ToolDefinition{Name: "slow", Description: "Blocks"},
		func(ctx context.Context, args map[string]any) (any, error) {
			<-block
			return nil, nil
		})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		NewDispatcher(pool, nil).Invoke(context.Background(), slow, nil, 5*time.Second)
	}()
	defer func() { close(block); wg.Wait() }()

	d := NewDispatcher(pool, nil)
	fast := echoTool(t, func(o *tool.Options) { o.NonBlocking = true })

	done := make(chan core.ToolResponse, 1)
	go func() {
		done <- d.Invoke(context.Background(), fast, map[string]any{"text": "inline"}, time.Second)
	}()

	select {
	case resp := <-done:
		assert.True(t, resp.Success)
		assert.Equal(t, "inline", resp.Result)
	case <-time.After(2 * time.Second):
		t.Fatal("non-blocking invocation did not run inline")
	}
}

func TestDispatcherInvokeTimeout(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	d := NewDispatcher(pool, nil)

	slow := tool.NewFunctionTool(core.ToolDefinition{Name: "slow", Description: "Sleeps"},
		func(ctx context.Context, args map[string]any) (any, error) {
			select {
			case <-time.After(time.Second):
				return "late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})

	start := time.Now()
	resp := d.Invoke(context.Background(), slow, nil, 50*time.Millisecond)

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, core.ErrInvocationTimeout.Error())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDispatcherTimeoutCoversQueueWait(t *testing.T) {
	pool := NewPool(func(o *Options) {
		o.Workers = 1
		o.QueueDepth = 4
	})
	defer pool.Close()
	d := NewDispatcher(pool, nil)

	block := make(chan struct{})
	defer close(block)
	occupy := tool.NewFunctionTool(core.ToolDefinition{Name: "occupy", Description: "Holds the worker"},
		func(ctx context.Context, args map[string]any) (any, error) {
			<-block
			return nil, nil
		})

	go d.Invoke(context.Background(), occupy, nil, 5*time.Second)
	time.Sleep(20 * time.Millisecond)

	// The second call never reaches a worker; its timeout must still fire.
	resp := d.Invoke(context.Background(), echoTool(t), map[string]any{"text": "x"}, 50*time.Millisecond)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, core.ErrInvocationTimeout.Error())
}

func TestDispatcherExecutionErrorKind(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	d := NewDispatcher(pool, nil)

	failing := tool.NewFunctionTool(core.ToolDefinition{Name: "broken", Description: "Always fails"},
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("disk on fire")
		})

	resp := d.Invoke(context.Background(), failing, nil, time.Second)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "disk on fire")
}

func TestPoolDrainsQueueInOrder(t *testing.T) {
	pool := NewPool(func(o *Options) {
		o.Workers = 1
		o.QueueDepth = 8
	})
	defer pool.Close()

	release := make(chan struct{})
	blocker := tool.NewFunctionTool(core.ToolDefinition{Name: "blocker", Description: "blocks"},
		func(ctx context.Context, args map[string]any) (any, error) {
			<-release
			return nil, nil
		})
	gate, err := pool.Submit(context.Background(), blocker, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	recorder := func(n int) tool.Tool {
		return tool.NewFunctionTool(core.ToolDefinition{Name: "record", Description: "records"},
			func(ctx context.Context, args map[string]any) (any, error) {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return n, nil
			})
	}

	var futures []<-chan Result
	for i := 1; i <= 3; i++ {
		f, err := pool.Submit(context.Background(), recorder(i), nil)
		require.NoError(t, err)
		futures = append(futures, f)
	}

	close(release)
	<-gate
	for _, f := range futures {
		<-f
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPoolSubmitAfterClose(t *testing.T) {
	pool := NewPool()
	pool.Close()

	_, err := pool.Submit(context.Background(), echoTool(t), map[string]any{"text": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPoolClosed)
}

func TestPoolCloseIdempotent(t *testing.T) {
	pool := NewPool()
	pool.Close()
	pool.Close()
}

func TestPoolSaturatedSubmitWaitsForSpace(t *testing.T) {
	pool := NewPool(func(o *Options) {
		o.Workers = 1
		o.QueueDepth = 0
	})
	defer pool.Close()

	block := make(chan struct{})
	occupy := tool.NewFunctionTool(core.ToolDefinition{Name: "occupy", Description: "Holds the worker"},
		func(ctx context.Context, args map[string]any) (any, error) {
			<-block
			return nil, nil
		})

	gate, err := pool.Submit(context.Background(), occupy, nil)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	// Worker busy, queue depth zero: the next submission waits until the
	// worker frees up rather than failing fast.
	submitted := make(chan struct{})
	var future <-chan Result
	go func() {
		defer close(submitted)
		future, err = pool.Submit(context.Background(), echoTool(t), map[string]any{"text": "x"})
	}()

	select {
	case <-submitted:
		t.Fatal("submit returned while the pool was saturated")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-gate
	<-submitted
	require.NoError(t, err)

	res := <-future
	require.NoError(t, res.Err)
	assert.Equal(t, "x", res.Value)
}

func TestPoolSaturatedSubmitHonorsContext(t *testing.T) {
	pool := NewPool(func(o *Options) {
		o.Workers = 1
		o.QueueDepth = 0
	})
	defer pool.Close()

	block := make(chan struct{})
	defer close(block)
	occupy := tool.NewFunctionTool(core.ToolDefinition{Name: "occupy", Description: "Holds the worker"},
		func(ctx context.Context, args map[string]any) (any, error) {
			<-block
			return nil, nil
		})

	_, err := pool.Submit(context.Background(), occupy, nil)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Submit(ctx, echoTool(t), map[string]any{"text": "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolQueueHookBalances(t *testing.T) {
	var mu sync.Mutex
	depth, calls := 0, 0

	pool := NewPool(func(o *Options) {
		o.Workers = 1
		o.QueueDepth = 8
		o.OnQueue = func(delta int) {
			mu.Lock()
			depth += delta
			calls++
			mu.Unlock()
		}
	})

	var futures []<-chan Result
	for i := 0; i < 4; i++ {
		f, err := pool.Submit(context.Background(), echoTool(t), map[string]any{"text": "x"})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		<-f
	}
	pool.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, depth)
	assert.Equal(t, 8, calls)
}
