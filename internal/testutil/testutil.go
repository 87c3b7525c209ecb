// Package testutil provides in-memory fakes shared by the package tests.
package testutil

import (
	"context"
	"sync"

	"github.com/quickrewind/agentcore/model"
)

// FakeCompletion is a scripted model.Completion. Each Complete call pops the
// next queued response (or error); the final entry is repeated once the
// script runs out.
type FakeCompletion struct {
	mu        sync.Mutex
	responses []FakeResponse
	calls     []model.Request
}

// FakeResponse is one scripted turn.
type FakeResponse struct {
	Text string
	Err  error
}

// NewFakeCompletion scripts a sequence of responses.
func NewFakeCompletion(responses ...FakeResponse) *FakeCompletion {
	return &FakeCompletion{responses: responses}
}

// Name identifies the fake provider.
func (f *FakeCompletion) Name() string { return "fake" }

// Complete pops the next scripted response and records the request.
func (f *FakeCompletion) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	var r FakeResponse
	switch {
	case len(f.responses) == 0:
		r = FakeResponse{Text: ""}
	case len(f.responses) == 1:
		r = f.responses[0]
	default:
		r = f.responses[0]
		f.responses = f.responses[1:]
	}

	if r.Err != nil {
		return nil, r.Err
	}
	return &model.Response{Text: r.Text, Model: "fake"}, nil
}

// Calls returns a copy of every request seen so far.
func (f *FakeCompletion) Calls() []model.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Request, len(f.calls))
	copy(out, f.calls)
	return out
}
