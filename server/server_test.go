package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickrewind/agentcore/core"
	"github.com/quickrewind/agentcore/dispatch"
	"github.com/quickrewind/agentcore/executor"
	"github.com/quickrewind/agentcore/internal/testutil"
	"github.com/quickrewind/agentcore/planner"
	"github.com/quickrewind/agentcore/registry"
	"github.com/quickrewind/agentcore/session"
	"github.com/quickrewind/agentcore/stream"
	"github.com/quickrewind/agentcore/tool"
)

func newTestServer(t *testing.T, fake *testutil.FakeCompletion) *Server {
	t.Helper()

	reg := registry.New()
	err := reg.Register(tool.NewFunctionTool(core.ToolDefinition{
		Name:        "echo",
		Description: "Echoes its input",
		Parameters: []core.ToolParameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	}))
	require.NoError(t, err)

	pool := dispatch.NewPool()
	t.Cleanup(pool.Close)
	d := dispatch.NewDispatcher(pool, nil)
	bus := stream.NewBus()
	store := session.NewStore()
	p := planner.New(fake, reg)
	exec := executor.New(p, fake, reg, d, bus, store)

	return New(exec, store, bus, reg, d, func(o *Options) {
		o.HeartbeatInterval = 50 * time.Millisecond
		o.ToolTimeout = 5 * time.Second
	})
}

func scriptedModel() *testutil.FakeCompletion {
	return testutil.NewFakeCompletion(
		testutil.FakeResponse{Text: `{"reasoning": "echo it", "steps": [
			{"description": "Echo the text", "tool": "echo", "arguments": {"text": "hi"}}
		]}`},
		testutil.FakeResponse{Text: "All done: hi"},
	)
}

func TestChatStartsSession(t *testing.T) {
	srv := newTestServer(t, scriptedModel())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/chat",
		strings.NewReader(`{"message": "echo hi"}`))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)

	sess, ok := srv.store.Get(resp.SessionID)
	require.True(t, ok)
	require.Eventually(t, func() bool { return sess.Status().Terminal() },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, core.StatusCompleted, sess.Status())
	assert.Equal(t, "All done: hi", sess.FinalAnswer)
}

func TestChatSyncReturnsAnswer(t *testing.T) {
	srv := newTestServer(t, scriptedModel())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/chat/sync",
		strings.NewReader(`{"message": "echo hi"}`))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp chatSyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "All done: hi", resp.Response)
	assert.Greater(t, resp.ProcessingTime, 0.0)
	assert.Equal(t, core.StatusCompleted.String(), resp.Metadata["status"])
}

func TestChatSyncReportsFailure(t *testing.T) {
	fake := testutil.NewFakeCompletion(
		testutil.FakeResponse{Text: "not a plan"},
	)
	srv := newTestServer(t, fake)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/chat/sync",
		strings.NewReader(`{"message": "echo hi"}`))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp chatSyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, core.StatusFailed.String(), resp.Metadata["status"])
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv := newTestServer(t, scriptedModel())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/chat",
		strings.NewReader(`{"message": "   "}`))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession(t *testing.T) {
	srv := newTestServer(t, scriptedModel())
	sess := srv.executor.Start(context.Background(), "echo hi")
	require.Eventually(t, func() bool { return sess.Status().Terminal() },
		5*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/sessions/"+sess.ID, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "COMPLETED", resp.Status)
	assert.Equal(t, "All done: hi", resp.FinalAnswer)
	assert.Len(t, resp.Steps, 1)
}

func TestGetSessionWhileExecuting(t *testing.T) {
	srv := newTestServer(t, scriptedModel())

	release := make(chan struct{})
	err := srv.registry.RegisterOverride(tool.NewFunctionTool(core.ToolDefinition{
		Name:        "echo",
		Description: "Echoes its input after a gate opens",
		Parameters: []core.ToolParameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		select {
		case <-release:
			return args["text"], nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
	require.NoError(t, err)

	sess := srv.executor.Start(context.Background(), "echo hi")

	// Concurrent GETs while the executor is still writing the session must
	// always see a consistent snapshot.
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/sessions/"+sess.ID, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp sessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, sess.ID, resp.SessionID)
	}

	close(release)
	require.Eventually(t, func() bool { return sess.Status().Terminal() },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, core.StatusCompleted, sess.Status())
}

func TestGetSessionNotFound(t *testing.T) {
	srv := newTestServer(t, scriptedModel())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/sessions/unknown", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTools(t *testing.T) {
	srv := newTestServer(t, scriptedModel())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/tools", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"echo"`)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestCallTool(t *testing.T) {
	srv := newTestServer(t, scriptedModel())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/tools/call",
		strings.NewReader(`{"name": "echo", "arguments": {"text": "direct"}}`))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp core.ToolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "direct", resp.Result)
}

func TestCallToolUnknown(t *testing.T) {
	srv := newTestServer(t, scriptedModel())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/tools/call",
		strings.NewReader(`{"name": "missing", "arguments": {}}`))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCallToolValidationFailure(t *testing.T) {
	srv := newTestServer(t, scriptedModel())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/tools/call",
		strings.NewReader(`{"name": "echo", "arguments": {}}`))
	req.Header.Set(echoHeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp core.ToolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestCancelSession(t *testing.T) {
	fake := testutil.NewFakeCompletion(testutil.FakeResponse{Text: `{"reasoning": "r", "steps": [
		{"description": "Echo slowly", "tool": "echo", "arguments": {"text": "hi"}}
	]}`})
	srv := newTestServer(t, fake)

	// Replace echo with a blocking variant so the session stays running.
	err := srv.registry.RegisterOverride(tool.NewFunctionTool(core.ToolDefinition{
		Name:        "echo",
		Description: "Echoes its input, slowly",
		Parameters: []core.ToolParameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	require.NoError(t, err)

	sess := srv.executor.Start(context.Background(), "echo hi")
	require.Eventually(t, func() bool { return sess.Status() == core.StatusExecuting },
		5*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agent/sessions/"+sess.ID+"/cancel", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool { return sess.Status() == core.StatusCancelled },
		5*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, scriptedModel())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestStreamNotFound(t *testing.T) {
	srv := newTestServer(t, scriptedModel())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/stream/unknown", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamDeliversFullEventHistory(t *testing.T) {
	srv := newTestServer(t, scriptedModel())
	sess := srv.executor.Start(context.Background(), "echo hi")
	require.Eventually(t, func() bool { return sess.Status().Terminal() },
		5*time.Second, 10*time.Millisecond)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/agent/stream/" + sess.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The session already finished, so the replayed history ends with the
	// terminal event and the server closes the stream by itself.
	var events []core.StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev core.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, core.EventConnected, events[0].Type)
	assert.Equal(t, core.EventComplete, events[len(events)-1].Type)

	var want uint64 = 1
	for _, ev := range events[1:] {
		assert.Equal(t, want, ev.Sequence)
		want++
	}
}

func TestWebSocketSessionRoundTrip(t *testing.T) {
	srv := newTestServer(t, scriptedModel())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/agent/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	start, err := stream.Marshal(stream.Frame{Type: stream.FrameRequest, Request: "echo hi"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, start))

	dec := stream.NewDecoder()
	var events []core.StreamEvent
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		frames, err := dec.Feed(data)
		require.NoError(t, err)
		done := false
		for _, f := range frames {
			if f.Type != stream.FrameEvent {
				continue
			}
			events = append(events, *f.Event)
			if f.Event.Type == core.EventComplete || f.Event.Type == core.EventError {
				done = true
			}
		}
		if done {
			break
		}
	}

	require.NotEmpty(t, events)
	assert.Equal(t, core.EventConnected, events[0].Type)
	assert.Equal(t, core.EventComplete, events[len(events)-1].Type)

	// Sequenced events are gapless from 1; the handshake carries none.
	var want uint64 = 1
	for _, ev := range events[1:] {
		assert.Equal(t, want, ev.Sequence)
		want++
	}
}

func TestWebSocketDisconnectCancelsSession(t *testing.T) {
	fake := testutil.NewFakeCompletion(testutil.FakeResponse{Text: `{"reasoning": "r", "steps": [
		{"description": "Echo slowly", "tool": "echo", "arguments": {"text": "hi"}}
	]}`})
	srv := newTestServer(t, fake)

	err := srv.registry.RegisterOverride(tool.NewFunctionTool(core.ToolDefinition{
		Name:        "echo",
		Description: "Echoes its input, slowly",
		Parameters: []core.ToolParameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/agent/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	start, err := stream.Marshal(stream.Frame{Type: stream.FrameRequest, Request: "echo hi"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, start))

	// Wait for the session to be bound and running.
	var sess *core.Session
	require.Eventually(t, func() bool {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		dec := stream.NewDecoder()
		frames, _ := dec.Feed(data)
		for _, f := range frames {
			if f.Type == stream.FrameEvent && f.Event.Type == core.EventConnected {
				id, _ := f.Event.Payload["session_id"].(string)
				sess, _ = srv.store.Get(id)
			}
		}
		return sess != nil && sess.Status() == core.StatusExecuting
	}, 5*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return sess.Status() == core.StatusCancelled },
		5*time.Second, 10*time.Millisecond)
}

const echoHeaderContentType = "Content-Type"
