package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/quickrewind/agentcore/core"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// handleChat starts a session for the request and returns its ID
// immediately; progress arrives over the stream endpoints.
func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message must not be empty")
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.SessionStarted()
	}
	// The session outlives this request; it must not inherit the request
	// context or it would be cancelled as soon as the response is sent.
	sess := s.executor.Start(context.Background(), req.Message)

	return c.JSON(http.StatusAccepted, chatResponse{
		SessionID: sess.ID,
		Status:    sess.Status().String(),
	})
}

type chatSyncResponse struct {
	Success        bool           `json:"success"`
	Response       string         `json:"response,omitempty"`
	Error          string         `json:"error,omitempty"`
	ProcessingTime float64        `json:"processing_time"`
	Metadata       map[string]any `json:"metadata"`
}

// handleChatSync runs a session to completion before responding. The session
// shares its lifetime with the request: a dropped client cancels it.
func (s *Server) handleChatSync(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message must not be empty")
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.SessionStarted()
	}
	sess := core.NewSession(req.Message)
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	s.store.Put(sess, cancel)

	err := s.executor.Run(ctx, sess)

	view := sess.Snapshot()
	resp := chatSyncResponse{
		Success:        err == nil,
		Response:       view.FinalAnswer,
		ProcessingTime: time.Since(view.Created).Seconds(),
		Metadata: map[string]any{
			"session_id": view.ID,
			"status":     view.Status.String(),
			"steps":      len(view.Steps),
		},
	}
	if err != nil {
		resp.Error = err.Error()
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

type sessionResponse struct {
	SessionID   string               `json:"session_id"`
	Status      string               `json:"status"`
	Request     string               `json:"request"`
	Steps       []core.ExecutionStep `json:"steps,omitempty"`
	FinalAnswer string               `json:"final_answer,omitempty"`
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, ok := s.store.Get(c.Param("session_id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	// The executor may still be mutating the session on its own goroutine.
	view := sess.Snapshot()
	return c.JSON(http.StatusOK, sessionResponse{
		SessionID:   view.ID,
		Status:      view.Status.String(),
		Request:     view.OriginalRequest,
		Steps:       view.Steps,
		FinalAnswer: view.FinalAnswer,
	})
}

func (s *Server) handleCancelSession(c echo.Context) error {
	id := c.Param("session_id")
	if !s.store.Cancel(id) {
		if _, ok := s.store.Get(id); !ok {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusConflict, "session already finished")
	}
	return c.JSON(http.StatusOK, map[string]string{"session_id": id, "status": "cancelling"})
}

func (s *Server) handleListTools(c echo.Context) error {
	defs := s.registry.List()
	return c.JSON(http.StatusOK, map[string]any{
		"tools": defs,
		"count": len(defs),
	})
}

type callToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// handleCallTool invokes a single tool outside any session, through the
// same dispatch path the executor uses.
func (s *Server) handleCallTool(c echo.Context) error {
	var req callToolRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name must not be empty")
	}

	tl, err := s.registry.Lookup(req.Name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	resp := s.dispatcher.Invoke(c.Request().Context(), tl, req.Arguments, s.opts.ToolTimeout)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, resp)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.Len(),
		"tools":    s.registry.Len(),
	})
}
