package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type ContextRequest struct {
	Content string `json:"content"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// SessionHandlers exposes the caller's session over REST.
type SessionHandlers struct {
	Orch *orch.Orchestrator
}

func NewSessionHandlers(o *orch.Orchestrator) *SessionHandlers {
	return &SessionHandlers{Orch: o}
}

// Register mounts the session routes under api.
func (h *SessionHandlers) Register(api *gin.RouterGroup) {
	s := api.Group("/session")
	s.GET("", h.snapshot)
	s.DELETE("", h.release)
	s.POST("/start", h.action(h.Orch.Start))
	s.POST("/stop", h.action(h.Orch.Stop))
	s.POST("/toggle", h.action(h.Orch.Toggle))
	s.POST("/context", h.submitContext)
}

func sessionID(c *gin.Context) core.SessionID {
	return core.SessionID(c.GetString("client_token"))
}

func (h *SessionHandlers) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.Orch.Snapshot(sessionID(c)))
}

func (h *SessionHandlers) action(fn func(context.Context, core.SessionID) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := sessionID(c)
		if err := fn(c.Request.Context(), sid); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, h.Orch.Snapshot(sid))
	}
}

func (h *SessionHandlers) submitContext(c *gin.Context) {
	var req ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid content"})
		return
	}
	sid := sessionID(c)
	if err := h.Orch.SubmitContext(c.Request.Context(), sid, req.Content); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Orch.Snapshot(sid))
}

func (h *SessionHandlers) release(c *gin.Context) {
	if err := h.Orch.Release(c.Request.Context(), sessionID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StatusOf maps a session error to an HTTP status code.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotIdle),
		errors.Is(err, domain.ErrNotAwaitingContext),
		errors.Is(err, domain.ErrContextInFlight),
		errors.Is(err, domain.ErrAbandoned):
		return http.StatusConflict
	case errors.Is(err, domain.ErrContextEmpty), errors.Is(err, domain.ErrContextTooLong):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	if _, ok := domain.KindOf(err); ok {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code := StatusOf(err)
	resp := ErrorResponse{Error: err.Error()}
	if kind, ok := domain.KindOf(err); ok {
		resp.Kind = string(kind)
	}
	if code >= http.StatusInternalServerError {
		log.Warn().Err(err).Str("module", "transport.http").Str("sid", c.GetString("client_token")).Int("status", code).Msg("session action failed")
	}
	c.JSON(code, resp)
}
