package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app"
	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/app/visual"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/dkeye/VoiceAgent/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

func newRouter(t *testing.T, tokens *testutil.Tokens) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Tokens:   tokens,
		Media:    &testutil.Connector{},
		Input:    &testutil.Input{},
		Session:  session.Options{MediaURL: "wss://media.example", ContextFlow: true},
		Labels:   session.DefaultLabels(),
		Visual:   visual.Config{LiveRate: 1, IdleRate: 1},
	}
	t.Cleanup(func() { require.NoError(t, o.Shutdown(context.Background())) })

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("client_token", "client-1")
		c.Next()
	})
	NewSessionHandlers(o).Register(r.Group("/api"))
	return r, o
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) domain.SessionState {
	t.Helper()
	var st domain.SessionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSessionHandlers_Flow(t *testing.T) {
	r, _ := newRouter(t, &testutil.Tokens{Token: "tok"})

	w := do(r, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PhaseIdle, decodeState(t, w).Phase)

	w = do(r, http.MethodPost, "/api/session/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PhaseAwaitingContext, decodeState(t, w).Phase)

	w = do(r, http.MethodPost, "/api/session/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.ErrNotIdle.Error(), decodeError(t, w).Error)

	w = do(r, http.MethodPost, "/api/session/context", `{"content":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/session/context", `{"content":"Data engineer, Spark"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PhaseActive, decodeState(t, w).Phase)

	w = do(r, http.MethodPost, "/api/session/context", `{"content":"again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/api/session/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.PhaseIdle, decodeState(t, w).Phase)

	w = do(r, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSessionHandlers_BadBody(t *testing.T) {
	r, _ := newRouter(t, &testutil.Tokens{Token: "tok"})
	w := do(r, http.MethodPost, "/api/session/context", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlers_TokenFailure(t *testing.T) {
	r, o := newRouter(t, &testutil.Tokens{Err: errors.New("Token fetch failed: 503 Service Unavailable")})

	w := do(r, http.MethodPost, "/api/session/start", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, string(domain.KindTokenFetch), resp.Kind)
	assert.Contains(t, resp.Error, "503 Service Unavailable")
	assert.Equal(t, domain.PhaseIdle, o.Snapshot("client-1").Phase)
}

func TestSessionHandlers_RateLimited(t *testing.T) {
	r, o := newRouter(t, &testutil.Tokens{Token: "tok"})
	o.Limiter = app.NewActionLimiter(1, time.Hour, 1)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/session/toggle", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/api/session/toggle", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/session/stop", "").Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotIdle, http.StatusConflict},
		{domain.ErrNotAwaitingContext, http.StatusConflict},
		{domain.ErrContextInFlight, http.StatusConflict},
		{domain.ErrContextEmpty, http.StatusBadRequest},
		{domain.ErrContextTooLong, http.StatusBadRequest},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.NewSessionError(domain.KindJoin, "join", errors.New("x")), http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), tt.err.Error())
	}
}
