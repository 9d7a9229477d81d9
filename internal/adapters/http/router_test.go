package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dkeye/VoiceAgent/internal/app"
	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/app/visual"
	"github.com/dkeye/VoiceAgent/internal/config"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/dkeye/VoiceAgent/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>voice agent</h1>"), 0o600))

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Tokens:   &testutil.Tokens{Token: "tok"},
		Media:    &testutil.Connector{},
		Input:    &testutil.Input{},
		Session:  session.Options{MediaURL: "wss://media.example", ContextFlow: true},
		Labels:   session.DefaultLabels(),
		Visual:   visual.Config{LiveRate: 1, IdleRate: 1},
	}
	t.Cleanup(func() { require.NoError(t, o.Shutdown(context.Background())) })

	cfg := &config.Config{Mode: "test", StaticPath: static, Secret: "test-secret"}
	return SetupRouter(context.Background(), cfg, o)
}

func serve(r http.Handler, method, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func phaseOf(t *testing.T, w *httptest.ResponseRecorder) domain.Phase {
	t.Helper()
	var st domain.SessionState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st.Phase
}

func TestRouter_ClientIdentity(t *testing.T) {
	r := newTestRouter(t)

	first := serve(r, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, first.Code)
	cookies := first.Result().Cookies()

	var ct string
	for _, c := range cookies {
		if c.Name == clientCookie {
			ct = c.Value
		}
	}
	_, err := uuid.Parse(ct)
	require.NoError(t, err, "ct cookie holds a uuid")

	w := serve(r, http.MethodPost, "/api/session/start", cookies)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, domain.PhaseAwaitingContext, phaseOf(t, serve(r, http.MethodGet, "/api/session", cookies)))
	assert.Equal(t, domain.PhaseIdle, phaseOf(t, serve(r, http.MethodGet, "/api/session", nil)), "a new browser has its own session")
}

func TestRouter_ForgedTokenIsReplaced(t *testing.T) {
	r := newTestRouter(t)
	w := serve(r, http.MethodGet, "/api/session", []*http.Cookie{{Name: clientCookie, Value: "../../etc"}})
	require.Equal(t, http.StatusOK, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == clientCookie {
			_, err := uuid.Parse(c.Value)
			assert.NoError(t, err)
		}
	}
}

func TestRouter_Endpoints(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, w.Body.String())

	serve(r, http.MethodPost, "/api/session/toggle", nil)
	w = serve(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "voiceagent_session_transitions_total"))

	w = serve(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "voice agent")
}
