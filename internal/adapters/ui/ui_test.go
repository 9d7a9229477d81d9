package ui

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app"
	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/app/visual"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/dkeye/VoiceAgent/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

type harness struct {
	orch      *orch.Orchestrator
	connector *testutil.Connector
	srv       *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	connector := &testutil.Connector{}
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Policy:   app.SimplePolicy{},
		Tokens:   &testutil.Tokens{Token: "tok"},
		Media:    connector,
		Input:    &testutil.Input{},
		Session:  session.Options{MediaURL: "wss://media.example", AutoSubscribe: true, ContextFlow: true},
		Labels:   session.DefaultLabels(),
		Visual:   visual.Config{LiveRate: 1, IdleRate: 1},
	}
	ctl := NewUIWSController(o, Config{PingPeriod: 5 * time.Second})

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("client_token", c.Query("sid"))
		ctl.HandleUI(context.Background(), c)
	})
	srv := httptest.NewServer(r)

	h := &harness{orch: o, connector: connector, srv: srv}
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, o.Shutdown(context.Background()))
	})
	return h
}

func (h *harness) dial(t *testing.T, sid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?sid=" + sid
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return ws
}

// next reads until a message of msgType arrives.
func next(t *testing.T, ws *websocket.Conn, msgType string) domain.UIMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var m domain.UIMessage
		require.NoError(t, ws.ReadJSON(&m))
		if m.Type == msgType {
			return m
		}
	}
}

func nextStatus(t *testing.T, ws *websocket.Conn, text string) {
	t.Helper()
	for {
		m := next(t, ws, domain.UIStatus)
		if m.Status.Text == text {
			return
		}
	}
}

func closeAndWait(t *testing.T, h *harness, ws *websocket.Conn, sid string) {
	t.Helper()
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = ws.Close()
	e, ok := h.orch.Registry.Get(core.SessionID(sid))
	if !ok {
		return
	}
	require.Eventually(t, func() bool { return e.Hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUI_SessionFlow(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "page-1")

	st := next(t, ws, domain.UIState)
	assert.Equal(t, domain.PhaseIdle, st.State.Phase)
	nextStatus(t, ws, "Ready to Connect")

	require.NoError(t, ws.WriteJSON(domain.UIAction{Type: domain.ActionStart}))
	nextStatus(t, ws, "Connected - Awaiting Context")
	visible := next(t, ws, domain.UIContextInput)
	assert.True(t, *visible.Visible)

	require.NoError(t, ws.WriteJSON(domain.UIAction{Type: domain.ActionContext, Content: "Staff SRE, Kubernetes"}))
	nextStatus(t, ws, "Connected - Listening")
	published := h.connector.Session(0).Published()
	require.Len(t, published, 1)
	assert.JSONEq(t, `{"type":"job_description","content":"Staff SRE, Kubernetes"}`, string(published[0]))

	require.NoError(t, ws.WriteJSON(domain.UIAction{Type: domain.ActionStop}))
	nextStatus(t, ws, "Ready to Connect")
	assert.Equal(t, 1, h.connector.Session(0).Disconnected())

	closeAndWait(t, h, ws, "page-1")
}

func TestUI_Errors(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "page-2")
	next(t, ws, domain.UIState)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "invalid message", next(t, ws, domain.UIError).Error)

	require.NoError(t, ws.WriteJSON(domain.UIAction{Type: "dance"}))
	assert.Equal(t, "unknown action: dance", next(t, ws, domain.UIError).Error)

	require.NoError(t, ws.WriteJSON(domain.UIAction{Type: domain.ActionContext, Content: "x"}))
	assert.Equal(t, domain.ErrNotAwaitingContext.Error(), next(t, ws, domain.UIError).Error)

	closeAndWait(t, h, ws, "page-2")
}

func TestUI_PingAndState(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "page-3")
	next(t, ws, domain.UIState)

	require.NoError(t, ws.WriteJSON(domain.UIAction{Type: domain.ActionPing}))
	next(t, ws, domain.UIPong)

	require.NoError(t, ws.WriteJSON(domain.UIAction{Type: domain.ActionState}))
	st := next(t, ws, domain.UIState)
	assert.Equal(t, domain.PhaseIdle, st.State.Phase)

	closeAndWait(t, h, ws, "page-3")
}

func TestUI_SessionSurvivesReconnect(t *testing.T) {
	h := newHarness(t)
	ws := h.dial(t, "page-4")
	next(t, ws, domain.UIState)
	require.NoError(t, ws.WriteJSON(domain.UIAction{Type: domain.ActionStart}))
	nextStatus(t, ws, "Connected - Awaiting Context")
	closeAndWait(t, h, ws, "page-4")

	again := h.dial(t, "page-4")
	st := next(t, again, domain.UIState)
	assert.Equal(t, domain.PhaseAwaitingContext, st.State.Phase)
	assert.Equal(t, 1, h.connector.Calls())
	closeAndWait(t, h, again, "page-4")
}
