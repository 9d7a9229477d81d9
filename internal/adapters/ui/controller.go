package ui

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Config tunes page connections.
type Config struct {
	ReadLimit  int64
	PingPeriod time.Duration
	Queue      int
}

func (c Config) withDefaults() Config {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 32 << 10
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 54 * time.Second
	}
	if c.Queue <= 0 {
		c.Queue = 64
	}
	return c
}

type UIWSController struct {
	Orch *orch.Orchestrator
	cfg  Config
}

func NewUIWSController(o *orch.Orchestrator, cfg Config) *UIWSController {
	return &UIWSController{Orch: o, cfg: cfg.withDefaults()}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleUI upgrades the request and binds the page to the client's session.
func (ctl *UIWSController) HandleUI(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(c.GetString("client_token"))
	log.Info().Str("module", "ui").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ui").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	conn := NewWsConn(ws, ctl.cfg.Queue)
	ctx, cancel := context.WithCancel(ctx)

	ctl.Orch.BindSurface(sid, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}
