package ui

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *UIWSController) writePump(ctx context.Context, c *WsConn) {
	ping := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ping.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "ui").Msg("writePump ctx done")
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "ui").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "ui").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "ui").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ui").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *UIWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "ui").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.UnbindSurface(sid, c)
		cancel()
		c.Close()
	}()

	pongWait := ctl.cfg.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "ui").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleMessage(ctx, sid, c, data)
	}
}

func (ctl *UIWSController) handleMessage(ctx context.Context, sid core.SessionID, c *WsConn, data []byte) {
	var act domain.UIAction
	if err := json.Unmarshal(data, &act); err != nil {
		log.Warn().Err(err).Str("module", "ui").Msg("bad json")
		ctl.sendError(c, "invalid message")
		return
	}

	switch act.Type {
	case domain.ActionStart:
		ctl.run(c, func() error { return ctl.Orch.Start(ctx, sid) })
	case domain.ActionStop:
		ctl.run(c, func() error { return ctl.Orch.Stop(ctx, sid) })
	case domain.ActionToggle:
		ctl.run(c, func() error { return ctl.Orch.Toggle(ctx, sid) })
	case domain.ActionContext:
		content := act.Content
		ctl.run(c, func() error { return ctl.Orch.SubmitContext(ctx, sid, content) })
	case domain.ActionState:
		ctl.Orch.Sync(sid, c)
	case domain.ActionPing:
		ctl.sendJSON(c, domain.UIMessage{Type: domain.UIPong})
	default:
		log.Warn().Str("module", "ui").Str("type", act.Type).Msg("unknown action")
		ctl.sendError(c, "unknown action: "+act.Type)
	}
}

// run executes a session action off the read loop so a page can Stop a join
// that is still in flight.
func (ctl *UIWSController) run(c *WsConn, action func() error) {
	go func() {
		if err := action(); err != nil {
			ctl.sendError(c, err.Error())
		}
	}()
}

func (ctl *UIWSController) sendError(c *WsConn, msg string) {
	ctl.sendJSON(c, domain.UIMessage{Type: domain.UIError, Error: msg})
}

func (ctl *UIWSController) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ui").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
