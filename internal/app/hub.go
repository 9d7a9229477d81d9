package app

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/dkeye/VoiceAgent/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SurfaceHub renders one session onto every page connection bound to it.
// It implements core.UISurface by encoding UI messages into frames.
type SurfaceHub struct {
	sid    core.SessionID
	policy Policy
	logger zerolog.Logger

	mu    sync.RWMutex
	conns map[core.SignalConnection]struct{}
}

var _ core.UISurface = (*SurfaceHub)(nil)

func NewSurfaceHub(sid core.SessionID, policy Policy) *SurfaceHub {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &SurfaceHub{
		sid:    sid,
		policy: policy,
		logger: log.With().Str("module", "app.hub").Str("sid", string(sid)).Logger(),
		conns:  make(map[core.SignalConnection]struct{}),
	}
}

func (h *SurfaceHub) Attach(c core.SignalConnection) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Info().Int("conns", n).Msg("page attached")
}

// Detach removes c and reports how many connections remain.
func (h *SurfaceHub) Detach(c core.SignalConnection) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	return len(h.conns)
}

func (h *SurfaceHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SendTo delivers msg to a single connection, applying the same policy as broadcasts.
func (h *SurfaceHub) SendTo(c core.SignalConnection, msg domain.UIMessage) {
	frame, ok := h.encode(msg)
	if !ok {
		return
	}
	if err := c.TrySend(frame); err != nil {
		h.onBackPressure(c, classOf(msg.Type), err)
	}
}

func (h *SurfaceHub) broadcast(msg domain.UIMessage) {
	frame, ok := h.encode(msg)
	if !ok {
		return
	}
	h.mu.RLock()
	var dropped []core.SignalConnection
	var errs []error
	for c := range h.conns {
		if err := c.TrySend(frame); err != nil {
			dropped = append(dropped, c)
			errs = append(errs, err)
		}
	}
	h.mu.RUnlock()

	class := classOf(msg.Type)
	for i, c := range dropped {
		h.onBackPressure(c, class, errs[i])
	}
}

func (h *SurfaceHub) onBackPressure(c core.SignalConnection, class FrameClass, err error) {
	metrics.RecordUIDrop(string(class))
	switch h.policy.OnBackPressure(h.sid, class) {
	case KickConn:
		h.logger.Warn().Err(err).Str("class", string(class)).Msg("slow page, closing connection")
		h.Detach(c)
		c.Close()
	case DropFrame, NoAction:
	}
}

func (h *SurfaceHub) encode(msg domain.UIMessage) (core.Frame, bool) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("encode ui message")
		return nil, false
	}
	return core.Frame(b), true
}

func classOf(msgType string) FrameClass {
	if msgType == domain.UILevels {
		return ClassLevels
	}
	return ClassState
}

func (h *SurfaceHub) RenderStatus(s domain.Status) {
	h.broadcast(domain.UIMessage{Type: domain.UIStatus, Status: &s})
}

func (h *SurfaceHub) SetControlsEnabled(enabled bool) {
	h.broadcast(domain.UIMessage{Type: domain.UIControls, Enabled: &enabled})
}

func (h *SurfaceHub) SetContextInputVisible(visible bool) {
	h.broadcast(domain.UIMessage{Type: domain.UIContextInput, Visible: &visible})
}

func (h *SurfaceHub) RenderLevels(l domain.LevelSnapshot) {
	if h.Len() == 0 {
		return
	}
	h.broadcast(domain.UIMessage{Type: domain.UILevels, Levels: &l})
}

func (h *SurfaceHub) Notify(n domain.Notice) {
	h.broadcast(domain.UIMessage{Type: domain.UINotice, Notice: &n})
}

// For returns a surface rendering onto conn alone.
func (h *SurfaceHub) For(conn core.SignalConnection) core.UISurface {
	return connSurface{hub: h, conn: conn}
}

type connSurface struct {
	hub  *SurfaceHub
	conn core.SignalConnection
}

func (s connSurface) RenderStatus(st domain.Status) {
	s.hub.SendTo(s.conn, domain.UIMessage{Type: domain.UIStatus, Status: &st})
}

func (s connSurface) SetControlsEnabled(enabled bool) {
	s.hub.SendTo(s.conn, domain.UIMessage{Type: domain.UIControls, Enabled: &enabled})
}

func (s connSurface) SetContextInputVisible(visible bool) {
	s.hub.SendTo(s.conn, domain.UIMessage{Type: domain.UIContextInput, Visible: &visible})
}

func (s connSurface) RenderLevels(l domain.LevelSnapshot) {
	s.hub.SendTo(s.conn, domain.UIMessage{Type: domain.UILevels, Levels: &l})
}

func (s connSurface) Notify(n domain.Notice) {
	s.hub.SendTo(s.conn, domain.UIMessage{Type: domain.UINotice, Notice: &n})
}
