package session

import (
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

// StatusLabels are the texts a page variant shows per phase.
type StatusLabels struct {
	Ready           string
	Connecting      string
	AwaitingContext string
	Active          string
	Disconnecting   string
	Failed          string
	// NoticePrefix is prepended to blocking failure notices.
	NoticePrefix string
}

func DefaultLabels() StatusLabels {
	return StatusLabels{
		Ready:           "Ready to Connect",
		Connecting:      "Connecting...",
		AwaitingContext: "Connected - Awaiting Context",
		Active:          "Connected - Listening",
		Disconnecting:   "Disconnecting...",
		Failed:          "Connection Failed",
		NoticePrefix:    "Could not connect: ",
	}
}

// Project maps a state to the status line.
// An idle state that still carries an error keeps showing the failure.
func Project(s domain.SessionState, labels StatusLabels) domain.Status {
	switch s.Phase {
	case domain.PhaseConnecting:
		return domain.Status{Text: labels.Connecting, Indicator: domain.IndicatorConnecting}
	case domain.PhaseAwaitingContext:
		return domain.Status{Text: labels.AwaitingContext, Indicator: domain.IndicatorActive}
	case domain.PhaseActive:
		return domain.Status{Text: labels.Active, Indicator: domain.IndicatorActive}
	case domain.PhaseDisconnecting:
		return domain.Status{Text: labels.Disconnecting, Indicator: domain.IndicatorConnecting}
	case domain.PhaseFailed:
		return domain.Status{Text: labels.Failed, Indicator: domain.IndicatorError}
	}
	if s.LastError != "" {
		return domain.Status{Text: labels.Failed, Indicator: domain.IndicatorError}
	}
	return domain.Status{Text: labels.Ready, Indicator: domain.IndicatorIdle}
}

// StatusProjector renders controller transitions onto a surface.
type StatusProjector struct {
	surface core.UISurface
	labels  StatusLabels
}

func NewStatusProjector(surface core.UISurface, labels StatusLabels) *StatusProjector {
	return &StatusProjector{surface: surface, labels: labels}
}

// Sync renders a full state, used when a surface attaches mid-session.
func (p *StatusProjector) Sync(s domain.SessionState) {
	p.surface.RenderStatus(Project(s, p.labels))
	p.surface.SetControlsEnabled(!s.Phase.Busy())
	p.surface.SetContextInputVisible(s.Phase == domain.PhaseAwaitingContext && s.PendingContext == "")
}

func (p *StatusProjector) OnStateChanged(ch StateChange) {
	if ch.From != ch.To {
		p.Sync(ch.State)
	}
	if ch.Err == nil {
		return
	}
	if ch.Err.Kind.Fatal() {
		p.surface.Notify(domain.Notice{Level: domain.NoticeBlocking, Message: p.labels.NoticePrefix + ch.Err.Error()})
		return
	}
	p.surface.Notify(domain.Notice{Level: domain.NoticeWarning, Message: ch.Err.Error()})
}

func (p *StatusProjector) OnRemoteTrack(core.RemoteTrack) {}
