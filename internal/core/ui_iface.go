package core

import "github.com/dkeye/VoiceAgent/internal/domain"

// UISurface is the presentation side of a session.
// Implementations must not block; they are called from state transitions.
type UISurface interface {
	RenderStatus(domain.Status)
	SetControlsEnabled(bool)
	SetContextInputVisible(bool)
	RenderLevels(domain.LevelSnapshot)
	Notify(domain.Notice)
}
