package app

import "github.com/dkeye/VoiceAgent/internal/core"

// FrameClass groups UI frames by how much a lost frame matters.
type FrameClass string

const (
	// ClassState frames carry status, controls, notices and snapshots.
	ClassState FrameClass = "state"
	// ClassLevels frames carry visualizer data; the next one supersedes them.
	ClassLevels FrameClass = "levels"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickConn
	DropFrame
)

type Policy interface {
	OnBackPressure(sid core.SessionID, class FrameClass) BackpressureAction
}

// SimplePolicy drops level frames and disconnects pages that miss state frames,
// so they reconnect and resync.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ core.SessionID, class FrameClass) BackpressureAction {
	if class == ClassLevels {
		return DropFrame
	}
	return KickConn
}
