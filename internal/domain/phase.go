package domain

// Phase is the lifecycle position of a voice session.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseConnecting      Phase = "connecting"
	PhaseAwaitingContext Phase = "awaiting_context"
	PhaseActive          Phase = "active"
	PhaseDisconnecting   Phase = "disconnecting"
	PhaseFailed          Phase = "failed"
)

// Phases lists every phase, in lifecycle order.
var Phases = []Phase{
	PhaseIdle,
	PhaseConnecting,
	PhaseAwaitingContext,
	PhaseActive,
	PhaseDisconnecting,
	PhaseFailed,
}

func (p Phase) String() string { return string(p) }

// Live reports whether audio is flowing to the remote agent.
func (p Phase) Live() bool {
	return p == PhaseAwaitingContext || p == PhaseActive
}

// Busy reports whether a transition is in flight and user controls should be locked.
func (p Phase) Busy() bool {
	return p == PhaseConnecting || p == PhaseDisconnecting || p == PhaseFailed
}
