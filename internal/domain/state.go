package domain

// SessionState is a read-only copy of a controller's state.
// The media session handle itself never leaves the controller; HasSession mirrors it.
type SessionState struct {
	Phase          Phase  `json:"phase"`
	HasSession     bool   `json:"has_session"`
	PendingContext string `json:"pending_context,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	Attempt        uint64 `json:"attempt"`
}
