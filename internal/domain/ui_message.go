package domain

// UI message types sent to a page.
const (
	UIStatus       = "status"
	UIControls     = "controls"
	UIContextInput = "context_input"
	UILevels       = "levels"
	UINotice       = "notice"
	UIState        = "state"
	UIPong         = "pong"
	UIError        = "error"
)

// UIMessage is one server to page message. Only the field matching Type is set.
type UIMessage struct {
	Type    string         `json:"type"`
	Status  *Status        `json:"status,omitempty"`
	Enabled *bool          `json:"enabled,omitempty"`
	Visible *bool          `json:"visible,omitempty"`
	Levels  *LevelSnapshot `json:"levels,omitempty"`
	Notice  *Notice        `json:"notice,omitempty"`
	State   *SessionState  `json:"state,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// UIAction is one page to server message.
type UIAction struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// UI action types.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionToggle  = "toggle"
	ActionContext = "submit_context"
	ActionState   = "state"
	ActionPing    = "ping"
)
