package domain

// Indicator is the coarse state shown next to the status text.
type Indicator string

const (
	IndicatorIdle       Indicator = "idle"
	IndicatorConnecting Indicator = "connecting"
	IndicatorActive     Indicator = "active"
	IndicatorError      Indicator = "error"
)

// Status is what a surface renders as the session status line.
type Status struct {
	Text      string    `json:"text"`
	Indicator Indicator `json:"indicator"`
}

type NoticeLevel string

const (
	// NoticeBlocking must be acknowledged by the user (connect failures).
	NoticeBlocking NoticeLevel = "blocking"
	NoticeWarning  NoticeLevel = "warning"
)

type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// LevelBins is the number of waveform points and spectrum bins in a snapshot.
const LevelBins = 128

// LevelSnapshot is one visualizer frame. Values are normalized:
// Waveform in [-1,1], Spectrum, RMS and Remote in [0,1].
type LevelSnapshot struct {
	Waveform []float64 `json:"waveform"`
	Spectrum []float64 `json:"spectrum,omitempty"`
	RMS      float64   `json:"rms"`
	Remote   float64   `json:"remote"`
	Idle     bool      `json:"idle"`
}
