package core

import (
	"context"
	"time"
)

// AudioFrame is a chunk of mono signed 16-bit PCM.
type AudioFrame struct {
	Samples    []int16
	SampleRate int
	Captured   time.Time
}

// Duration returns the play time covered by the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// CaptureStream is an acquired capture device.
// Close releases the device; it must be called on every exit path.
type CaptureStream interface {
	// Subscribe returns a frame channel and a cancel func.
	// Frames are dropped for a subscriber whose buffer is full.
	Subscribe(buffer int) (<-chan AudioFrame, func())
	SampleRate() int
	Close() error
}

// AudioInput acquires the local capture device.
type AudioInput interface {
	Acquire(ctx context.Context) (CaptureStream, error)
}

// AudioAnalyser consumes a capture stream for visualization.
type AudioAnalyser interface {
	Attach(CaptureStream)
	Detach()
}
