// Package visual turns captured audio and remote track levels into visualizer frames.
package visual

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// WindowSize is the analysis window in samples.
	WindowSize = 2 * domain.LevelBins

	minDecibels = -100.0
	maxDecibels = -30.0
	frameBuffer = 32
)

// Analyser keeps the latest capture window of an attached stream.
// It implements core.AudioAnalyser.
type Analyser struct {
	mu       sync.Mutex
	window   [WindowSize]float64
	filled   int
	attached bool

	cancel func()
	done   chan struct{}

	hann [WindowSize]float64

	// fft keeps work buffers and is guarded by fftMu.
	fftMu  sync.Mutex
	fft    *fourier.FFT
	coeffs []complex128
	seq    []float64
}

func NewAnalyser() *Analyser {
	a := &Analyser{
		fft:    fourier.NewFFT(WindowSize),
		coeffs: make([]complex128, WindowSize/2+1),
		seq:    make([]float64, WindowSize),
	}
	for i := range a.hann {
		a.hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(WindowSize-1)))
	}
	return a
}

// Attach starts consuming s. A previous stream is detached first.
func (a *Analyser) Attach(s core.CaptureStream) {
	a.Detach()
	frames, cancel := s.Subscribe(frameBuffer)
	done := make(chan struct{})

	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.attached = true
	a.filled = 0
	a.window = [WindowSize]float64{}
	a.mu.Unlock()

	go func() {
		defer close(done)
		for f := range frames {
			a.push(f.Samples)
		}
	}()
}

// Detach stops consuming and clears the window. It waits for the reader to exit.
func (a *Analyser) Detach() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.attached = false
	a.filled = 0
	a.window = [WindowSize]float64{}
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (a *Analyser) push(samples []int16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.attached {
		return
	}
	if len(samples) >= WindowSize {
		samples = samples[len(samples)-WindowSize:]
	}
	n := len(samples)
	copy(a.window[:], a.window[n:])
	for i, s := range samples {
		a.window[WindowSize-n+i] = float64(s) / 32768
	}
	a.filled = min(a.filled+n, WindowSize)
}

// Snapshot computes a frame from the current window.
// Without an attached stream it returns the idle flat line.
func (a *Analyser) Snapshot() domain.LevelSnapshot {
	a.mu.Lock()
	attached := a.attached
	w := a.window
	a.mu.Unlock()
	if !attached {
		return IdleSnapshot()
	}

	snap := domain.LevelSnapshot{
		Waveform: make([]float64, domain.LevelBins),
		Spectrum: make([]float64, domain.LevelBins),
	}
	copy(snap.Waveform, w[WindowSize-domain.LevelBins:])

	var sum float64
	for _, v := range w {
		sum += v * v
	}
	snap.RMS = math.Sqrt(sum / WindowSize)

	a.fftMu.Lock()
	for n, v := range w {
		a.seq[n] = v * a.hann[n]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.seq)
	for k := range snap.Spectrum {
		snap.Spectrum[k] = scaleDecibels(cmplx.Abs(a.coeffs[k]) / WindowSize)
	}
	a.fftMu.Unlock()
	return snap
}

func scaleDecibels(mag float64) float64 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := (db - minDecibels) / (maxDecibels - minDecibels)
	return math.Max(0, math.Min(1, v))
}

// IdleSnapshot is the flat line shown when no session is live.
func IdleSnapshot() domain.LevelSnapshot {
	return domain.LevelSnapshot{
		Waveform: make([]float64, domain.LevelBins),
		Idle:     true,
	}
}
