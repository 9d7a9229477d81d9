package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// ffmpegArgs builds the capture command line for goos.
// Output is raw mono s16le at rate on stdout.
func ffmpegArgs(goos, device string, rate int) ([]string, error) {
	var format string
	switch goos {
	case "darwin":
		format = "avfoundation"
		if device == "" {
			device = ":0"
		}
	case "linux":
		format = "pulse"
		if device == "" {
			device = "default"
		}
	default:
		return nil, fmt.Errorf("%w: microphone capture is not implemented for %s", ErrDeviceUnavailable, goos)
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", device,
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "s16le", "-",
	}, nil
}

// ffmpegSource reads PCM from an ffmpeg child process.
type ffmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func startFFmpeg(binary string, args []string) (*ffmpegSource, error) {
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%w: %s is required for microphone capture", ErrDeviceUnavailable, binary)
	}
	cmd := exec.Command(binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg capture: %w", err)
	}
	return &ffmpegSource{cmd: cmd, stdout: stdout}, nil
}

func (f *ffmpegSource) Read(p []byte) (int, error) { return f.stdout.Read(p) }

func (f *ffmpegSource) Close() error {
	if f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
		_ = f.cmd.Wait()
	}
	return nil
}

// loopSource replays a raw PCM file forever.
type loopSource struct {
	f *os.File
}

func openLoop(path string) (*loopSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.Size() < 2 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s holds no samples", ErrDeviceUnavailable, path)
	}
	return &loopSource{f: f}, nil
}

func (l *loopSource) Read(p []byte) (int, error) {
	n, err := l.f.Read(p)
	if errors.Is(err, io.EOF) {
		if _, serr := l.f.Seek(0, io.SeekStart); serr != nil {
			return n, serr
		}
		if n > 0 {
			return n, nil
		}
		return l.f.Read(p)
	}
	return n, err
}

func (l *loopSource) Close() error { return l.f.Close() }

// toneSource synthesizes a sine wave.
type toneSource struct {
	mu     sync.Mutex
	step   float64
	phase  float64
	amp    float64
	closed bool
	// odd holds the high byte of a sample split across reads.
	odd    byte
	hasOdd bool
}

func newTone(hz float64, rate int) *toneSource {
	return &toneSource{step: 2 * math.Pi * hz / float64(rate), amp: 0.3 * math.MaxInt16}
}

func (t *toneSource) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.EOF
	}
	n := 0
	if t.hasOdd && len(p) > 0 {
		p[0] = t.odd
		t.hasOdd = false
		n = 1
	}
	var b [2]byte
	for n < len(p) {
		binary.LittleEndian.PutUint16(b[:], uint16(int16(t.amp*math.Sin(t.phase))))
		t.phase = math.Mod(t.phase+t.step, 2*math.Pi)
		p[n] = b[0]
		n++
		if n == len(p) {
			t.odd, t.hasOdd = b[1], true
			break
		}
		p[n] = b[1]
		n++
	}
	return n, nil
}

func (t *toneSource) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
