package audio

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFFmpegArgs(t *testing.T) {
	args, err := ffmpegArgs("linux", "", 16000)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "pulse", "-i", "default",
		"-ac", "1", "-ar", "16000",
		"-f", "s16le", "-",
	}, args)

	args, err = ffmpegArgs("darwin", "", 16000)
	require.NoError(t, err)
	assert.Contains(t, args, "avfoundation")
	assert.Contains(t, args, ":0")

	args, err = ffmpegArgs("linux", "alsa_input.usb", 48000)
	require.NoError(t, err)
	assert.Contains(t, args, "alsa_input.usb")
	assert.Contains(t, args, "48000")

	_, err = ffmpegArgs("plan9", "", 16000)
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestAcquire_MissingBinary(t *testing.T) {
	in := NewInput(Config{Driver: DriverFFmpeg, FFmpeg: "voiceagent-no-such-ffmpeg"})
	in.goos = "linux"
	_, err := in.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestAcquire_UnknownDriver(t *testing.T) {
	_, err := NewInput(Config{Driver: "portaudio"}).Acquire(context.Background())
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestAcquire_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewInput(Config{Driver: DriverTone}).Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToneCapture(t *testing.T) {
	capture, err := NewInput(Config{Driver: DriverTone, SampleRate: 16000}).Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16000, capture.SampleRate())

	frames, cancel := capture.Subscribe(4)
	defer cancel()

	select {
	case f := <-frames:
		assert.Len(t, f.Samples, 320)
		assert.Equal(t, 16000, f.SampleRate)
		assert.Equal(t, FrameDuration, f.Duration())
		var peak int16
		for _, s := range f.Samples {
			peak = max(peak, s)
		}
		assert.Greater(t, peak, int16(1000))
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}

	require.NoError(t, capture.Close())
	require.NoError(t, capture.Close())
	for range frames {
	}
}

func TestFileCapture_Loops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.raw")
	// 100 samples: shorter than one frame, so every frame wraps the file.
	raw := make([]byte, 200)
	for i := 0; i < 100; i++ {
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(int16(i)))
	}
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	capture, err := NewInput(Config{Driver: DriverFile, Path: path}).Acquire(context.Background())
	require.NoError(t, err)
	defer capture.Close()

	frames, cancel := capture.Subscribe(2)
	defer cancel()
	select {
	case f := <-frames:
		require.Len(t, f.Samples, 320)
		assert.Equal(t, int16(0), f.Samples[0])
		assert.Equal(t, int16(99), f.Samples[99])
		assert.Equal(t, int16(0), f.Samples[100])
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}
}

func TestFileCapture_Missing(t *testing.T) {
	_, err := NewInput(Config{Driver: DriverFile, Path: filepath.Join(t.TempDir(), "nope.raw")}).Acquire(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestSubscribeAfterClose(t *testing.T) {
	capture, err := NewInput(Config{Driver: DriverTone}).Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, capture.Close())

	frames, cancel := capture.Subscribe(1)
	defer cancel()
	_, ok := <-frames
	assert.False(t, ok)
}

func TestToneSource_OddReads(t *testing.T) {
	src := newTone(440, 16000)
	a := make([]byte, 3)
	b := make([]byte, 3)
	_, _ = src.Read(a)
	_, _ = src.Read(b)
	ref := newTone(440, 16000)
	whole := make([]byte, 6)
	_, _ = ref.Read(whole)
	assert.Equal(t, whole, append(a, b...))
}
