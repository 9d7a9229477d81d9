package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/rs/zerolog/log"
)

var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrUnknownDriver     = errors.New("unknown capture driver")
)

const (
	DriverFFmpeg = "ffmpeg"
	DriverFile   = "file"
	DriverTone   = "tone"
)

// Config selects and tunes the capture driver.
type Config struct {
	Driver     string  `mapstructure:"driver"`
	Device     string  `mapstructure:"device"`
	Path       string  `mapstructure:"path"`
	SampleRate int     `mapstructure:"sample_rate"`
	ToneHz     float64 `mapstructure:"tone_hz"`
	FFmpeg     string  `mapstructure:"ffmpeg"`
}

// Input opens a fresh capture per Acquire. It implements core.AudioInput.
type Input struct {
	cfg Config
	// goos is replaceable in tests.
	goos string
}

func NewInput(cfg Config) *Input {
	if cfg.Driver == "" {
		cfg.Driver = DriverFFmpeg
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.ToneHz <= 0 {
		cfg.ToneHz = 440
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	return &Input{cfg: cfg, goos: runtime.GOOS}
}

func (in *Input) Acquire(ctx context.Context) (core.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := in.cfg.SampleRate
	switch in.cfg.Driver {
	case DriverFFmpeg:
		args, err := ffmpegArgs(in.goos, in.cfg.Device, rate)
		if err != nil {
			return nil, err
		}
		src, err := startFFmpeg(in.cfg.FFmpeg, args)
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "adapters.audio").Str("device", in.cfg.Device).Int("rate", rate).Msg("ffmpeg capture started")
		return newStream(src, rate, false, DriverFFmpeg), nil

	case DriverFile:
		src, err := openLoop(in.cfg.Path)
		if err != nil {
			return nil, err
		}
		return newStream(src, rate, true, DriverFile), nil

	case DriverTone:
		return newStream(newTone(in.cfg.ToneHz, rate), rate, true, DriverTone), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, in.cfg.Driver)
}
