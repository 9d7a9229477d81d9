// Package audio provides capture devices for the local microphone.
package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FrameDuration is the length of one captured frame.
const FrameDuration = 20 * time.Millisecond

// stream pumps s16le PCM from a reader and fans frames out to subscribers.
type stream struct {
	src    io.ReadCloser
	rate   int
	paced  bool
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[int]chan core.AudioFrame
	nextID int
	closed bool

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

var _ core.CaptureStream = (*stream)(nil)

// newStream starts pumping src. Paced streams emit at most one frame per
// FrameDuration, for sources that produce data faster than real time.
func newStream(src io.ReadCloser, rate int, paced bool, driver string) *stream {
	s := &stream{
		src:    src,
		rate:   rate,
		paced:  paced,
		logger: log.With().Str("module", "adapters.audio").Str("driver", driver).Logger(),
		subs:   make(map[int]chan core.AudioFrame),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *stream) frameSamples() int {
	return s.rate * int(FrameDuration/time.Millisecond) / 1000
}

func (s *stream) pump() {
	defer close(s.done)
	defer s.closeSubscribers()

	buf := make([]byte, 2*s.frameSamples())
	var tick *time.Ticker
	if s.paced {
		tick = time.NewTicker(FrameDuration)
		defer tick.Stop()
	}
	for {
		if _, err := io.ReadFull(s.src, buf); err != nil {
			if !s.isClosed() && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Warn().Err(err).Msg("capture read")
			}
			return
		}
		frame := core.AudioFrame{
			Samples:    make([]int16, len(buf)/2),
			SampleRate: s.rate,
			Captured:   time.Now(),
		}
		for i := range frame.Samples {
			frame.Samples[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
		}
		s.fanout(frame)
		if tick != nil {
			<-tick.C
		}
	}
}

func (s *stream) fanout(f core.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

func (s *stream) Subscribe(buffer int) (<-chan core.AudioFrame, func()) {
	ch := make(chan core.AudioFrame, buffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

func (s *stream) SampleRate() int { return s.rate }

// Close releases the device and waits for the pump to exit.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.closeErr = s.src.Close()
		<-s.done
	})
	return s.closeErr
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stream) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
