package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

var ErrSessionClosed = errors.New("media session closed")

// Session is a joined media session. It implements core.MediaSession.
type Session struct {
	peer   *peer
	signal *signalClient
	logger zerolog.Logger

	capture   core.CaptureStream
	recordDir string
	subscribe bool

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	micStop func()
	micDone chan struct{}
	onTrack func(core.RemoteTrack)
	tracks  []*remoteTrack

	closeOnce sync.Once
	closeErr  error
}

var _ core.MediaSession = (*Session)(nil)

func newSession(p *peer, sig *signalClient, opts core.ConnectOptions, recordDir string, logger zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		peer:      p,
		signal:    sig,
		logger:    logger,
		capture:   opts.Microphone,
		recordDir: recordDir,
		subscribe: opts.AutoSubscribe,
		ctx:       ctx,
		cancel:    cancel,
	}
	p.OnTrack(s.handleTrack)
	return s
}

// SetMicrophoneEnabled starts or stops pumping the capture into the mic track.
func (s *Session) SetMicrophoneEnabled(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	if !enabled {
		s.stopMicLocked()
		return nil
	}
	if s.micStop != nil {
		return nil
	}
	if s.capture == nil {
		return errors.New("no microphone capture to publish")
	}
	frames, cancel := s.capture.Subscribe(16)
	done := make(chan struct{})
	s.micStop, s.micDone = cancel, done
	go s.pumpMic(frames, done)
	return nil
}

func (s *Session) stopMicLocked() {
	if s.micStop == nil {
		return
	}
	s.micStop()
	<-s.micDone
	s.micStop, s.micDone = nil, nil
}

func (s *Session) pumpMic(frames <-chan core.AudioFrame, done chan struct{}) {
	defer close(done)
	var pcm []int16
	var ulaw []byte
	for f := range frames {
		pcm = downsample(pcm, f.Samples, f.SampleRate)
		ulaw = encodeMuLaw(ulaw, pcm)
		sample := media.Sample{Data: append([]byte(nil), ulaw...), Duration: f.Duration()}
		if err := s.peer.mic.WriteSample(sample); err != nil {
			s.logger.Debug().Err(err).Msg("write mic sample")
		}
	}
}

// PublishData waits for the data channel to open and sends data on it.
func (s *Session) PublishData(ctx context.Context, data []byte, opts core.PublishOptions) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	dc, up := s.peer.channel(opts.Reliable)
	select {
	case <-up:
	case <-s.ctx.Done():
		return ErrSessionClosed
	case <-ctx.Done():
		return fmt.Errorf("wait data channel %s: %w", dc.Label(), ctx.Err())
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("send on %s: %w", dc.Label(), err)
	}
	return nil
}

// OnTrackSubscribed registers fn for remote tracks. Tracks that arrived before
// the callback was set are replayed to it.
func (s *Session) OnTrackSubscribed(fn func(core.RemoteTrack)) {
	s.mu.Lock()
	s.onTrack = fn
	early := append([]*remoteTrack(nil), s.tracks...)
	s.mu.Unlock()
	if fn == nil {
		return
	}
	for _, rt := range early {
		fn(rt)
	}
}

func (s *Session) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	if !s.subscribe || s.ctx.Err() != nil {
		return
	}
	rt := newRemoteTrack(track, receiver)
	logger := s.logger.With().Str("track_id", track.ID()).Logger()
	if s.recordDir != "" && rt.Kind() == core.TrackKindAudio {
		w, path, err := newRecorder(s.recordDir, track.Codec())
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("recording disabled")
		case w != nil:
			_ = rt.AddSink(recorderSink, w)
			logger.Info().Str("path", path).Msg("recording remote track")
		}
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		rt.closeSinks(logger)
		return
	}
	s.tracks = append(s.tracks, rt)
	fn := s.onTrack
	s.mu.Unlock()

	go rt.loop(s.ctx, logger)
	if fn != nil {
		fn(rt)
	}
}

// Disconnect leaves the session. It is safe to call more than once.
func (s *Session) Disconnect(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopMicLocked()
		s.cancel()
		tracks := s.tracks
		s.tracks = nil
		s.mu.Unlock()

		s.closeErr = errors.Join(s.signal.Close(), s.peer.Close())
		for _, t := range tracks {
			select {
			case <-t.done:
			case <-ctx.Done():
				s.logger.Warn().Msg("remote tap did not stop in time")
			}
		}
		s.logger.Info().Msg("left media session")
	})
	return s.closeErr
}
