package rtc

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateDelete
)

// PacketSink consumes RTP packets of a remote track.
type PacketSink interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// sinkEntry is one consumer attached to a tap.
type sinkEntry struct {
	sink  PacketSink
	state atomic.Int32 // Zero by default (SinkStateOk)
}

func (e *sinkEntry) State() SinkState { return SinkState(e.state.Load()) }
func (e *sinkEntry) MarkDelete()      { e.state.Store(int32(SinkStateDelete)) }

// remoteTrack reads RTP from a subscribed track, tracks its audio level and
// forwards packets to sinks. It implements core.RemoteTrack.
type remoteTrack struct {
	src   *webrtc.TrackRemote
	extID uint8

	level atomic.Uint64 // float64 bits

	mu    sync.RWMutex
	sinks map[string]*sinkEntry

	done chan struct{}
}

var _ core.RemoteTrack = (*remoteTrack)(nil)

func newRemoteTrack(src *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) *remoteTrack {
	t := &remoteTrack{
		src:   src,
		sinks: make(map[string]*sinkEntry),
		done:  make(chan struct{}),
	}
	if receiver != nil {
		for _, ext := range receiver.GetParameters().HeaderExtensions {
			if ext.URI == sdp.AudioLevelURI {
				t.extID = uint8(ext.ID)
			}
		}
	}
	return t
}

func (t *remoteTrack) ID() string { return t.src.ID() }

func (t *remoteTrack) Kind() core.TrackKind {
	if t.src.Kind() == webrtc.RTPCodecTypeVideo {
		return core.TrackKindVideo
	}
	return core.TrackKindAudio
}

func (t *remoteTrack) Level() float64 {
	return math.Float64frombits(t.level.Load())
}

// AddSink attaches a consumer under name, replacing a previous one.
func (t *remoteTrack) AddSink(name string, s PacketSink) error {
	t.mu.Lock()
	old, ok := t.sinks[name]
	t.sinks[name] = &sinkEntry{sink: s}
	t.mu.Unlock()
	if ok {
		old.MarkDelete()
		return old.sink.Close()
	}
	return nil
}

// loop reads RTP until ctx is done or the track ends.
func (t *remoteTrack) loop(ctx context.Context, logger zerolog.Logger) {
	defer close(t.done)
	defer t.closeSinks(logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("tap ctx done")
			return
		default:
		}
		pkt, _, err := t.src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("tap read RTP stopped")
			return
		}
		t.observe(pkt)
		t.forward(pkt, logger)
	}
}

// observe updates the level from the RFC 6464 header extension.
func (t *remoteTrack) observe(pkt *rtp.Packet) {
	if t.extID == 0 {
		return
	}
	raw := pkt.GetExtension(t.extID)
	if raw == nil {
		return
	}
	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(raw); err != nil {
		return
	}
	t.level.Store(math.Float64bits(levelFromDBov(ext.Level)))
}

// levelFromDBov maps -dBov (0 loudest, 127 silence) to linear amplitude.
func levelFromDBov(l uint8) float64 {
	if l >= 127 {
		return 0
	}
	return math.Pow(10, -float64(l)/20)
}

func (t *remoteTrack) forward(pkt *rtp.Packet, logger zerolog.Logger) {
	t.mu.RLock()
	snapshot := make(map[string]*sinkEntry, len(t.sinks))
	for k, v := range t.sinks {
		snapshot[k] = v
	}
	t.mu.RUnlock()

	var dirty []string
	for name, e := range snapshot {
		switch e.State() {
		case SinkStateDelete:
			dirty = append(dirty, name)
		case SinkStateOk:
			if err := e.sink.WriteRTP(pkt); err != nil {
				logger.Error().Err(err).Str("sink", name).Msg("sink write error, marking for delete")
				e.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}
	if len(dirty) > 0 {
		t.cleanupDeleted(dirty, logger)
	}
}

func (t *remoteTrack) cleanupDeleted(dirty []string, logger zerolog.Logger) {
	t.mu.Lock()
	var closing []PacketSink
	for _, name := range dirty {
		if e, ok := t.sinks[name]; ok && e.State() == SinkStateDelete {
			closing = append(closing, e.sink)
			delete(t.sinks, name)
		}
	}
	t.mu.Unlock()
	for _, s := range closing {
		if err := s.Close(); err != nil {
			logger.Warn().Err(err).Msg("close sink")
		}
	}
}

func (t *remoteTrack) closeSinks(logger zerolog.Logger) {
	t.mu.Lock()
	sinks := t.sinks
	t.sinks = make(map[string]*sinkEntry)
	t.mu.Unlock()
	for name, e := range sinks {
		if err := e.sink.Close(); err != nil {
			logger.Warn().Err(err).Str("sink", name).Msg("close sink")
		}
	}
}
