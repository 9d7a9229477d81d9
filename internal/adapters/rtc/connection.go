// Package rtc joins the remote voice agent over WebRTC with websocket signalling.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	reliableLabel = "_reliable"
	lossyLabel    = "_lossy"
)

// DefaultWebRTCConfig is used when no ICE servers are configured.
func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// newAPI builds a pion API with the default codecs and interceptors, plus the
// audio level header extension so remote levels can be read from RTP.
func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	if err := m.RegisterHeaderExtension(
		webrtc.RTPHeaderExtensionCapability{URI: sdp.AudioLevelURI},
		webrtc.RTPCodecTypeAudio,
	); err != nil {
		return nil, fmt.Errorf("register audio level extension: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir)), nil
}

// peer wraps the PeerConnection of one session: local mic track, data channels
// and the candidate buffer used until the remote answer is applied.
type peer struct {
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	mic    *webrtc.TrackLocalStaticSample
	sender *webrtc.RTPSender

	reliable   *webrtc.DataChannel
	lossy      *webrtc.DataChannel
	reliableUp chan struct{}
	lossyUp    chan struct{}

	connected chan struct{}
	failed    chan struct{}

	mu            sync.Mutex
	remoteSet     bool
	pendingRemote []webrtc.ICECandidateInit
	onICE         func(webrtc.ICECandidateInit)
	onTrack       func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

func newPeer(api *webrtc.API, cfg webrtc.Configuration, logger zerolog.Logger) (*peer, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p := &peer{
		pc:         pc,
		logger:     logger,
		reliableUp: make(chan struct{}),
		lossyUp:    make(chan struct{}),
		connected:  make(chan struct{}),
		failed:     make(chan struct{}),
	}
	if err := p.setup(); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return p, nil
}

func (p *peer) setup() error {
	mic, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: pcmuRate, Channels: 1},
		"microphone", "voiceagent",
	)
	if err != nil {
		return fmt.Errorf("new mic track: %w", err)
	}
	sender, err := p.pc.AddTrack(mic)
	if err != nil {
		return fmt.Errorf("add mic track: %w", err)
	}
	p.mic, p.sender = mic, sender
	go p.drainRTCP()

	ordered := true
	p.reliable, err = p.pc.CreateDataChannel(reliableLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("create reliable channel: %w", err)
	}
	unordered := false
	var retransmits uint16
	p.lossy, err = p.pc.CreateDataChannel(lossyLabel, &webrtc.DataChannelInit{Ordered: &unordered, MaxRetransmits: &retransmits})
	if err != nil {
		return fmt.Errorf("create lossy channel: %w", err)
	}
	p.reliable.OnOpen(closer(p.reliableUp))
	p.lossy.OnOpen(closer(p.lossyUp))

	connected, failed := closer(p.connected), closer(p.failed)
	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			connected()
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			failed()
		}
	})
	p.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		p.mu.Lock()
		fn := p.onICE
		p.mu.Unlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})
	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		p.mu.Lock()
		fn := p.onTrack
		p.mu.Unlock()
		if fn != nil {
			fn(track, receiver)
		}
	})
	return nil
}

// drainRTCP reads RTCP for the mic sender so interceptors keep working.
func (p *peer) drainRTCP() {
	buf := make([]byte, 1500)
	for {
		if _, _, err := p.sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *peer) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

// createOffer sets and returns the local offer.
func (p *peer) createOffer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return offer, nil
}

// applyAnswer sets the remote answer and flushes buffered candidates.
func (p *peer) applyAnswer(sdpText string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdpText}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	p.mu.Lock()
	p.remoteSet = true
	pending := p.pendingRemote
	p.pendingRemote = nil
	p.mu.Unlock()
	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.logger.Warn().Err(err).Msg("add buffered ice candidate")
		}
	}
	return nil
}

// AddICECandidate applies ci or buffers it until the answer arrives.
func (p *peer) AddICECandidate(ci webrtc.ICECandidateInit) error {
	p.mu.Lock()
	if !p.remoteSet {
		p.pendingRemote = append(p.pendingRemote, ci)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(ci)
}

// waitConnected blocks until the peer connection is up.
func (p *peer) waitConnected(ctx context.Context) error {
	select {
	case <-p.connected:
		return nil
	case <-p.failed:
		return ErrPeerFailed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// channel returns the data channel for reliable or lossy sends and its open signal.
func (p *peer) channel(reliable bool) (*webrtc.DataChannel, <-chan struct{}) {
	if reliable {
		return p.reliable, p.reliableUp
	}
	return p.lossy, p.lossyUp
}

func (p *peer) Close() error {
	if err := p.pc.Close(); err != nil {
		p.logger.Error().Err(err).Msg("close error")
		return err
	}
	p.logger.Info().Msg("closed")
	return nil
}

func closer(ch chan struct{}) func() {
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}
