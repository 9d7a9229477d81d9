// Package session implements the voice session lifecycle controller.
package session

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/dkeye/VoiceAgent/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options parametrizes a controller. Page variants differ only here and in their surface.
type Options struct {
	ID            core.SessionID
	MediaURL      string
	AutoSubscribe bool
	// ContextFlow inserts the AwaitingContext phase between join and Active.
	ContextFlow bool
}

// StateChange is delivered to listeners for every transition.
// From == To marks an in-place update such as a failed context send.
type StateChange struct {
	From  domain.Phase
	To    domain.Phase
	State domain.SessionState
	Err   *domain.SessionError
}

// Listener observes a controller. Callbacks run under the controller lock in
// transition order: they must not block or call back into the controller.
type Listener interface {
	OnStateChanged(StateChange)
	OnRemoteTrack(core.RemoteTrack)
}

// Controller owns exactly one voice session at a time.
type Controller struct {
	tokens   core.TokenService
	media    core.MediaConnector
	input    core.AudioInput
	analyser core.AudioAnalyser
	opts     Options
	logger   zerolog.Logger

	mu      sync.Mutex
	state   domain.SessionState
	sess    core.MediaSession
	capture core.CaptureStream
	cancel  context.CancelFunc
	// settled is closed when the in-flight start or stop finishes.
	settled chan struct{}

	listeners map[int]Listener
	nextID    int

	closed  bool
	retired bool
}

// NewController builds an idle controller. analyser may be nil.
func NewController(
	tokens core.TokenService,
	media core.MediaConnector,
	input core.AudioInput,
	analyser core.AudioAnalyser,
	opts Options,
) *Controller {
	c := &Controller{
		tokens:    tokens,
		media:     media,
		input:     input,
		analyser:  analyser,
		opts:      opts,
		logger:    log.With().Str("module", "app.session").Str("sid", string(opts.ID)).Logger(),
		state:     domain.SessionState{Phase: domain.PhaseIdle},
		listeners: make(map[int]Listener),
	}
	metrics.SessionCreated(string(domain.PhaseIdle))
	return c
}

// ID returns the session id the controller was built for.
func (c *Controller) ID() core.SessionID { return c.opts.ID }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers l and returns a func removing it.
func (c *Controller) Subscribe(l Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Toggle stops a live session and starts an idle one.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.Snapshot().Phase.Live() {
		return c.Stop(ctx)
	}
	return c.Start(ctx)
}

// Close stops the session and drops the controller from the phase gauges.
// When ctx ends before a start in flight settles, the gauges are released by
// the attempt itself once it reaches Idle.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	err := c.Stop(ctx)
	c.mu.Lock()
	c.listeners = make(map[int]Listener)
	c.retireLocked()
	c.mu.Unlock()
	return err
}

// retireLocked removes a closed controller from the gauges once it is idle.
func (c *Controller) retireLocked() {
	if c.closed && !c.retired && c.state.Phase == domain.PhaseIdle {
		c.retired = true
		metrics.SessionRemoved(string(domain.PhaseIdle))
	}
}

func (c *Controller) transitionLocked(to domain.Phase) {
	c.transitionWithErrLocked(to, nil)
}

func (c *Controller) transitionWithErrLocked(to domain.Phase, serr *domain.SessionError) {
	from := c.state.Phase
	c.state.Phase = to
	c.state.HasSession = c.sess != nil
	if from != to {
		if !c.retired {
			metrics.RecordTransition(string(from), string(to))
		}
		c.logger.Info().Str("from", string(from)).Str("to", string(to)).Uint64("attempt", c.state.Attempt).Msg("phase")
		c.retireLocked()
	}
	ch := StateChange{From: from, To: to, State: c.state, Err: serr}
	for _, l := range c.listeners {
		l.OnStateChanged(ch)
	}
}

// currentLocked reports whether the start continuation of attempt is still wanted.
func (c *Controller) currentLocked(attempt uint64) bool {
	return c.state.Attempt == attempt && c.state.Phase == domain.PhaseConnecting
}

func (c *Controller) current(attempt uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked(attempt)
}

func (c *Controller) onRemoteTrack(attempt uint64, track core.RemoteTrack) {
	if track == nil || track.Kind() != core.TrackKindAudio {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Attempt != attempt {
		return
	}
	switch c.state.Phase {
	case domain.PhaseConnecting, domain.PhaseAwaitingContext, domain.PhaseActive:
	default:
		return
	}
	c.logger.Info().Str("track_id", track.ID()).Msg("remote audio track attached")
	for _, l := range c.listeners {
		l.OnRemoteTrack(track)
	}
}
