package session

import (
	"context"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/dkeye/VoiceAgent/internal/metrics"
)

// attemptResources are owned by one start attempt until they are committed to the controller.
type attemptResources struct {
	capture   core.CaptureStream
	analysing bool
	session   core.MediaSession
}

// Start joins a new session. It is a no-op returning domain.ErrNotIdle unless the
// controller is idle, so concurrent calls reach the media service at most once.
// Start blocks until the session is joined, failed, or abandoned by Stop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase != domain.PhaseIdle {
		phase := c.state.Phase
		c.mu.Unlock()
		c.logger.Debug().Str("phase", string(phase)).Msg("start ignored")
		return domain.ErrNotIdle
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.state.Attempt++
	c.state.LastError = ""
	c.state.PendingContext = ""
	c.cancel = cancel
	c.settled = done
	attempt := c.state.Attempt
	c.transitionLocked(domain.PhaseConnecting)
	c.mu.Unlock()

	defer close(done)
	defer cancel()
	return c.join(attemptCtx, attempt)
}

func (c *Controller) join(ctx context.Context, attempt uint64) error {
	res := &attemptResources{}

	capture, err := c.input.Acquire(ctx)
	if err != nil {
		return c.fail(attempt, res, domain.NewSessionError(domain.KindMicrophone, "acquire microphone", err))
	}
	res.capture = capture
	if c.analyser != nil {
		c.analyser.Attach(capture)
		res.analysing = true
	}
	if !c.current(attempt) {
		return c.abandon(attempt, res)
	}

	token, err := c.tokens.FetchToken(ctx)
	if err != nil {
		return c.fail(attempt, res, domain.NewSessionError(domain.KindTokenFetch, "fetch token", err))
	}
	if !c.current(attempt) {
		return c.abandon(attempt, res)
	}

	sess, err := c.media.Connect(ctx, c.opts.MediaURL, token, core.ConnectOptions{
		AutoSubscribe: c.opts.AutoSubscribe,
		Microphone:    capture,
	})
	if err != nil {
		return c.fail(attempt, res, domain.NewSessionError(domain.KindJoin, "join session", err))
	}
	res.session = sess
	sess.OnTrackSubscribed(func(track core.RemoteTrack) { c.onRemoteTrack(attempt, track) })
	if !c.current(attempt) {
		return c.abandon(attempt, res)
	}

	if err := sess.SetMicrophoneEnabled(ctx, true); err != nil {
		return c.fail(attempt, res, domain.NewSessionError(domain.KindMicrophone, "enable microphone", err))
	}

	c.mu.Lock()
	if !c.currentLocked(attempt) {
		c.mu.Unlock()
		return c.abandon(attempt, res)
	}
	c.sess = sess
	c.capture = capture
	c.cancel = nil
	next := domain.PhaseActive
	if c.opts.ContextFlow {
		next = domain.PhaseAwaitingContext
	}
	c.transitionLocked(next)
	c.mu.Unlock()
	return nil
}

// fail moves a current attempt through Failed to Idle, releasing what it acquired
// before the state settles.
func (c *Controller) fail(attempt uint64, res *attemptResources, serr *domain.SessionError) error {
	c.mu.Lock()
	if !c.currentLocked(attempt) {
		c.mu.Unlock()
		return c.abandon(attempt, res)
	}
	c.state.LastError = serr.Error()
	c.transitionWithErrLocked(domain.PhaseFailed, serr)
	c.mu.Unlock()

	metrics.RecordFailure(string(serr.Kind))
	c.logger.Error().Err(serr.Err).Str("kind", string(serr.Kind)).Str("op", serr.Op).Msg("start failed")
	c.release(res)

	c.mu.Lock()
	c.cancel = nil
	c.transitionLocked(domain.PhaseIdle)
	c.mu.Unlock()
	return serr
}

// abandon releases a stale attempt's resources and settles the stop that overtook it.
func (c *Controller) abandon(attempt uint64, res *attemptResources) error {
	c.logger.Info().Uint64("attempt", attempt).Msg("start abandoned")
	c.release(res)

	c.mu.Lock()
	if c.state.Attempt == attempt && c.state.Phase == domain.PhaseDisconnecting {
		c.cancel = nil
		c.transitionLocked(domain.PhaseIdle)
	}
	c.mu.Unlock()
	return domain.ErrAbandoned
}

// release tears down in reverse acquisition order. Errors are logged, never returned.
func (c *Controller) release(res *attemptResources) {
	if res.session != nil {
		// The attempt context may already be canceled; teardown gets its own.
		if err := res.session.Disconnect(context.Background()); err != nil {
			c.logger.Warn().Err(err).Msg("disconnect half-open session")
		}
		res.session = nil
	}
	if res.analysing {
		c.analyser.Detach()
		res.analysing = false
	}
	if res.capture != nil {
		if err := res.capture.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("release capture")
		}
		res.capture = nil
	}
}
