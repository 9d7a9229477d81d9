package session

import (
	"context"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

// Stop tears the session down and returns once the controller is idle.
// A start in flight is canceled and settles itself; teardown errors are logged
// and never keep the controller out of Idle.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state.Phase {
	case domain.PhaseIdle:
		c.mu.Unlock()
		return nil

	case domain.PhaseConnecting:
		c.transitionLocked(domain.PhaseDisconnecting)
		cancel, done := c.cancel, c.settled
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return wait(ctx, done)

	case domain.PhaseDisconnecting, domain.PhaseFailed:
		done := c.settled
		c.mu.Unlock()
		return wait(ctx, done)
	}

	sess, capture := c.sess, c.capture
	done := make(chan struct{})
	c.settled = done
	c.state.PendingContext = ""
	c.transitionLocked(domain.PhaseDisconnecting)
	c.mu.Unlock()
	defer close(done)

	if err := sess.Disconnect(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("disconnect failed, forcing idle")
	}
	if c.analyser != nil {
		c.analyser.Detach()
	}
	if capture != nil {
		if err := capture.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("release capture")
		}
	}

	c.mu.Lock()
	c.sess = nil
	c.capture = nil
	c.state.LastError = ""
	c.transitionLocked(domain.PhaseIdle)
	c.mu.Unlock()
	return nil
}

func wait(ctx context.Context, done <-chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
