package session

import (
	"context"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/dkeye/VoiceAgent/internal/metrics"
)

// SubmitContext sends text to the remote agent once per AwaitingContext episode.
// The phase flips to Active only after the publish returned without error; a send
// failure is reported as a warning and leaves the session awaiting context.
func (c *Controller) SubmitContext(ctx context.Context, text string) error {
	msg, err := domain.NewContextMessage(text)
	if err != nil {
		metrics.RecordContextSubmission("rejected")
		return err
	}
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state.Phase != domain.PhaseAwaitingContext {
		c.mu.Unlock()
		metrics.RecordContextSubmission("rejected")
		return domain.ErrNotAwaitingContext
	}
	if c.state.PendingContext != "" {
		c.mu.Unlock()
		return domain.ErrContextInFlight
	}
	c.state.PendingContext = msg.Content
	sess, attempt := c.sess, c.state.Attempt
	c.mu.Unlock()

	sendErr := sess.PublishData(ctx, payload, core.PublishOptions{Reliable: true})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Attempt != attempt || c.state.Phase != domain.PhaseAwaitingContext {
		return domain.ErrAbandoned
	}
	c.state.PendingContext = ""
	if sendErr != nil {
		serr := domain.NewSessionError(domain.KindSend, "send context", sendErr)
		c.state.LastError = serr.Error()
		metrics.RecordContextSubmission("send_error")
		c.logger.Warn().Err(sendErr).Msg("context send failed")
		c.transitionWithErrLocked(domain.PhaseAwaitingContext, serr)
		return serr
	}
	c.state.LastError = ""
	metrics.RecordContextSubmission("ok")
	c.logger.Info().Int("bytes", len(payload)).Msg("context submitted")
	c.transitionLocked(domain.PhaseActive)
	return nil
}
