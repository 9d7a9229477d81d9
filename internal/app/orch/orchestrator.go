package orch

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceAgent/internal/app"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/app/visual"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator owns one session controller per client and routes page
// actions to it.
type Orchestrator struct {
	Registry *app.Registry
	Policy   app.Policy
	Limiter  *app.ActionLimiter

	Tokens core.TokenService
	Media  core.MediaConnector
	Input  core.AudioInput

	// Session is the template for new controllers; ID is set per client.
	Session session.Options
	Labels  session.StatusLabels
	Visual  visual.Config
}

func (o *Orchestrator) entry(sid core.SessionID) *app.Entry {
	e, _ := o.Registry.GetOrCreate(sid, func() *app.Entry {
		opts := o.Session
		opts.ID = sid
		analyser := visual.NewAnalyser()
		ctl := session.NewController(o.Tokens, o.Media, o.Input, analyser, opts)
		hub := app.NewSurfaceHub(sid, o.Policy)
		levels := visual.NewProjector(analyser, hub, o.Visual)

		ctx, cancel := context.WithCancel(context.Background())
		go levels.Run(ctx)
		return &app.Entry{
			Controller: ctl,
			Hub:        hub,
			Cancel:     cancel,
			Unsubscribe: []func(){
				ctl.Subscribe(session.NewStatusProjector(hub, o.Labels)),
				ctl.Subscribe(levels),
			},
		}
	})
	return e
}

func (o *Orchestrator) allow(sid core.SessionID) error {
	if o.Limiter != nil && !o.Limiter.Allow(sid) {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("session action rate limited")
		return domain.ErrRateLimited
	}
	return nil
}

// Start joins a session for sid. The join outlives the caller's cancellation;
// only Stop aborts it.
func (o *Orchestrator) Start(ctx context.Context, sid core.SessionID) error {
	if err := o.allow(sid); err != nil {
		return err
	}
	return o.entry(sid).Controller.Start(context.WithoutCancel(ctx))
}

// Stop is never rate limited.
func (o *Orchestrator) Stop(ctx context.Context, sid core.SessionID) error {
	e, ok := o.Registry.Get(sid)
	if !ok {
		return nil
	}
	return e.Controller.Stop(ctx)
}

func (o *Orchestrator) Toggle(ctx context.Context, sid core.SessionID) error {
	if err := o.allow(sid); err != nil {
		return err
	}
	return o.entry(sid).Controller.Toggle(context.WithoutCancel(ctx))
}

func (o *Orchestrator) SubmitContext(ctx context.Context, sid core.SessionID, text string) error {
	if err := o.allow(sid); err != nil {
		return err
	}
	e, ok := o.Registry.Get(sid)
	if !ok {
		return domain.ErrNotAwaitingContext
	}
	return e.Controller.SubmitContext(ctx, text)
}

// Snapshot returns the state of sid; clients without a session are idle.
func (o *Orchestrator) Snapshot(sid core.SessionID) domain.SessionState {
	if e, ok := o.Registry.Get(sid); ok {
		return e.Controller.Snapshot()
	}
	return domain.SessionState{Phase: domain.PhaseIdle}
}

// BindSurface attaches a page connection to sid and brings it up to date.
func (o *Orchestrator) BindSurface(sid core.SessionID, conn core.SignalConnection) {
	e := o.entry(sid)
	e.Hub.Attach(conn)
	o.Sync(sid, conn)
}

// Sync sends the full current state to one page connection.
func (o *Orchestrator) Sync(sid core.SessionID, conn core.SignalConnection) {
	e, ok := o.Registry.Get(sid)
	if !ok {
		return
	}
	st := e.Controller.Snapshot()
	e.Hub.SendTo(conn, domain.UIMessage{Type: domain.UIState, State: &st})
	session.NewStatusProjector(e.Hub.For(conn), o.Labels).Sync(st)
}

// UnbindSurface detaches a page. The session stays up for the next page of the client.
func (o *Orchestrator) UnbindSurface(sid core.SessionID, conn core.SignalConnection) {
	if e, ok := o.Registry.Get(sid); ok {
		left := e.Hub.Detach(conn)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Int("conns", left).Msg("page detached")
	}
}

// Release stops and forgets the session of sid.
func (o *Orchestrator) Release(ctx context.Context, sid core.SessionID) error {
	e, ok := o.Registry.Remove(sid)
	if !ok {
		return nil
	}
	err := e.Controller.Close(ctx)
	e.Release()
	return err
}

// Shutdown stops every session.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var errs []error
	for sid, e := range o.Registry.Drain() {
		if err := e.Controller.Close(ctx); err != nil {
			errs = append(errs, err)
			log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("shutdown session")
		}
		e.Release()
	}
	return errors.Join(errs...)
}
