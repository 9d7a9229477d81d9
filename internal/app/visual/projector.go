package visual

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

// Config sets the projector tick rates in frames per second.
type Config struct {
	LiveRate int `mapstructure:"live_rate"`
	IdleRate int `mapstructure:"idle_rate"`
}

func (c Config) withDefaults() Config {
	if c.LiveRate <= 0 {
		c.LiveRate = 60
	}
	if c.IdleRate <= 0 {
		c.IdleRate = 4
	}
	return c
}

// Source yields the local level frame.
type Source interface {
	Snapshot() domain.LevelSnapshot
}

// Projector renders level frames onto a surface. It follows the controller
// as a session.Listener and switches between the live and idle rate.
type Projector struct {
	cfg     Config
	source  Source
	surface core.UISurface

	mu     sync.Mutex
	live   bool
	remote core.RemoteTrack
	wake   chan struct{}
}

var _ session.Listener = (*Projector)(nil)

func NewProjector(source Source, surface core.UISurface, cfg Config) *Projector {
	return &Projector{
		cfg:     cfg.withDefaults(),
		source:  source,
		surface: surface,
		wake:    make(chan struct{}, 1),
	}
}

func (p *Projector) OnStateChanged(ch session.StateChange) {
	p.mu.Lock()
	live := ch.To.Live()
	changed := live != p.live
	p.live = live
	if !live {
		p.remote = nil
	}
	p.mu.Unlock()
	if changed {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

func (p *Projector) OnRemoteTrack(t core.RemoteTrack) {
	p.mu.Lock()
	p.remote = t
	p.mu.Unlock()
}

// Run ticks until ctx is done.
func (p *Projector) Run(ctx context.Context) {
	live := p.isLive()
	ticker := time.NewTicker(p.interval(live))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			if now := p.isLive(); now != live {
				live = now
				ticker.Reset(p.interval(live))
			}
			p.surface.RenderLevels(p.Frame())
		case <-ticker.C:
			p.surface.RenderLevels(p.Frame())
		}
	}
}

// Frame builds the frame for the current phase.
func (p *Projector) Frame() domain.LevelSnapshot {
	p.mu.Lock()
	live, remote := p.live, p.remote
	p.mu.Unlock()
	if !live || p.source == nil {
		return IdleSnapshot()
	}
	snap := p.source.Snapshot()
	if remote != nil {
		snap.Remote = remote.Level()
	}
	return snap
}

func (p *Projector) isLive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

func (p *Projector) interval(live bool) time.Duration {
	rate := p.cfg.IdleRate
	if live {
		rate = p.cfg.LiveRate
	}
	return time.Second / time.Duration(rate)
}
