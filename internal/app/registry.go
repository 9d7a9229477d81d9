package app

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/rs/zerolog/log"
)

// Entry is everything owned on behalf of one client.
type Entry struct {
	Controller *session.Controller
	Hub        *SurfaceHub
	// Cancel stops the goroutines started for the entry.
	Cancel context.CancelFunc
	// Unsubscribe detaches the entry's listeners from the controller.
	Unsubscribe []func()
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*Entry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*Entry),
	}
}

// GetOrCreate returns the entry of sid, building it with build when missing.
// build runs under the registry lock and must not call back into the registry.
func (r *Registry) GetOrCreate(sid core.SessionID, build func() *Entry) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		return e, false
	}
	e := build()
	r.sessions[sid] = e
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("created session entry")
	return e, true
}

func (r *Registry) Get(sid core.SessionID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	return e, ok
}

// Remove unbinds sid and returns its entry for teardown.
func (r *Registry) Remove(sid core.SessionID) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if ok {
		delete(r.sessions, sid)
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	}
	return e, ok
}

// Drain removes and returns every entry.
func (r *Registry) Drain() map[core.SessionID]*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sessions
	r.sessions = make(map[core.SessionID]*Entry)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Release cancels the entry goroutines and detaches its listeners.
func (e *Entry) Release() {
	for _, unsubscribe := range e.Unsubscribe {
		unsubscribe()
	}
	e.Unsubscribe = nil
	if e.Cancel != nil {
		e.Cancel()
	}
}
