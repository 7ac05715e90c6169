package quiz

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/dsc-prep/internal/syllabus"
)

const defaultIdleTimeout = 2 * time.Hour

// RegistryConfig holds the dependencies shared by every session.
type RegistryConfig struct {
	Table       *syllabus.Table
	Generator   Generator
	Illustrator Illustrator
	Results     ResultStore
	Events      EventLogger
	NewTicker   func(time.Duration) Ticker
	Now         func() time.Time
	IdleTimeout time.Duration // default 2h
	GenTimeout  time.Duration // per generation call; 0 means none
}

// Registry tracks live sessions by ID.
type Registry struct {
	cfg RegistryConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Results == nil {
		cfg.Results = NewMemoryResultStore()
	}
	if cfg.Events == nil {
		cfg.Events = NopEventLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	return &Registry{cfg: cfg, sessions: make(map[string]*Session)}
}

// Create opens a new idle session for clientID.
func (r *Registry) Create(clientID string) *Session {
	s := NewSession(SessionConfig{
		ClientID:    clientID,
		Table:       r.cfg.Table,
		Generator:   r.cfg.Generator,
		Illustrator: r.cfg.Illustrator,
		Results:     r.cfg.Results,
		Events:      r.cfg.Events,
		NewTicker:   r.cfg.NewTicker,
		Now:         r.cfg.Now,
		Timeout:     r.cfg.GenTimeout,
	})

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Remove closes and forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Evict closes sessions idle for longer than the idle timeout and returns
// how many were removed. Sessions that are generating or whose countdown is
// still running are kept; the countdown finishes them.
func (r *Registry) Evict() int {
	cutoff := r.cfg.Now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) && !s.busy() {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		slog.Info("evicted idle quiz sessions", "count", len(stale))
	}
	return len(stale)
}

// Run evicts idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Evict()
		}
	}
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
