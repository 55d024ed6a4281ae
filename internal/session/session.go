package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/caloriesnap/internal/pipeline"
)

// CookieName is the cookie carrying the session id.
const CookieName = "caloriesnap_session"

type entry struct {
	orch     *pipeline.Orchestrator
	lastSeen time.Time
}

// Registry keeps one orchestrator per browser session.
type Registry struct {
	ttl             time.Duration
	newOrchestrator func(id string) *pipeline.Orchestrator
	logger          *slog.Logger
	now             func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry returns a registry whose sessions expire ttl after their last
// use. newOrchestrator builds the orchestrator for a new session id.
func NewRegistry(ttl time.Duration, newOrchestrator func(id string) *pipeline.Orchestrator, logger *slog.Logger) *Registry {
	return &Registry{
		ttl:             ttl,
		newOrchestrator: newOrchestrator,
		logger:          logger,
		now:             time.Now,
		sessions:        make(map[string]*entry),
	}
}

// Get returns the orchestrator for id, creating a session when id is unknown.
// Ids that are not UUIDs are replaced with a fresh one; the returned id is
// the one the caller should hand back to the client.
func (r *Registry) Get(id string) (string, *pipeline.Orchestrator) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		e = &entry{orch: r.newOrchestrator(id)}
		r.sessions[id] = e
		r.logger.Debug("session created", "session_id", id)
	}
	e.lastSeen = r.now()
	return id, e.orch
}

// Lookup returns the orchestrator for an existing session without creating
// one, refreshing its expiry when found.
func (r *Registry) Lookup(id string) (*pipeline.Orchestrator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.orch, true
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes and removes sessions unused for longer than the TTL. Sessions
// with a run in flight are kept regardless of age.
func (r *Registry) Sweep() int {
	now := r.now()
	var expired []*pipeline.Orchestrator

	r.mu.Lock()
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) <= r.ttl || !e.orch.State().Settled() {
			continue
		}
		delete(r.sessions, id)
		expired = append(expired, e.orch)
	}
	r.mu.Unlock()

	for _, o := range expired {
		o.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("sessions expired", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps periodically until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.orch.Close()
	}
}
