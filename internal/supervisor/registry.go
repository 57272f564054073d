// SPDX-License-Identifier: MIT

package supervisor

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/recwatch/recwatch/internal/log"
)

// Registry tracks the active supervisor per job so cancellation requests and
// emergency shutdown can reach in-flight processes. It is owned by the
// worker context and drained on shutdown; it replaces ambient global state.
type Registry struct {
	mu     sync.Mutex
	active map[string]*Supervisor
	logger zerolog.Logger
}

// NewRegistry creates an empty process registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]*Supervisor),
		logger: log.WithComponent("supervisor.registry"),
	}
}

// Register records the supervisor currently executing for the job.
// A second registration for the same job replaces the first.
func (r *Registry) Register(jobID string, s *Supervisor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[jobID] = s
}

// Unregister removes the job's entry, if any.
func (r *Registry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, jobID)
}

// CleanupJob terminates and removes the supervisor for one job.
// Unknown jobs are a no-op.
func (r *Registry) CleanupJob(jobID string) {
	r.mu.Lock()
	s := r.active[jobID]
	delete(r.active, jobID)
	r.mu.Unlock()

	if s != nil {
		s.Terminate()
	}
}

// CleanupAll terminates every tracked supervisor. Used on daemon shutdown.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	drained := r.active
	r.active = make(map[string]*Supervisor)
	r.mu.Unlock()

	if len(drained) > 0 {
		r.logger.Warn().Int("active_count", len(drained)).Msg("cleaning up all active processes")
	}
	for jobID, s := range drained {
		r.logger.Info().Str(log.FieldJobID, jobID).Msg("terminating job process")
		s.Terminate()
	}
}

// Len reports the number of tracked supervisors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
