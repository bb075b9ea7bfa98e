// Package cross accumulates per-domain evaluation facts within a
// session so cross-domain rules can join them.
package cross

import (
	"sort"
	"sync"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Store collects each domain's resolved frames and outcomes as they
// finish. Writes happen from parallel domain evaluations; Snapshot is
// taken once, after the barrier.
type Store struct {
	mu       sync.Mutex
	frames   map[string]*domain.FrameSet
	outcomes map[string][]domain.Outcome
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		frames:   make(map[string]*domain.FrameSet),
		outcomes: make(map[string][]domain.Outcome),
	}
}

// Put records one domain's facts. A second submission for the same
// domain replaces the first; sessions always evaluate the latest data.
func (s *Store) Put(fs *domain.FrameSet, outcomes []domain.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[fs.Domain()] = fs
	s.outcomes[fs.Domain()] = outcomes
}

// Domains returns the domains recorded so far, sorted.
func (s *Store) Domains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for name := range s.frames {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a read-only fact set over the current contents. The
// maps are copied; the frames and outcomes they point at are immutable.
func (s *Store) Snapshot() *domain.FactSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	facts := &domain.FactSet{
		Frames:   make(map[string]*domain.FrameSet, len(s.frames)),
		Outcomes: make(map[string][]domain.Outcome, len(s.outcomes)),
	}
	for name, fs := range s.frames {
		facts.Frames[name] = fs
	}
	for name, ocs := range s.outcomes {
		facts.Outcomes[name] = ocs
	}
	return facts
}
