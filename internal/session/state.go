// Package session holds the state shared by the cooperating interceptors:
// whether the last capture served cached data, which record it was, and the
// one-shot dimension override.
package session

import (
	"sync"
	"time"

	"github.com/bryanchriswhite/capshim/internal/cache"
)

// Snapshot is a consistent copy of the state
type Snapshot struct {
	UsingCachedData bool       `json:"using_cached_data"`
	Served          cache.Meta `json:"served"`
	DimensionPoison bool       `json:"dimension_poison"`
	Generation      uint64     `json:"generation"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// State is shared between the capture orchestrator, the metadata providers
// and the attribute interceptor. Each capture overwrites it; there is no
// other session boundary, so callers must query metadata after the capture
// they want it to agree with.
type State struct {
	mu         sync.Mutex
	cached     bool
	served     cache.Meta
	poison     bool
	generation uint64
	updatedAt  time.Time
}

// New returns an empty state: live data, no poison
func New() *State {
	return &State{}
}

// MarkFresh records that the last capture returned a fresh image
func (s *State) MarkFresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = false
	s.served = cache.Meta{}
	s.bump()
}

// MarkCached records that the last capture returned the record described by meta
func (s *State) MarkCached(meta cache.Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = true
	s.served = meta
	s.bump()
}

// UsingCachedData reports whether the last capture served cached data
func (s *State) UsingCachedData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached
}

// Served returns the metadata of the cached record last served, if any
func (s *State) Served() (cache.Meta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served, s.cached
}

// PoisonDimensions arms the one-shot zero-dimension override
func (s *State) PoisonDimensions() {
	s.mu.Lock()
	s.poison = true
	s.mu.Unlock()
}

// ConsumePoison reports whether the override was armed and disarms it
func (s *State) ConsumePoison() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	armed := s.poison
	s.poison = false
	return armed
}

// Snapshot returns a copy of the whole state
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		UsingCachedData: s.cached,
		Served:          s.served,
		DimensionPoison: s.poison,
		Generation:      s.generation,
		UpdatedAt:       s.updatedAt,
	}
}

// caller must hold mu
func (s *State) bump() {
	s.generation++
	s.updatedAt = time.Now()
}
