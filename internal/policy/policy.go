// Package policy decides whether a fresh capture may be taken on the
// active workspace.
package policy

import (
	"context"
	"sync"

	"github.com/bryanchriswhite/capshim/internal/logger"
)

// Range is an inclusive span of workspace ids
type Range struct {
	Min int `json:"min" yaml:"min" mapstructure:"min"`
	Max int `json:"max" yaml:"max" mapstructure:"max"`
}

// Contains reports whether id lies within the range
func (r Range) Contains(id int) bool {
	return id >= r.Min && id <= r.Max
}

// AllowSet is the set of workspaces where fresh captures are permitted
type AllowSet struct {
	IDs    []int   `json:"ids" yaml:"ids" mapstructure:"ids"`
	Ranges []Range `json:"ranges" yaml:"ranges" mapstructure:"ranges"`
}

// Contains reports whether id is allowed
func (s AllowSet) Contains(id int) bool {
	for _, allowed := range s.IDs {
		if allowed == id {
			return true
		}
	}
	for _, r := range s.Ranges {
		if r.Contains(id) {
			return true
		}
	}
	return false
}

// WorkspaceQuerier reports the active workspace id
type WorkspaceQuerier interface {
	WorkspaceID(ctx context.Context) (int, error)
}

// Gate answers whether the current workspace permits a fresh capture
type Gate struct {
	workspaces WorkspaceQuerier
	mu         sync.RWMutex
	allow      AllowSet
}

// NewGate creates a policy gate
func NewGate(workspaces WorkspaceQuerier, allow AllowSet) *Gate {
	return &Gate{workspaces: workspaces, allow: allow}
}

// SetAllowSet replaces the allow-set, e.g. after a config reload
func (g *Gate) SetAllowSet(allow AllowSet) {
	g.mu.Lock()
	g.allow = allow
	g.mu.Unlock()
}

// AllowSet returns the current allow-set
func (g *Gate) AllowSet() AllowSet {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allow
}

// Allowed reports whether a fresh capture is permitted. If the workspace
// cannot be determined the answer is true.
func (g *Gate) Allowed(ctx context.Context) bool {
	log := logger.WithComponent("policy")

	id, err := g.workspaces.WorkspaceID(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not determine workspace, allowing fresh capture")
		return true
	}

	allowed := g.AllowSet().Contains(id)
	log.Debug().
		Int("workspace", id).
		Bool("allowed", allowed).
		Msg("Workspace checked")
	return allowed
}
