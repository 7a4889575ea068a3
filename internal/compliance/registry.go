// Package compliance evaluates consent records against named jurisdiction
// standards. Evaluation is decoupled from verification-status transitions so
// checks can be re-run (for example after a standard's rules change) without
// rewriting consent history: every run appends a new ComplianceCheck row.
package compliance

import (
	"context"
	"sync"

	"assent/internal/domain"
)

// KeyResolver confirms decryptability of an encrypted payload. Satisfied by
// the key manager; only metadata crosses this boundary.
type KeyResolver interface {
	Resolve(ctx context.Context, id domain.KeyID) (domain.EncryptionKey, error)
}

// Rule is one named check within a standard. It returns the issues it
// found; an empty slice means the rule passed.
type Rule struct {
	Name  string
	Check func(ctx context.Context, record domain.ConsentRecord, env Env) []string
}

// Env is what rules may consult beyond the record itself.
type Env struct {
	Keys KeyResolver
}

// RuleSet is the named rule collection for one compliance standard.
type RuleSet struct {
	Standard string
	Rules    []Rule
}

// Registry maps standard names to rule sets. It is an explicit injected
// dependency, initialized once at process start; adding a standard needs no
// ledger change.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]RuleSet
}

func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]RuleSet)}
}

func (r *Registry) Register(set RuleSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[set.Standard] = set
}

func (r *Registry) Get(standard string) (RuleSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.sets[standard]
	return set, ok
}

func (r *Registry) Standards() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sets))
	for name := range r.sets {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry returns the registry with the standards this deployment
// recognizes out of the box.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(DPDPA2023())
	registry.Register(GDPR())
	return registry
}
