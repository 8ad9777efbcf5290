// Package strategy defines the Strategy interface for signal generation and
// provides the EMA-crossover momentum implementation.
package strategy

import (
	"sort"

	"vela/internal/domain"
)

// Strategy turns bar history into trading signals. Implementations must be
// deterministic and side-effect free: feeding the same bar sequence (with
// the same position context) always yields the same signals.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Warmup returns the number of bars the strategy needs before it can
	// produce entries. OnBar holds on its own until then; the value is
	// advisory, for callers sizing how much history to fetch.
	Warmup() int

	// OnBar consumes the next bar in chronological order and returns the
	// strategy's decision. pos is the currently open position, or nil when
	// flat; the strategy never mutates it.
	OnBar(bar domain.Bar, pos *domain.Position) domain.Signal

	// Reset clears all internal indicator state so the same instance can
	// drive a fresh run.
	Reset()
}

// Registry holds a named collection of strategies for lookup and
// enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates
// whether the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
