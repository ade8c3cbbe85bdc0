// Package transformer rewrites vendor-local reference values into the shared
// identifier namespace and back. Adapters are pure string rewrites targeting
// one reference kind; a subscription carries an ordered chain of them.
package transformer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/transitlab/sirihub/pkg/domain"
)

// ValueAdapter rewrites values of one reference kind.
type ValueAdapter interface {
	// Name identifies the adapter for chain deduplication. Two adapters with
	// the same name and kind are considered the same transformation.
	Name() string
	Kind() domain.RefKind
	Apply(value string) string
}

// Chain is an ordered list of adapters. Application order is insertion order;
// adding an adapter whose (name, kind) is already present is a no-op, so
// assembling a chain from overlapping sources stays idempotent.
type Chain struct {
	adapters []ValueAdapter
	seen     map[string]bool
}

func NewChain(adapters ...ValueAdapter) *Chain {
	c := &Chain{seen: map[string]bool{}}
	c.Add(adapters...)
	return c
}

func (c *Chain) key(a ValueAdapter) string {
	return string(a.Kind()) + "|" + a.Name()
}

func (c *Chain) Add(adapters ...ValueAdapter) {
	for _, a := range adapters {
		if a == nil {
			continue
		}
		k := c.key(a)
		if c.seen[k] {
			continue
		}
		c.seen[k] = true
		c.adapters = append(c.adapters, a)
	}
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.adapters)
}

// Apply runs every adapter registered for the kind, in order, on the value.
// Empty values pass through untouched.
func (c *Chain) Apply(kind domain.RefKind, value string) string {
	if c == nil || value == "" {
		return value
	}
	for _, a := range c.adapters {
		if a.Kind() == kind {
			value = a.Apply(value)
		}
	}
	return value
}

// ApplyAll maps Apply over a slice, returning a fresh slice.
func (c *Chain) ApplyAll(kind domain.RefKind, values []string) []string {
	if c == nil || len(values) == 0 {
		return values
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = c.Apply(kind, v)
	}
	return out
}

// Factory builds the adapter chain for one subscription.
type Factory func(sub *domain.Subscription) ([]ValueAdapter, error)

// Registry maps mapping-adapter ids to factories. Registration happens once
// at boot; resolution of an unknown id is a hard configuration error.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(id string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[id]; dup {
		return fmt.Errorf("mapping adapter %q already registered", id)
	}
	r.factories[id] = f
	return nil
}

// Build resolves the subscription's mapping-adapter id into a chain. An empty
// id yields an empty chain; an unknown id is an error the caller must treat
// as fatal configuration.
func (r *Registry) Build(sub *domain.Subscription) (*Chain, error) {
	if sub.MappingAdapterID == "" {
		return NewChain(), nil
	}
	r.mu.RLock()
	f, ok := r.factories[sub.MappingAdapterID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown mapping adapter id %q for subscription %s", sub.MappingAdapterID, sub.SubscriptionID)
	}
	adapters, err := f(sub)
	if err != nil {
		return nil, fmt.Errorf("mapping adapter %q: %w", sub.MappingAdapterID, err)
	}
	return NewChain(adapters...), nil
}

// IDs lists registered mapping ids, sorted, for admin diagnostics.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
