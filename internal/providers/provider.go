// Package providers defines the provider collaborator contract and the
// adapters that implement it.
package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gavelhq/gavel/internal/models"
)

// Provider executes one prompt against a model endpoint. Implementations are
// responsible for their own retries and caching; the engine performs neither.
type Provider interface {
	// ID returns the provider reference this adapter serves, e.g.
	// "openai:gpt-4o".
	ID() string

	// CallAPI renders vars into the prompt remotely or locally as the
	// provider requires and returns the response. config is the merged
	// prompt-level and test-level configuration.
	CallAPI(ctx context.Context, prompt string, config map[string]any, vars map[string]any) (*models.ProviderResponse, error)
}

// Registry resolves provider references to adapters.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// Register adds a provider adapter. Re-registering an ID replaces the
// previous adapter.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Resolve returns the adapter for a provider reference.
func (r *Registry) Resolve(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no provider registered for %q (registered: %s)", id, r.idList())
}

func (r *Registry) idList() string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}

// SplitRef splits a provider reference "scheme:model" into its parts. A bare
// reference with no colon is treated as scheme "openai".
func SplitRef(ref string) (scheme, model string) {
	if i := strings.Index(ref, ":"); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return "openai", ref
}
