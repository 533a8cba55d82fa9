// Package provider defines the interface competitive-intelligence data
// providers implement and a registry to look them up by capability.
package provider

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/sells-group/intel-cli/internal/model"
)

// Request describes what a caller wants to learn about a shop's market.
type Request struct {
	ShopID       string             `json:"shop_id" yaml:"shop_id"`
	Domain       string             `json:"domain,omitempty" yaml:"domain,omitempty"`
	Keywords     []string           `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Products     []string           `json:"products,omitempty" yaml:"products,omitempty"`
	Capabilities []model.Capability `json:"capabilities" yaml:"capabilities"`
}

// Health is the result of a provider healthcheck.
type Health struct {
	OK      bool              `json:"ok"`
	Details map[string]string `json:"details,omitempty"`
}

// Provider is an external data vendor queried for one or more capabilities.
type Provider interface {
	// Name returns the provider identifier used for rate limits and budgets.
	Name() string
	// Capabilities returns the capabilities this provider can supply.
	Capabilities() []model.Capability
	// IsConfigured reports whether the provider has credentials for the shop.
	IsConfigured(shopID string) bool
	// Fetch returns raw payloads for the requested capabilities it supports.
	Fetch(ctx context.Context, req Request) ([]model.IntelDatum, error)
	// Healthcheck probes the provider.
	Healthcheck(ctx context.Context) Health
}

// Supports reports whether p lists capability c.
func Supports(p Provider, c model.Capability) bool {
	return slices.Contains(p.Capabilities(), c)
}

// Registry manages available providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry, replacing any with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForCapabilities returns the providers configured for shopID that supply at
// least one of caps, sorted by name. An empty caps matches every provider.
func (r *Registry) ForCapabilities(shopID string, caps []model.Capability) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provider
	for _, p := range r.providers {
		if !p.IsConfigured(shopID) {
			continue
		}
		if len(caps) == 0 || slices.ContainsFunc(caps, func(c model.Capability) bool { return Supports(p, c) }) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Healthcheck probes every registered provider.
func (r *Registry) Healthcheck(ctx context.Context) map[string]Health {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	out := make(map[string]Health, len(providers))
	for _, p := range providers {
		out[p.Name()] = p.Healthcheck(ctx)
	}
	return out
}
