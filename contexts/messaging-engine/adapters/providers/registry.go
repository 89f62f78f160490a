// Package providers wires the concrete WhatsApp-style adapters (Cloud API,
// stub) behind the one ports.ProviderRegistry the ingress and outbound
// worker both dispatch through.
package providers

import "corehub/contexts/messaging-engine/ports"

// Registry is a static, provider-tag-keyed ports.ProviderRegistry.
type Registry struct {
	byTag map[string]ports.Provider
}

// NewRegistry builds a Registry from a tag-to-adapter map.
func NewRegistry(byTag map[string]ports.Provider) *Registry {
	return &Registry{byTag: byTag}
}

// Get returns the adapter registered for providerTag, if any.
func (r *Registry) Get(providerTag string) (ports.Provider, bool) {
	p, ok := r.byTag[providerTag]
	return p, ok
}
