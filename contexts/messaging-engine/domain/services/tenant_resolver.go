package services

import (
	"context"
	"encoding/json"

	"corehub/contexts/messaging-engine/domain/entities"
	"corehub/contexts/messaging-engine/ports"
)

// TenantResolver maps an inbound webhook payload to the tenant binding that
// owns it, grounded on routing/tenant_resolver.py.
type TenantResolver struct {
	repo ports.Repository
}

// NewTenantResolver builds a TenantResolver over repo.
func NewTenantResolver(repo ports.Repository) *TenantResolver {
	return &TenantResolver{repo: repo}
}

// ResolveFromRoutingIdentifier looks up the binding for a given provider's
// routing identifier (a Cloud-API phone_number_id or an Evolution instance
// name).
func (r *TenantResolver) ResolveFromRoutingIdentifier(ctx context.Context, provider, routingIdentifier string) (*entities.TenantBinding, error) {
	return r.repo.GetBindingByRoutingIdentifier(ctx, provider, routingIdentifier)
}

// BindingForTenant returns the active outbound binding for a tenant.
func (r *TenantResolver) BindingForTenant(ctx context.Context, tenantID string) (*entities.TenantBinding, error) {
	return r.repo.GetActiveBindingForTenant(ctx, tenantID)
}

// ExtractRoutingIdentifier inspects a raw webhook body's top-level shape and
// pulls out the provider tag and routing identifier it carries, without
// needing a full parse of the provider-specific payload. Meta Cloud API
// payloads are rooted at "object" == "whatsapp_business_account" and carry
// the phone_number_id nested under entry[].changes[].value.metadata.
// Evolution API payloads are rooted at "event"/"instance" and carry the
// instance name directly at the top level.
func ExtractRoutingIdentifier(body []byte) (provider, routingIdentifier string, ok bool) {
	var generic map[string]any
	if err := json.Unmarshal(body, &generic); err != nil {
		return "", "", false
	}

	if generic["object"] == "whatsapp_business_account" {
		entries, _ := generic["entry"].([]any)
		for _, e := range entries {
			entry, _ := e.(map[string]any)
			changes, _ := entry["changes"].([]any)
			for _, c := range changes {
				change, _ := c.(map[string]any)
				value, _ := change["value"].(map[string]any)
				metadata, _ := value["metadata"].(map[string]any)
				if phoneNumberID, ok := metadata["phone_number_id"].(string); ok && phoneNumberID != "" {
					return entities.ProviderCloudAPI, phoneNumberID, true
				}
			}
		}
		return "", "", false
	}

	if _, hasEvent := generic["event"]; hasEvent {
		if instance, ok := generic["instance"].(string); ok && instance != "" {
			return entities.ProviderEvolution, instance, true
		}
	}
	if instance, ok := generic["instance"].(string); ok && instance != "" {
		return entities.ProviderEvolution, instance, true
	}

	return "", "", false
}
