package dha

import (
	"context"
)

// SettingsRepository persists per-tenant gateway settings. The tenant is
// resolved from the context's schema scoping; one row per tenant.
// Get returns (nil, nil) when the tenant has no settings row, which the
// gateway treats as not configured.
type SettingsRepository interface {
	Get(ctx context.Context) (*TenantConfig, error)
	Upsert(ctx context.Context, cfg *TenantConfig) error
}
