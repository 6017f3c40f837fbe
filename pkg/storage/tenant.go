package storage

import "context"

// tenantKey is a private type for the tenant context key.
type tenantKey struct{}

// SetTenant injects a tenant identifier into the context. Stores record it
// as the owner of new conversations and scope reads to it.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// GetTenant extracts the tenant identifier from the context.
// Returns an empty string if no tenant is set (single-tenant mode).
func GetTenant(ctx context.Context) string {
	if v, ok := ctx.Value(tenantKey{}).(string); ok {
		return v
	}
	return ""
}

// Visible reports whether a conversation owned by owner may be accessed from ctx.
func Visible(ctx context.Context, owner string) bool {
	tenantID := GetTenant(ctx)
	return tenantID == "" || tenantID == owner
}
