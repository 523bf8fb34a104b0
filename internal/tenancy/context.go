package tenancy

import "context"

type ctxKey string

const tenantKey ctxKey = "scheduler.tenant_id"

// WithTenantID stores the tenant id in context.
func WithTenantID(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantIDFromContext extracts the tenant id if present.
func TenantIDFromContext(ctx context.Context) (int64, bool) {
	val := ctx.Value(tenantKey)
	if val == nil {
		return 0, false
	}
	tenantID, ok := val.(int64)
	return tenantID, ok && tenantID > 0
}
