package authkit

import "context"

type ctxKey string

const (
	ctxKeyUserID         ctxKey = "authkit_user_id"
	ctxKeyTenantID       ctxKey = "authkit_tenant_id"
	ctxKeyTenantOverride ctxKey = "authkit_tenant_override"
	ctxKeySession        ctxKey = "authkit_session"
	ctxKeyClaims         ctxKey = "authkit_claims"
)

// WithUserID stores the authenticated user ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// UserIDFromContext extracts the authenticated user ID from the context.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}

// WithTenantID stores the resolved internal tenant ID in the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKeyTenantID, tenantID)
}

// TenantIDFromContext extracts the tenant ID from the context.
func TenantIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyTenantID).(string)
	return v
}

// WithTenantOverride marks the context with a cross-tenant override target.
// Only super_admin operations honor it; the transport forwards it as a
// tenant-context header.
func WithTenantOverride(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKeyTenantOverride, tenantID)
}

// TenantOverrideFromContext extracts the tenant override, if any.
func TenantOverrideFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyTenantOverride).(string)
	return v
}

// WithSession threads an explicit session value through the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// SessionFromContext extracts the session from the context.
func SessionFromContext(ctx context.Context) *Session {
	v, _ := ctx.Value(ctxKeySession).(*Session)
	return v
}

// WithClaims stores the full token claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// ClaimsFromContext extracts the full token claims from the context.
func ClaimsFromContext(ctx context.Context) *Claims {
	v, _ := ctx.Value(ctxKeyClaims).(*Claims)
	return v
}
