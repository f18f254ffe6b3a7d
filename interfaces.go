package authkit

import (
	"context"
	"time"
)

// TokenVerifier verifies authentication tokens and extracts claims.
// Implementations: jwks/ (JWT via JWKS), fake/ (testing).
type TokenVerifier interface {
	// Verify validates the token and returns the extracted claims.
	Verify(ctx context.Context, token string) (*Claims, error)
}

// TokenStore persists access/refresh tokens redundantly across channels so
// that one blocked channel (e.g. cross-origin cookie restrictions) does not
// lose the session.
type TokenStore interface {
	// SetTokens writes both tokens and a computed expiry (now + expiresIn)
	// to every channel. A partial write failure is non-fatal; total failure
	// returns ErrStorage.
	SetTokens(ctx context.Context, accessToken, refreshToken string, expiresIn time.Duration) error

	// Token resolves the access token through the channel fallback chain.
	// Returns ErrNoToken when no channel holds one.
	Token(ctx context.Context) (string, error)

	// RefreshToken resolves the refresh token through the same chain.
	RefreshToken(ctx context.Context) (string, error)

	// ExpiresAt returns the stored access token expiry, zero when unknown.
	ExpiresAt(ctx context.Context) (time.Time, error)

	// Clear removes tokens from all channels.
	Clear(ctx context.Context) error
}

// CodeExchanger swaps identity-provider grants for sessions.
// Implementations must deduplicate concurrent exchanges of the same
// authorization code: providers invalidate codes after first use.
type CodeExchanger interface {
	// ExchangeCode exchanges a one-time authorization code. redirectURI
	// must match the one used in the authorization request exactly.
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Session, error)

	// Refresh exchanges a refresh token for a new session.
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// SessionManager keeps the stored session fresh, refreshing proactively
// near expiry and on demand after a server-side 401.
type SessionManager interface {
	// AccessToken returns a currently valid access token, refreshing first
	// when within the expiry buffer. Returns ErrNoToken when nothing is
	// stored and ErrSessionExpired when a required refresh failed.
	AccessToken(ctx context.Context) (string, error)

	// Refresh forces a refresh now. Concurrent callers share one in-flight
	// refresh. On failure the token store is cleared and ErrSessionExpired
	// is returned.
	Refresh(ctx context.Context) (*Session, error)
}

// Authorizer decides role- and tenant-scoped access from verified claims.
type Authorizer interface {
	// Authorize checks that claims carry at least the required role and,
	// unless the role bypasses tenant scoping, that the claims' tenant
	// maps onto resourceTenant. resourceTenant may be empty for
	// tenant-agnostic operations. The returned error reports resolver or
	// directory failures, not denials.
	Authorize(ctx context.Context, claims *Claims, required Role, resourceTenant string) (Decision, error)
}

// TenantResolver maps identifiers onto internal tenants. External
// identity-provider organization identifiers are a separate namespace from
// internal tenant UUIDs; resolution goes through an explicit allowlist,
// never a fuzzy match.
type TenantResolver interface {
	// Resolve accepts an internal tenant UUID or a known external
	// identifier and returns the tenant. Unknown identifiers return
	// ErrTenantMismatch.
	Resolve(ctx context.Context, identifier string) (*Tenant, error)
}

// FlagEvaluator resolves whether a named feature is enabled for a user.
// Evaluations for the same (flag, user) pair must agree within a cache
// window, and percentage bucketing must be deterministic.
type FlagEvaluator interface {
	Evaluate(ctx context.Context, flagKey string, user *User) (FlagResult, error)
}

// UserDirectory provides user lookups for authorization decisions.
type UserDirectory interface {
	// Get returns a user by ID.
	Get(ctx context.Context, userID string) (*User, error)

	// List returns users with pagination.
	List(ctx context.Context, opts ListOptions) ([]*User, error)

	// Deactivate soft-disables a user. Users are never hard-deleted.
	Deactivate(ctx context.Context, userID string) error
}
