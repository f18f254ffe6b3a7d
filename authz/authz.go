// Package authz decides whether verified claims may perform an action on a
// resource. Decisions combine an ordered role check with tenant scoping:
// roles are a hierarchy (a higher role satisfies any lower requirement),
// and tenant access requires the caller's tenant to resolve to the exact
// tenant owning the resource. Only super_admin crosses tenant boundaries.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	authkit "github.com/halcyonlabs/authkit-go"
	"github.com/halcyonlabs/authkit-go/metrics"
)

// Authorizer implements authkit.Authorizer.
type Authorizer struct {
	tenants authkit.TenantResolver
	users   authkit.UserDirectory
	logger  *slog.Logger
	metrics *metrics.Metrics
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]cached
}

type cached struct {
	decision authkit.Decision
	at       time.Time
}

var _ authkit.Authorizer = (*Authorizer)(nil)

// Option configures the Authorizer.
type Option func(*Authorizer)

// WithUserDirectory enables the active-user check. Without it, a revoked
// user stays authorized until their token expires.
func WithUserDirectory(d authkit.UserDirectory) Option {
	return func(a *Authorizer) { a.users = d }
}

// WithCacheTTL sets how long decisions are cached. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(a *Authorizer) { a.ttl = d }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authorizer) { a.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Authorizer) { a.metrics = m }
}

// New creates an Authorizer. The tenant resolver is required: tenant
// scoping cannot be skipped, only bypassed per-call by super_admin.
func New(tenants authkit.TenantResolver, opts ...Option) *Authorizer {
	a := &Authorizer{
		tenants: tenants,
		logger:  slog.Default(),
		metrics: metrics.New(false),
		ttl:     30 * time.Second,
		cache:   make(map[string]cached),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Authorize evaluates claims against a required role and resource tenant.
// A deny is a valid decision, not an error; errors mean the check itself
// could not be completed (resolver or directory failure).
func (a *Authorizer) Authorize(ctx context.Context, claims *authkit.Claims, required authkit.Role, resourceTenant string) (authkit.Decision, error) {
	start := time.Now()
	decision, err := a.authorize(ctx, claims, required, resourceTenant)
	if err != nil {
		return authkit.Decision{}, err
	}
	a.metrics.RecordAuthzDecision(decision.Allowed, decision.Reason, time.Since(start).Seconds())
	if !decision.Allowed {
		a.logger.Debug("authorization denied",
			slog.String("reason", decision.Reason),
			slog.String("required_role", required.String()),
			slog.String("resource_tenant", resourceTenant))
	}
	return decision, nil
}

func (a *Authorizer) authorize(ctx context.Context, claims *authkit.Claims, required authkit.Role, resourceTenant string) (authkit.Decision, error) {
	if claims == nil || claims.Subject == "" {
		return authkit.Deny(authkit.DenyNoClaims), nil
	}

	key := cacheKey(claims, required, resourceTenant)
	if d, ok := a.cachedDecision(key); ok {
		a.metrics.RecordCacheHit("authz")
		return d, nil
	}
	a.metrics.RecordCacheMiss("authz")

	d, err := a.evaluate(ctx, claims, required, resourceTenant)
	if err != nil {
		return authkit.Decision{}, err
	}
	a.storeDecision(key, d)
	return d, nil
}

func (a *Authorizer) evaluate(ctx context.Context, claims *authkit.Claims, required authkit.Role, resourceTenant string) (authkit.Decision, error) {
	if !claims.Role.AtLeast(required) {
		return authkit.Deny(authkit.DenyInsufficientRole), nil
	}

	if resourceTenant != "" && claims.Role != authkit.RoleSuperAdmin {
		d, err := a.checkTenant(ctx, claims, resourceTenant)
		if err != nil || !d.Allowed {
			return d, err
		}
	}

	if a.users != nil {
		user, err := a.users.Get(ctx, claims.Subject)
		if err != nil {
			return authkit.Decision{}, fmt.Errorf("authz: user lookup: %w", err)
		}
		if !user.Active {
			return authkit.Deny(authkit.DenyUserInactive), nil
		}
	}

	return authkit.Allow(), nil
}

func (a *Authorizer) checkTenant(ctx context.Context, claims *authkit.Claims, resourceTenant string) (authkit.Decision, error) {
	if claims.TenantID == "" {
		return authkit.Deny(authkit.DenyTenantMismatch), nil
	}

	tenant, err := a.tenants.Resolve(ctx, claims.TenantID)
	if errors.Is(err, authkit.ErrTenantMismatch) {
		return authkit.Deny(authkit.DenyTenantMismatch), nil
	}
	if err != nil {
		return authkit.Decision{}, fmt.Errorf("authz: resolve tenant: %w", err)
	}
	if !tenant.Active {
		return authkit.Deny(authkit.DenyTenantInactive), nil
	}
	if tenant.ID != resourceTenant {
		return authkit.Deny(authkit.DenyTenantMismatch), nil
	}
	return authkit.Allow(), nil
}

func (a *Authorizer) cachedDecision(key string) (authkit.Decision, bool) {
	if a.ttl <= 0 {
		return authkit.Decision{}, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.cache[key]
	if !ok || time.Since(c.at) >= a.ttl {
		return authkit.Decision{}, false
	}
	return c.decision, true
}

func (a *Authorizer) storeDecision(key string, d authkit.Decision) {
	if a.ttl <= 0 {
		return
	}
	a.mu.Lock()
	a.cache[key] = cached{decision: d, at: time.Now()}
	a.mu.Unlock()
}

// ClearCache drops all cached decisions. Call after role or tenant changes
// that must take effect before the TTL lapses.
func (a *Authorizer) ClearCache() {
	a.mu.Lock()
	a.cache = make(map[string]cached)
	a.mu.Unlock()
}

func cacheKey(claims *authkit.Claims, required authkit.Role, resourceTenant string) string {
	return strings.Join([]string{claims.Subject, claims.TenantID, claims.Role.String(), required.String(), resourceTenant}, "|")
}
