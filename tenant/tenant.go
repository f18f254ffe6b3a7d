// Package tenant resolves tenant identifiers. Internal tenant IDs are
// stable UUIDs; identity providers hand out their own organization
// identifiers in a separate namespace. Resolution maps external
// identifiers onto internal tenants through an explicit allowlist, never
// a fuzzy match, so a bad mapping denies access instead of leaking
// another tenant's data.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	authkit "github.com/halcyonlabs/authkit-go"
)

// ErrNotFound is returned by a Source that has no matching tenant.
var ErrNotFound = errors.New("tenant: not found")

// Source provides tenant lookups for the resolver.
// Implementations: Static (fixed allowlist), Gorm (provisioning table).
type Source interface {
	// ByID returns the tenant with the given internal UUID.
	ByID(ctx context.Context, id string) (*authkit.Tenant, error)

	// ByExternalID returns the tenant mapped to the given identity
	// provider organization identifier.
	ByExternalID(ctx context.Context, externalID string) (*authkit.Tenant, error)
}

// Resolver implements authkit.TenantResolver with TTL-bounded caching of
// both positive and negative lookups.
type Resolver struct {
	source Source
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	tenant *authkit.Tenant
	err    error
	at     time.Time
}

var _ authkit.TenantResolver = (*Resolver)(nil)

// Option configures the Resolver.
type Option func(*Resolver)

// WithTTL sets how long lookups are cached. Default: 5 minutes.
func WithTTL(d time.Duration) Option {
	return func(r *Resolver) { r.ttl = d }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver over the given source.
func New(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source: source,
		ttl:    authkit.DefaultCacheTTL,
		logger: slog.Default(),
		cache:  make(map[string]cacheEntry),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve accepts an internal tenant UUID or a known external identifier.
// Unknown identifiers return ErrTenantMismatch: an unmapped organization is
// denied, not guessed at.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*authkit.Tenant, error) {
	if identifier == "" {
		return nil, fmt.Errorf("tenant: identifier cannot be empty")
	}

	r.mu.RLock()
	entry, ok := r.cache[identifier]
	r.mu.RUnlock()
	if ok && time.Since(entry.at) < r.ttl {
		return entry.tenant, entry.err
	}

	tenant, err := r.lookup(ctx, identifier)
	if err != nil && !cacheable(err) {
		// Infrastructure failures are not cached.
		return nil, err
	}

	r.mu.Lock()
	r.cache[identifier] = cacheEntry{tenant: tenant, err: err, at: time.Now()}
	r.mu.Unlock()
	return tenant, err
}

func (r *Resolver) lookup(ctx context.Context, identifier string) (*authkit.Tenant, error) {
	if _, parseErr := uuid.Parse(identifier); parseErr == nil {
		t, err := r.source.ByID(ctx, identifier)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("tenant: unknown tenant %q: %w", identifier, authkit.ErrTenantMismatch)
		}
		if err != nil {
			return nil, fmt.Errorf("tenant: %w", err)
		}
		return t, nil
	}

	t, err := r.source.ByExternalID(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		r.logger.Warn("external org identifier has no tenant mapping",
			slog.String("external_id", identifier))
		return nil, fmt.Errorf("tenant: unmapped external identifier %q: %w", identifier, authkit.ErrTenantMismatch)
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: %w", err)
	}
	return t, nil
}

// ClearCache drops all cached lookups.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.cache = make(map[string]cacheEntry)
	r.mu.Unlock()
}

func cacheable(err error) bool {
	return err == nil || errors.Is(err, authkit.ErrTenantMismatch)
}

// Static is a fixed in-memory allowlist of tenants, keyed by both internal
// UUID and external identifier.
type Static struct {
	byID  map[string]*authkit.Tenant
	byExt map[string]*authkit.Tenant
}

var _ Source = (*Static)(nil)

// NewStatic builds a static source from the given tenants.
func NewStatic(tenants ...authkit.Tenant) *Static {
	s := &Static{
		byID:  make(map[string]*authkit.Tenant, len(tenants)),
		byExt: make(map[string]*authkit.Tenant, len(tenants)),
	}
	for i := range tenants {
		t := tenants[i]
		s.byID[t.ID] = &t
		if t.ExternalID != "" {
			s.byExt[t.ExternalID] = &t
		}
	}
	return s
}

// ByID returns the tenant with the given internal UUID.
func (s *Static) ByID(_ context.Context, id string) (*authkit.Tenant, error) {
	if t, ok := s.byID[id]; ok {
		return t, nil
	}
	return nil, ErrNotFound
}

// ByExternalID returns the tenant mapped to the external identifier.
func (s *Static) ByExternalID(_ context.Context, externalID string) (*authkit.Tenant, error) {
	if t, ok := s.byExt[externalID]; ok {
		return t, nil
	}
	return nil, ErrNotFound
}
