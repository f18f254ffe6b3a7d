// Package fake provides an in-memory authkit client for testing.
//
// Use fake.NewClient() in unit tests to avoid network calls and external
// dependencies. The verifier treats the token string as a user ID, and the
// exchanger redeems seeded one-time codes. Authorization, tenant resolution,
// flag evaluation and the user directory run the real implementations over
// in-memory sources, so test behavior matches production behavior.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	authkit "github.com/halcyonlabs/authkit-go"
	"github.com/halcyonlabs/authkit-go/authz"
	"github.com/halcyonlabs/authkit-go/flags"
	"github.com/halcyonlabs/authkit-go/session"
	"github.com/halcyonlabs/authkit-go/tenant"
	"github.com/halcyonlabs/authkit-go/tokenstore"
	"github.com/halcyonlabs/authkit-go/user"
)

// Option configures the fake client.
type Option func(*state)

type state struct {
	mu      sync.RWMutex
	users   map[string]*authkit.User // userID → User
	tenants []authkit.Tenant
	flags   []flags.Flag
	codes   map[string]string // one-time code → userID
}

// WithUser adds a fake user. The user's ID doubles as a valid bearer token.
func WithUser(u authkit.User) Option {
	return func(s *state) {
		user := u
		s.users[u.ID] = &user
	}
}

// WithTenant adds a fake tenant to the resolver allowlist.
func WithTenant(t authkit.Tenant) Option {
	return func(s *state) { s.tenants = append(s.tenants, t) }
}

// WithFlag adds a feature flag definition, overrides included.
func WithFlag(f flags.Flag) Option {
	return func(s *state) { s.flags = append(s.flags, f) }
}

// WithCode seeds a one-time authorization code redeemable for the given
// user's session.
func WithCode(code, userID string) Option {
	return func(s *state) { s.codes[code] = userID }
}

// NewClient creates an *authkit.Client with all services wired to
// in-memory implementations.
func NewClient(opts ...Option) *authkit.Client {
	s := &state{
		users: make(map[string]*authkit.User),
		codes: make(map[string]string),
	}
	for _, o := range opts {
		o(s)
	}

	backend := user.NewMemory()
	for _, u := range s.users {
		backend.Put(u)
	}
	dir := user.New(backend)
	exchanger := &fakeExchanger{s: s}
	store := tokenstore.New([]tokenstore.Channel{tokenstore.NewMemory()})
	resolver := tenant.New(tenant.NewStatic(s.tenants...))

	c, _ := authkit.NewClient(
		authkit.Config{ProviderDomain: "fake.localhost"},
		authkit.WithTokenVerifier(&fakeVerifier{s: s}),
		authkit.WithTokenStore(store),
		authkit.WithExchanger(exchanger),
		authkit.WithSessionManager(session.New(store, exchanger)),
		authkit.WithTenantResolver(resolver),
		authkit.WithAuthorizer(authz.New(resolver, authz.WithUserDirectory(dir))),
		authkit.WithFlagEvaluator(flags.New(flags.NewMemory(s.flags...))),
		authkit.WithUserDirectory(dir),
	)
	return c
}

// --- TokenVerifier ---

type fakeVerifier struct{ s *state }

func (f *fakeVerifier) Verify(_ context.Context, token string) (*authkit.Claims, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	// Treat the token string as a userID for simplicity
	user, ok := f.s.users[token]
	if !ok {
		return nil, fmt.Errorf("fake: unknown token %q", token)
	}

	return &authkit.Claims{
		Subject:   user.ID,
		Email:     user.Email,
		Role:      user.Role,
		TenantID:  user.TenantID,
		ExpiresAt: time.Now().Add(1 * time.Hour),
		IssuedAt:  time.Now(),
		Issuer:    "fake",
	}, nil
}

// --- CodeExchanger ---

type fakeExchanger struct{ s *state }

func (f *fakeExchanger) ExchangeCode(_ context.Context, code, _ string) (*authkit.Session, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	userID, ok := f.s.codes[code]
	if !ok {
		return nil, fmt.Errorf("fake: %w", authkit.ErrInvalidCode)
	}
	delete(f.s.codes, code) // codes are single use

	user := f.s.users[userID]
	if user == nil {
		return nil, fmt.Errorf("fake: code %q maps to unknown user", code)
	}
	return f.sessionFor(user), nil
}

func (f *fakeExchanger) Refresh(_ context.Context, refreshToken string) (*authkit.Session, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	for _, user := range f.s.users {
		if refreshToken == "rt-"+user.ID {
			return f.sessionFor(user), nil
		}
	}
	return nil, fmt.Errorf("fake: %w", authkit.ErrInvalidCode)
}

func (f *fakeExchanger) sessionFor(user *authkit.User) *authkit.Session {
	return &authkit.Session{
		AccessToken:  user.ID, // accepted by the fake verifier
		RefreshToken: "rt-" + user.ID,
		ExpiresAt:    time.Now().Add(1 * time.Hour),
		UserID:       user.ID,
		TenantID:     user.TenantID,
		Role:         user.Role,
	}
}

// NewTenantID returns a fresh internal tenant UUID for seeding tests.
func NewTenantID() string { return uuid.NewString() }
