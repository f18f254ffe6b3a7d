// Package authkit provides a framework-agnostic Go SDK for environment-aware
// authentication, role/tenant authorization, and feature-flag evaluation.
//
// The SDK defines interfaces for token storage, OAuth2 code exchange, session
// refresh, token verification, authorization, tenant resolution, and flag
// evaluation. Concrete implementations are injected via Option functions, so
// the SDK has no hard dependency on any specific identity provider.
//
// Example usage:
//
//	client, err := authkit.NewClient(
//	    authkit.Config{ProviderDomain: "auth.example.com", ClientID: "app"},
//	    authkit.WithTokenStore(store),
//	    authkit.WithExchanger(exchanger),
//	    authkit.WithAuthorizer(authorizer),
//	)
package authkit

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Client is the main entry point for authentication operations.
// Service implementations are injected via Option functions.
type Client struct {
	config    Config
	logger    *slog.Logger
	verifier  TokenVerifier
	store     TokenStore
	exchanger CodeExchanger
	sessions  SessionManager
	authz     Authorizer
	tenants   TenantResolver
	flags     FlagEvaluator
	users     UserDirectory
}

// Provider holds identity-provider settings for one deployment environment.
type Provider struct {
	// Domain is the identity provider host (e.g. "tenant.eu.auth0.com").
	Domain string

	// ClientID is the OAuth2 application client ID.
	ClientID string

	// ClientSecret is the OAuth2 application client secret.
	ClientSecret string

	// Audience is the API audience requested in token exchanges.
	Audience string
}

// Config holds connection and behavior configuration.
type Config struct {
	// ProviderDomain is the identity provider host used when no
	// environment overlay applies.
	ProviderDomain string

	// ClientID is the OAuth2 client ID.
	ClientID string

	// ClientSecret is the OAuth2 client secret.
	ClientSecret string

	// RedirectURI is the callback URI registered with the provider. Token
	// exchanges must present the exact URI used in the authorization
	// request.
	RedirectURI string

	// JWKSUrl is the URL to fetch JWKS public keys for local JWT
	// verification. If empty, defaults to
	// "https://<ProviderDomain>/.well-known/jwks.json".
	JWKSUrl string

	// Environment selects an entry from Environments. Empty means the
	// top-level provider settings are used as-is.
	Environment string

	// Environments maps deployment environment names (e.g. "staging",
	// "production") to provider settings overlaid onto the config.
	Environments map[string]Provider

	// RefreshBuffer is how long before expiry a session counts as near
	// expiry and is refreshed proactively. Default: 5 minutes.
	RefreshBuffer time.Duration

	// CacheTTL controls how long authorization decisions and flag
	// evaluations are cached locally. Default: 5 minutes.
	CacheTTL time.Duration

	// HTTPTimeout bounds every token exchange and refresh call.
	// Default: 60 seconds.
	HTTPTimeout time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTokenVerifier sets the token verification implementation.
func WithTokenVerifier(v TokenVerifier) Option {
	return func(c *Client) { c.verifier = v }
}

// WithTokenStore sets the token storage implementation.
func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.store = s }
}

// WithExchanger sets the OAuth2 code exchange implementation.
func WithExchanger(e CodeExchanger) Option {
	return func(c *Client) { c.exchanger = e }
}

// WithSessionManager sets the session refresh implementation.
func WithSessionManager(m SessionManager) Option {
	return func(c *Client) { c.sessions = m }
}

// WithAuthorizer sets the authorization implementation.
func WithAuthorizer(a Authorizer) Option {
	return func(c *Client) { c.authz = a }
}

// WithTenantResolver sets the tenant mapping implementation.
func WithTenantResolver(t TenantResolver) Option {
	return func(c *Client) { c.tenants = t }
}

// WithFlagEvaluator sets the feature-flag evaluation implementation.
func WithFlagEvaluator(f FlagEvaluator) Option {
	return func(c *Client) { c.flags = f }
}

// WithUserDirectory sets the user lookup implementation.
func WithUserDirectory(u UserDirectory) Option {
	return func(c *Client) { c.users = u }
}

// Defaults applied by NewClient.
const (
	DefaultRefreshBuffer = 5 * time.Minute
	DefaultCacheTTL      = 5 * time.Minute
	DefaultHTTPTimeout   = 60 * time.Second
)

// NewClient creates a new client with the given configuration and options.
// When cfg.Environment names an entry in cfg.Environments, that provider's
// settings replace the top-level ones before validation.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Environment != "" {
		env, ok := cfg.Environments[cfg.Environment]
		if !ok {
			return nil, fmt.Errorf("authkit: unknown environment %q", cfg.Environment)
		}
		cfg.ProviderDomain = env.Domain
		cfg.ClientID = env.ClientID
		cfg.ClientSecret = env.ClientSecret
	}
	if cfg.ProviderDomain == "" && cfg.JWKSUrl == "" {
		return nil, fmt.Errorf("authkit: at least one of ProviderDomain or JWKSUrl is required")
	}
	if cfg.JWKSUrl == "" {
		cfg.JWKSUrl = fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.ProviderDomain)
	}
	if cfg.RefreshBuffer == 0 {
		cfg.RefreshBuffer = DefaultRefreshBuffer
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}

	c := &Client{config: cfg}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the resolved client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the configured logger, or slog.Default when unset.
func (c *Client) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Verifier returns the token verifier, or nil if not configured.
func (c *Client) Verifier() TokenVerifier { return c.verifier }

// Store returns the token store, or nil if not configured.
func (c *Client) Store() TokenStore { return c.store }

// Exchanger returns the code exchanger, or nil if not configured.
func (c *Client) Exchanger() CodeExchanger { return c.exchanger }

// Sessions returns the session manager, or nil if not configured.
func (c *Client) Sessions() SessionManager { return c.sessions }

// Authz returns the authorizer, or nil if not configured.
func (c *Client) Authz() Authorizer { return c.authz }

// Tenants returns the tenant resolver, or nil if not configured.
func (c *Client) Tenants() TenantResolver { return c.tenants }

// Flags returns the flag evaluator, or nil if not configured.
func (c *Client) Flags() FlagEvaluator { return c.flags }

// Users returns the user directory, or nil if not configured.
func (c *Client) Users() UserDirectory { return c.users }

// Close releases all resources held by the client.
// Any injected service that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{
		c.verifier, c.store, c.exchanger, c.sessions,
		c.authz, c.tenants, c.flags, c.users,
	}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
