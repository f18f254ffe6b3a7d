// Package transport provides an http.RoundTripper that authenticates
// outbound API calls: it resolves a bearer token through the token store
// fallback chain, forwards cross-tenant override headers, and transparently
// refreshes the session once after a server-side 401.
package transport

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	authkit "github.com/halcyonlabs/authkit-go"
)

// Header names attached to outbound requests.
const (
	HeaderAuthorization = "Authorization"
	HeaderTenantContext = "X-Tenant-ID"
)

// Transport implements http.RoundTripper.
//
// When no token is resolvable and the endpoint is not on the
// unauthenticated allowlist, the request still goes out without the header:
// the server's 401 is authoritative, not the local token state.
type Transport struct {
	base     http.RoundTripper
	store    authkit.TokenStore
	sessions authkit.SessionManager
	skip     map[string]bool
	logger   *slog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures the Transport.
type Option func(*Transport)

// WithBase sets the underlying round tripper. Default: http.DefaultTransport.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) { t.base = rt }
}

// WithSessionManager enables refresh-and-retry on 401 responses.
func WithSessionManager(m authkit.SessionManager) Option {
	return func(t *Transport) { t.sessions = m }
}

// WithUnauthenticatedPaths sets request paths that never carry a bearer
// token (health checks, login, the OAuth2 callback).
func WithUnauthenticatedPaths(paths ...string) Option {
	return func(t *Transport) {
		for _, p := range paths {
			t.skip[p] = true
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// New creates an authenticating transport over the given token store.
func New(store authkit.TokenStore, opts ...Option) *Transport {
	t := &Transport{
		base:   http.DefaultTransport,
		store:  store,
		skip:   make(map[string]bool),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Client wraps the transport in an *http.Client with the default timeout.
func Client(store authkit.TokenStore, opts ...Option) *http.Client {
	return &http.Client{
		Timeout:   authkit.DefaultHTTPTimeout,
		Transport: New(store, opts...),
	}
}

// RoundTrip attaches credentials and retries exactly once after a 401 that
// a refresh recovers from. Requests without GetBody cannot be replayed and
// are returned as-is.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.skip[req.URL.Path] {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	out := req.Clone(ctx)

	tok, err := t.resolveToken(req)
	if err == nil {
		out.Header.Set(HeaderAuthorization, "Bearer "+tok)
	} else {
		t.logger.Debug("no bearer token resolved, proceeding unauthenticated",
			slog.String("path", req.URL.Path),
			slog.String("cause", err.Error()))
	}

	if override := authkit.TenantOverrideFromContext(ctx); override != "" {
		out.Header.Set(HeaderTenantContext, override)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || t.sessions == nil {
		return resp, nil
	}

	// The server rejected the token regardless of the local expiry clock;
	// refresh and replay once.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	sess, err := t.sessions.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("transport: rewinding request body: %w", err)
		}
		retry.Body = body
	}
	retry.Header.Set(HeaderAuthorization, "Bearer "+sess.AccessToken)
	if override := authkit.TenantOverrideFromContext(ctx); override != "" {
		retry.Header.Set(HeaderTenantContext, override)
	}

	return t.base.RoundTrip(retry)
}

// resolveToken prefers the session manager (which refreshes proactively)
// and falls back to a raw store read.
func (t *Transport) resolveToken(req *http.Request) (string, error) {
	if t.sessions != nil {
		return t.sessions.AccessToken(req.Context())
	}
	return t.store.Token(req.Context())
}
