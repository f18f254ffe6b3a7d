// Package session keeps a stored session fresh. It implements the refresh
// state machine VALID → NEAR_EXPIRY → REFRESHING → VALID, falling to
// EXPIRED when a refresh fails.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	authkit "github.com/halcyonlabs/authkit-go"
	"github.com/halcyonlabs/authkit-go/metrics"
	"golang.org/x/sync/singleflight"
)

// State is the manager's view of the stored session.
type State int32

const (
	StateValid State = iota
	StateNearExpiry
	StateRefreshing
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateNearExpiry:
		return "near_expiry"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// Manager implements authkit.SessionManager over a token store and exchanger.
//
// Only one refresh is ever in flight; concurrent triggers await the same
// result via singleflight. This dedup-then-await discipline is the only
// concurrency control the flow needs: the store is written exclusively here
// and by the code exchange path, and only on successful responses.
type Manager struct {
	store     authkit.TokenStore
	exchanger authkit.CodeExchanger
	buffer    time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	state atomic.Int32
	sf    singleflight.Group
}

var _ authkit.SessionManager = (*Manager)(nil)

// Option configures the Manager.
type Option func(*Manager)

// WithRefreshBuffer sets how long before hard expiry a session counts as
// near expiry. Default: 5 minutes.
func WithRefreshBuffer(d time.Duration) Option {
	return func(m *Manager) { m.buffer = d }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics wires refresh outcome counters.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// New creates a session manager over the given store and exchanger.
func New(store authkit.TokenStore, exchanger authkit.CodeExchanger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		exchanger: exchanger,
		buffer:    authkit.DefaultRefreshBuffer,
		logger:    slog.Default(),
		metrics:   metrics.New(false),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State returns the manager's current state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// AccessToken returns a valid access token, refreshing first when the
// stored one is within the expiry buffer.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	tok, err := m.store.Token(ctx)
	if err != nil {
		return "", err
	}

	exp, err := m.store.ExpiresAt(ctx)
	if err != nil {
		return "", err
	}

	if exp.IsZero() || time.Now().Before(exp.Add(-m.buffer)) {
		m.state.Store(int32(StateValid))
		return tok, nil
	}

	m.state.Store(int32(StateNearExpiry))
	m.logger.Debug("access token near expiry, refreshing",
		slog.Time("expires_at", exp))

	sess, err := m.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

// Refresh exchanges the stored refresh token for a new session. The local
// expiry clock is advisory only; a server-side 401 triggers this path
// regardless (the server is authoritative). On failure the store is
// cleared and ErrSessionExpired surfaces: the caller re-authenticates from
// scratch, no further retries.
func (m *Manager) Refresh(ctx context.Context) (*authkit.Session, error) {
	result, err, _ := m.sf.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*authkit.Session), nil
}

func (m *Manager) refresh(ctx context.Context) (*authkit.Session, error) {
	m.state.Store(int32(StateRefreshing))

	rt, err := m.store.RefreshToken(ctx)
	if err != nil {
		return nil, m.expire(ctx, fmt.Errorf("no refresh token: %w", err))
	}

	sess, err := m.exchanger.Refresh(ctx, rt)
	if err != nil {
		return nil, m.expire(ctx, err)
	}

	// Some providers do not rotate the refresh token; keep the old one.
	if sess.RefreshToken == "" {
		sess.RefreshToken = rt
	}

	if err := m.store.SetTokens(ctx, sess.AccessToken, sess.RefreshToken, time.Until(sess.ExpiresAt)); err != nil {
		return nil, m.expire(ctx, fmt.Errorf("persisting refreshed tokens: %w", err))
	}

	m.state.Store(int32(StateValid))
	m.metrics.RecordRefresh("success")
	m.logger.Debug("session refreshed", slog.Time("expires_at", sess.ExpiresAt))
	return sess, nil
}

// expire clears the store and transitions to EXPIRED.
func (m *Manager) expire(ctx context.Context, cause error) error {
	m.state.Store(int32(StateExpired))
	m.metrics.RecordRefresh("failure")
	m.logger.Warn("session refresh failed, clearing tokens",
		slog.String("cause", cause.Error()))
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("clearing token store failed", slog.String("error", err.Error()))
	}
	return fmt.Errorf("session: %v: %w", cause, authkit.ErrSessionExpired)
}
