// Package oauth2 provides the OAuth2 authorization-code and refresh-token
// exchange client for the identity provider callback flow.
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	authkit "github.com/halcyonlabs/authkit-go"
	"github.com/halcyonlabs/authkit-go/metrics"
	"golang.org/x/sync/singleflight"
)

// Exchanger implements authkit.CodeExchanger against an HTTP token endpoint.
//
// Authorization codes are one-time use: the provider invalidates a code on
// first exchange and rejects reuse. Concurrent exchanges of the same code
// are collapsed with singleflight so a duplicate caller awaits the first
// exchange's result instead of burning the code.
type Exchanger struct {
	clientID     string
	clientSecret string
	tokenURL     string
	audience     string

	httpClient *http.Client
	verifier   authkit.TokenVerifier
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxRetries int
	backoff    time.Duration

	sf singleflight.Group
}

var _ authkit.CodeExchanger = (*Exchanger)(nil)

// Option configures the Exchanger.
type Option func(*Exchanger)

// WithHTTPClient sets a custom HTTP client for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Exchanger) { e.httpClient = c }
}

// WithVerifier sets a verifier used to extract identity claims from freshly
// exchanged access tokens. Without it, sessions carry tokens only.
func WithVerifier(v authkit.TokenVerifier) Option {
	return func(e *Exchanger) { e.verifier = v }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exchanger) { e.logger = l }
}

// WithRetry sets the retry budget for retryable failures (rate limiting,
// network timeouts) and the base backoff between attempts.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(e *Exchanger) {
		e.maxRetries = maxRetries
		e.backoff = backoff
	}
}

// WithAudience sets the API audience requested in exchanges.
func WithAudience(audience string) Option {
	return func(e *Exchanger) { e.audience = audience }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exchanger) { e.metrics = m }
}

// New creates an exchanger for the given token endpoint.
func New(clientID, clientSecret, tokenURL string, opts ...Option) *Exchanger {
	e := &Exchanger{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		httpClient:   &http.Client{Timeout: authkit.DefaultHTTPTimeout},
		logger:       slog.Default(),
		metrics:      metrics.New(false),
		maxRetries:   2,
		backoff:      500 * time.Millisecond,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// tokenResponse is the raw JSON response from the token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// errorResponse is the RFC 6749 error body.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ExchangeCode exchanges a one-time authorization code for a session.
// redirectURI must be the exact URI used in the authorization request.
func (e *Exchanger) ExchangeCode(ctx context.Context, code, redirectURI string) (*authkit.Session, error) {
	if code == "" {
		return nil, fmt.Errorf("oauth2: code cannot be empty")
	}

	result, err, shared := e.sf.Do(code, func() (interface{}, error) {
		form := url.Values{
			"grant_type":   {"authorization_code"},
			"code":         {code},
			"redirect_uri": {redirectURI},
		}
		return e.exchange(ctx, form)
	})
	if err != nil {
		e.metrics.RecordExchange(exchangeResult(err))
		return nil, err
	}
	e.metrics.RecordExchange("success")
	if shared {
		e.logger.Debug("duplicate code exchange coalesced")
	}
	return result.(*authkit.Session), nil
}

// Refresh exchanges a refresh token for a new session. Callers needing
// single-flight refresh discipline go through the session manager.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*authkit.Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("oauth2: refresh token cannot be empty")
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return e.exchange(ctx, form)
}

// exchange runs one grant with bounded retries for retryable error classes.
func (e *Exchanger) exchange(ctx context.Context, form url.Values) (*authkit.Session, error) {
	form.Set("client_id", e.clientID)
	if e.clientSecret != "" {
		form.Set("client_secret", e.clientSecret)
	}
	if e.audience != "" {
		form.Set("audience", e.audience)
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			e.logger.Debug("retrying token exchange",
				slog.Int("attempt", attempt),
				slog.String("cause", lastErr.Error()))
			select {
			case <-time.After(e.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		sess, err := e.post(ctx, form)
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if !authkit.Retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (e *Exchanger) post(ctx context.Context, form url.Values) (*authkit.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("oauth2: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("oauth2: %w: %v", authkit.ErrNetworkTimeout, err)
		}
		return nil, fmt.Errorf("oauth2: token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oauth2: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, e.classify(resp.StatusCode, body)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("oauth2: failed to decode response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("oauth2: empty access_token in response")
	}

	sess := &authkit.Session{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}

	if e.verifier != nil {
		claims, err := e.verifier.Verify(ctx, tokenResp.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("oauth2: exchanged token failed verification: %w", err)
		}
		sess.UserID = claims.Subject
		sess.TenantID = claims.TenantID
		sess.Role = claims.Role
		sess.Permissions = claims.Permissions
	}
	return sess, nil
}

// classify maps a non-200 token endpoint response onto the error taxonomy.
func (e *Exchanger) classify(status int, body []byte) error {
	var errResp errorResponse
	_ = json.Unmarshal(body, &errResp)

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("oauth2: %w: %s", authkit.ErrRateLimited, errResp.Description)
	case errResp.Error == "invalid_grant" || errResp.Error == "invalid_code":
		return fmt.Errorf("oauth2: %w: %s", authkit.ErrInvalidCode, errResp.Description)
	case status == http.StatusGatewayTimeout:
		return fmt.Errorf("oauth2: %w: status %d", authkit.ErrNetworkTimeout, status)
	default:
		return fmt.Errorf("oauth2: token endpoint returned %d: %s", status, string(body))
	}
}

// exchangeResult maps an exchange error onto a metric label.
func exchangeResult(err error) string {
	switch {
	case errors.Is(err, authkit.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, authkit.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, authkit.ErrNetworkTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
