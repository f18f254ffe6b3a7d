package authkit

import "errors"

// Error taxonomy. Transient classes (ErrRateLimited, ErrNetworkTimeout) may
// be retried with backoff; terminal classes must be surfaced immediately.
// Authorization denials (ErrTenantMismatch, ErrInsufficientRole) are never
// retried.
var (
	// ErrStorage means every token storage channel failed. A single
	// channel failing is non-fatal and only logged.
	ErrStorage = errors.New("authkit: token storage unavailable")

	// ErrNoToken means no channel could produce a stored token.
	ErrNoToken = errors.New("authkit: no token available")

	// ErrInvalidCode means the authorization code was expired or already
	// exchanged. The user must sign in again.
	ErrInvalidCode = errors.New("authkit: authorization code invalid or already used")

	// ErrRateLimited means the identity provider throttled the request.
	ErrRateLimited = errors.New("authkit: rate limited by identity provider")

	// ErrNetworkTimeout means the provider did not respond in time.
	ErrNetworkTimeout = errors.New("authkit: network timeout")

	// ErrSessionExpired means a refresh failed and the stored tokens were
	// cleared. The user must sign in again.
	ErrSessionExpired = errors.New("authkit: session expired, sign in again")

	// ErrTenantMismatch means the claims' tenant does not map to the
	// requested resource's tenant.
	ErrTenantMismatch = errors.New("authkit: tenant mismatch")

	// ErrInsufficientRole means the claims' role is below the required level.
	ErrInsufficientRole = errors.New("authkit: insufficient role")
)

// Retryable reports whether the error class permits a bounded retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetworkTimeout)
}
