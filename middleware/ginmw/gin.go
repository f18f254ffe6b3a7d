// Package ginmw provides Gin HTTP middleware for authentication and
// authorization.
//
// All middleware functions accept an *authkit.Client and use its interfaces
// (TokenVerifier, Authorizer, FlagEvaluator), with no direct dependency on
// any specific identity provider backend.
package ginmw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	authkit "github.com/halcyonlabs/authkit-go"
)

// Context keys for storing auth data in gin.Context.
const (
	KeyUserID         = "authkit_user_id"
	KeyTenantID       = "authkit_tenant_id"
	KeyResourceTenant = "authkit_resource_tenant"
	KeyRole           = "authkit_role"
	KeyEmail          = "authkit_email"
	KeyClaims         = "authkit_claims"
)

// AuthOption configures Auth middleware behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedPaths map[string]bool
}

// WithExcludedPaths sets paths that skip authentication (e.g. health checks).
func WithExcludedPaths(paths ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, p := range paths {
			cfg.excludedPaths[p] = true
		}
	}
}

// Auth returns Gin middleware that verifies bearer tokens via client.Verifier().
// On success, it stores claims in the context (retrievable via GetUserID, GetClaims, etc.).
// Responds with 401 if the token is missing or invalid.
func Auth(client *authkit.Client, opts ...AuthOption) gin.HandlerFunc {
	cfg := &authConfig{excludedPaths: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		if cfg.excludedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		tokenStr := extractBearerToken(c.Request)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			return
		}

		verifier := client.Verifier()
		if verifier == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token verifier not configured"})
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(KeyClaims, claims)
		c.Set(KeyUserID, claims.Subject)
		c.Set(KeyTenantID, claims.TenantID)
		c.Set(KeyRole, claims.Role)
		if claims.Email != "" {
			c.Set(KeyEmail, claims.Email)
		}

		// Thread identity through the request context for downstream services.
		ctx := authkit.WithClaims(c.Request.Context(), claims)
		ctx = authkit.WithUserID(ctx, claims.Subject)
		ctx = authkit.WithTenantID(ctx, claims.TenantID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole returns Gin middleware enforcing a minimum role for the
// resource tenant. The tenant comes from TenantScope's resolution when that
// middleware ran earlier, otherwise from the raw ":tenant_id" route param.
// Requires Auth middleware to run first. Responds with 403 carrying the
// deny reason.
func RequireRole(client *authkit.Client, required authkit.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := client.Authz()
		if authz == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorizer not configured"})
			return
		}

		claims := GetClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing claims"})
			return
		}

		resourceTenant := GetResourceTenant(c)
		if resourceTenant == "" {
			resourceTenant = c.Param("tenant_id")
		}
		decision, err := authz.Authorize(c.Request.Context(), claims, required, resourceTenant)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization check failed"})
			return
		}
		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied", "reason": decision.Reason})
			return
		}

		c.Next()
	}
}

// TenantScope returns Gin middleware that resolves the route tenant
// identifier to an internal tenant and stores the internal UUID under
// KeyResourceTenant. Requires Auth middleware to run first.
func TenantScope(client *authkit.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		resolver := client.Tenants()
		if resolver == nil {
			c.Next()
			return
		}

		identifier := c.Param("tenant_id")
		if identifier == "" {
			identifier = GetTenantID(c)
		}
		if identifier == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing tenant context"})
			return
		}

		tenant, err := resolver.Resolve(c.Request.Context(), identifier)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "unknown tenant"})
			return
		}
		if !tenant.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "tenant is inactive"})
			return
		}

		c.Set(KeyResourceTenant, tenant.ID)
		c.Request = c.Request.WithContext(authkit.WithTenantOverride(c.Request.Context(), tenant.ID))
		c.Next()
	}
}

// FeatureGate returns Gin middleware that rejects requests with 404 when
// the named flag evaluates disabled for the authenticated user. Requires
// Auth middleware to run first.
func FeatureGate(client *authkit.Client, flagKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		flags := client.Flags()
		if flags == nil {
			c.Next()
			return
		}

		claims := GetClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing claims"})
			return
		}

		user := &authkit.User{
			ID:       claims.Subject,
			Email:    claims.Email,
			Role:     claims.Role,
			TenantID: claims.TenantID,
		}
		result, err := flags.Evaluate(c.Request.Context(), flagKey, user)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "flag evaluation failed"})
			return
		}
		if !result.Enabled {
			// 404 keeps gated features invisible rather than teasing 403s.
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		c.Next()
	}
}

// --- Context helpers ---

// GetUserID returns the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	v, _ := c.Get(KeyUserID)
	s, _ := v.(string)
	return s
}

// GetResourceTenant returns the resolved internal tenant ID for the
// current route, set by TenantScope.
func GetResourceTenant(c *gin.Context) string {
	v, _ := c.Get(KeyResourceTenant)
	s, _ := v.(string)
	return s
}

// GetTenantID returns the caller's tenant ID from the Gin context.
func GetTenantID(c *gin.Context) string {
	v, _ := c.Get(KeyTenantID)
	s, _ := v.(string)
	return s
}

// GetRole returns the user's role from the Gin context.
func GetRole(c *gin.Context) authkit.Role {
	v, _ := c.Get(KeyRole)
	r, _ := v.(authkit.Role)
	return r
}

// GetEmail returns the user's email from the Gin context.
func GetEmail(c *gin.Context) string {
	v, _ := c.Get(KeyEmail)
	s, _ := v.(string)
	return s
}

// GetClaims returns the full claims from the Gin context.
func GetClaims(c *gin.Context) *authkit.Claims {
	v, _ := c.Get(KeyClaims)
	cl, _ := v.(*authkit.Claims)
	return cl
}

// --- internal helpers ---

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
