package ginmw_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	authkit "github.com/halcyonlabs/authkit-go"
	"github.com/halcyonlabs/authkit-go/middleware/ginmw"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubVerifier accepts tokens of the form "token-<subject>".
type stubVerifier struct {
	claims map[string]*authkit.Claims
}

func (s *stubVerifier) Verify(_ context.Context, token string) (*authkit.Claims, error) {
	if c, ok := s.claims[token]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("stub: bad token")
}

type stubAuthz struct {
	decision authkit.Decision
	err      error
}

func (s *stubAuthz) Authorize(context.Context, *authkit.Claims, authkit.Role, string) (authkit.Decision, error) {
	return s.decision, s.err
}

type stubFlags struct {
	enabled map[string]bool
}

func (s *stubFlags) Evaluate(_ context.Context, key string, _ *authkit.User) (authkit.FlagResult, error) {
	if s.enabled[key] {
		return authkit.FlagResult{Enabled: true, Reason: authkit.FlagFullRollout}, nil
	}
	return authkit.FlagResult{Reason: authkit.FlagDisabled}, nil
}

type stubResolver struct {
	tenants map[string]*authkit.Tenant
}

func (s *stubResolver) Resolve(_ context.Context, id string) (*authkit.Tenant, error) {
	if t, ok := s.tenants[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("stub: %w", authkit.ErrTenantMismatch)
}

func testClient(t *testing.T, opts ...authkit.Option) *authkit.Client {
	t.Helper()
	base := []authkit.Option{
		authkit.WithTokenVerifier(&stubVerifier{claims: map[string]*authkit.Claims{
			"token-alice": {Subject: "alice", Email: "alice@acme.test", Role: authkit.RoleAdmin, TenantID: "tenant-1"},
			"token-bob":   {Subject: "bob", Role: authkit.RoleViewer, TenantID: "tenant-1"},
		}}),
	}
	client, err := authkit.NewClient(authkit.Config{ProviderDomain: "idp.test"}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func doRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthValidToken(t *testing.T) {
	client := testClient(t)
	r := gin.New()
	r.Use(ginmw.Auth(client))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": ginmw.GetUserID(c),
			"email":   ginmw.GetEmail(c),
		})
	})

	w := doRequest(r, http.MethodGet, "/me", "token-alice")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if body := w.Body.String(); !contains(body, "alice") {
		t.Errorf("body = %s, want alice", body)
	}
}

func TestAuthMissingToken(t *testing.T) {
	client := testClient(t)
	r := gin.New()
	r.Use(ginmw.Auth(client))
	r.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := doRequest(r, http.MethodGet, "/me", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthInvalidToken(t *testing.T) {
	client := testClient(t)
	r := gin.New()
	r.Use(ginmw.Auth(client))
	r.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := doRequest(r, http.MethodGet, "/me", "garbage"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthExcludedPath(t *testing.T) {
	client := testClient(t)
	r := gin.New()
	r.Use(ginmw.Auth(client, ginmw.WithExcludedPaths("/healthz")))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := doRequest(r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRequireRoleAllowed(t *testing.T) {
	client := testClient(t, authkit.WithAuthorizer(&stubAuthz{decision: authkit.Allow()}))
	r := gin.New()
	r.Use(ginmw.Auth(client))
	r.GET("/tenants/:tenant_id/reports", ginmw.RequireRole(client, authkit.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	if w := doRequest(r, http.MethodGet, "/tenants/tenant-1/reports", "token-alice"); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRequireRoleDenied(t *testing.T) {
	client := testClient(t, authkit.WithAuthorizer(&stubAuthz{decision: authkit.Deny(authkit.DenyInsufficientRole)}))
	r := gin.New()
	r.Use(ginmw.Auth(client))
	r.GET("/admin", ginmw.RequireRole(client, authkit.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := doRequest(r, http.MethodGet, "/admin", "token-bob")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if body := w.Body.String(); !contains(body, authkit.DenyInsufficientRole) {
		t.Errorf("body = %s, want deny reason", body)
	}
}

func TestTenantScopeRewritesToInternalID(t *testing.T) {
	resolver := &stubResolver{tenants: map[string]*authkit.Tenant{
		"org_acme": {ID: "internal-uuid-1", ExternalID: "org_acme", Active: true},
	}}
	client := testClient(t, authkit.WithTenantResolver(resolver))
	r := gin.New()
	r.Use(ginmw.Auth(client))
	r.GET("/tenants/:tenant_id/data", ginmw.TenantScope(client), func(c *gin.Context) {
		c.String(http.StatusOK, ginmw.GetResourceTenant(c))
	})

	w := doRequest(r, http.MethodGet, "/tenants/org_acme/data", "token-alice")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "internal-uuid-1" {
		t.Errorf("tenant id = %q, want internal-uuid-1", w.Body.String())
	}
}

func TestTenantScopeUnknownTenant(t *testing.T) {
	client := testClient(t, authkit.WithTenantResolver(&stubResolver{tenants: map[string]*authkit.Tenant{}}))
	r := gin.New()
	r.Use(ginmw.Auth(client))
	r.GET("/tenants/:tenant_id/data", ginmw.TenantScope(client), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	if w := doRequest(r, http.MethodGet, "/tenants/org_nope/data", "token-alice"); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestTenantScopeInactiveTenant(t *testing.T) {
	resolver := &stubResolver{tenants: map[string]*authkit.Tenant{
		"org_dead": {ID: "internal-2", ExternalID: "org_dead", Active: false},
	}}
	client := testClient(t, authkit.WithTenantResolver(resolver))
	r := gin.New()
	r.Use(ginmw.Auth(client))
	r.GET("/tenants/:tenant_id/data", ginmw.TenantScope(client), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	if w := doRequest(r, http.MethodGet, "/tenants/org_dead/data", "token-alice"); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestFeatureGate(t *testing.T) {
	client := testClient(t, authkit.WithFlagEvaluator(&stubFlags{enabled: map[string]bool{"beta.reports": true}}))
	r := gin.New()
	r.Use(ginmw.Auth(client))
	r.GET("/beta", ginmw.FeatureGate(client, "beta.reports"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/experimental", ginmw.FeatureGate(client, "experimental.ui"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	if w := doRequest(r, http.MethodGet, "/beta", "token-alice"); w.Code != http.StatusOK {
		t.Errorf("enabled flag: status = %d, want 200", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/experimental", "token-alice"); w.Code != http.StatusNotFound {
		t.Errorf("disabled flag: status = %d, want 404", w.Code)
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
