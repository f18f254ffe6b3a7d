package fake_test

import (
	"context"
	"errors"
	"testing"

	authkit "github.com/halcyonlabs/authkit-go"
	"github.com/halcyonlabs/authkit-go/fake"
	"github.com/halcyonlabs/authkit-go/flags"
)

func seededClient() *authkit.Client {
	tenantID := fake.NewTenantID()
	return fake.NewClient(
		fake.WithTenant(authkit.Tenant{ID: tenantID, ExternalID: "org_acme", Name: "Acme", Sector: "finance", Active: true}),
		fake.WithUser(authkit.User{ID: "alice", Email: "alice@acme.test", Role: authkit.RoleAdmin, TenantID: "org_acme", Sector: "finance", Active: true}),
		fake.WithUser(authkit.User{ID: "bob", Email: "bob@acme.test", Role: authkit.RoleViewer, TenantID: "org_acme", Sector: "finance", Active: true}),
		fake.WithCode("code-alice", "alice"),
		fake.WithFlag(flags.Flag{Key: "beta.reports", Enabled: true, RolloutPercentage: 100, Scope: flags.ScopeGlobal, Status: flags.StatusActive}),
	)
}

func TestVerifierAcceptsSeededUser(t *testing.T) {
	c := seededClient()

	claims, err := c.Verifier().Verify(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "alice" || claims.Role != authkit.RoleAdmin {
		t.Errorf("claims = %+v, want alice/admin", claims)
	}
}

func TestVerifierRejectsUnknownToken(t *testing.T) {
	c := seededClient()

	if _, err := c.Verifier().Verify(context.Background(), "mallory"); err == nil {
		t.Error("Verify() accepted unknown token")
	}
}

func TestExchangeCodeOnceOnly(t *testing.T) {
	c := seededClient()
	ctx := context.Background()

	sess, err := c.Exchanger().ExchangeCode(ctx, "code-alice", "")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if sess.UserID != "alice" {
		t.Errorf("session.UserID = %q, want alice", sess.UserID)
	}

	if _, err := c.Exchanger().ExchangeCode(ctx, "code-alice", ""); !errors.Is(err, authkit.ErrInvalidCode) {
		t.Errorf("second exchange error = %v, want ErrInvalidCode", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	c := seededClient()
	ctx := context.Background()

	sess, err := c.Exchanger().ExchangeCode(ctx, "code-alice", "")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if err := c.Store().SetTokens(ctx, sess.AccessToken, sess.RefreshToken, 3600); err != nil {
		t.Fatalf("SetTokens() error = %v", err)
	}

	token, err := c.Sessions().AccessToken(ctx)
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if token != "alice" {
		t.Errorf("token = %q, want alice", token)
	}

	if _, err := c.Sessions().Refresh(ctx); err != nil {
		t.Errorf("Refresh() error = %v", err)
	}
}

func TestAuthorizeThroughFake(t *testing.T) {
	c := seededClient()
	ctx := context.Background()

	claims, err := c.Verifier().Verify(ctx, "alice")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	tenant, err := c.Tenants().Resolve(ctx, "org_acme")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	d, err := c.Authz().Authorize(ctx, claims, authkit.RoleAdmin, tenant.ID)
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if !d.Allowed {
		t.Errorf("Authorize() denied: %s", d.Reason)
	}
}

func TestAuthorizeDeniesViewerForAdmin(t *testing.T) {
	c := seededClient()
	ctx := context.Background()

	claims, err := c.Verifier().Verify(ctx, "bob")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	d, err := c.Authz().Authorize(ctx, claims, authkit.RoleAdmin, "")
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if d.Allowed || d.Reason != authkit.DenyInsufficientRole {
		t.Errorf("decision = %+v, want insufficient_role deny", d)
	}
}

func TestFlagEvaluation(t *testing.T) {
	c := seededClient()
	ctx := context.Background()

	user := &authkit.User{ID: "alice", TenantID: "org_acme", Sector: "finance"}
	r, err := c.Flags().Evaluate(ctx, "beta.reports", user)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !r.Enabled {
		t.Errorf("result = %+v, want enabled", r)
	}

	r, err = c.Flags().Evaluate(ctx, "no.such.flag", user)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if r.Enabled || r.Reason != authkit.FlagNotFound {
		t.Errorf("result = %+v, want disabled/not_found", r)
	}
}

func TestDeactivateUser(t *testing.T) {
	c := seededClient()
	ctx := context.Background()

	if err := c.Users().Deactivate(ctx, "bob"); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	user, err := c.Users().Get(ctx, "bob")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if user.Active {
		t.Error("user still active after Deactivate")
	}

	// Deactivation now blocks authorization.
	claims, _ := c.Verifier().Verify(ctx, "bob")
	d, err := c.Authz().Authorize(ctx, claims, authkit.RoleViewer, "")
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if d.Allowed || d.Reason != authkit.DenyUserInactive {
		t.Errorf("decision = %+v, want user_inactive deny", d)
	}
}

func TestListUsersPagination(t *testing.T) {
	c := seededClient()

	users, err := c.Users().List(context.Background(), authkit.ListOptions{Page: 1, PageSize: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 1 || users[0].ID != "alice" {
		t.Errorf("List() page 1 = %v, want [alice]", users)
	}

	users, err = c.Users().List(context.Background(), authkit.ListOptions{Page: 2, PageSize: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 1 || users[0].ID != "bob" {
		t.Errorf("List() page 2 = %v, want [bob]", users)
	}
}
