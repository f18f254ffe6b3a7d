package authkit

import (
	"fmt"
	"strings"
	"time"
)

// Role is an ordered permission level. Higher roles imply every capability
// of the roles below them, so checks must always use AtLeast, never
// string equality (role == "admin" silently excludes super_admin).
type Role int

const (
	RoleUnknown Role = iota
	RoleViewer
	RoleAnalyst
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleViewer:     "viewer",
	RoleAnalyst:    "analyst",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "super_admin",
}

// ParseRole converts a role claim string into a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "viewer":
		return RoleViewer, nil
	case "analyst":
		return RoleAnalyst, nil
	case "admin":
		return RoleAdmin, nil
	case "super_admin", "superadmin":
		return RoleSuperAdmin, nil
	}
	return RoleUnknown, fmt.Errorf("authkit: unknown role %q", s)
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// AtLeast reports whether r grants everything required does.
func (r Role) AtLeast(required Role) bool {
	return r != RoleUnknown && r >= required
}

// Session holds the credentials and identity resolved from a token exchange.
// It is an explicit value threaded through context, never a package-level
// singleton, so multiple sessions can coexist in one process.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	TenantID     string
	Role         Role
	Permissions  []string
}

// Expired reports whether the access token is past its hard expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Claims represents the standard claims extracted from a verified token.
type Claims struct {
	Subject     string
	Email       string
	Role        Role
	TenantID    string // internal UUID or external IdP organization identifier
	Permissions []string
	ExpiresAt   time.Time
	IssuedAt    time.Time
	Issuer      string
	Extra       map[string]any
}

// User represents an account known to the platform. Users are never hard
// deleted; Active is flipped off instead.
type User struct {
	ID       string
	Email    string
	Role     Role
	TenantID string
	Sector   string
	Active   bool
	Metadata map[string]any
}

// Tenant represents an isolated customer account scoping all data access.
// ID is the stable internal UUID; ExternalID is the identity-provider
// organization identifier, which lives in a different namespace.
type Tenant struct {
	ID         string
	ExternalID string
	Name       string
	Sector     string
	Active     bool
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Deny reasons surfaced in Decision.Reason.
const (
	DenyInsufficientRole = "insufficient_role"
	DenyTenantMismatch   = "tenant_mismatch"
	DenyUserInactive     = "user_inactive"
	DenyTenantInactive   = "tenant_inactive"
	DenyNoClaims         = "no_claims"
)

// Allow is the Decision for a granted check.
func Allow() Decision { return Decision{Allowed: true} }

// Deny builds a Decision carrying the given reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// FlagResult is the outcome of a feature-flag evaluation.
type FlagResult struct {
	Enabled bool
	Reason  string
}

// Evaluation reasons surfaced in FlagResult.Reason.
const (
	FlagNotFound         = "not_found"
	FlagInactive         = "inactive"
	FlagUserOverride     = "user_override"
	FlagOrgOverride      = "org_override"
	FlagSectorBlocked    = "sector_blocked"
	FlagSectorNotAllowed = "sector_not_allowed"
	FlagDisabled         = "flag_disabled"
	FlagFullRollout      = "full_rollout"
	FlagPercentRollout   = "percentage_rollout"
)

// ListOptions holds pagination parameters.
type ListOptions struct {
	Page     int
	PageSize int
}
