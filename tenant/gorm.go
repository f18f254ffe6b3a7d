package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	authkit "github.com/halcyonlabs/authkit-go"
)

// Record is the tenant provisioning row. A row is written when a tenant is
// onboarded; its external_id column is the only place an identity provider
// organization identifier is tied to an internal tenant.
type Record struct {
	ID         string `gorm:"primaryKey;size:36"`
	ExternalID string `gorm:"uniqueIndex;size:128"`
	Name       string `gorm:"size:255"`
	Sector     string `gorm:"size:64;index"`
	Active     bool   `gorm:"default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName maps Record to the tenants table.
func (Record) TableName() string { return "tenants" }

// Gorm is a Source backed by the tenant provisioning table.
type Gorm struct {
	db *gorm.DB
}

var _ Source = (*Gorm)(nil)

// NewGorm creates a GORM-backed source.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// AutoMigrate creates or updates the tenants table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// ByID returns the tenant with the given internal UUID.
func (g *Gorm) ByID(ctx context.Context, id string) (*authkit.Tenant, error) {
	var rec Record
	err := g.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toTenant(), nil
}

// ByExternalID returns the tenant mapped to the external identifier.
func (g *Gorm) ByExternalID(ctx context.Context, externalID string) (*authkit.Tenant, error) {
	var rec Record
	err := g.db.WithContext(ctx).First(&rec, "external_id = ?", externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toTenant(), nil
}

// Provision inserts a new tenant mapping. A missing ID is generated.
func (g *Gorm) Provision(ctx context.Context, t *authkit.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	rec := Record{
		ID:         t.ID,
		ExternalID: t.ExternalID,
		Name:       t.Name,
		Sector:     t.Sector,
		Active:     t.Active,
	}
	return g.db.WithContext(ctx).Create(&rec).Error
}

func (r *Record) toTenant() *authkit.Tenant {
	return &authkit.Tenant{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Name:       r.Name,
		Sector:     r.Sector,
		Active:     r.Active,
	}
}
