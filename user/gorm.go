package user

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	authkit "github.com/halcyonlabs/authkit-go"
)

// Record is the users table row.
type Record struct {
	ID        string `gorm:"primaryKey;size:36"`
	Email     string `gorm:"uniqueIndex;size:255"`
	Role      string `gorm:"size:32;default:viewer"`
	TenantID  string `gorm:"size:36;index"`
	Sector    string `gorm:"size:64"`
	Active    bool   `gorm:"default:true;index"`
	Metadata  datatypes.JSONMap
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName maps Record to the users table.
func (Record) TableName() string { return "users" }

// Gorm is a Backend over the users table.
type Gorm struct {
	db *gorm.DB
}

var _ Backend = (*Gorm)(nil)

// NewGorm creates a GORM-backed directory backend.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// AutoMigrate creates or updates the users table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// Get returns a user by ID.
func (g *Gorm) Get(ctx context.Context, userID string) (*authkit.User, error) {
	var rec Record
	err := g.db.WithContext(ctx).First(&rec, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toUser(), nil
}

// List returns users ordered by ID with pagination.
func (g *Gorm) List(ctx context.Context, opts authkit.ListOptions) ([]*authkit.User, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size < 1 {
		size = 20
	}

	var recs []Record
	err := g.db.WithContext(ctx).
		Order("id").
		Offset((page - 1) * size).
		Limit(size).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	users := make([]*authkit.User, len(recs))
	for i := range recs {
		users[i] = recs[i].toUser()
	}
	return users, nil
}

// SetActive flips a user's active bit.
func (g *Gorm) SetActive(ctx context.Context, userID string, active bool) error {
	res := g.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", userID).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Save inserts or updates a user row.
func (g *Gorm) Save(ctx context.Context, u *authkit.User) error {
	rec := Record{
		ID:       u.ID,
		Email:    u.Email,
		Role:     u.Role.String(),
		TenantID: u.TenantID,
		Sector:   u.Sector,
		Active:   u.Active,
		Metadata: datatypes.JSONMap(u.Metadata),
	}
	return g.db.WithContext(ctx).Save(&rec).Error
}

func (r *Record) toUser() *authkit.User {
	role, _ := authkit.ParseRole(r.Role)
	return &authkit.User{
		ID:       r.ID,
		Email:    r.Email,
		Role:     role,
		TenantID: r.TenantID,
		Sector:   r.Sector,
		Active:   r.Active,
		Metadata: map[string]any(r.Metadata),
	}
}
