package flags

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Flag scope values.
const (
	ScopeGlobal       = "global"
	ScopeOrganisation = "organisation"
	ScopeSector       = "sector"
	ScopeUser         = "user"
)

// Flag status values. Only active flags evaluate; inactive and deprecated
// flags read as disabled.
const (
	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusDeprecated = "deprecated"
)

// Flag is a feature flag definition.
type Flag struct {
	ID                uint                       `gorm:"primaryKey"`
	Key               string                     `gorm:"uniqueIndex;size:128;not null"`
	Description       string                     `gorm:"size:512"`
	Enabled           bool                       `gorm:"default:false"`
	RolloutPercentage int                        `gorm:"default:0"`
	Scope             string                     `gorm:"size:32;default:global"`
	AllowedSectors    datatypes.JSONSlice[string]
	BlockedSectors    datatypes.JSONSlice[string]
	Status            string                     `gorm:"size:32;default:active;index"`
	Overrides         []Override                 `gorm:"foreignKey:FlagID"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName maps Flag to the feature_flags table.
func (Flag) TableName() string { return "feature_flags" }

// Override pins a flag's value for one organisation or one user. Exactly
// one of OrganisationID and UserID is set.
type Override struct {
	ID             uint    `gorm:"primaryKey"`
	FlagID         uint    `gorm:"index;not null"`
	OrganisationID *string `gorm:"size:36;index"`
	UserID         *string `gorm:"size:36;index"`
	Enabled        bool
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// TableName maps Override to the feature_flag_overrides table.
func (Override) TableName() string { return "feature_flag_overrides" }

// Validate enforces the subject mutual exclusion before an override is
// persisted.
func (o *Override) Validate() error {
	hasOrg := o.OrganisationID != nil && *o.OrganisationID != ""
	hasUser := o.UserID != nil && *o.UserID != ""
	if hasOrg == hasUser {
		return fmt.Errorf("flags: override must target exactly one of organisation or user")
	}
	return nil
}

// BeforeSave is a GORM hook rejecting overrides with an invalid subject.
func (o *Override) BeforeSave(*gorm.DB) error {
	return o.Validate()
}

// Expired reports whether the override has lapsed at the given instant.
func (o *Override) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}
