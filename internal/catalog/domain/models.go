// Package domain contains the reward catalog models: partner businesses and
// the stock-limited rewards they back.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Partner is a local business that fulfils rewards (restaurant, museum, tour
// operator).
type Partner struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Category  string       `gorm:"type:text" json:"category"`
	Address   string       `gorm:"type:text" json:"address"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Partner) TableName() string { return "partners" }

// PartnerAPIKey authenticates the partner confirmation channel. Only the
// SHA-256 hash of the key is stored.
type PartnerAPIKey struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	PartnerID snowflake.ID   `gorm:"not null;index"`
	KeyHash   string         `gorm:"type:text;not null;uniqueIndex"`
	Scopes    pq.StringArray `gorm:"type:text[]"`
	IsActive  bool           `gorm:"not null;default:true"`
	ExpiresAt *time.Time
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PartnerAPIKey) TableName() string { return "partner_api_keys" }

// Reward is a redeemable catalog item with a fixed point cost and a finite
// stock. Stock never goes below zero.
type Reward struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	PartnerID   snowflake.ID      `gorm:"not null;index" json:"partner_id"`
	Slug        string            `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Name        string            `gorm:"type:text;not null" json:"name"`
	Description string            `gorm:"type:text" json:"description"`
	PointsCost  int64             `gorm:"not null" json:"points_cost"`
	Stock       int64             `gorm:"not null;default:0" json:"stock"`
	Tags        pq.StringArray    `gorm:"type:text[]" json:"tags"`
	ImageURL    string            `gorm:"type:text" json:"image_url"`
	ValidFrom   *time.Time        `json:"valid_from,omitempty"`
	ValidUntil  *time.Time        `json:"valid_until,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Reward) TableName() string { return "rewards" }

// EligibleAt reports whether the reward can be redeemed at the given instant,
// ignoring stock. Stock is checked separately because it needs the row lock.
func (r *Reward) EligibleAt(now time.Time) error {
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrRewardNotStarted
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return ErrRewardExpired
	}
	return nil
}
