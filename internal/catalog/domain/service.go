package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CreateRewardRequest describes a new catalog item. The slug is derived from
// the name when omitted.
type CreateRewardRequest struct {
	PartnerID   snowflake.ID   `json:"partner_id" binding:"required"`
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	PointsCost  int64          `json:"points_cost" binding:"required"`
	Stock       int64          `json:"stock"`
	Tags        []string       `json:"tags"`
	ImageURL    string         `json:"image_url"`
	ValidFrom   *time.Time     `json:"valid_from"`
	ValidUntil  *time.Time     `json:"valid_until"`
	Metadata    map[string]any `json:"metadata"`
}

// UpdateRewardRequest patches an existing catalog item. Nil fields are left
// untouched.
type UpdateRewardRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	PointsCost  *int64         `json:"points_cost"`
	Stock       *int64         `json:"stock"`
	Tags        []string       `json:"tags"`
	ImageURL    *string        `json:"image_url"`
	ValidFrom   *time.Time     `json:"valid_from"`
	ValidUntil  *time.Time     `json:"valid_until"`
	Metadata    map[string]any `json:"metadata"`
}

// Service exposes catalog reads to everyone and stock movements to the
// redemption engine.
type Service interface {
	GetReward(ctx context.Context, id snowflake.ID) (*Reward, error)
	ListRewards(ctx context.Context, filter ListFilter) ([]Reward, error)
	ListPartners(ctx context.Context) ([]Partner, error)
	GetPartner(ctx context.Context, id snowflake.ID) (*Partner, error)

	// CheckEligible validates the reward can be redeemed now: it exists,
	// its validity window is open and stock remains. Advisory only; the
	// engine re-checks under the row lock.
	CheckEligible(ctx context.Context, id snowflake.ID, now time.Time) (*Reward, error)

	// LockRewardTx locks the reward row inside the caller's transaction.
	LockRewardTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Reward, error)
	// DecrementStockTx takes one unit inside the caller's transaction,
	// failing with ErrOutOfStock when none remain.
	DecrementStockTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
	// IncrementStockTx gives one unit back inside the caller's transaction.
	IncrementStockTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error

	CreateReward(ctx context.Context, req CreateRewardRequest) (*Reward, error)
	UpdateReward(ctx context.Context, id snowflake.ID, req UpdateRewardRequest) (*Reward, error)
	CreatePartner(ctx context.Context, partner *Partner) (*Partner, error)

	// IssueAPIKey mints a partner API key and returns the plaintext secret
	// once. Only its hash is stored.
	IssueAPIKey(ctx context.Context, partnerID snowflake.ID, scopes []string, expiresAt *time.Time) (string, *PartnerAPIKey, error)
	// AuthenticateAPIKey resolves a presented key to its record, enforcing
	// active state and expiry.
	AuthenticateAPIKey(ctx context.Context, rawKey string, now time.Time) (*PartnerAPIKey, error)
}
