package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows catalog listings.
type ListFilter struct {
	PartnerID snowflake.ID
	Tag       string
	// InStock keeps only rewards with remaining stock.
	InStock bool
}

// Repository persists partners, rewards and partner API keys. Methods take
// the *gorm.DB they run against so stock mutations can join a redemption
// transaction.
type Repository interface {
	InsertPartner(ctx context.Context, db *gorm.DB, partner *Partner) error
	FindPartner(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Partner, error)
	ListPartners(ctx context.Context, db *gorm.DB) ([]Partner, error)

	InsertReward(ctx context.Context, db *gorm.DB, reward *Reward) error
	UpdateReward(ctx context.Context, db *gorm.DB, reward *Reward) error
	FindReward(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reward, error)
	// FindRewardForUpdate locks the reward row for the surrounding
	// transaction.
	FindRewardForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Reward, error)
	ListRewards(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Reward, error)

	// DecrementStock subtracts one unit iff stock remains. It reports the
	// number of rows changed; zero means the reward sold out.
	DecrementStock(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	// IncrementStock returns one unit to the pool on cancellation.
	IncrementStock(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertAPIKey(ctx context.Context, db *gorm.DB, key *PartnerAPIKey) error
	FindAPIKeyByHash(ctx context.Context, db *gorm.DB, keyHash string) (*PartnerAPIKey, error)
}
