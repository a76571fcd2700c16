// Package domain contains persistence models for point balances and their
// audit trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntryReason classifies why a balance changed.
type EntryReason string

const (
	ReasonReviewBonus     EntryReason = "review_bonus"
	ReasonVisitBonus      EntryReason = "visit_bonus"
	ReasonRedemption      EntryReason = "redemption"
	ReasonRefund          EntryReason = "refund"
	ReasonAdminAdjustment EntryReason = "admin_adjustment"
)

// ValidReason reports whether reason is a known entry reason.
func ValidReason(reason EntryReason) bool {
	switch reason {
	case ReasonReviewBonus, ReasonVisitBonus, ReasonRedemption, ReasonRefund, ReasonAdminAdjustment:
		return true
	default:
		return false
	}
}

// CreditReason reports whether reason may be supplied by the credit surface.
// Redemption and refund entries are written only by the engine itself.
func CreditReason(reason EntryReason) bool {
	switch reason {
	case ReasonReviewBonus, ReasonVisitBonus, ReasonAdminAdjustment:
		return true
	default:
		return false
	}
}

// PointBalance is the current balance for one user. The version counter
// increments on every mutation for optimistic-concurrency checks.
type PointBalance struct {
	UserID    string    `gorm:"primaryKey;type:text"`
	Balance   int64     `gorm:"not null;default:0"`
	Version   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PointBalance) TableName() string { return "point_balances" }

// LedgerEntry is an immutable, append-only record of one balance change.
// The sum of a user's deltas always equals the stored balance.
type LedgerEntry struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	UserID           string        `gorm:"type:text;not null;index"`
	Delta            int64         `gorm:"not null"`
	Reason           EntryReason   `gorm:"type:text;not null"`
	RelatedVoucherID *snowflake.ID `gorm:"index"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }
