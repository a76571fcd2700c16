// Package domain contains the voucher model and its state machine. A voucher
// is proof of a completed redemption, presented at the partner and consumed
// on fulfilment.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// State is a voucher lifecycle state.
type State string

const (
	StateIssued    State = "issued"
	StatePresented State = "presented"
	StateConsumed  State = "consumed"
	StateExpired   State = "expired"
	StateCancelled State = "cancelled"
)

// transitions is the full set of legal state changes. Everything else is
// rejected.
var transitions = map[State][]State{
	StateIssued:    {StatePresented, StateExpired, StateCancelled},
	StatePresented: {StateConsumed, StateExpired},
}

// CanTransition reports whether from → to is a legal state change.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Voucher records one redeemed reward. The code is what the user shows the
// partner; it is unique across all vouchers ever issued.
type Voucher struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID      string            `gorm:"type:text;not null;index" json:"user_id"`
	RewardID    snowflake.ID      `gorm:"not null;index" json:"reward_id"`
	PointsSpent int64             `gorm:"not null" json:"points_spent"`
	Code        string            `gorm:"type:text;not null;uniqueIndex" json:"code"`
	State       State             `gorm:"type:text;not null" json:"state"`
	IssuedAt    time.Time         `gorm:"not null" json:"issued_at"`
	ExpiresAt   time.Time         `gorm:"not null;index" json:"expires_at"`
	PresentedAt *time.Time        `json:"presented_at,omitempty"`
	ConsumedAt  *time.Time        `json:"consumed_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName sets the database table name.
func (Voucher) TableName() string { return "vouchers" }
