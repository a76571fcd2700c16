package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CreateRequest mints a voucher as part of a redemption transaction.
type CreateRequest struct {
	UserID      string
	RewardID    snowflake.ID
	PointsSpent int64
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Metadata    map[string]any
}

// Service owns the voucher lifecycle. Creation and cancellation are tx-only
// because they always belong to a redemption unit of work.
type Service interface {
	// CreateTx mints a voucher with a fresh unique code inside the
	// caller's transaction.
	CreateTx(ctx context.Context, tx *gorm.DB, req CreateRequest) (*Voucher, error)

	Get(ctx context.Context, id snowflake.ID) (*Voucher, error)
	GetByCode(ctx context.Context, code string) (*Voucher, error)
	ListByUser(ctx context.Context, userID string) ([]Voucher, error)

	// Present moves an issued voucher to presented. A voucher past its
	// expiry is swept to expired instead and the call fails.
	Present(ctx context.Context, code string) (*Voucher, error)
	// Consume moves a presented voucher to consumed, the terminal success
	// state.
	Consume(ctx context.Context, code string) (*Voucher, error)

	// CancelTx moves an issued voucher to cancelled inside the caller's
	// transaction. Replaying a cancel reports ErrInvalidTransition so the
	// caller can treat it as already done.
	CancelTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Voucher, error)

	// SweepExpired expires every live voucher past its expiry.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	// CountByState reports live totals per state.
	CountByState(ctx context.Context) (map[State]int64, error)
}
