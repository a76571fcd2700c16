package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// RedeemRequest is the public redemption call. RequestID is the caller's
// idempotency key; resubmitting the same ID with the same parameters always
// returns the first outcome.
type RedeemRequest struct {
	UserID    string       `json:"user_id" binding:"required"`
	RewardID  snowflake.ID `json:"reward_id" binding:"required"`
	RequestID string       `json:"request_id" binding:"required"`
}

// Service is the redemption engine: the only component that spends points,
// takes stock and mints vouchers, and it does all three atomically.
type Service interface {
	Redeem(ctx context.Context, req RedeemRequest) (*Result, error)

	// Cancel voids an issued voucher, refunds its points and returns the
	// stock unit. Safe to replay.
	Cancel(ctx context.Context, voucherID snowflake.ID) (*CancelResult, error)
}
