package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/andinolabs/canje/pkg/db/pagination"
)

// CreditRequest adds points to a user's balance.
type CreditRequest struct {
	UserID string      `json:"user_id" binding:"required"`
	Amount int64       `json:"amount" binding:"required"`
	Reason EntryReason `json:"reason" binding:"required"`
}

// Service owns all balance mutations. Debit and Refund only exist in
// transactional form because they are always part of a larger redemption
// or cancellation unit of work.
type Service interface {
	// GetBalance returns the current balance. Unknown users read as zero.
	GetBalance(ctx context.Context, userID string) (*PointBalance, error)

	// Credit appends a positive entry in its own transaction.
	Credit(ctx context.Context, req CreditRequest) (*LedgerEntry, error)

	// DebitTx subtracts amount inside the caller's transaction, which must
	// already hold the user's balance lock via LockBalanceTx.
	DebitTx(ctx context.Context, tx *gorm.DB, balance *PointBalance, amount int64, voucherID snowflake.ID) (*LedgerEntry, error)

	// RefundTx returns the points debited for voucherID. Replaying a refund
	// for the same voucher returns the original entry without a second
	// credit.
	RefundTx(ctx context.Context, tx *gorm.DB, userID string, amount int64, voucherID snowflake.ID) (*LedgerEntry, error)

	// LockBalanceTx ensures the user's balance row exists and locks it for
	// the duration of the caller's transaction.
	LockBalanceTx(ctx context.Context, tx *gorm.DB, userID string) (*PointBalance, error)

	// History lists a user's ledger entries newest first.
	History(ctx context.Context, userID string, p pagination.Pagination) ([]LedgerEntry, *pagination.PageInfo, error)
}
