package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/andinolabs/canje/pkg/db/pagination"
)

// Repository persists balances and ledger entries. Every method takes the
// *gorm.DB it should run against so callers can compose operations inside a
// single transaction.
type Repository interface {
	// EnsureBalance creates the zero-balance row for userID if it does not
	// exist yet. Safe to call concurrently.
	EnsureBalance(ctx context.Context, db *gorm.DB, userID string) error

	// FindBalance returns the balance row, or nil when the user has no row.
	FindBalance(ctx context.Context, db *gorm.DB, userID string) (*PointBalance, error)

	// FindBalanceForUpdate locks the balance row for the duration of the
	// surrounding transaction.
	FindBalanceForUpdate(ctx context.Context, db *gorm.DB, userID string) (*PointBalance, error)

	// ApplyDelta adjusts the stored balance and bumps the version counter.
	// It reports the number of rows changed so callers can detect a lost
	// optimistic-concurrency race.
	ApplyDelta(ctx context.Context, db *gorm.DB, userID string, delta int64, fromVersion int64) (int64, error)

	// InsertEntry appends one immutable ledger entry.
	InsertEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error

	// FindEntryByVoucher returns the entry with the given reason tied to a
	// voucher, or nil when none exists.
	FindEntryByVoucher(ctx context.Context, db *gorm.DB, voucherID snowflake.ID, reason EntryReason) (*LedgerEntry, error)

	// ListEntries returns a user's entries newest first.
	ListEntries(ctx context.Context, db *gorm.DB, userID string, p pagination.Pagination) ([]LedgerEntry, *pagination.PageInfo, error)

	// SumEntries totals a user's deltas. Used by invariant checks.
	SumEntries(ctx context.Context, db *gorm.DB, userID string) (int64, error)
}
