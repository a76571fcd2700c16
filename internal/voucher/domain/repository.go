package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists vouchers. State changes go through Transition, a
// compare-and-swap on the current state.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, voucher *Voucher) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Voucher, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Voucher, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]Voucher, error)

	// Transition moves id from one state to another, stamping the
	// matching timestamp column. It reports the number of rows changed;
	// zero means the voucher was not in the expected state.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to State, at time.Time) (int64, error)

	// ExpireBatch marks every live voucher past its expiry. Returns the
	// number of vouchers swept.
	ExpireBatch(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)

	// CountByState groups live totals for the stats pusher.
	CountByState(ctx context.Context, db *gorm.DB) (map[State]int64, error)
}
