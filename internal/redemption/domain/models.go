// Package domain contains the redemption request record and the engine
// contract. The request table is what makes Redeem exactly-once per
// request_id.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"

	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
)

// RedemptionRequest pins the outcome of one redeem call. Successful requests
// point at the minted voucher; failed ones carry the failure code so replays
// observe the same answer.
type RedemptionRequest struct {
	RequestID   string        `gorm:"primaryKey;type:text"`
	UserID      string        `gorm:"type:text;not null;index"`
	RewardID    snowflake.ID  `gorm:"not null"`
	Fingerprint string        `gorm:"type:text;not null"`
	VoucherID   *snowflake.ID `gorm:"index"`
	Failure     string        `gorm:"type:text"`
	CreatedAt   time.Time     `gorm:"not null"`
}

// TableName sets the database table name.
func (RedemptionRequest) TableName() string { return "redemption_requests" }

// Fingerprint binds a request ID to its parameters. A replay with the same
// ID but different parameters is a client bug and gets rejected.
func Fingerprint(userID string, rewardID snowflake.ID) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + rewardID.String()))
	return hex.EncodeToString(sum[:])
}

// Result is the outcome of a successful redemption. Balance and stock are
// read back inside the same transaction, so the client can reconcile its
// local view without a second round trip.
type Result struct {
	Voucher     *voucherdomain.Voucher `json:"voucher"`
	Balance     int64                  `json:"balance"`
	RewardStock int64                  `json:"reward_stock"`
	// Replayed marks responses served from the request record rather than
	// a fresh redemption.
	Replayed bool `json:"replayed"`
}

// CancelResult reports a cancellation and the refunded amount.
type CancelResult struct {
	Voucher  *voucherdomain.Voucher `json:"voucher"`
	Refunded int64                  `json:"refunded"`
	// Replayed marks cancels that found the voucher already cancelled.
	Replayed bool `json:"replayed"`
}
