package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository persists redemption request records.
type Repository interface {
	// Insert records a request outcome. It reports the number of rows
	// written; zero means another call already owns the request ID.
	Insert(ctx context.Context, db *gorm.DB, req *RedemptionRequest) (int64, error)

	// Find returns the recorded outcome, or nil when the request ID is
	// unseen.
	Find(ctx context.Context, db *gorm.DB, requestID string) (*RedemptionRequest, error)
}
