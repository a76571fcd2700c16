package repository

import (
	"context"

	"gorm.io/gorm"

	redemptiondomain "github.com/andinolabs/canje/internal/redemption/domain"
)

type repo struct{}

func Provide() redemptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *redemptiondomain.RedemptionRequest) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO redemption_requests (
			request_id, user_id, reward_id, fingerprint, voucher_id, failure, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (request_id) DO NOTHING`,
		req.RequestID,
		req.UserID,
		req.RewardID,
		req.Fingerprint,
		req.VoucherID,
		req.Failure,
		req.CreatedAt,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, requestID string) (*redemptiondomain.RedemptionRequest, error) {
	var rows []redemptiondomain.RedemptionRequest
	err := db.WithContext(ctx).Raw(
		`SELECT request_id, user_id, reward_id, fingerprint, voucher_id, failure, created_at
		 FROM redemption_requests WHERE request_id = ?`,
		requestID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
