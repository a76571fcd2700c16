package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
)

type repo struct{}

func Provide() voucherdomain.Repository {
	return &repo{}
}

const voucherColumns = `id, user_id, reward_id, points_spent, code, state,
	issued_at, expires_at, presented_at, consumed_at, cancelled_at, metadata`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, voucher *voucherdomain.Voucher) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO vouchers (
			id, user_id, reward_id, points_spent, code, state,
			issued_at, expires_at, presented_at, consumed_at, cancelled_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		voucher.ID,
		voucher.UserID,
		voucher.RewardID,
		voucher.PointsSpent,
		voucher.Code,
		voucher.State,
		voucher.IssuedAt,
		voucher.ExpiresAt,
		voucher.PresentedAt,
		voucher.ConsumedAt,
		voucher.CancelledAt,
		voucher.Metadata,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*voucherdomain.Voucher, error) {
	var rows []voucherdomain.Voucher
	err := db.WithContext(ctx).Raw(
		`SELECT `+voucherColumns+` FROM vouchers WHERE id = ?`,
		id,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*voucherdomain.Voucher, error) {
	var rows []voucherdomain.Voucher
	err := db.WithContext(ctx).Raw(
		`SELECT `+voucherColumns+` FROM vouchers WHERE code = ?`,
		code,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]voucherdomain.Voucher, error) {
	var vouchers []voucherdomain.Voucher
	err := db.WithContext(ctx).Raw(
		`SELECT `+voucherColumns+` FROM vouchers WHERE user_id = ? ORDER BY id DESC`,
		userID,
	).Scan(&vouchers).Error
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to voucherdomain.State, at time.Time) (int64, error) {
	var stampColumn string
	switch to {
	case voucherdomain.StatePresented:
		stampColumn = "presented_at"
	case voucherdomain.StateConsumed:
		stampColumn = "consumed_at"
	case voucherdomain.StateCancelled:
		stampColumn = "cancelled_at"
	}

	var result *gorm.DB
	if stampColumn == "" {
		result = db.WithContext(ctx).Exec(
			`UPDATE vouchers SET state = ? WHERE id = ? AND state = ?`,
			to, id, from,
		)
	} else {
		result = db.WithContext(ctx).Exec(
			`UPDATE vouchers SET state = ?, `+stampColumn+` = ? WHERE id = ? AND state = ?`,
			to, at, id, from,
		)
	}
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) ExpireBatch(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE vouchers SET state = ?
		 WHERE state IN (?, ?) AND expires_at < ?`,
		voucherdomain.StateExpired,
		voucherdomain.StateIssued,
		voucherdomain.StatePresented,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) CountByState(ctx context.Context, db *gorm.DB) (map[voucherdomain.State]int64, error) {
	var rows []struct {
		State voucherdomain.State
		Total int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT state, COUNT(*) AS total FROM vouchers GROUP BY state`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[voucherdomain.State]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Total
	}
	return counts, nil
}
