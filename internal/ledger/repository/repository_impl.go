package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	ledgerdomain "github.com/andinolabs/canje/internal/ledger/domain"
	pkgdb "github.com/andinolabs/canje/pkg/db"
	"github.com/andinolabs/canje/pkg/db/pagination"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) EnsureBalance(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO point_balances (user_id, balance, version, created_at, updated_at)
		 VALUES (?, 0, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	).Error
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, userID string) (*ledgerdomain.PointBalance, error) {
	var rows []ledgerdomain.PointBalance
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, balance, version, created_at, updated_at
		 FROM point_balances WHERE user_id = ?`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) FindBalanceForUpdate(ctx context.Context, db *gorm.DB, userID string) (*ledgerdomain.PointBalance, error) {
	var rows []ledgerdomain.PointBalance
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, balance, version, created_at, updated_at
		 FROM point_balances WHERE user_id = ?`+pkgdb.LockingClause(db),
		userID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) ApplyDelta(ctx context.Context, db *gorm.DB, userID string, delta int64, fromVersion int64) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE point_balances
		 SET balance = balance + ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND version = ?`,
		delta,
		userID,
		fromVersion,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *ledgerdomain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, user_id, delta, reason, related_voucher_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.Delta,
		entry.Reason,
		entry.RelatedVoucherID,
		entry.CreatedAt,
	).Error
}

func (r *repo) FindEntryByVoucher(ctx context.Context, db *gorm.DB, voucherID snowflake.ID, reason ledgerdomain.EntryReason) (*ledgerdomain.LedgerEntry, error) {
	var rows []ledgerdomain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, delta, reason, related_voucher_id, created_at
		 FROM ledger_entries WHERE related_voucher_id = ? AND reason = ?`,
		voucherID,
		reason,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, userID string, p pagination.Pagination) ([]ledgerdomain.LedgerEntry, *pagination.PageInfo, error) {
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	query := db.WithContext(ctx).
		Table("ledger_entries").
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(pageSize + 1)

	if p.PageToken != "" {
		cursor, err := pagination.DecodeCursor(p.PageToken)
		if err != nil {
			return nil, nil, err
		}
		if cursor.ID != "" {
			query = query.Where("id < ?", cursor.ID)
		}
	}

	var entries []ledgerdomain.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	info := &pagination.PageInfo{}
	if len(entries) > pageSize {
		entries = entries[:pageSize]
		last := entries[len(entries)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: last.ID.String()})
		if err != nil {
			return nil, nil, err
		}
		info.NextPageToken = token
		info.HasMore = true
	}

	return entries, info, nil
}

func (r *repo) SumEntries(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE user_id = ?`,
		userID,
	).Scan(&total).Error
	return total, err
}
