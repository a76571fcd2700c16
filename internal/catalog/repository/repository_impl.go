package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
	pkgdb "github.com/andinolabs/canje/pkg/db"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) InsertPartner(ctx context.Context, db *gorm.DB, partner *catalogdomain.Partner) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO partners (
			id, slug, name, category, address, latitude, longitude, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		partner.ID,
		partner.Slug,
		partner.Name,
		partner.Category,
		partner.Address,
		partner.Latitude,
		partner.Longitude,
		partner.CreatedAt,
		partner.UpdatedAt,
	).Error
}

func (r *repo) FindPartner(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.Partner, error) {
	var rows []catalogdomain.Partner
	err := db.WithContext(ctx).Raw(
		`SELECT id, slug, name, category, address, latitude, longitude, created_at, updated_at
		 FROM partners WHERE id = ?`,
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

func (r *repo) ListPartners(ctx context.Context, db *gorm.DB) ([]catalogdomain.Partner, error) {
	var partners []catalogdomain.Partner
	err := db.WithContext(ctx).Raw(
		`SELECT id, slug, name, category, address, latitude, longitude, created_at, updated_at
		 FROM partners ORDER BY name ASC`,
	).Scan(&partners).Error
	if err != nil {
		return nil, err
	}
	return partners, nil
}

func (r *repo) InsertReward(ctx context.Context, db *gorm.DB, reward *catalogdomain.Reward) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO rewards (
			id, partner_id, slug, name, description, points_cost, stock, tags,
			image_url, valid_from, valid_until, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reward.ID,
		reward.PartnerID,
		reward.Slug,
		reward.Name,
		reward.Description,
		reward.PointsCost,
		reward.Stock,
		reward.Tags,
		reward.ImageURL,
		reward.ValidFrom,
		reward.ValidUntil,
		reward.Metadata,
		reward.CreatedAt,
		reward.UpdatedAt,
	).Error
}

func (r *repo) UpdateReward(ctx context.Context, db *gorm.DB, reward *catalogdomain.Reward) error {
	return db.WithContext(ctx).Exec(
		`UPDATE rewards SET
			name = ?, description = ?, points_cost = ?, stock = ?, tags = ?,
			image_url = ?, valid_from = ?, valid_until = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		reward.Name,
		reward.Description,
		reward.PointsCost,
		reward.Stock,
		reward.Tags,
		reward.ImageURL,
		reward.ValidFrom,
		reward.ValidUntil,
		reward.Metadata,
		reward.UpdatedAt,
		reward.ID,
	).Error
}

func (r *repo) FindReward(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.Reward, error) {
	return r.findReward(ctx, db, id, "")
}

func (r *repo) FindRewardForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.Reward, error) {
	return r.findReward(ctx, db, id, pkgdb.LockingClause(db))
}

func (r *repo) findReward(ctx context.Context, db *gorm.DB, id snowflake.ID, lock string) (*catalogdomain.Reward, error) {
	var rows []catalogdomain.Reward
	err := db.WithContext(ctx).Raw(
		`SELECT id, partner_id, slug, name, description, points_cost, stock, tags,
		 image_url, valid_from, valid_until, metadata, created_at, updated_at
		 FROM rewards WHERE id = ?`+lock,
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

func (r *repo) ListRewards(ctx context.Context, db *gorm.DB, filter catalogdomain.ListFilter) ([]catalogdomain.Reward, error) {
	query := db.WithContext(ctx).Table("rewards").Order("points_cost ASC, id ASC")
	if filter.PartnerID != 0 {
		query = query.Where("partner_id = ?", filter.PartnerID)
	}
	if filter.InStock {
		query = query.Where("stock > 0")
	}

	var rewards []catalogdomain.Reward
	if err := query.Find(&rewards).Error; err != nil {
		return nil, err
	}

	// Tag filtering happens in memory: tags are stored as an array value
	// whose containment syntax differs per dialect.
	if filter.Tag == "" {
		return rewards, nil
	}
	filtered := rewards[:0]
	for _, reward := range rewards {
		for _, tag := range reward.Tags {
			if tag == filter.Tag {
				filtered = append(filtered, reward)
				break
			}
		}
	}
	return filtered, nil
}

func (r *repo) DecrementStock(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE rewards
		 SET stock = stock - 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND stock > 0`,
		id,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) IncrementStock(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE rewards
		 SET stock = stock + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		id,
	).Error
}

func (r *repo) InsertAPIKey(ctx context.Context, db *gorm.DB, key *catalogdomain.PartnerAPIKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO partner_api_keys (
			id, partner_id, key_hash, scopes, is_active, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.PartnerID,
		key.KeyHash,
		key.Scopes,
		key.IsActive,
		key.ExpiresAt,
		key.CreatedAt,
	).Error
}

func (r *repo) FindAPIKeyByHash(ctx context.Context, db *gorm.DB, keyHash string) (*catalogdomain.PartnerAPIKey, error) {
	var rows []catalogdomain.PartnerAPIKey
	err := db.WithContext(ctx).Raw(
		`SELECT id, partner_id, key_hash, scopes, is_active, expires_at, created_at
		 FROM partner_api_keys WHERE key_hash = ?`,
		keyHash,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
