package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
	"github.com/andinolabs/canje/internal/clock"
	pkgdb "github.com/andinolabs/canje/pkg/db"
)

const (
	apiKeyPrefix      = "pk_"
	apiKeySecretBytes = 24
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  catalogdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  catalogdomain.Repository
}

func NewService(p Params) catalogdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetReward(ctx context.Context, id snowflake.ID) (*catalogdomain.Reward, error) {
	reward, err := s.repo.FindReward(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, catalogdomain.ErrRewardNotFound
	}
	return reward, nil
}

func (s *Service) ListRewards(ctx context.Context, filter catalogdomain.ListFilter) ([]catalogdomain.Reward, error) {
	return s.repo.ListRewards(ctx, s.db, filter)
}

func (s *Service) ListPartners(ctx context.Context) ([]catalogdomain.Partner, error) {
	return s.repo.ListPartners(ctx, s.db)
}

func (s *Service) GetPartner(ctx context.Context, id snowflake.ID) (*catalogdomain.Partner, error) {
	partner, err := s.repo.FindPartner(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, catalogdomain.ErrPartnerNotFound
	}
	return partner, nil
}

func (s *Service) CheckEligible(ctx context.Context, id snowflake.ID, now time.Time) (*catalogdomain.Reward, error) {
	reward, err := s.GetReward(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := reward.EligibleAt(now); err != nil {
		return nil, err
	}
	if reward.Stock <= 0 {
		return nil, catalogdomain.ErrOutOfStock
	}
	return reward, nil
}

func (s *Service) LockRewardTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*catalogdomain.Reward, error) {
	reward, err := s.repo.FindRewardForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, catalogdomain.ErrRewardNotFound
	}
	return reward, nil
}

func (s *Service) DecrementStockTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	affected, err := s.repo.DecrementStock(ctx, tx, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return catalogdomain.ErrOutOfStock
	}
	return nil
}

func (s *Service) IncrementStockTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return s.repo.IncrementStock(ctx, tx, id)
}

func (s *Service) CreateReward(ctx context.Context, req catalogdomain.CreateRewardRequest) (*catalogdomain.Reward, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PointsCost <= 0 || req.Stock < 0 {
		return nil, catalogdomain.ErrInvalidReward
	}
	if req.ValidFrom != nil && req.ValidUntil != nil && req.ValidUntil.Before(*req.ValidFrom) {
		return nil, catalogdomain.ErrInvalidReward
	}

	partner, err := s.repo.FindPartner(ctx, s.db, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, catalogdomain.ErrPartnerNotFound
	}

	now := s.clock.Now()
	reward := &catalogdomain.Reward{
		ID:          s.genID.Generate(),
		PartnerID:   req.PartnerID,
		Slug:        slug.Make(req.Name),
		Name:        req.Name,
		Description: req.Description,
		PointsCost:  req.PointsCost,
		Stock:       req.Stock,
		Tags:        pq.StringArray(req.Tags),
		ImageURL:    req.ImageURL,
		ValidFrom:   req.ValidFrom,
		ValidUntil:  req.ValidUntil,
		Metadata:    datatypes.JSONMap(req.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.InsertReward(ctx, s.db, reward); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, catalogdomain.ErrDuplicateSlug
		}
		return nil, err
	}

	s.log.Info("reward created",
		zap.String("reward_id", reward.ID.String()),
		zap.String("slug", reward.Slug),
		zap.Int64("stock", reward.Stock),
	)
	return reward, nil
}

func (s *Service) UpdateReward(ctx context.Context, id snowflake.ID, req catalogdomain.UpdateRewardRequest) (*catalogdomain.Reward, error) {
	var updated *catalogdomain.Reward
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reward, err := s.LockRewardTx(ctx, tx, id)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return catalogdomain.ErrInvalidReward
			}
			reward.Name = name
		}
		if req.Description != nil {
			reward.Description = *req.Description
		}
		if req.PointsCost != nil {
			if *req.PointsCost <= 0 {
				return catalogdomain.ErrInvalidReward
			}
			reward.PointsCost = *req.PointsCost
		}
		if req.Stock != nil {
			if *req.Stock < 0 {
				return catalogdomain.ErrInvalidReward
			}
			reward.Stock = *req.Stock
		}
		if req.Tags != nil {
			reward.Tags = pq.StringArray(req.Tags)
		}
		if req.ImageURL != nil {
			reward.ImageURL = *req.ImageURL
		}
		if req.ValidFrom != nil {
			reward.ValidFrom = req.ValidFrom
		}
		if req.ValidUntil != nil {
			reward.ValidUntil = req.ValidUntil
		}
		if req.Metadata != nil {
			reward.Metadata = datatypes.JSONMap(req.Metadata)
		}
		reward.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateReward(ctx, tx, reward); err != nil {
			return err
		}
		updated = reward
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) CreatePartner(ctx context.Context, partner *catalogdomain.Partner) (*catalogdomain.Partner, error) {
	partner.Name = strings.TrimSpace(partner.Name)
	if partner.Name == "" {
		return nil, catalogdomain.ErrInvalidPartner
	}

	now := s.clock.Now()
	partner.ID = s.genID.Generate()
	if partner.Slug == "" {
		partner.Slug = slug.Make(partner.Name)
	}
	partner.CreatedAt = now
	partner.UpdatedAt = now

	if err := s.repo.InsertPartner(ctx, s.db, partner); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, catalogdomain.ErrDuplicateSlug
		}
		return nil, err
	}
	return partner, nil
}

func (s *Service) IssueAPIKey(ctx context.Context, partnerID snowflake.ID, scopes []string, expiresAt *time.Time) (string, *catalogdomain.PartnerAPIKey, error) {
	partner, err := s.repo.FindPartner(ctx, s.db, partnerID)
	if err != nil {
		return "", nil, err
	}
	if partner == nil {
		return "", nil, catalogdomain.ErrPartnerNotFound
	}

	id := s.genID.Generate()
	plain, hash, err := generateAPIKey(id)
	if err != nil {
		return "", nil, err
	}

	key := &catalogdomain.PartnerAPIKey{
		ID:        id,
		PartnerID: partnerID,
		KeyHash:   hash,
		Scopes:    pq.StringArray(scopes),
		IsActive:  true,
		ExpiresAt: expiresAt,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertAPIKey(ctx, s.db, key); err != nil {
		return "", nil, err
	}

	s.log.Info("partner api key issued",
		zap.String("partner_id", partnerID.String()),
		zap.String("key_id", id.String()),
	)
	return plain, key, nil
}

func (s *Service) AuthenticateAPIKey(ctx context.Context, rawKey string, now time.Time) (*catalogdomain.PartnerAPIKey, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, catalogdomain.ErrPartnerNotFound
	}

	hash := catalogdomain.HashAPIKey(rawKey)
	key, err := s.repo.FindAPIKeyByHash(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, catalogdomain.ErrPartnerNotFound
	}
	// The lookup already matched the hash; the explicit compare keeps the
	// verification constant-time.
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, catalogdomain.ErrPartnerNotFound
	}
	if !key.IsActive {
		return nil, catalogdomain.ErrPartnerNotFound
	}
	if key.ExpiresAt != nil && now.After(*key.ExpiresAt) {
		return nil, catalogdomain.ErrPartnerNotFound
	}
	return key, nil
}

func generateAPIKey(id snowflake.ID) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	secretPart := hex.EncodeToString(secret)
	idPart := strings.ToUpper(strconv.FormatInt(int64(id), 36))
	plain := fmt.Sprintf("%s%s_%s", apiKeyPrefix, idPart, secretPart)
	return plain, catalogdomain.HashAPIKey(plain), nil
}
