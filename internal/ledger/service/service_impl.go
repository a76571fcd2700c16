package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andinolabs/canje/internal/clock"
	ledgerdomain "github.com/andinolabs/canje/internal/ledger/domain"
	obsmetrics "github.com/andinolabs/canje/internal/observability/metrics"
	"github.com/andinolabs/canje/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) GetBalance(ctx context.Context, userID string) (*ledgerdomain.PointBalance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}

	balance, err := s.repo.FindBalance(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		// Users accrue a balance row on first credit. Until then they
		// simply hold zero points.
		return &ledgerdomain.PointBalance{UserID: userID}, nil
	}
	return balance, nil
}

func (s *Service) Credit(ctx context.Context, req ledgerdomain.CreditRequest) (*ledgerdomain.LedgerEntry, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if !ledgerdomain.CreditReason(req.Reason) {
		return nil, ledgerdomain.ErrInvalidReason
	}

	var entry *ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.LockBalanceTx(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		affected, err := s.repo.ApplyDelta(ctx, tx, req.UserID, req.Amount, balance.Version)
		if err != nil {
			return err
		}
		if affected == 0 {
			return gorm.ErrInvalidTransaction
		}

		entry = &ledgerdomain.LedgerEntry{
			ID:        s.genID.Generate(),
			UserID:    req.UserID,
			Delta:     req.Amount,
			Reason:    req.Reason,
			CreatedAt: s.clock.Now(),
		}
		return s.repo.InsertEntry(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("points credited",
		zap.String("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.String("reason", string(req.Reason)),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPointsCredited(ctx, string(req.Reason), req.Amount)
	}
	return entry, nil
}

func (s *Service) LockBalanceTx(ctx context.Context, tx *gorm.DB, userID string) (*ledgerdomain.PointBalance, error) {
	if err := s.repo.EnsureBalance(ctx, tx, userID); err != nil {
		return nil, err
	}
	balance, err := s.repo.FindBalanceForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return balance, nil
}

func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, balance *ledgerdomain.PointBalance, amount int64, voucherID snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if balance.Balance < amount {
		return nil, ledgerdomain.ErrInsufficientBalance
	}

	affected, err := s.repo.ApplyDelta(ctx, tx, balance.UserID, -amount, balance.Version)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, gorm.ErrInvalidTransaction
	}

	entry := &ledgerdomain.LedgerEntry{
		ID:               s.genID.Generate(),
		UserID:           balance.UserID,
		Delta:            -amount,
		Reason:           ledgerdomain.ReasonRedemption,
		RelatedVoucherID: &voucherID,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPointsDebited(ctx, string(ledgerdomain.ReasonRedemption), amount)
	}
	return entry, nil
}

func (s *Service) RefundTx(ctx context.Context, tx *gorm.DB, userID string, amount int64, voucherID snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	balance, err := s.LockBalanceTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	// Replays return the entry written by the first refund. The balance
	// lock above serializes the existence check against concurrent calls.
	existing, err := s.repo.FindEntryByVoucher(ctx, tx, voucherID, ledgerdomain.ReasonRefund)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	affected, err := s.repo.ApplyDelta(ctx, tx, userID, amount, balance.Version)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, gorm.ErrInvalidTransaction
	}

	entry := &ledgerdomain.LedgerEntry{
		ID:               s.genID.Generate(),
		UserID:           userID,
		Delta:            amount,
		Reason:           ledgerdomain.ReasonRefund,
		RelatedVoucherID: &voucherID,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPointsCredited(ctx, string(ledgerdomain.ReasonRefund), amount)
	}
	return entry, nil
}

func (s *Service) History(ctx context.Context, userID string, p pagination.Pagination) ([]ledgerdomain.LedgerEntry, *pagination.PageInfo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil, ledgerdomain.ErrInvalidUser
	}
	return s.repo.ListEntries(ctx, s.db, userID, p)
}
