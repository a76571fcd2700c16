package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/andinolabs/canje/internal/catalog/domain"
	"github.com/andinolabs/canje/internal/clock"
	"github.com/andinolabs/canje/internal/config"
	ledgerdomain "github.com/andinolabs/canje/internal/ledger/domain"
	obsmetrics "github.com/andinolabs/canje/internal/observability/metrics"
	redemptiondomain "github.com/andinolabs/canje/internal/redemption/domain"
	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
)

// errRequestRaced aborts the transaction when a concurrent call with the same
// request ID committed first. The loser replays the winner's outcome.
var errRequestRaced = errors.New("redemption_request_raced")

// failures that are recorded on the request so replays observe the same
// business outcome. Transient errors are never recorded.
var recordedFailures = map[string]error{
	ledgerdomain.ErrInsufficientBalance.Error(): ledgerdomain.ErrInsufficientBalance,
	catalogdomain.ErrOutOfStock.Error():         catalogdomain.ErrOutOfStock,
	catalogdomain.ErrRewardNotFound.Error():     catalogdomain.ErrRewardNotFound,
	catalogdomain.ErrRewardNotStarted.Error():   catalogdomain.ErrRewardNotStarted,
	catalogdomain.ErrRewardExpired.Error():      catalogdomain.ErrRewardExpired,
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       redemptiondomain.Repository
	LedgerSvc  ledgerdomain.Service
	CatalogSvc catalogdomain.Service
	VoucherSvc voucherdomain.Service
	Loyalty    *config.LoyaltyConfigHolder `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       redemptiondomain.Repository
	ledgerSvc  ledgerdomain.Service
	catalogSvc catalogdomain.Service
	voucherSvc voucherdomain.Service
	loyalty    *config.LoyaltyConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) redemptiondomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("redemption.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		ledgerSvc:  p.LedgerSvc,
		catalogSvc: p.CatalogSvc,
		voucherSvc: p.VoucherSvc,
		loyalty:    p.Loyalty,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Redeem(ctx context.Context, req redemptiondomain.RedeemRequest) (*redemptiondomain.Result, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.UserID == "" || req.RequestID == "" || req.RewardID == 0 {
		return nil, redemptiondomain.ErrInvalidRequest
	}
	fingerprint := redemptiondomain.Fingerprint(req.UserID, req.RewardID)

	// Two passes at most: a fresh attempt, then a replay if a concurrent
	// duplicate won the request ID while we were working.
	for attempt := 0; attempt < 2; attempt++ {
		if result, err, done := s.replay(ctx, req.RequestID, fingerprint); done {
			return result, err
		}

		result, err := s.redeemOnce(ctx, req, fingerprint)
		if errors.Is(err, errRequestRaced) {
			continue
		}
		if err != nil {
			s.recordFailure(ctx, req, fingerprint, err)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRedemption(ctx, "failure")
			}
			return nil, err
		}

		s.log.Info("reward redeemed",
			zap.String("user_id", req.UserID),
			zap.String("reward_id", req.RewardID.String()),
			zap.String("request_id", req.RequestID),
			zap.String("voucher_code", result.Voucher.Code),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRedemption(ctx, "success")
		}
		return result, nil
	}

	// Both passes lost the race and the winner's row still is not
	// visible. Treat as transient so the client retries.
	return nil, gorm.ErrInvalidTransaction
}

// replay serves the recorded outcome for a seen request ID. The third return
// reports whether replay handled the call.
func (s *Service) replay(ctx context.Context, requestID, fingerprint string) (*redemptiondomain.Result, error, bool) {
	record, err := s.repo.Find(ctx, s.db, requestID)
	if err != nil {
		return nil, err, true
	}
	if record == nil {
		return nil, nil, false
	}
	if record.Fingerprint != fingerprint {
		return nil, redemptiondomain.ErrConflict, true
	}

	if record.VoucherID == nil {
		if cause, ok := recordedFailures[record.Failure]; ok {
			return nil, cause, true
		}
		return nil, redemptiondomain.ErrConflict, true
	}

	voucher, err := s.voucherSvc.Get(ctx, *record.VoucherID)
	if err != nil {
		return nil, err, true
	}
	balance, err := s.ledgerSvc.GetBalance(ctx, record.UserID)
	if err != nil {
		return nil, err, true
	}
	reward, err := s.catalogSvc.GetReward(ctx, record.RewardID)
	if err != nil {
		return nil, err, true
	}

	return &redemptiondomain.Result{
		Voucher:     voucher,
		Balance:     balance.Balance,
		RewardStock: reward.Stock,
		Replayed:    true,
	}, nil, true
}

func (s *Service) redeemOnce(ctx context.Context, req redemptiondomain.RedeemRequest, fingerprint string) (*redemptiondomain.Result, error) {
	now := s.clock.Now()

	// Advisory pre-check outside the transaction keeps doomed requests
	// off the row locks.
	advisoryReward, err := s.catalogSvc.CheckEligible(ctx, req.RewardID, now)
	if err != nil {
		return nil, err
	}
	advisoryBalance, err := s.ledgerSvc.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if advisoryBalance.Balance < advisoryReward.PointsCost {
		return nil, ledgerdomain.ErrInsufficientBalance
	}

	var result *redemptiondomain.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock order is always user balance before reward so two
		// redemptions can never deadlock against each other.
		balance, err := s.ledgerSvc.LockBalanceTx(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		reward, err := s.catalogSvc.LockRewardTx(ctx, tx, req.RewardID)
		if err != nil {
			return err
		}

		// Everything is re-validated under the locks; the advisory
		// answers may be stale by now.
		if err := reward.EligibleAt(now); err != nil {
			return err
		}
		if balance.Balance < reward.PointsCost {
			return ledgerdomain.ErrInsufficientBalance
		}
		if err := s.catalogSvc.DecrementStockTx(ctx, tx, req.RewardID); err != nil {
			return err
		}

		validity := config.DefaultLoyaltyConfig().VoucherValidityDays
		if s.loyalty != nil {
			validity = s.loyalty.Current().VoucherValidityDays
		}
		voucher, err := s.voucherSvc.CreateTx(ctx, tx, voucherdomain.CreateRequest{
			UserID:      req.UserID,
			RewardID:    req.RewardID,
			PointsSpent: reward.PointsCost,
			IssuedAt:    now,
			ExpiresAt:   now.AddDate(0, 0, validity),
		})
		if err != nil {
			return err
		}

		if _, err := s.ledgerSvc.DebitTx(ctx, tx, balance, reward.PointsCost, voucher.ID); err != nil {
			return err
		}

		voucherID := voucher.ID
		affected, err := s.repo.Insert(ctx, tx, &redemptiondomain.RedemptionRequest{
			RequestID:   req.RequestID,
			UserID:      req.UserID,
			RewardID:    req.RewardID,
			Fingerprint: fingerprint,
			VoucherID:   &voucherID,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return errRequestRaced
		}

		// Authoritative snapshot: both rows are locked, so the
		// arithmetic below is exactly what commits.
		result = &redemptiondomain.Result{
			Voucher:     voucher,
			Balance:     balance.Balance - reward.PointsCost,
			RewardStock: reward.Stock - 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recordFailure pins a business failure to the request ID so replays see the
// original outcome. Transient errors stay unrecorded and retryable.
func (s *Service) recordFailure(ctx context.Context, req redemptiondomain.RedeemRequest, fingerprint string, cause error) {
	if _, ok := recordedFailures[cause.Error()]; !ok {
		return
	}
	_, err := s.repo.Insert(ctx, s.db, &redemptiondomain.RedemptionRequest{
		RequestID:   req.RequestID,
		UserID:      req.UserID,
		RewardID:    req.RewardID,
		Fingerprint: fingerprint,
		Failure:     cause.Error(),
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		s.log.Warn("failed to record redemption failure",
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
	}
}

func (s *Service) Cancel(ctx context.Context, voucherID snowflake.ID) (*redemptiondomain.CancelResult, error) {
	var result *redemptiondomain.CancelResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		voucher, err := s.voucherSvc.CancelTx(ctx, tx, voucherID)
		if err != nil {
			// A voucher that is already cancelled means a previous
			// cancel completed its refund; replay reports it as
			// done.
			if errors.Is(err, voucherdomain.ErrInvalidTransition) &&
				voucher != nil && voucher.State == voucherdomain.StateCancelled {
				result = &redemptiondomain.CancelResult{Voucher: voucher, Replayed: true}
				return nil
			}
			return err
		}

		if _, err := s.ledgerSvc.RefundTx(ctx, tx, voucher.UserID, voucher.PointsSpent, voucher.ID); err != nil {
			return err
		}
		if err := s.catalogSvc.IncrementStockTx(ctx, tx, voucher.RewardID); err != nil {
			return err
		}

		result = &redemptiondomain.CancelResult{
			Voucher:  voucher,
			Refunded: voucher.PointsSpent,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.log.Info("voucher cancelled",
			zap.String("voucher_id", voucherID.String()),
			zap.Int64("refunded", result.Refunded),
		)
	}
	return result, nil
}
