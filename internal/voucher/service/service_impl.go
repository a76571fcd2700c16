package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/andinolabs/canje/internal/clock"
	obsmetrics "github.com/andinolabs/canje/internal/observability/metrics"
	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
	pkgdb "github.com/andinolabs/canje/pkg/db"
)

const (
	codePrefix       = "CANJE-"
	codeMintAttempts = 5
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       voucherdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       voucherdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) voucherdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("voucher.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// newCode derives a short redemption code from ULID entropy. The timestamp
// half of the ULID is discarded so codes carry no ordering information.
func newCode() string {
	id := ulid.Make()
	return codePrefix + id.String()[18:]
}

func (s *Service) CreateTx(ctx context.Context, tx *gorm.DB, req voucherdomain.CreateRequest) (*voucherdomain.Voucher, error) {
	voucher := &voucherdomain.Voucher{
		ID:          s.genID.Generate(),
		UserID:      req.UserID,
		RewardID:    req.RewardID,
		PointsSpent: req.PointsSpent,
		State:       voucherdomain.StateIssued,
		IssuedAt:    req.IssuedAt,
		ExpiresAt:   req.ExpiresAt,
		Metadata:    datatypes.JSONMap(req.Metadata),
	}

	for attempt := 0; attempt < codeMintAttempts; attempt++ {
		voucher.Code = newCode()
		err := s.repo.Insert(ctx, tx, voucher)
		if err == nil {
			return voucher, nil
		}
		if !pkgdb.IsDuplicateKeyErr(err) {
			return nil, err
		}
	}
	return nil, voucherdomain.ErrCodeExhausted
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*voucherdomain.Voucher, error) {
	voucher, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, voucherdomain.ErrVoucherNotFound
	}
	return voucher, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*voucherdomain.Voucher, error) {
	code = strings.TrimSpace(code)
	voucher, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, voucherdomain.ErrVoucherNotFound
	}
	return voucher, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]voucherdomain.Voucher, error) {
	return s.repo.ListByUser(ctx, s.db, userID)
}

func (s *Service) Present(ctx context.Context, code string) (*voucherdomain.Voucher, error) {
	return s.confirm(ctx, code, voucherdomain.StateIssued, voucherdomain.StatePresented)
}

func (s *Service) Consume(ctx context.Context, code string) (*voucherdomain.Voucher, error) {
	return s.confirm(ctx, code, voucherdomain.StatePresented, voucherdomain.StateConsumed)
}

func (s *Service) confirm(ctx context.Context, code string, from, to voucherdomain.State) (*voucherdomain.Voucher, error) {
	voucher, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if now.After(voucher.ExpiresAt) {
		// Sweep lazily so a voucher the scheduler has not reached yet
		// still reads as expired at the counter.
		if voucher.State == voucherdomain.StateIssued || voucher.State == voucherdomain.StatePresented {
			if _, err := s.repo.Transition(ctx, s.db, voucher.ID, voucher.State, voucherdomain.StateExpired, now); err != nil {
				return nil, err
			}
		}
		return nil, voucherdomain.ErrVoucherExpired
	}

	affected, err := s.repo.Transition(ctx, s.db, voucher.ID, from, to, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, voucherdomain.ErrInvalidTransition
	}

	s.log.Info("voucher transition",
		zap.String("voucher_id", voucher.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordVoucherTransition(ctx, string(from), string(to))
	}

	return s.Get(ctx, voucher.ID)
}

func (s *Service) CancelTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*voucherdomain.Voucher, error) {
	voucher, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, voucherdomain.ErrVoucherNotFound
	}

	affected, err := s.repo.Transition(ctx, tx, id, voucherdomain.StateIssued, voucherdomain.StateCancelled, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return voucher, voucherdomain.ErrInvalidTransition
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordVoucherTransition(ctx, string(voucherdomain.StateIssued), string(voucherdomain.StateCancelled))
	}
	return s.repo.FindByID(ctx, tx, id)
}

func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	swept, err := s.repo.ExpireBatch(ctx, s.db, now)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.log.Info("expired vouchers swept", zap.Int64("count", swept))
	}
	return swept, nil
}

func (s *Service) CountByState(ctx context.Context) (map[voucherdomain.State]int64, error) {
	return s.repo.CountByState(ctx, s.db)
}
