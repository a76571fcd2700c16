// Package scheduler runs the voucher expiry sweep. Vouchers past their
// expiry are moved to the expired state in batches; the points they spent
// stay spent.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/andinolabs/canje/internal/clock"
	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
	"github.com/andinolabs/canje/pkg/telemetry/correlation"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	VoucherSvc voucherdomain.Service
	Config     Config `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	voucherSvc voucherdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.VoucherSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		voucherSvc: p.VoucherSvc,
	}, nil
}

// RunForever sweeps on the configured interval until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	s.log.Info("expiry sweep started", zap.Duration("interval", s.cfg.RunInterval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweep stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep at the clock's current instant. Each run
// gets its own correlation ID so its log lines can be grouped the way HTTP
// requests are.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SweepTimeout)
	defer cancel()
	ctx, cid := correlation.EnsureCorrelationID(ctx)

	swept, err := s.voucherSvc.SweepExpired(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	if swept > 0 {
		s.log.Info("sweep complete", zap.Int64("expired", swept), zap.String("correlation_id", cid))
	}
	return nil
}
