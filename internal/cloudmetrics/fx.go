package cloudmetrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andinolabs/canje/internal/config"
	voucherdomain "github.com/andinolabs/canje/internal/voucher/domain"
)

const pushInterval = 30 * time.Minute

var Module = fx.Module("cloud.metrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config, registry *prometheus.Registry, pusher Pusher, logger *zap.Logger) *EngineStats {
		if !cfg.Push.Enabled || pusher == nil {
			return nil
		}
		return New(registry, pusher, cfg.AppName, cfg.AppVersion, logger)
	}),
	fx.Invoke(startWorker),
)

type workerParams struct {
	fx.In

	LC         fx.Lifecycle
	Stats      *EngineStats `optional:"true"`
	Log        *zap.Logger
	DB         *gorm.DB
	VoucherSvc voucherdomain.Service
}

func startWorker(p workerParams) {
	if p.Stats == nil {
		return
	}
	log := p.Log.Named("cloudmetrics.worker")

	ctx, cancel := context.WithCancel(context.Background())
	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("stats push worker started", zap.Duration("interval", pushInterval))
			go func() {
				ticker := time.NewTicker(pushInterval)
				defer ticker.Stop()

				collectAndPush(ctx, p, log)
				for {
					select {
					case <-ticker.C:
						collectAndPush(ctx, p, log)
					case <-ctx.Done():
						log.Info("stats push worker stopped")
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func collectAndPush(ctx context.Context, p workerParams, log *zap.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	p.Stats.SetMemoryUsage(m.Sys)

	if counts, err := p.VoucherSvc.CountByState(ctx); err == nil {
		for state, count := range counts {
			p.Stats.SetVoucherCount(string(state), count)
		}
	}

	var credited, debited, stock int64
	if err := p.DB.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE delta > 0`,
	).Scan(&credited).Error; err == nil {
		p.Stats.SetPointsCredited(credited)
	}
	if err := p.DB.WithContext(ctx).Raw(
		`SELECT COALESCE(-SUM(delta), 0) FROM ledger_entries WHERE delta < 0`,
	).Scan(&debited).Error; err == nil {
		p.Stats.SetPointsDebited(debited)
	}
	if err := p.DB.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(stock), 0) FROM rewards`,
	).Scan(&stock).Error; err == nil {
		p.Stats.SetRewardStock(stock)
	}

	if err := p.Stats.Push(ctx); err != nil {
		log.Error("stats push failed", zap.Error(err))
	}
}
