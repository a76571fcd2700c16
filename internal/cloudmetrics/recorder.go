package cloudmetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// EngineStats holds the gauges pushed upstream. They describe engine state,
// not request traffic; per-request counters live on the OTLP side.
type EngineStats struct {
	registry *prometheus.Registry
	pusher   Pusher
	log      *zap.Logger

	vouchersByState *prometheus.GaugeVec
	pointsIssued    prometheus.Gauge
	pointsSpent     prometheus.Gauge
	rewardStock     prometheus.Gauge
	memoryBytes     prometheus.Gauge
}

func New(registry *prometheus.Registry, pusher Pusher, instanceID, version string, log *zap.Logger) *EngineStats {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	constLabels := prometheus.Labels{}
	if instanceID != "" {
		constLabels["instance_id"] = instanceID
	}
	if version != "" {
		constLabels["version"] = version
	}

	stats := &EngineStats{
		registry: registry,
		pusher:   pusher,
		log:      log.Named("cloudmetrics"),
		vouchersByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "canje_vouchers",
			Help:        "Vouchers by lifecycle state.",
			ConstLabels: constLabels,
		}, []string{"state"}),
		pointsIssued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "canje_points_credited_sum",
			Help:        "Lifetime points credited across all users.",
			ConstLabels: constLabels,
		}),
		pointsSpent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "canje_points_debited_sum",
			Help:        "Lifetime points debited across all users.",
			ConstLabels: constLabels,
		}),
		rewardStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "canje_reward_stock_remaining",
			Help:        "Units remaining across the whole catalog.",
			ConstLabels: constLabels,
		}),
		memoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "canje_process_memory_bytes",
			Help:        "Process memory obtained from the OS.",
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(
		stats.vouchersByState,
		stats.pointsIssued,
		stats.pointsSpent,
		stats.rewardStock,
		stats.memoryBytes,
	)
	return stats
}

func (s *EngineStats) SetVoucherCount(state string, count int64) {
	if s == nil {
		return
	}
	s.vouchersByState.WithLabelValues(state).Set(float64(count))
}

func (s *EngineStats) SetPointsCredited(total int64) {
	if s == nil {
		return
	}
	s.pointsIssued.Set(float64(total))
}

func (s *EngineStats) SetPointsDebited(total int64) {
	if s == nil {
		return
	}
	s.pointsSpent.Set(float64(total))
}

func (s *EngineStats) SetRewardStock(total int64) {
	if s == nil {
		return
	}
	s.rewardStock.Set(float64(total))
}

func (s *EngineStats) SetMemoryUsage(bytes uint64) {
	if s == nil {
		return
	}
	s.memoryBytes.Set(float64(bytes))
}

// Push ships the current snapshot through the configured pusher.
func (s *EngineStats) Push(ctx context.Context) error {
	if s == nil || s.pusher == nil {
		return nil
	}
	return s.pusher.Push(ctx, s.registry)
}
