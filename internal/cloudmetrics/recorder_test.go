package cloudmetrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturePusher struct {
	pushed int
	last   *prometheus.Registry
}

func (c *capturePusher) Push(_ context.Context, registry *prometheus.Registry) error {
	c.pushed++
	c.last = registry
	return nil
}

func TestEngineStatsPushSnapshot(t *testing.T) {
	pusher := &capturePusher{}
	stats := New(nil, pusher, "node-1", "0.1.0", zap.NewNop())

	stats.SetVoucherCount("issued", 4)
	stats.SetVoucherCount("consumed", 2)
	stats.SetPointsCredited(1000)
	stats.SetPointsDebited(300)
	stats.SetRewardStock(17)

	require.NoError(t, stats.Push(context.Background()))
	require.Equal(t, 1, pusher.pushed)

	families, err := pusher.last.Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1234)
	require.NotEmpty(t, series)

	byName := map[string]float64{}
	for _, ts := range series {
		var name, state string
		for _, label := range ts.Labels {
			switch label.Name {
			case "__name__":
				name = label.Value
			case "state":
				state = label.Value
			}
		}
		if state != "" {
			name += ":" + state
		}
		byName[name] = ts.Samples[0].Value
	}

	require.EqualValues(t, 4, byName["canje_vouchers:issued"])
	require.EqualValues(t, 2, byName["canje_vouchers:consumed"])
	require.EqualValues(t, 1000, byName["canje_points_credited_sum"])
	require.EqualValues(t, 300, byName["canje_points_debited_sum"])
	require.EqualValues(t, 17, byName["canje_reward_stock_remaining"])
}

func TestNilStatsAreSafe(t *testing.T) {
	var stats *EngineStats
	stats.SetVoucherCount("issued", 1)
	stats.SetPointsCredited(1)
	stats.SetPointsDebited(1)
	stats.SetRewardStock(1)
	stats.SetMemoryUsage(1)
	require.NoError(t, stats.Push(context.Background()))
}
