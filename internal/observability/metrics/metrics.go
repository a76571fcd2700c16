package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	redemptions        metric.Int64Counter
	pointsCredited     metric.Int64Counter
	pointsDebited      metric.Int64Counter
	voucherTransitions metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "canje"
	}
	meter := provider.Meter(name)

	redemptions, err := meter.Int64Counter("canje_redemptions_total")
	if err != nil {
		return nil, err
	}
	pointsCredited, err := meter.Int64Counter("canje_points_credited_total")
	if err != nil {
		return nil, err
	}
	pointsDebited, err := meter.Int64Counter("canje_points_debited_total")
	if err != nil {
		return nil, err
	}
	voucherTransitions, err := meter.Int64Counter("canje_voucher_transitions_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("canje_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		redemptions:        redemptions,
		pointsCredited:     pointsCredited,
		pointsDebited:      pointsDebited,
		voucherTransitions: voucherTransitions,
		rateLimitDenied:    rateLimitDenied,
	}, nil
}

// RecordRedemption counts one redemption attempt by outcome
// ("issued", "replayed", or the rejection error code).
func (m *Metrics) RecordRedemption(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPointsCredited counts credited points by reason.
func (m *Metrics) RecordPointsCredited(ctx context.Context, reason string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.pointsCredited.Add(ctx, amount, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordPointsDebited counts debited points by reason.
func (m *Metrics) RecordPointsDebited(ctx context.Context, reason string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.pointsDebited.Add(ctx, amount, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordVoucherTransition counts one voucher state change.
func (m *Metrics) RecordVoucherTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.voucherTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordRateLimitDenied counts one denied redemption request.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp metrics protocol %q", protocol)
	}
}
