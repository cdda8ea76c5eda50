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
	Role             string
	Environment      string
}

// Metrics exposes domain instruments exported over OTLP.
type Metrics struct {
	bookingsCreated    metric.Int64Counter
	bookingRejections  metric.Int64Counter
	bookingDuration    metric.Float64Histogram
	paymentTransitions metric.Int64Counter
	webhookDeliveries  metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
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
		name = "staybook"
	}
	meter := provider.Meter(name)

	bookingsCreated, err := meter.Int64Counter("staybook_bookings_created_total")
	if err != nil {
		return nil, err
	}
	bookingRejections, err := meter.Int64Counter("staybook_booking_rejections_total")
	if err != nil {
		return nil, err
	}
	bookingDuration, err := meter.Float64Histogram("staybook_booking_pipeline_duration_seconds",
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	paymentTransitions, err := meter.Int64Counter("staybook_payment_transitions_total")
	if err != nil {
		return nil, err
	}
	webhookDeliveries, err := meter.Int64Counter("staybook_payment_webhook_deliveries_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		bookingsCreated:    bookingsCreated,
		bookingRejections:  bookingRejections,
		bookingDuration:    bookingDuration,
		paymentTransitions: paymentTransitions,
		webhookDeliveries:  webhookDeliveries,
	}, nil
}

func (m *Metrics) RecordBookingCreated(ctx context.Context, brand, writer string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(
		attribute.String("brand", brand),
		attribute.String("role", writer),
	)...)
	m.bookingsCreated.Add(ctx, 1, attrs)
	m.bookingDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordBookingRejected counts pipeline short-circuits by error code.
func (m *Metrics) RecordBookingRejected(ctx context.Context, brand, code string) {
	if m == nil {
		return
	}
	m.bookingRejections.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("brand", brand),
		attribute.String("code", code),
	)...))
}

func (m *Metrics) RecordPaymentTransition(ctx context.Context, provider, to string) {
	if m == nil {
		return
	}
	m.paymentTransitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("provider", provider),
		attribute.String("status", to),
	)...))
}

// RecordWebhookDelivery counts authenticated deliveries by outcome and the
// secret slot that matched.
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, provider, outcome, matched string) {
	if m == nil {
		return
	}
	m.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
		attribute.String("matched_secret", matched),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"brand":          {},
	"role":           {},
	"mode":           {},
	"code":           {},
	"provider":       {},
	"status":         {},
	"outcome":        {},
	"matched_secret": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
