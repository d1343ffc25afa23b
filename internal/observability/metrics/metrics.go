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
	numbersAllocated   metric.Int64Counter
	allocationFailures metric.Int64Counter
	transitions        metric.Int64Counter
	amendments         metric.Int64Counter
	conflicts          metric.Int64Counter
	auditWriteFailures metric.Int64Counter
	rateLimited        metric.Int64Counter
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
		name = "pipetrade"
	}
	meter := provider.Meter(name)

	numbersAllocated, err := meter.Int64Counter("pipetrade_numbers_allocated_total")
	if err != nil {
		return nil, err
	}
	allocationFailures, err := meter.Int64Counter("pipetrade_number_allocation_failures_total")
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("pipetrade_transitions_total")
	if err != nil {
		return nil, err
	}
	amendments, err := meter.Int64Counter("pipetrade_amendments_total")
	if err != nil {
		return nil, err
	}
	conflicts, err := meter.Int64Counter("pipetrade_write_conflicts_total")
	if err != nil {
		return nil, err
	}
	auditWriteFailures, err := meter.Int64Counter("pipetrade_audit_write_failures_total")
	if err != nil {
		return nil, err
	}
	rateLimited, err := meter.Int64Counter("pipetrade_rate_limited_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		numbersAllocated:   numbersAllocated,
		allocationFailures: allocationFailures,
		transitions:        transitions,
		amendments:         amendments,
		conflicts:          conflicts,
		auditWriteFailures: auditWriteFailures,
		rateLimited:        rateLimited,
	}, nil
}

// RecordNumberAllocated counts issued document numbers.
func (m *Metrics) RecordNumberAllocated(ctx context.Context, documentType, financialYear string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("document_type", strings.TrimSpace(documentType)),
		attribute.String("financial_year", strings.TrimSpace(financialYear)),
	)
	m.numbersAllocated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAllocationFailure(ctx context.Context, documentType, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("document_type", strings.TrimSpace(documentType)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.allocationFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTransition counts applied lifecycle actions.
func (m *Metrics) RecordTransition(ctx context.Context, documentType, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("document_type", strings.TrimSpace(documentType)),
		attribute.String("action", strings.TrimSpace(action)),
	)
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAmendment(ctx context.Context, documentType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("document_type", strings.TrimSpace(documentType)))
	m.amendments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConflict counts optimistic write conflicts, retried or not.
func (m *Metrics) RecordConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.conflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAuditWriteFailure(ctx context.Context, eventKind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_kind", strings.TrimSpace(eventKind)))
	m.auditWriteFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimited counts mutating requests rejected by the actor limiter.
func (m *Metrics) RecordRateLimited(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
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
	"document_type":  {},
	"financial_year": {},
	"action":         {},
	"operation":      {},
	"event_kind":     {},
	"endpoint":       {},
	"method":         {},
	"status_code":    {},
	"reason":         {},
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
