package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter records pipeline metrics through OpenTelemetry and exposes them in Prometheus format
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector

	meter               metric.Meter
	deliveriesCounter   metric.Int64Counter
	deliveryDuration    metric.Float64Histogram
	rateLimitCounter    metric.Int64Counter
	trackedClientsGauge metric.Int64ObservableGauge
	pendingRetriesGauge metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format.
// collector may be nil, in which case no gauges are reported.
func NewOTelExporter(collector Collector) (*OTelExporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"heatmap-webhooks",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		collector:     collector,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.deliveriesCounter, err = oe.meter.Int64Counter(
		"webhook.deliveries",
		metric.WithDescription("Number of webhook delivery attempts by outcome"),
		metric.WithUnit("{deliveries}"),
	)
	if err != nil {
		return fmt.Errorf("creating deliveries counter: %w", err)
	}

	oe.deliveryDuration, err = oe.meter.Float64Histogram(
		"webhook.delivery.duration",
		metric.WithDescription("Wall time of webhook delivery attempts"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("creating delivery duration histogram: %w", err)
	}

	oe.rateLimitCounter, err = oe.meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Number of rate limit decisions by endpoint class"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return fmt.Errorf("creating rate limit counter: %w", err)
	}

	if oe.collector == nil {
		return nil
	}

	oe.trackedClientsGauge, err = oe.meter.Int64ObservableGauge(
		"ratelimit.clients.tracked",
		metric.WithDescription("Number of client keys held by the rate limiter"),
		metric.WithUnit("{clients}"),
		metric.WithInt64Callback(oe.observeTrackedClients),
	)
	if err != nil {
		return fmt.Errorf("creating tracked clients gauge: %w", err)
	}

	oe.pendingRetriesGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.retries.pending",
		metric.WithDescription("Number of retry jobs waiting in the queue"),
		metric.WithUnit("{jobs}"),
		metric.WithInt64Callback(oe.observePendingRetries),
	)
	if err != nil {
		return fmt.Errorf("creating pending retries gauge: %w", err)
	}

	return nil
}

func (oe *OTelExporter) observeTrackedClients(ctx context.Context, observer metric.Int64Observer) error {
	snapshot, err := oe.collector.Collect(ctx)
	if err != nil {
		return err
	}
	observer.Observe(snapshot.TrackedClients)
	return nil
}

func (oe *OTelExporter) observePendingRetries(ctx context.Context, observer metric.Int64Observer) error {
	snapshot, err := oe.collector.Collect(ctx)
	if err != nil {
		return err
	}
	observer.Observe(snapshot.PendingRetries)
	return nil
}

// DeliveryAttempted implements Recorder
func (oe *OTelExporter) DeliveryAttempted(ctx context.Context, eventType, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("delivery.outcome", outcome),
	)
	oe.deliveriesCounter.Add(ctx, 1, attrs)
	oe.deliveryDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RateLimitDecision implements Recorder
func (oe *OTelExporter) RateLimitDecision(ctx context.Context, class string, admitted bool) {
	oe.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ratelimit.class", class),
		attribute.Bool("ratelimit.admitted", admitted),
	))
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
