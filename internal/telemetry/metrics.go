package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider installs a Prometheus-backed MeterProvider, starts Go
// runtime metrics and returns the /metrics handler with a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(newResource(serviceName, serviceVersion)),
	)
	otel.SetMeterProvider(mp)

	if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, nil, err
	}

	return promhttp.Handler(), mp.Shutdown, nil
}

// Counter creates an Int64Counter on the global meter. Instrument creation
// only fails on invalid names, in which case a no-op counter is returned.
func Counter(scope, name, description string) otelmetric.Int64Counter {
	c, err := otel.Meter(scope).Int64Counter(name, otelmetric.WithDescription(description))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(scope).Int64Counter(name)
	}
	return c
}

// UpDownCounter is Counter for values that can decrease.
func UpDownCounter(scope, name, description string) otelmetric.Int64UpDownCounter {
	c, err := otel.Meter(scope).Int64UpDownCounter(name, otelmetric.WithDescription(description))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter(scope).Int64UpDownCounter(name)
	}
	return c
}
