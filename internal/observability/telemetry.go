package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry owns the meter provider and the Prometheus registry it exports to.
type Telemetry struct {
	Registry *prometheus.Registry
	Provider *sdkmetric.MeterProvider
	Metrics  *Metrics
}

// TelemetrySystem and PrometheusExporter are set by InitTelemetry and read by
// the health checker and the /metrics route.
var (
	TelemetrySystem    *Telemetry
	PrometheusExporter *otelprom.Exporter
)

// NewTelemetry builds a meter provider backed by a private Prometheus
// registry and registers the job metrics on it.
func NewTelemetry() (*Telemetry, *otelprom.Exporter, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	m, err := NewMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, nil, err
	}
	return &Telemetry{Registry: reg, Provider: provider, Metrics: m}, exporter, nil
}

// InitTelemetry initializes the package-level telemetry system.
func InitTelemetry() (*Telemetry, error) {
	t, exporter, err := NewTelemetry()
	if err != nil {
		return nil, err
	}
	TelemetrySystem = t
	PrometheusExporter = exporter
	return t, nil
}

// Handler serves the registry in the Prometheus text format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{Registry: t.Registry})
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.Provider == nil {
		return nil
	}
	return t.Provider.Shutdown(ctx)
}

// CheckTelemetry reports whether the package-level telemetry system is ready.
func CheckTelemetry() error {
	if TelemetrySystem == nil || PrometheusExporter == nil {
		return errors.New("telemetry system not initialized")
	}
	return nil
}
