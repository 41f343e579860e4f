package metrics

import (
	"context"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests     metric.Int64Counter
	HTTPDuration     metric.Float64Histogram
	Commands         metric.Int64Counter
	CommandErrors    metric.Int64Counter
	CommandDuration  metric.Float64Histogram
	ScenarioRuns     metric.Int64Counter
	ScenarioDuration metric.Float64Histogram
}

// Setup creates the meters and returns the handler serving them. Every call
// uses its own registry, so Setup may be called more than once per process.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"rdm_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"rdm_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.Commands, err = meter.Int64Counter(
		"rdm_redis_commands_total",
		metric.WithDescription("Total number of commands sent to the store"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CommandErrors, err = meter.Int64Counter(
		"rdm_redis_command_errors_total",
		metric.WithDescription("Total number of commands that returned an error"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CommandDuration, err = meter.Float64Histogram(
		"rdm_redis_command_duration_seconds",
		metric.WithDescription("Store command duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ScenarioRuns, err = meter.Int64Counter(
		"rdm_scenario_runs_total",
		metric.WithDescription("Total number of scenario runs by result"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ScenarioDuration, err = meter.Float64Histogram(
		"rdm_scenario_duration_seconds",
		metric.WithDescription("Scenario duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

// ObserveCommand is fed by the store's command hook
func (m *Metrics) ObserveCommand(ctx context.Context, command string, duration time.Duration, err error) {
	labels := metric.WithAttributes(attribute.String("command", command))

	m.Commands.Add(ctx, 1, labels)
	m.CommandDuration.Record(ctx, duration.Seconds(), labels)
	if err != nil {
		m.CommandErrors.Add(ctx, 1, labels)
	}
}

func (m *Metrics) RecordScenario(ctx context.Context, scenario, result string, duration time.Duration) {
	m.ScenarioRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scenario", scenario),
		attribute.String("result", result),
	))
	m.ScenarioDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("scenario", scenario),
	))
}
