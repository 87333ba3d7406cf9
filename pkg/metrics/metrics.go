// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultBuckets provides a common set of histogram buckets in seconds that can
// be reused across the application for latency metrics.
var DefaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10} //nolint: gochecknoglobals

// HTTPRequestDuration observes API request latency labelled by method, route
// pattern and status code.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{ //nolint: gochecknoglobals
	Namespace: "usermgmt",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "Duration of HTTP requests handled by the API.",
	Buckets:   DefaultBuckets,
}, []string{"method", "route", "status"})

// HTTPRequestsInFlight counts the API requests currently being served.
var HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{ //nolint: gochecknoglobals
	Namespace: "usermgmt",
	Subsystem: "http",
	Name:      "requests_in_flight",
	Help:      "Number of HTTP requests currently being served by the API.",
})

// NewMeterProvider returns an OpenTelemetry MeterProvider whose instruments
// are exported through reg, so they are served next to the native Prometheus
// collectors.
func NewMeterProvider(reg prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("could not create otel exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp)), nil
}
