package controller

import (
	"net/http"
	"strconv"
	"time"

	"usermgmt/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests no route pattern matched.
const unmatchedRoute = "unmatched"

// WithMetrics returns a middleware recording request latency in
// metrics.HTTPRequestDuration. It must wrap the http.ServeMux directly, because
// the route label is read from the pattern the mux stores on the request.
func WithMetrics(next http.Handler) http.Handler {
	return WithMetricsObserver(metrics.HTTPRequestDuration, metrics.HTTPRequestsInFlight)(next)
}

// WithMetricsObserver is WithMetrics with explicit collectors.
func WithMetricsObserver(duration prometheus.ObserverVec, inFlight prometheus.Gauge) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			duration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
				Observe(time.Since(start).Seconds())
		})
	}
}
