package controller_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"usermgmt/pkg/controller"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestWithMetricsObserver_LabelsByRoutePattern(t *testing.T) {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_duration_seconds"},
		[]string{"method", "route", "status"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_in_flight"})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, 1.0, testutil.ToFloat64(inFlight))
		w.WriteHeader(http.StatusNotFound)
	})
	handler := controller.WithMetricsObserver(duration, inFlight)(mux)

	for _, path := range []string{"/users/1", "/users/2", "/elsewhere"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	// one series per route
	require.Equal(t, 2, testutil.CollectAndCount(duration))

	matched, ok := duration.WithLabelValues("GET", "GET /users/{id}", "404").(prometheus.Metric)
	require.True(t, ok)
	var m dto.Metric
	require.NoError(t, matched.Write(&m))
	require.EqualValues(t, 2, m.GetHistogram().GetSampleCount())
	require.Equal(t, 0.0, testutil.ToFloat64(inFlight))
}
