package instrumented_test

import (
	"context"
	"errors"
	"testing"

	"usermgmt/pkg/domain"
	"usermgmt/pkg/storage"
	"usermgmt/pkg/storage/instrumented"
	"usermgmt/pkg/storage/memory"
	mockstorage "usermgmt/pkg/storage/mock"
	"usermgmt/pkg/storage/storagetest"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"
)

type telemetry struct {
	reader *sdkmetric.ManualReader
	spans  *tracetest.SpanRecorder
	opts   instrumented.Options
}

func newTelemetry() telemetry {
	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()

	return telemetry{
		reader: reader,
		spans:  spans,
		opts: instrumented.Options{
			MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
			TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
			Backend:        "memory",
		},
	}
}

// counts returns the number of recorded durations keyed by operation and status.
func (tel telemetry) counts(t *testing.T) map[[2]string]uint64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, tel.reader.Collect(context.Background(), &rm))

	out := map[[2]string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "storage.operation.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			for _, dp := range hist.DataPoints {
				op, _ := dp.Attributes.Value(attribute.Key("operation"))
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				out[[2]string{op.AsString(), status.AsString()}] += dp.Count
			}
		}
	}

	return out
}

func TestStorage_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		t.Helper()
		s, err := instrumented.New(memory.New(), newTelemetry().opts)
		require.NoError(t, err)

		return s
	})
}

func TestStorage_RecordsDurationsAndSpans(t *testing.T) {
	ctx := context.Background()
	tel := newTelemetry()
	s, err := instrumented.New(memory.New(), tel.opts)
	require.NoError(t, err)

	u := storagetest.NewUser(t, "jane@example.com", "Jane", "Doe", true, 0)
	_, err = s.SaveUser(ctx, u)
	require.NoError(t, err)
	_, err = s.UserByID(ctx, u.ID())
	require.NoError(t, err)
	_, err = s.UserByID(ctx, u.ID())
	require.NoError(t, err)
	_, err = s.UserCount(ctx)
	require.NoError(t, err)

	require.NoError(t, s.WithTx(ctx, func(tx storage.AllStorage) error {
		return tx.DeleteUser(ctx, u.ID()) //nolint: wrapcheck
	}))

	counts := tel.counts(t)
	require.Equal(t, uint64(1), counts[[2]string{"save_user", "ok"}])
	require.Equal(t, uint64(2), counts[[2]string{"user_by_id", "ok"}])
	require.Equal(t, uint64(1), counts[[2]string{"user_count", "ok"}])
	require.Equal(t, uint64(1), counts[[2]string{"begin", "ok"}])
	require.Equal(t, uint64(1), counts[[2]string{"delete_user", "ok"}])
	require.Equal(t, uint64(1), counts[[2]string{"commit", "ok"}])

	names := make([]string, 0)
	for _, span := range tel.spans.Ended() {
		names = append(names, span.Name())
	}
	require.Contains(t, names, "storage.save_user")
	require.Contains(t, names, "storage.delete_user")
	require.Contains(t, names, "storage.commit")
}

func TestStorage_RecordsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	tel := newTelemetry()
	backend := mockstorage.NewMockStorage(ctrl)
	s, err := instrumented.New(backend, tel.opts)
	require.NoError(t, err)

	id, err := domain.NewUserID("u-1")
	require.NoError(t, err)
	backend.EXPECT().UserByID(gomock.Any(), id).Return(nil, errors.New("boom"))

	_, err = s.UserByID(ctx, id)
	require.EqualError(t, err, "boom")

	require.Equal(t, uint64(1), tel.counts(t)[[2]string{"user_by_id", "error"}])

	ended := tel.spans.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.Equal(t, "boom", ended[0].Status().Description)
}

func TestStorage_WithTxRollsBackOnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	tel := newTelemetry()
	backend := mockstorage.NewMockStorage(ctrl)
	tx := mockstorage.NewMockTxStorage(ctrl)
	s, err := instrumented.New(backend, tel.opts)
	require.NoError(t, err)

	backend.EXPECT().Begin(gomock.Any()).Return(tx, nil)
	tx.EXPECT().Rollback().Return(nil)

	err = s.WithTx(ctx, func(storage.AllStorage) error { return errors.New("abort") })
	require.EqualError(t, err, "abort")
	require.Equal(t, uint64(1), tel.counts(t)[[2]string{"rollback", "ok"}])
}
