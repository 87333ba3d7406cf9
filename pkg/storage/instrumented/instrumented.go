// Package instrumented wraps a storage.Storage with OpenTelemetry metrics and
// spans. Every port operation records its latency in the
// storage.operation.duration histogram and runs inside a client span.
package instrumented

import (
	"context"
	"fmt"
	"time"

	"usermgmt/pkg/domain"
	"usermgmt/pkg/metrics"
	"usermgmt/pkg/storage"

	"github.com/riverqueue/river"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "usermgmt/pkg/storage"

// Options selects the providers used for instrumentation. Nil providers fall
// back to the global ones.
type Options struct {
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	// Backend is reported as the db.system attribute, e.g. "postgresql".
	Backend string
}

type instruments struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	backend  attribute.KeyValue
}

func newInstruments(opts Options) (*instruments, error) {
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	duration, err := mp.Meter(instrumentationName).Float64Histogram("storage.operation.duration",
		metric.WithDescription("Duration of storage operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.DefaultBuckets...))
	if err != nil {
		return nil, fmt.Errorf("could not create storage duration histogram: %w", err)
	}

	return &instruments{
		tracer:   tp.Tracer(instrumentationName),
		duration: duration,
		backend:  attribute.String("db.system", opts.Backend),
	}, nil
}

func observe[T any](ctx context.Context, in *instruments, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	opAttr := attribute.String("operation", op)
	ctx, span := in.tracer.Start(ctx, "storage."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(opAttr, in.backend))
	defer span.End()

	start := time.Now()
	res, err := fn(ctx)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	in.duration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(opAttr, in.backend, attribute.String("status", status)))

	return res, err
}

func observeErr(ctx context.Context, in *instruments, op string, fn func(ctx context.Context) error) error {
	_, err := observe(ctx, in, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	return err
}

// ops instruments the operations shared by plain and transactional handles.
type ops struct {
	all storage.AllStorage
	in  *instruments
}

func (o ops) UserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return observe(ctx, o.in, "user_by_id", func(ctx context.Context) (*domain.User, error) {
		return o.all.UserByID(ctx, id)
	})
}

func (o ops) UserByEmail(ctx context.Context, email domain.Email) (*domain.User, error) {
	return observe(ctx, o.in, "user_by_email", func(ctx context.Context) (*domain.User, error) {
		return o.all.UserByEmail(ctx, email)
	})
}

func (o ops) Users(ctx context.Context) ([]*domain.User, error) {
	return observe(ctx, o.in, "users", o.all.Users)
}

func (o ops) ActiveUsers(ctx context.Context) ([]*domain.User, error) {
	return observe(ctx, o.in, "active_users", o.all.ActiveUsers)
}

func (o ops) UsersByNameContaining(ctx context.Context, fragment string) ([]*domain.User, error) {
	return observe(ctx, o.in, "users_by_name", func(ctx context.Context) ([]*domain.User, error) {
		return o.all.UsersByNameContaining(ctx, fragment)
	})
}

func (o ops) SaveUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	return observe(ctx, o.in, "save_user", func(ctx context.Context) (*domain.User, error) {
		return o.all.SaveUser(ctx, user)
	})
}

func (o ops) DeleteUser(ctx context.Context, id domain.UserID) error {
	return observeErr(ctx, o.in, "delete_user", func(ctx context.Context) error {
		return o.all.DeleteUser(ctx, id)
	})
}

func (o ops) UserExists(ctx context.Context, id domain.UserID) (bool, error) {
	return observe(ctx, o.in, "user_exists", func(ctx context.Context) (bool, error) {
		return o.all.UserExists(ctx, id)
	})
}

func (o ops) EmailExists(ctx context.Context, email domain.Email) (bool, error) {
	return observe(ctx, o.in, "email_exists", func(ctx context.Context) (bool, error) {
		return o.all.EmailExists(ctx, email)
	})
}

func (o ops) UserCount(ctx context.Context) (int64, error) {
	return observe(ctx, o.in, "user_count", o.all.UserCount)
}

func (o ops) ActiveUserCount(ctx context.Context) (int64, error) {
	return observe(ctx, o.in, "active_user_count", o.all.ActiveUserCount)
}

func (o ops) AddJob(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (bool, error) {
	return observe(ctx, o.in, "add_job", func(ctx context.Context) (bool, error) {
		return o.all.AddJob(ctx, args, opts)
	})
}

// Storage is an instrumented storage.Storage.
type Storage struct {
	ops

	base storage.Storage
}

// Ensure Storage implements storage.Storage.
var _ storage.Storage = (*Storage)(nil)

func New(base storage.Storage, opts Options) (*Storage, error) {
	in, err := newInstruments(opts)
	if err != nil {
		return nil, err
	}

	return &Storage{ops: ops{all: base, in: in}, base: base}, nil
}

func (s *Storage) Close() error { return s.base.Close() } //nolint: wrapcheck

func (s *Storage) Begin(ctx context.Context) (storage.TxStorage, error) {
	return observe(ctx, s.in, "begin", func(ctx context.Context) (storage.TxStorage, error) {
		tx, err := s.base.Begin(ctx)
		if err != nil {
			return nil, err //nolint: wrapcheck
		}

		return &txStorage{ops: ops{all: tx, in: s.in}, tx: tx, ctx: ctx}, nil
	})
}

func (s *Storage) WithTx(ctx context.Context, cb func(storage storage.AllStorage) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}

	if err := cb(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit tx: %w", err)
	}

	return nil
}

type txStorage struct {
	ops

	tx  storage.TxStorage
	ctx context.Context //nolint: containedctx
}

func (t *txStorage) Commit() error {
	return observeErr(t.ctx, t.in, "commit", func(context.Context) error { return t.tx.Commit() })
}

func (t *txStorage) Rollback() error {
	return observeErr(t.ctx, t.in, "rollback", func(context.Context) error { return t.tx.Rollback() })
}
