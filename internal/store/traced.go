package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/crewbasehq/crewbase/internal/store"

// Traced decorates a DB with OpenTelemetry spans around each call. It
// implements the same interface as the wrapped DB, so it composes with any
// other decorator.
type Traced struct {
	db     DB
	tracer trace.Tracer
}

// NewTraced wraps db with span instrumentation.
func NewTraced(db DB) *Traced {
	return &Traced{
		db:     db,
		tracer: otel.Tracer(tracerName),
	}
}

func (t *Traced) start(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.statement", sql),
		),
	)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *Traced) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := t.start(ctx, "exec", sql)
	tag, err := t.db.Exec(ctx, sql, args...)
	end(span, err)
	return tag, err
}

func (t *Traced) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := t.start(ctx, "query", sql)
	rows, err := t.db.Query(ctx, sql, args...)
	end(span, err)
	return rows, err
}

func (t *Traced) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := t.start(ctx, "query_row", sql)
	row := t.db.QueryRow(ctx, sql, args...)
	span.End()
	return row
}

func (t *Traced) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := t.tracer.Start(ctx, "db.tx", trace.WithSpanKind(trace.SpanKindClient))
	tx, err := t.db.Begin(ctx)
	if err != nil {
		end(span, err)
		return nil, err
	}
	return &tracedTx{Tx: tx, tracer: t.tracer, span: span}, nil
}

func (t *Traced) Ping(ctx context.Context) error {
	ctx, span := t.tracer.Start(ctx, "db.ping", trace.WithSpanKind(trace.SpanKindClient))
	err := t.db.Ping(ctx)
	end(span, err)
	return err
}

// tracedTx keeps the transaction span open until commit or rollback and
// instruments per-statement calls inside the transaction.
type tracedTx struct {
	pgx.Tx
	tracer trace.Tracer
	span   trace.Span
}

func (t *tracedTx) statementSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "db.tx."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.statement", sql),
		),
	)
}

func (t *tracedTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := t.statementSpan(ctx, "exec", sql)
	tag, err := t.Tx.Exec(ctx, sql, args...)
	end(span, err)
	return tag, err
}

func (t *tracedTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := t.statementSpan(ctx, "query", sql)
	rows, err := t.Tx.Query(ctx, sql, args...)
	end(span, err)
	return rows, err
}

func (t *tracedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := t.statementSpan(ctx, "query_row", sql)
	row := t.Tx.QueryRow(ctx, sql, args...)
	span.End()
	return row
}

func (t *tracedTx) Commit(ctx context.Context) error {
	err := t.Tx.Commit(ctx)
	end(t.span, err)
	return err
}

func (t *tracedTx) Rollback(ctx context.Context) error {
	err := t.Tx.Rollback(ctx)
	t.span.End()
	return err
}
