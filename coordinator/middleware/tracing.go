package middleware

import (
	"context"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) StartRound(ctx context.Context) (rec fl.RoundRecord, err error) {
	ctx, span := tm.tracer.Start(ctx, "start-round")
	defer func() {
		span.SetAttributes(
			attribute.String("round.id", rec.ID),
			attribute.Int64("round.number", int64(rec.Number)),
			attribute.Int("round.selected", len(rec.Selected)),
		)
		endSpan(span, err)
	}()

	return tm.svc.StartRound(ctx)
}

func (tm *tracing) SubmitUpdate(ctx context.Context, clientID string, update fl.Update) (v fl.Verdict, err error) {
	ctx, span := tm.tracer.Start(ctx, "submit-update", trace.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Int64("round", int64(update.Round)),
		attribute.Int64("samples", update.Samples),
	))
	defer func() {
		span.SetAttributes(
			attribute.Bool("accepted", v.Accepted),
			attribute.String("reason", string(v.Reason)),
		)
		endSpan(span, err)
	}()

	return tm.svc.SubmitUpdate(ctx, clientID, update)
}

func (tm *tracing) Tick(ctx context.Context) (rec fl.RoundRecord, err error) {
	ctx, span := tm.tracer.Start(ctx, "tick")
	defer func() {
		span.SetAttributes(attribute.String("round.status", rec.Status.String()))
		endSpan(span, err)
	}()

	return tm.svc.Tick(ctx)
}

func (tm *tracing) Ready() <-chan struct{} {
	return tm.svc.Ready()
}

func (tm *tracing) Terminate(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "terminate")
	defer span.End()

	return tm.svc.Terminate(ctx)
}

func (tm *tracing) Status(ctx context.Context) (coordinator.Status, error) {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}

func (tm *tracing) CurrentModel(ctx context.Context) (fl.GlobalModel, error) {
	ctx, span := tm.tracer.Start(ctx, "current-model")
	defer span.End()

	return tm.svc.CurrentModel(ctx)
}

func (tm *tracing) GetModel(ctx context.Context, version uint64) (fl.GlobalModel, error) {
	ctx, span := tm.tracer.Start(ctx, "get-model", trace.WithAttributes(
		attribute.Int64("version", int64(version)),
	))
	defer span.End()

	return tm.svc.GetModel(ctx, version)
}

func (tm *tracing) GetRound(ctx context.Context, id string) (fl.RoundRecord, error) {
	ctx, span := tm.tracer.Start(ctx, "get-round", trace.WithAttributes(
		attribute.String("id", id),
	))
	defer span.End()

	return tm.svc.GetRound(ctx, id)
}

func (tm *tracing) ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-rounds", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRounds(ctx, offset, limit)
}

func (tm *tracing) GetClient(ctx context.Context, id string) (fl.ClientRecord, error) {
	ctx, span := tm.tracer.Start(ctx, "get-client", trace.WithAttributes(
		attribute.String("id", id),
	))
	defer span.End()

	return tm.svc.GetClient(ctx, id)
}

func (tm *tracing) ListClients(ctx context.Context, offset, limit uint64) (fl.ClientPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-clients", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListClients(ctx, offset, limit)
}

func (tm *tracing) ClientHistory(ctx context.Context, id string) (coordinator.ClientHistory, error) {
	ctx, span := tm.tracer.Start(ctx, "client-history", trace.WithAttributes(
		attribute.String("id", id),
	))
	defer span.End()

	return tm.svc.ClientHistory(ctx, id)
}

func (tm *tracing) ExcludeClient(ctx context.Context, id string) (fl.ClientRecord, error) {
	ctx, span := tm.tracer.Start(ctx, "exclude-client", trace.WithAttributes(
		attribute.String("id", id),
	))
	defer span.End()

	return tm.svc.ExcludeClient(ctx, id)
}

func (tm *tracing) IncludeClient(ctx context.Context, id string) (fl.ClientRecord, error) {
	ctx, span := tm.tracer.Start(ctx, "include-client", trace.WithAttributes(
		attribute.String("id", id),
	))
	defer span.End()

	return tm.svc.IncludeClient(ctx, id)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
