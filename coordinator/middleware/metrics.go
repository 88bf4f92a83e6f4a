package middleware

import (
	"context"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	rounds  metrics.Counter
	updates metrics.Counter
	version metrics.Gauge
	svc     coordinator.Service
}

// Metrics counts and times every call. rounds is incremented once per closed
// round labelled by status, updates once per submission labelled by verdict,
// and version tracks the committed model version.
func Metrics(counter metrics.Counter, latency metrics.Histogram, rounds, updates metrics.Counter, version metrics.Gauge, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		rounds:  rounds,
		updates: updates,
		version: version,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) StartRound(ctx context.Context) (fl.RoundRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "start-round").Add(1)
		mm.latency.With("method", "start-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	rec, err := mm.svc.StartRound(ctx)
	if rec.Status == fl.RoundFailed {
		mm.rounds.With("status", rec.Status.String()).Add(1)
	}

	return rec, err
}

func (mm *metricsMiddleware) SubmitUpdate(ctx context.Context, clientID string, update fl.Update) (fl.Verdict, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "submit-update").Add(1)
		mm.latency.With("method", "submit-update").Observe(time.Since(begin).Seconds())
	}(time.Now())

	v, err := mm.svc.SubmitUpdate(ctx, clientID, update)
	switch {
	case err != nil:
	case v.Accepted:
		mm.updates.With("reason", "accepted").Add(1)
	default:
		mm.updates.With("reason", string(v.Reason)).Add(1)
	}

	return v, err
}

func (mm *metricsMiddleware) Tick(ctx context.Context) (fl.RoundRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "tick").Add(1)
		mm.latency.With("method", "tick").Observe(time.Since(begin).Seconds())
	}(time.Now())

	before, _ := mm.svc.Status(ctx)
	rec, err := mm.svc.Tick(ctx)
	// Only count the tick that closed the round.
	if rec.Status.Terminal() && before.Round != nil && !before.Round.Status.Terminal() {
		mm.rounds.With("status", rec.Status.String()).Add(1)
		if rec.Status == fl.RoundCompleted {
			mm.version.Set(float64(rec.Number))
		}
	}

	return rec, err
}

func (mm *metricsMiddleware) Ready() <-chan struct{} {
	return mm.svc.Ready()
}

func (mm *metricsMiddleware) Terminate(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "terminate").Add(1)
		mm.latency.With("method", "terminate").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Terminate(ctx)
}

func (mm *metricsMiddleware) Status(ctx context.Context) (coordinator.Status, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "status").Add(1)
		mm.latency.With("method", "status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx)
}

func (mm *metricsMiddleware) CurrentModel(ctx context.Context) (fl.GlobalModel, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "current-model").Add(1)
		mm.latency.With("method", "current-model").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CurrentModel(ctx)
}

func (mm *metricsMiddleware) GetModel(ctx context.Context, version uint64) (fl.GlobalModel, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-model").Add(1)
		mm.latency.With("method", "get-model").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetModel(ctx, version)
}

func (mm *metricsMiddleware) GetRound(ctx context.Context, id string) (fl.RoundRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-round").Add(1)
		mm.latency.With("method", "get-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetRound(ctx, id)
}

func (mm *metricsMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (fl.RoundPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-rounds").Add(1)
		mm.latency.With("method", "list-rounds").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRounds(ctx, offset, limit)
}

func (mm *metricsMiddleware) GetClient(ctx context.Context, id string) (fl.ClientRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-client").Add(1)
		mm.latency.With("method", "get-client").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetClient(ctx, id)
}

func (mm *metricsMiddleware) ListClients(ctx context.Context, offset, limit uint64) (fl.ClientPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-clients").Add(1)
		mm.latency.With("method", "list-clients").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListClients(ctx, offset, limit)
}

func (mm *metricsMiddleware) ClientHistory(ctx context.Context, id string) (coordinator.ClientHistory, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "client-history").Add(1)
		mm.latency.With("method", "client-history").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ClientHistory(ctx, id)
}

func (mm *metricsMiddleware) ExcludeClient(ctx context.Context, id string) (fl.ClientRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "exclude-client").Add(1)
		mm.latency.With("method", "exclude-client").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ExcludeClient(ctx, id)
}

func (mm *metricsMiddleware) IncludeClient(ctx context.Context, id string) (fl.ClientRecord, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "include-client").Add(1)
		mm.latency.With("method", "include-client").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.IncludeClient(ctx, id)
}
