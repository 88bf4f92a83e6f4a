package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) StartRound(ctx context.Context) (rec fl.RoundRecord, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.String("id", rec.ID),
				slog.Uint64("number", rec.Number),
				slog.Any("attempt", rec.Attempt),
				slog.Int("selected", len(rec.Selected)),
				slog.Int("broadcast_failures", len(rec.BroadcastFailures)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Start round failed", args...)

			return
		}
		lm.logger.Info("Start round completed successfully", args...)
	}(time.Now())

	return lm.svc.StartRound(ctx)
}

func (lm *loggingMiddleware) SubmitUpdate(ctx context.Context, clientID string, update fl.Update) (v fl.Verdict, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("update",
				slog.String("client_id", clientID),
				slog.Uint64("round", update.Round),
				slog.Int64("samples", update.Samples),
			),
			slog.Bool("accepted", v.Accepted),
		}
		if v.Reason != "" {
			args = append(args, slog.String("reason", string(v.Reason)))
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit update failed", args...)

			return
		}
		lm.logger.Info("Submit update completed successfully", args...)
	}(time.Now())

	return lm.svc.SubmitUpdate(ctx, clientID, update)
}

// Tick runs on every runner tick, so only transitions and failures are logged.
func (lm *loggingMiddleware) Tick(ctx context.Context) (rec fl.RoundRecord, err error) {
	defer func(begin time.Time) {
		if err == nil && !rec.Status.Terminal() {
			return
		}
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.String("id", rec.ID),
				slog.Uint64("number", rec.Number),
				slog.String("status", rec.Status.String()),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Tick failed", args...)

			return
		}
		lm.logger.Debug("Tick completed successfully", args...)
	}(time.Now())

	return lm.svc.Tick(ctx)
}

func (lm *loggingMiddleware) Ready() <-chan struct{} {
	return lm.svc.Ready()
}

func (lm *loggingMiddleware) Terminate(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Terminate failed", args...)

			return
		}
		lm.logger.Info("Terminate completed successfully", args...)
	}(time.Now())

	return lm.svc.Terminate(ctx)
}

func (lm *loggingMiddleware) Status(ctx context.Context) (st coordinator.Status, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("state", st.State.String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get status failed", args...)

			return
		}
		lm.logger.Info("Get status completed successfully", args...)
	}(time.Now())

	return lm.svc.Status(ctx)
}

func (lm *loggingMiddleware) CurrentModel(ctx context.Context) (m fl.GlobalModel, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("version", m.Version),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get current model failed", args...)

			return
		}
		lm.logger.Info("Get current model completed successfully", args...)
	}(time.Now())

	return lm.svc.CurrentModel(ctx)
}

func (lm *loggingMiddleware) GetModel(ctx context.Context, version uint64) (m fl.GlobalModel, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("version", version),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get model failed", args...)

			return
		}
		lm.logger.Info("Get model completed successfully", args...)
	}(time.Now())

	return lm.svc.GetModel(ctx, version)
}

func (lm *loggingMiddleware) GetRound(ctx context.Context, id string) (rec fl.RoundRecord, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("round",
				slog.String("id", id),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get round failed", args...)

			return
		}
		lm.logger.Info("Get round completed successfully", args...)
	}(time.Now())

	return lm.svc.GetRound(ctx, id)
}

func (lm *loggingMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (page fl.RoundPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List rounds failed", args...)

			return
		}
		lm.logger.Info("List rounds completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRounds(ctx, offset, limit)
}

func (lm *loggingMiddleware) GetClient(ctx context.Context, id string) (c fl.ClientRecord, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("client",
				slog.String("id", id),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get client failed", args...)

			return
		}
		lm.logger.Info("Get client completed successfully", args...)
	}(time.Now())

	return lm.svc.GetClient(ctx, id)
}

func (lm *loggingMiddleware) ListClients(ctx context.Context, offset, limit uint64) (page fl.ClientPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List clients failed", args...)

			return
		}
		lm.logger.Info("List clients completed successfully", args...)
	}(time.Now())

	return lm.svc.ListClients(ctx, offset, limit)
}

func (lm *loggingMiddleware) ClientHistory(ctx context.Context, id string) (h coordinator.ClientHistory, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("client",
				slog.String("id", id),
				slog.Int("contributions", len(h.Contributions)),
				slog.Int("rejections", len(h.Rejections)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get client history failed", args...)

			return
		}
		lm.logger.Info("Get client history completed successfully", args...)
	}(time.Now())

	return lm.svc.ClientHistory(ctx, id)
}

func (lm *loggingMiddleware) ExcludeClient(ctx context.Context, id string) (c fl.ClientRecord, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("client",
				slog.String("id", id),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Exclude client failed", args...)

			return
		}
		lm.logger.Info("Exclude client completed successfully", args...)
	}(time.Now())

	return lm.svc.ExcludeClient(ctx, id)
}

func (lm *loggingMiddleware) IncludeClient(ctx context.Context, id string) (c fl.ClientRecord, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("client",
				slog.String("id", id),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Include client failed", args...)

			return
		}
		lm.logger.Info("Include client completed successfully", args...)
	}(time.Now())

	return lm.svc.IncludeClient(ctx, id)
}
