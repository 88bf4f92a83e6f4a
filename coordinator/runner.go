package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/fedcoord/pkg/cron"
	"github.com/absmach/fedcoord/pkg/fl"
)

const (
	PolicyRetry = "retry"
	PolicyAbort = "abort"
)

var ErrInvalidPolicy = errors.New("failure policy must be retry or abort")

type RunnerConfig struct {
	TickInterval time.Duration `env:"TICK_INTERVAL"  envDefault:"1s"`
	Policy       string        `env:"FAILURE_POLICY" envDefault:"retry"`
	MaxRetries   uint          `env:"MAX_RETRIES"    envDefault:"3"`
	Schedule     string        `env:"SCHEDULE"       envDefault:""`
	Timezone     string        `env:"TIMEZONE"       envDefault:"UTC"`
}

// Report is the cumulative outcome of a run.
type Report struct {
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
	FinalVersion uint64 `json:"final_version"`
	Aborted      bool   `json:"aborted"`
	Halted       string `json:"halted,omitempty"`
}

// Runner starts rounds until the configured total is reached, the failure
// policy gives up, or the context is cancelled.
type Runner struct {
	svc      Service
	cfg      RunnerConfig
	schedule *cron.Schedule
	logger   *slog.Logger
	now      func() time.Time
}

func NewRunner(svc Service, cfg RunnerConfig, logger *slog.Logger) (*Runner, error) {
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("%w: tick interval must be positive", ErrInvalidCfg)
	}
	if cfg.Policy != PolicyRetry && cfg.Policy != PolicyAbort {
		return nil, fmt.Errorf("%w: %w, got %q", ErrInvalidCfg, ErrInvalidPolicy, cfg.Policy)
	}

	r := &Runner{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	if cfg.Schedule != "" {
		schedule, err := cron.Parse(cfg.Schedule, cfg.Timezone)
		if err != nil {
			return nil, err
		}
		r.schedule = schedule
	}

	return r, nil
}

func (r *Runner) Run(ctx context.Context) (Report, error) {
	var (
		report   Report
		failures uint
	)

	r.logger.Info("run started", slog.String("policy", r.cfg.Policy), slog.Duration("tick_interval", r.cfg.TickInterval))

	for {
		if err := r.waitSchedule(ctx); err != nil {
			return r.stop(ctx, report, err)
		}

		rec, err := r.svc.StartRound(ctx)
		switch {
		case errors.Is(err, ErrTerminated):
			return r.finish(ctx, report), nil
		case errors.Is(err, ErrHalted), errors.Is(err, fl.ErrPersistence):
			return r.halt(ctx, report, err)
		case err != nil && !rec.Status.Terminal():
			return r.finish(ctx, report), err
		}

		if !rec.Status.Terminal() {
			if rec, err = r.await(ctx); err != nil {
				if errors.Is(err, fl.ErrPersistence) {
					return r.halt(ctx, report, err)
				}

				return r.stop(ctx, report, err)
			}
		}

		if rec.Status == fl.RoundCompleted {
			report.Completed++
			failures = 0

			continue
		}

		report.Failed++
		failures++
		if r.cfg.Policy == PolicyAbort || failures > r.cfg.MaxRetries {
			r.logger.Warn("aborting run after failed round",
				slog.Uint64("round", rec.Number),
				slog.Any("consecutive_failures", failures),
			)
			report.Aborted = true
			if err := r.svc.Terminate(ctx); err != nil {
				return r.halt(ctx, report, err)
			}

			return r.finish(ctx, report), nil
		}
		r.logger.Info("retrying round", slog.Uint64("round", rec.Number), slog.Any("attempt", rec.Attempt+1))
	}
}

// await ticks the active round until it completes or fails.
func (r *Runner) await(ctx context.Context) (fl.RoundRecord, error) {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		rec, err := r.svc.Tick(ctx)
		if errors.Is(err, fl.ErrPersistence) {
			return rec, err
		}
		if rec.Status.Terminal() {
			return rec, nil
		}

		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-r.svc.Ready():
		case <-ticker.C:
		}
	}
}

func (r *Runner) waitSchedule(ctx context.Context) error {
	if r.schedule == nil {
		return ctx.Err()
	}

	next := r.schedule.Next(r.now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	r.logger.Debug("waiting for next scheduled round", slog.Time("at", next))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Runner) stop(ctx context.Context, report Report, cause error) (Report, error) {
	report.Aborted = true
	// The run context is already done; terminate with a detached one.
	if err := r.svc.Terminate(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn("failed to terminate coordinator", slog.Any("error", err))
	}

	return r.finish(ctx, report), cause
}

func (r *Runner) halt(ctx context.Context, report Report, cause error) (Report, error) {
	report.Halted = cause.Error()

	return r.finish(ctx, report), cause
}

func (r *Runner) finish(ctx context.Context, report Report) Report {
	if model, err := r.svc.CurrentModel(context.WithoutCancel(ctx)); err == nil {
		report.FinalVersion = model.Version
	}

	r.logger.Info("run finished",
		slog.Int("completed", report.Completed),
		slog.Int("failed", report.Failed),
		slog.Uint64("final_version", report.FinalVersion),
		slog.Bool("aborted", report.Aborted),
		slog.String("halted", report.Halted),
	)

	return report
}
