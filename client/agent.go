// Package client is the participant side of a run: it receives train tasks
// over MQTT, trains locally and publishes the resulting update.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/mqtt"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

var (
	ErrMisaddressed = errors.New("train task addressed to another client")
	ErrNonFinite    = errors.New("trainer produced non-finite parameters")
	ErrStopped      = errors.New("agent is stopping")
)

type Config struct {
	ClientID          string        `env:"ID"`
	ExperimentID      string        `env:"EXPERIMENT_ID"      envDefault:"default"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
}

type Agent struct {
	cfg     Config
	pubsub  mqtt.PubSub
	trainer Trainer
	logger  *slog.Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func NewAgent(cfg Config, pubsub mqtt.PubSub, trainer Trainer, logger *slog.Logger) *Agent {
	return &Agent{
		cfg:     cfg,
		pubsub:  pubsub,
		trainer: trainer,
		logger:  logger,
	}
}

// Run subscribes to the client's train topic and keeps announcing the client
// until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	topic := mqtt.TrainTopic(a.cfg.ExperimentID, a.cfg.ClientID)
	if err := a.pubsub.Subscribe(ctx, topic, a.handleTask(ctx)); err != nil {
		return fmt.Errorf("failed to subscribe to train topic: %w", err)
	}
	a.announce(ctx, StatusOnline)

	a.logger.Info("client agent is running", slog.String("client_id", a.cfg.ClientID), slog.String("topic", topic))

	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.stop(context.WithoutCancel(ctx), topic)
			a.announce(context.WithoutCancel(ctx), StatusOffline)

			return nil
		case <-ticker.C:
			a.announce(ctx, StatusOnline)
		}
	}
}

// stop refuses new tasks before waiting for the ones in flight.
func (a *Agent) stop(ctx context.Context, topic string) {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()

	if err := a.pubsub.Unsubscribe(ctx, topic); err != nil {
		a.logger.Warn("failed to unsubscribe from train topic", slog.Any("error", err))
	}
	a.wg.Wait()
}

func (a *Agent) announce(ctx context.Context, status string) {
	msg := coordinator.StatusMessage{ClientID: a.cfg.ClientID, Status: status}
	if err := a.pubsub.Publish(ctx, mqtt.StatusTopic(a.cfg.ExperimentID, a.cfg.ClientID), msg); err != nil {
		a.logger.Warn("failed to publish status", slog.String("status", status), slog.Any("error", err))
	}
}

func (a *Agent) handleTask(ctx context.Context) mqtt.Handler {
	return func(_ string, payload []byte) error {
		var task fl.TrainTask
		if err := json.Unmarshal(payload, &task); err != nil {
			return fmt.Errorf("failed to decode train task: %w", err)
		}
		if task.ClientID != a.cfg.ClientID {
			return fmt.Errorf("%w: %s", ErrMisaddressed, task.ClientID)
		}

		a.mu.Lock()
		if a.stopped {
			a.mu.Unlock()

			return ErrStopped
		}
		a.wg.Add(1)
		a.mu.Unlock()

		go func() {
			defer a.wg.Done()
			if err := a.Train(ctx, task); err != nil {
				a.logger.Warn("round skipped",
					slog.Uint64("round", task.Config.Round),
					slog.Any("error", err),
				)
			}
		}()

		return nil
	}
}

// Train runs the trainer under the round deadline and publishes the update.
func (a *Agent) Train(ctx context.Context, task fl.TrainTask) error {
	if !task.Config.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, task.Config.Deadline)
		defer cancel()
	}

	begin := time.Now()
	update, err := a.trainer.Train(ctx, task.Model.Params, task.Config)
	if err != nil {
		return err
	}
	if !Finite(update.Params) {
		return ErrNonFinite
	}
	update.ClientID = a.cfg.ClientID
	update.Round = task.Config.Round

	if err := a.pubsub.Publish(ctx, mqtt.UpdateTopic(a.cfg.ExperimentID, a.cfg.ClientID), update); err != nil {
		return fmt.Errorf("failed to publish update: %w", err)
	}

	a.logger.Info("published update",
		slog.Uint64("round", update.Round),
		slog.Int64("samples", update.Samples),
		slog.Float64("loss", update.Loss),
		slog.String("duration", time.Since(begin).String()),
	)

	return nil
}
