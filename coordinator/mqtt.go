package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/mqtt"
)

var _ Transport = (*mqttTransport)(nil)

type mqttTransport struct {
	pubsub     mqtt.PubSub
	experiment string
}

// NewMQTTTransport publishes each round's TrainTask on the client's train topic.
func NewMQTTTransport(pubsub mqtt.PubSub, experiment string) Transport {
	return &mqttTransport{
		pubsub:     pubsub,
		experiment: experiment,
	}
}

func (t *mqttTransport) Broadcast(ctx context.Context, clientID string, snapshot fl.GlobalModel, cfg fl.RoundConfig) error {
	task := fl.TrainTask{
		ClientID: clientID,
		Config:   cfg,
		Model:    snapshot,
	}

	return t.pubsub.Publish(ctx, mqtt.TrainTopic(t.experiment, clientID), task)
}

// StatusMessage is published by clients when they connect, and by the broker
// as their last will when they drop.
type StatusMessage struct {
	ClientID string `json:"client_id"`
	Status   string `json:"status"`
}

// Subscribe feeds every update published by clients of the experiment into
// svc. The sending client is identified by the topic it published on.
func Subscribe(ctx context.Context, experiment string, pubsub mqtt.PubSub, svc Service, logger *slog.Logger) error {
	if err := pubsub.Subscribe(ctx, mqtt.UpdatesFilter(experiment), HandleUpdate(ctx, experiment, svc, logger)); err != nil {
		return err
	}

	return pubsub.Subscribe(ctx, mqtt.StatusTopic(experiment, "+"), HandleStatus(experiment, logger))
}

func HandleUpdate(ctx context.Context, experiment string, svc Service, logger *slog.Logger) mqtt.Handler {
	return func(topic string, payload []byte) error {
		clientID, err := mqtt.ClientFromTopic(experiment, topic)
		if err != nil {
			return err
		}

		var update fl.Update
		if err := json.Unmarshal(payload, &update); err != nil {
			return fmt.Errorf("failed to decode update from %s: %w", clientID, err)
		}

		verdict, err := svc.SubmitUpdate(ctx, clientID, update)
		if err != nil {
			return err
		}
		if !verdict.Accepted {
			logger.Debug("update over MQTT not counted",
				slog.String("client_id", clientID),
				slog.String("reason", string(verdict.Reason)),
			)
		}

		return nil
	}
}

func HandleStatus(experiment string, logger *slog.Logger) mqtt.Handler {
	return func(topic string, payload []byte) error {
		clientID, err := mqtt.ClientFromTopic(experiment, topic)
		if err != nil {
			return err
		}

		var msg StatusMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("failed to decode status from %s: %w", clientID, err)
		}
		logger.Info("client status changed", slog.String("client_id", clientID), slog.String("status", msg.Status))

		return nil
	}
}
