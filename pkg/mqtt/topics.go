package mqtt

import (
	"errors"
	"fmt"
	"strings"
)

const topicRoot = "fl"

var ErrInvalidTopic = errors.New("topic is not a client topic")

// TrainTopic carries the round snapshot addressed to one client.
func TrainTopic(experiment, clientID string) string {
	return fmt.Sprintf("%s/%s/clients/%s/train", topicRoot, experiment, clientID)
}

// UpdateTopic is where a client publishes its local update.
func UpdateTopic(experiment, clientID string) string {
	return fmt.Sprintf("%s/%s/clients/%s/update", topicRoot, experiment, clientID)
}

// UpdatesFilter matches the update topic of every client.
func UpdatesFilter(experiment string) string {
	return UpdateTopic(experiment, "+")
}

// StatusTopic carries client online/offline notices.
func StatusTopic(experiment, clientID string) string {
	return fmt.Sprintf("%s/%s/clients/%s/status", topicRoot, experiment, clientID)
}

// ClientFromTopic extracts the client ID from any per-client topic.
func ClientFromTopic(experiment, topic string) (string, error) {
	prefix := fmt.Sprintf("%s/%s/clients/", topicRoot, experiment)
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	id, _, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	return id, nil
}
