package mqtt_test

import (
	"testing"

	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "fl/mnist/clients/c1/train", mqtt.TrainTopic("mnist", "c1"))
	assert.Equal(t, "fl/mnist/clients/c1/update", mqtt.UpdateTopic("mnist", "c1"))
	assert.Equal(t, "fl/mnist/clients/+/update", mqtt.UpdatesFilter("mnist"))
	assert.Equal(t, "fl/mnist/clients/c1/status", mqtt.StatusTopic("mnist", "c1"))
}

func TestClientFromTopic(t *testing.T) {
	cases := []struct {
		desc  string
		topic string
		id    string
		err   error
	}{
		{desc: "update topic", topic: "fl/mnist/clients/c7/update", id: "c7"},
		{desc: "status topic", topic: "fl/mnist/clients/c7/status", id: "c7"},
		{desc: "other experiment", topic: "fl/cifar/clients/c7/update", err: mqtt.ErrInvalidTopic},
		{desc: "missing suffix", topic: "fl/mnist/clients/c7", err: mqtt.ErrInvalidTopic},
		{desc: "empty client", topic: "fl/mnist/clients//update", err: mqtt.ErrInvalidTopic},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			id, err := mqtt.ClientFromTopic("mnist", tc.topic)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.id, id)
		})
	}
}
