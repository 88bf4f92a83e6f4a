package coordinator_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/absmach/fedcoord/pkg/mqtt/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMQTTTransportBroadcast(t *testing.T) {
	ctx := context.Background()
	model := fl.NewGlobalModel(modelShape)
	cfg := fl.RoundConfig{Round: 4, ModelVersion: 3}

	cases := []struct {
		desc string
		err  error
	}{
		{desc: "published"},
		{desc: "broker error", err: errors.New("not connected")},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			pubsub := new(mocks.MockPubSub)
			pubsub.On("Publish", mock.Anything, "fl/exp/clients/c1/train", mock.MatchedBy(func(task fl.TrainTask) bool {
				return task.ClientID == "c1" && task.Config.Round == 4 && task.Model.Params.Shape().Equal(modelShape)
			})).Return(tc.err)

			transport := coordinator.NewMQTTTransport(pubsub, "exp")
			err := transport.Broadcast(ctx, "c1", model, cfg)
			assert.ErrorIs(t, err, tc.err)
			pubsub.AssertExpectations(t)
		})
	}
}

func TestHandleUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(2), nil, nil)
	_, err := f.svc.StartRound(ctx)
	require.NoError(t, err)

	handle := coordinator.HandleUpdate(ctx, "test", f.svc, slog.New(slog.DiscardHandler))

	payload, err := json.Marshal(clientUpdate("c1", 1, 10, 0.2, 1))
	require.NoError(t, err)

	cases := []struct {
		desc     string
		topic    string
		payload  []byte
		accepted int
		err      error
	}{
		{
			desc:     "valid update",
			topic:    mqtt.UpdateTopic("test", "c1"),
			payload:  payload,
			accepted: 1,
		},
		{
			desc:     "update published on another client's topic",
			topic:    mqtt.UpdateTopic("test", "c2"),
			payload:  payload,
			accepted: 1,
		},
		{
			desc:     "malformed payload",
			topic:    mqtt.UpdateTopic("test", "c3"),
			payload:  []byte("{"),
			accepted: 1,
			err:      errors.New("decode"),
		},
		{
			desc:     "foreign topic",
			topic:    "fl/other/clients/c1/update",
			payload:  payload,
			accepted: 1,
			err:      mqtt.ErrInvalidTopic,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := handle(tc.topic, tc.payload)
			switch {
			case tc.err == nil:
				assert.NoError(t, err)
			case errors.Is(tc.err, mqtt.ErrInvalidTopic):
				assert.ErrorIs(t, err, tc.err)
			default:
				assert.Error(t, err)
			}

			st, err := f.svc.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.accepted, st.Accepted)
		})
	}
}

func TestSubscribe(t *testing.T) {
	pubsub := new(mocks.MockPubSub)
	pubsub.On("Subscribe", mock.Anything, "fl/exp/clients/+/update", mock.Anything).Return(nil)
	pubsub.On("Subscribe", mock.Anything, "fl/exp/clients/+/status", mock.Anything).Return(nil)

	f := newFixture(t, testConfig(1), nil, nil)
	err := coordinator.Subscribe(context.Background(), "exp", pubsub, f.svc, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	pubsub.AssertExpectations(t)
}
