package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/fedcoord/client"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/mqtt"
	"github.com/absmach/fedcoord/pkg/mqtt/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type failingTrainer struct{}

func (failingTrainer) Train(context.Context, fl.Params, fl.RoundConfig) (fl.Update, error) {
	return fl.Update{}, errors.New("dataset unavailable")
}

type slowTrainer struct{}

func (slowTrainer) Train(ctx context.Context, _ fl.Params, _ fl.RoundConfig) (fl.Update, error) {
	<-ctx.Done()

	return fl.Update{}, ctx.Err()
}

func task(clientID string) fl.TrainTask {
	return fl.TrainTask{
		ClientID: clientID,
		Config: fl.RoundConfig{
			Round:        2,
			ModelVersion: 1,
			Deadline:     time.Now().Add(time.Minute),
			LocalEpochs:  2,
			LearningRate: 0.5,
		},
		Model: fl.NewGlobalModel(fl.Shape{"w": 3, "b": 1}),
	}
}

func TestAgentTrain(t *testing.T) {
	cfg := client.Config{ClientID: "c1", ExperimentID: "exp", HeartbeatInterval: time.Minute}

	cases := []struct {
		desc      string
		trainer   client.Trainer
		task      fl.TrainTask
		published bool
		err       error
	}{
		{
			desc:      "publishes update",
			trainer:   &client.SimTrainer{ClientID: "c1", Samples: 40, Seed: 1},
			task:      task("c1"),
			published: true,
		},
		{
			desc:    "trainer error means silence",
			trainer: failingTrainer{},
			task:    task("c1"),
			err:     errors.New("dataset unavailable"),
		},
		{
			desc:    "deadline passes while training",
			trainer: slowTrainer{},
			task: func() fl.TrainTask {
				tk := task("c1")
				tk.Config.Deadline = time.Now().Add(10 * time.Millisecond)

				return tk
			}(),
			err: context.DeadlineExceeded,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			pubsub := new(mocks.MockPubSub)
			if tc.published {
				pubsub.On("Publish", mock.Anything, mqtt.UpdateTopic("exp", "c1"), mock.MatchedBy(func(u fl.Update) bool {
					return u.ClientID == "c1" && u.Round == 2 && u.Samples == 40 && u.Params.Shape().Equal(fl.Shape{"w": 3, "b": 1})
				})).Return(nil).Once()
			}

			agent := client.NewAgent(cfg, pubsub, tc.trainer, slog.New(slog.DiscardHandler))
			err := agent.Train(context.Background(), tc.task)
			switch {
			case tc.err == nil:
				assert.NoError(t, err)
			case errors.Is(tc.err, context.DeadlineExceeded):
				assert.ErrorIs(t, err, tc.err)
			default:
				assert.EqualError(t, err, tc.err.Error())
			}
			pubsub.AssertExpectations(t)
		})
	}
}

func TestAgentRun(t *testing.T) {
	cfg := client.Config{ClientID: "c1", ExperimentID: "exp", HeartbeatInterval: time.Hour}
	trainTopic := mqtt.TrainTopic("exp", "c1")

	handlers := make(chan mqtt.Handler, 1)
	published := make(chan fl.Update, 1)

	pubsub := new(mocks.MockPubSub)
	pubsub.On("Subscribe", mock.Anything, trainTopic, mock.Anything).Run(func(args mock.Arguments) {
		handlers <- args.Get(2).(mqtt.Handler)
	}).Return(nil)
	pubsub.On("Unsubscribe", mock.Anything, trainTopic).Return(nil).Once()
	pubsub.On("Publish", mock.Anything, mqtt.StatusTopic("exp", "c1"), mock.Anything).Return(nil)
	pubsub.On("Publish", mock.Anything, mqtt.UpdateTopic("exp", "c1"), mock.Anything).Run(func(args mock.Arguments) {
		published <- args.Get(2).(fl.Update)
	}).Return(nil)

	agent := client.NewAgent(cfg, pubsub, &client.SimTrainer{ClientID: "c1", Samples: 5, Seed: 9}, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- agent.Run(ctx)
	}()

	var handler mqtt.Handler
	select {
	case handler = <-handlers:
	case <-time.After(time.Second):
		t.Fatal("agent did not subscribe to its train topic")
	}

	misaddressed, err := json.Marshal(task("c2"))
	require.NoError(t, err)
	assert.ErrorIs(t, handler(trainTopic, misaddressed), client.ErrMisaddressed)

	payload, err := json.Marshal(task("c1"))
	require.NoError(t, err)
	require.NoError(t, handler(trainTopic, payload))

	select {
	case u := <-published:
		assert.Equal(t, uint64(2), u.Round)
		assert.Equal(t, int64(5), u.Samples)
	case <-time.After(2 * time.Second):
		t.Fatal("update was not published")
	}

	cancel()
	require.NoError(t, <-done)

	// A task delivered after shutdown is refused instead of training.
	assert.ErrorIs(t, handler(trainTopic, payload), client.ErrStopped)
	select {
	case <-published:
		t.Fatal("update published after the agent stopped")
	case <-time.After(50 * time.Millisecond):
	}
	pubsub.AssertCalled(t, "Unsubscribe", mock.Anything, trainTopic)
}
