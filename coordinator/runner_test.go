package coordinator_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/registry"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoTransport answers every broadcast with an update from the listed
// responders, the way a fleet of well behaved clients would.
type echoTransport struct {
	mu         sync.Mutex
	svc        coordinator.Service
	responders map[string]bool
}

func (e *echoTransport) Broadcast(ctx context.Context, clientID string, snapshot fl.GlobalModel, cfg fl.RoundConfig) error {
	e.mu.Lock()
	svc, respond := e.svc, e.responders[clientID]
	e.mu.Unlock()
	if !respond {
		return nil
	}

	params := snapshot.Params.Clone()
	for _, layer := range params {
		for i := range layer {
			layer[i] += 1
		}
	}
	_, err := svc.SubmitUpdate(ctx, clientID, fl.Update{
		ClientID: clientID,
		Round:    cfg.Round,
		Params:   params,
		Samples:  10,
		Loss:     0.25,
		Accuracy: 0.75,
	})

	return err
}

func newRunnerService(t *testing.T, cfg coordinator.Config, responders ...string) coordinator.Service {
	t.Helper()

	members := make([]registry.Member, len(clientIDs))
	for i, id := range clientIDs {
		members[i] = registry.Member{ID: id}
	}
	reg, err := registry.New(members, 0)
	require.NoError(t, err)

	transport := &echoTransport{responders: make(map[string]bool)}
	for _, id := range responders {
		transport.responders[id] = true
	}

	svc, err := coordinator.NewService(
		context.Background(),
		cfg,
		reg,
		storage.NewInMemoryRepository(),
		transport,
		fl.NewFedAvgAggregator(),
		fl.NewGlobalModel(modelShape),
		slog.New(slog.DiscardHandler),
	)
	require.NoError(t, err)

	transport.mu.Lock()
	transport.svc = svc
	transport.mu.Unlock()

	return svc
}

func TestRunner(t *testing.T) {
	cases := []struct {
		desc       string
		minimum    int
		responders []string
		policy     string
		maxRetries uint
		report     coordinator.Report
	}{
		{
			desc:       "all rounds complete",
			minimum:    3,
			responders: clientIDs,
			policy:     coordinator.PolicyAbort,
			report:     coordinator.Report{Completed: 3, FinalVersion: 3},
		},
		{
			desc:       "abort on first failure",
			minimum:    5,
			responders: clientIDs[:2],
			policy:     coordinator.PolicyAbort,
			report:     coordinator.Report{Failed: 1, Aborted: true},
		},
		{
			desc:       "retry until retries run out",
			minimum:    5,
			responders: clientIDs[:4],
			policy:     coordinator.PolicyRetry,
			maxRetries: 2,
			report:     coordinator.Report{Failed: 3, Aborted: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := testConfig(tc.minimum)
			cfg.RoundDeadline = 20 * time.Millisecond
			svc := newRunnerService(t, cfg, tc.responders...)

			runner, err := coordinator.NewRunner(svc, coordinator.RunnerConfig{
				TickInterval: 5 * time.Millisecond,
				Policy:       tc.policy,
				MaxRetries:   tc.maxRetries,
			}, slog.New(slog.DiscardHandler))
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			report, err := runner.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.report, report)

			st, err := svc.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, coordinator.Terminated, st.State)
		})
	}
}

func TestRunnerCompletedModel(t *testing.T) {
	svc := newRunnerService(t, testConfig(5), clientIDs...)

	runner, err := coordinator.NewRunner(svc, coordinator.RunnerConfig{
		TickInterval: 5 * time.Millisecond,
		Policy:       coordinator.PolicyRetry,
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	model, err := svc.CurrentModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), model.Version)
	// Every client adds one per round to a zero model.
	assert.InDelta(t, 3.0, model.Params["bias"][0], 1e-6)

	page, err := svc.ListRounds(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), page.Total)
}

func TestRunnerCancel(t *testing.T) {
	cfg := testConfig(5)
	cfg.RoundDeadline = time.Hour
	svc := newRunnerService(t, cfg)

	runner, err := coordinator.NewRunner(svc, coordinator.RunnerConfig{
		TickInterval: 5 * time.Millisecond,
		Policy:       coordinator.PolicyRetry,
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := runner.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, report.Aborted)

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.Terminated, st.State)
	require.NotNil(t, st.Round)
	assert.Equal(t, fl.RoundFailed, st.Round.Status)
}

func TestNewRunnerInvalidConfig(t *testing.T) {
	svc := newRunnerService(t, testConfig(1))

	cases := []struct {
		desc string
		cfg  coordinator.RunnerConfig
	}{
		{
			desc: "zero tick interval",
			cfg:  coordinator.RunnerConfig{Policy: coordinator.PolicyRetry},
		},
		{
			desc: "unknown policy",
			cfg:  coordinator.RunnerConfig{TickInterval: time.Second, Policy: "ignore"},
		},
		{
			desc: "bad schedule",
			cfg:  coordinator.RunnerConfig{TickInterval: time.Second, Policy: coordinator.PolicyAbort, Schedule: "every day"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := coordinator.NewRunner(svc, tc.cfg, slog.New(slog.DiscardHandler))
			assert.Error(t, err)
		})
	}
}
