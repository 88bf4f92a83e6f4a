package sdk_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/coordinator/api"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/registry"
	"github.com/absmach/fedcoord/pkg/sdk"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopTransport struct{}

func (nopTransport) Broadcast(context.Context, string, fl.GlobalModel, fl.RoundConfig) error {
	return nil
}

func newCoordinator(t *testing.T) (coordinator.Service, string) {
	t.Helper()

	reg, err := registry.New([]registry.Member{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}}, 0)
	require.NoError(t, err)

	svc, err := coordinator.NewService(
		context.Background(),
		coordinator.Config{
			ExperimentID:     "sdk",
			TotalRounds:      1,
			Fraction:         1,
			MinParticipants:  2,
			RoundDeadline:    time.Minute,
			BroadcastTimeout: time.Second,
		},
		reg,
		storage.NewInMemoryRepository(),
		nopTransport{},
		fl.NewFedAvgAggregator(),
		fl.NewGlobalModel(fl.Shape{"w": 2}),
		slog.New(slog.DiscardHandler),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(api.MakeHandler(svc, slog.New(slog.DiscardHandler), "test"))
	t.Cleanup(ts.Close)

	return svc, ts.URL
}

func update(clientID string, w0, w1 float32) fl.Update {
	return fl.Update{
		ClientID: clientID,
		Round:    1,
		Samples:  10,
		Loss:     0.5,
		Params:   fl.Params{"w": {w0, w1}},
	}
}

func TestSubmitUpdate(t *testing.T) {
	svc, url := newCoordinator(t)
	_, err := svc.StartRound(context.Background())
	require.NoError(t, err)

	jsonSDK := sdk.NewSDK(sdk.Config{CoordinatorURL: url})
	cborSDK := sdk.NewSDK(sdk.Config{CoordinatorURL: url, CBOR: true})

	cases := []struct {
		desc     string
		sdk      sdk.SDK
		clientID string
		update   fl.Update
		accepted bool
		reason   fl.RejectReason
	}{
		{
			desc:     "json update",
			sdk:      jsonSDK,
			clientID: "c1",
			update:   update("c1", 1, 1),
			accepted: true,
		},
		{
			desc:     "cbor update",
			sdk:      cborSDK,
			clientID: "c2",
			update:   update("c2", 3, 3),
			accepted: true,
		},
		{
			desc:     "unknown client",
			sdk:      jsonSDK,
			clientID: "zz",
			update:   update("zz", 1, 1),
			reason:   fl.ReasonUnknownClient,
		},
		{
			desc:     "impersonation",
			sdk:      jsonSDK,
			clientID: "c3",
			update:   update("c1", 1, 1),
			reason:   fl.ReasonClientMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			v, err := tc.sdk.SubmitUpdate(tc.clientID, tc.update)
			require.NoError(t, err)
			assert.Equal(t, tc.accepted, v.Accepted)
			assert.Equal(t, tc.reason, v.Reason)
		})
	}

	rec, err := svc.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, fl.RoundCompleted, rec.Status)

	model, err := jsonSDK.CurrentModel()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), model.Version)
	assert.InDeltaSlice(t, []float32{2, 2}, model.Params["w"], 1e-6)

	initial, err := jsonSDK.GetModel(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0}, initial.Params["w"])

	_, err = jsonSDK.GetModel(5)
	assert.Error(t, err)
}

func TestRoundsAndClients(t *testing.T) {
	svc, url := newCoordinator(t)
	rec, err := svc.StartRound(context.Background())
	require.NoError(t, err)

	s := sdk.NewSDK(sdk.Config{CoordinatorURL: url})

	st, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, coordinator.Collecting, st.State)

	page, err := s.ListRounds(0, 10)
	require.NoError(t, err)
	require.Len(t, page.Rounds, 1)
	assert.Equal(t, rec.ID, page.Rounds[0].ID)

	got, err := s.GetRound(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, fl.RoundCollecting, got.Status)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, got.Selected)

	_, err = s.GetRound("missing")
	assert.Error(t, err)

	clients, err := s.ListClients(1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), clients.Total)
	assert.Len(t, clients.Clients, 1)

	c, err := s.ExcludeClient("c2")
	require.NoError(t, err)
	assert.Equal(t, fl.Excluded, c.Availability)

	c, err = s.GetClient("c2")
	require.NoError(t, err)
	assert.Equal(t, fl.Excluded, c.Availability)

	c, err = s.IncludeClient("c2")
	require.NoError(t, err)
	assert.Equal(t, fl.Available, c.Availability)

	_, err = s.SubmitUpdate("c3", fl.Update{ClientID: "c3", Round: 7, Samples: 1, Params: fl.Params{"w": {0, 0}}})
	require.NoError(t, err)
	require.NoError(t, svc.Terminate(context.Background()))

	h, err := s.ClientHistory("c3")
	require.NoError(t, err)
	require.Len(t, h.Rejections, 1)
	assert.Equal(t, fl.ReasonRoundMismatch, h.Rejections[0].Reason)
}
