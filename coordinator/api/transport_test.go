package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/coordinator/api"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/registry"
	"github.com/absmach/fedcoord/pkg/storage"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shape = fl.Shape{"w": 2}

type nopTransport struct{}

func (nopTransport) Broadcast(context.Context, string, fl.GlobalModel, fl.RoundConfig) error {
	return nil
}

type testRequest struct {
	method      string
	url         string
	contentType string
	clientID    string
	body        io.Reader
}

func (tr testRequest) make(t *testing.T) *http.Response {
	t.Helper()

	req, err := http.NewRequest(tr.method, tr.url, tr.body)
	require.NoError(t, err)
	if tr.contentType != "" {
		req.Header.Set("Content-Type", tr.contentType)
	}
	if tr.clientID != "" {
		req.Header.Set("X-Client-ID", tr.clientID)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return res
}

func newServer(t *testing.T) (*httptest.Server, coordinator.Service) {
	t.Helper()

	reg, err := registry.New([]registry.Member{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}}, 0)
	require.NoError(t, err)

	svc, err := coordinator.NewService(
		context.Background(),
		coordinator.Config{
			ExperimentID:     "api",
			TotalRounds:      2,
			Fraction:         1,
			MinParticipants:  2,
			RoundDeadline:    time.Minute,
			BroadcastTimeout: time.Second,
		},
		reg,
		storage.NewInMemoryRepository(),
		nopTransport{},
		fl.NewFedAvgAggregator(),
		fl.NewGlobalModel(shape),
		slog.New(slog.DiscardHandler),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(api.MakeHandler(svc, slog.New(slog.DiscardHandler), "test"))
	t.Cleanup(ts.Close)

	return ts, svc
}

func jsonUpdate(t *testing.T, u fl.Update) io.Reader {
	t.Helper()

	data, err := json.Marshal(u)
	require.NoError(t, err)

	return bytes.NewReader(data)
}

func cborUpdate(t *testing.T, u fl.Update) io.Reader {
	t.Helper()

	data, err := cbor.Marshal(u)
	require.NoError(t, err)

	return bytes.NewReader(data)
}

func validUpdate(clientID string) fl.Update {
	return fl.Update{
		ClientID: clientID,
		Round:    1,
		Samples:  10,
		Params:   fl.Params{"w": {1, 2}},
	}
}

func TestSubmitUpdate(t *testing.T) {
	ts, svc := newServer(t)
	_, err := svc.StartRound(context.Background())
	require.NoError(t, err)

	badShape := validUpdate("c2")
	badShape.Params = fl.Params{"w": {1}}

	cases := []struct {
		desc   string
		req    testRequest
		status int
		reason fl.RejectReason
	}{
		{
			desc: "json update",
			req: testRequest{
				method:      http.MethodPost,
				url:         ts.URL + "/updates",
				contentType: "application/json",
				body:        jsonUpdate(t, validUpdate("c1")),
			},
			status: http.StatusAccepted,
		},
		{
			desc: "cbor update",
			req: testRequest{
				method:      http.MethodPost,
				url:         ts.URL + "/updates/cbor",
				contentType: "application/cbor",
				clientID:    "c3",
				body:        cborUpdate(t, validUpdate("c3")),
			},
			status: http.StatusAccepted,
		},
		{
			desc: "wrong layer length",
			req: testRequest{
				method:      http.MethodPost,
				url:         ts.URL + "/updates",
				contentType: "application/json",
				body:        jsonUpdate(t, badShape),
			},
			status: http.StatusOK,
			reason: fl.ReasonLayerLength,
		},
		{
			desc: "header names another client",
			req: testRequest{
				method:      http.MethodPost,
				url:         ts.URL + "/updates",
				contentType: "application/json",
				clientID:    "c2",
				body:        jsonUpdate(t, validUpdate("c1")),
			},
			status: http.StatusOK,
			reason: fl.ReasonClientMismatch,
		},
		{
			desc: "unsupported content type",
			req: testRequest{
				method:      http.MethodPost,
				url:         ts.URL + "/updates",
				contentType: "text/plain",
				body:        jsonUpdate(t, validUpdate("c1")),
			},
			status: http.StatusUnsupportedMediaType,
		},
		{
			desc: "malformed json",
			req: testRequest{
				method:      http.MethodPost,
				url:         ts.URL + "/updates",
				contentType: "application/json",
				body:        strings.NewReader("{"),
			},
			status: http.StatusBadRequest,
		},
		{
			desc: "missing client id",
			req: testRequest{
				method:      http.MethodPost,
				url:         ts.URL + "/updates",
				contentType: "application/json",
				body:        jsonUpdate(t, validUpdate("")),
			},
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res := tc.req.make(t)
			defer res.Body.Close()
			assert.Equal(t, tc.status, res.StatusCode)

			if tc.status != http.StatusOK {
				return
			}
			var verdict fl.Verdict
			require.NoError(t, json.NewDecoder(res.Body).Decode(&verdict))
			assert.False(t, verdict.Accepted)
			assert.Equal(t, tc.reason, verdict.Reason)
		})
	}

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Accepted)
}

func TestReadEndpoints(t *testing.T) {
	ts, svc := newServer(t)
	rec, err := svc.StartRound(context.Background())
	require.NoError(t, err)

	cases := []struct {
		desc   string
		url    string
		status int
	}{
		{desc: "current model", url: "/model", status: http.StatusOK},
		{desc: "model by version", url: "/models/0", status: http.StatusOK},
		{desc: "missing model", url: "/models/7", status: http.StatusNotFound},
		{desc: "invalid model version", url: "/models/latest", status: http.StatusBadRequest},
		{desc: "list rounds", url: "/rounds", status: http.StatusOK},
		{desc: "list rounds over limit", url: "/rounds?limit=1000", status: http.StatusBadRequest},
		{desc: "list rounds bad offset", url: "/rounds?offset=x", status: http.StatusBadRequest},
		{desc: "get round", url: "/rounds/" + rec.ID, status: http.StatusOK},
		{desc: "missing round", url: "/rounds/nope", status: http.StatusNotFound},
		{desc: "list clients", url: "/clients?offset=1&limit=2", status: http.StatusOK},
		{desc: "get client", url: "/clients/c2", status: http.StatusOK},
		{desc: "missing client", url: "/clients/zz", status: http.StatusNotFound},
		{desc: "client history", url: "/clients/c2/history", status: http.StatusOK},
		{desc: "status", url: "/status", status: http.StatusOK},
		{desc: "health", url: "/health", status: http.StatusOK},
		{desc: "metrics", url: "/metrics", status: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res := testRequest{method: http.MethodGet, url: ts.URL + tc.url}.make(t)
			defer res.Body.Close()
			assert.Equal(t, tc.status, res.StatusCode, fmt.Sprintf("%s: unexpected status", tc.url))
		})
	}
}

func TestStatusBody(t *testing.T) {
	ts, svc := newServer(t)
	_, err := svc.StartRound(context.Background())
	require.NoError(t, err)

	res := testRequest{method: http.MethodGet, url: ts.URL + "/status"}.make(t)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var st coordinator.Status
	require.NoError(t, json.NewDecoder(res.Body).Decode(&st))
	assert.Equal(t, coordinator.Collecting, st.State)
	require.NotNil(t, st.Round)
	assert.Equal(t, uint64(1), st.Round.Number)
	assert.Equal(t, fl.RoundCollecting, st.Round.Status)
}

func TestExcludeInclude(t *testing.T) {
	ts, _ := newServer(t)

	cases := []struct {
		desc         string
		url          string
		status       int
		availability fl.Availability
	}{
		{desc: "exclude", url: "/clients/c1/exclude", status: http.StatusOK, availability: fl.Excluded},
		{desc: "include", url: "/clients/c1/include", status: http.StatusOK, availability: fl.Available},
		{desc: "unknown client", url: "/clients/zz/exclude", status: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res := testRequest{method: http.MethodPost, url: ts.URL + tc.url}.make(t)
			defer res.Body.Close()
			require.Equal(t, tc.status, res.StatusCode)
			if tc.status != http.StatusOK {
				return
			}

			var client fl.ClientRecord
			require.NoError(t, json.NewDecoder(res.Body).Decode(&client))
			assert.Equal(t, tc.availability, client.Availability)
		})
	}
}

func TestSubmitAfterTermination(t *testing.T) {
	ts, svc := newServer(t)
	require.NoError(t, svc.Terminate(context.Background()))

	res := testRequest{
		method:      http.MethodPost,
		url:         ts.URL + "/updates",
		contentType: "application/json",
		body:        jsonUpdate(t, validUpdate("c1")),
	}.make(t)
	defer res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}
