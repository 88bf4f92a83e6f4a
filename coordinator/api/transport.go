package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/api"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Large models are sent whole, so updates get a generous body limit.
const maxUpdateSize = 64 << 20

var errInvalidVersion = errors.New("invalid model version")

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/updates", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			submitUpdateEndpoint(svc),
			decodeUpdateReq,
			api.EncodeResponse,
			opts...,
		), "submit-update").ServeHTTP)
		r.Post("/cbor", otelhttp.NewHandler(kithttp.NewServer(
			submitUpdateEndpoint(svc),
			decodeCBORUpdateReq,
			api.EncodeResponse,
			opts...,
		), "submit-update-cbor").ServeHTTP)
	})

	mux.Get("/model", otelhttp.NewHandler(kithttp.NewServer(
		currentModelEndpoint(svc),
		kithttp.NopRequestDecoder,
		api.EncodeResponse,
		opts...,
	), "current-model").ServeHTTP)
	mux.Get("/models/{version}", otelhttp.NewHandler(kithttp.NewServer(
		getModelEndpoint(svc),
		decodeModelReq,
		api.EncodeResponse,
		opts...,
	), "get-model").ServeHTTP)

	mux.Route("/rounds", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listRoundsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-rounds").ServeHTTP)
		r.Get("/{roundID}", otelhttp.NewHandler(kithttp.NewServer(
			getRoundEndpoint(svc),
			decodeEntityReq("roundID"),
			api.EncodeResponse,
			opts...,
		), "get-round").ServeHTTP)
	})

	mux.Route("/clients", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listClientsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-clients").ServeHTTP)
		r.Route("/{clientID}", func(r chi.Router) {
			r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
				getClientEndpoint(svc),
				decodeEntityReq("clientID"),
				api.EncodeResponse,
				opts...,
			), "get-client").ServeHTTP)
			r.Get("/history", otelhttp.NewHandler(kithttp.NewServer(
				clientHistoryEndpoint(svc),
				decodeEntityReq("clientID"),
				api.EncodeResponse,
				opts...,
			), "client-history").ServeHTTP)
			r.Post("/exclude", otelhttp.NewHandler(kithttp.NewServer(
				excludeClientEndpoint(svc),
				decodeEntityReq("clientID"),
				api.EncodeResponse,
				opts...,
			), "exclude-client").ServeHTTP)
			r.Post("/include", otelhttp.NewHandler(kithttp.NewServer(
				includeClientEndpoint(svc),
				decodeEntityReq("clientID"),
				api.EncodeResponse,
				opts...,
			), "include-client").ServeHTTP)
		})
	})

	mux.Get("/status", otelhttp.NewHandler(kithttp.NewServer(
		statusEndpoint(svc),
		kithttp.NopRequestDecoder,
		api.EncodeResponse,
		opts...,
	), "status").ServeHTTP)

	mux.Get("/health", supermq.Health("fl-coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeUpdateReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var update fl.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateSize)).Decode(&update); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return newSubmitUpdateReq(r, update), nil
}

func decodeCBORUpdateReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.CBORContentType) {
		return nil, errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}

	var update fl.Update
	if err := cbor.NewDecoder(io.LimitReader(r.Body, maxUpdateSize)).Decode(&update); err != nil {
		return nil, errors.Join(err, apiutil.ErrValidation)
	}

	return newSubmitUpdateReq(r, update), nil
}

// newSubmitUpdateReq takes the sender from the client ID header, or from the
// update itself when the header is absent.
func newSubmitUpdateReq(r *http.Request, update fl.Update) submitUpdateReq {
	clientID := r.Header.Get(api.ClientIDHeader)
	if clientID == "" {
		clientID = update.ClientID
	}

	return submitUpdateReq{
		clientID: clientID,
		update:   update,
	}
}

func decodeModelReq(_ context.Context, r *http.Request) (any, error) {
	version, err := strconv.ParseUint(chi.URLParam(r, "version"), 10, 64)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, errInvalidVersion, err)
	}

	return modelReq{version: version}, nil
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}
