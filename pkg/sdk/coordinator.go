package sdk

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/fxamacker/cbor/v2"
)

const (
	clientIDHeader   = "X-Client-ID"
	updatesEndpoint  = "/updates"
	roundsEndpoint   = "/rounds"
	clientsEndpoint  = "/clients"
	modelEndpoint    = "/model"
	modelsEndpoint   = "/models"
	statusEndpoint   = "/status"
	cborUpdatesRoute = updatesEndpoint + "/cbor"
)

func (sdk *fedSDK) Status() (coordinator.Status, error) {
	var st coordinator.Status
	if err := sdk.get(statusEndpoint, &st); err != nil {
		return coordinator.Status{}, err
	}

	return st, nil
}

func (sdk *fedSDK) CurrentModel() (fl.GlobalModel, error) {
	var m fl.GlobalModel
	if err := sdk.get(modelEndpoint, &m); err != nil {
		return fl.GlobalModel{}, err
	}

	return m, nil
}

func (sdk *fedSDK) GetModel(version uint64) (fl.GlobalModel, error) {
	var m fl.GlobalModel
	if err := sdk.get(modelsEndpoint+"/"+strconv.FormatUint(version, 10), &m); err != nil {
		return fl.GlobalModel{}, err
	}

	return m, nil
}

func (sdk *fedSDK) ListRounds(offset, limit uint64) (fl.RoundPage, error) {
	var page fl.RoundPage
	if err := sdk.get(roundsEndpoint+pageQuery(offset, limit), &page); err != nil {
		return fl.RoundPage{}, err
	}

	return page, nil
}

func (sdk *fedSDK) GetRound(id string) (fl.RoundRecord, error) {
	var rec fl.RoundRecord
	if err := sdk.get(roundsEndpoint+"/"+url.PathEscape(id), &rec); err != nil {
		return fl.RoundRecord{}, err
	}

	return rec, nil
}

func (sdk *fedSDK) ListClients(offset, limit uint64) (fl.ClientPage, error) {
	var page fl.ClientPage
	if err := sdk.get(clientsEndpoint+pageQuery(offset, limit), &page); err != nil {
		return fl.ClientPage{}, err
	}

	return page, nil
}

func (sdk *fedSDK) GetClient(id string) (fl.ClientRecord, error) {
	var c fl.ClientRecord
	if err := sdk.get(clientsEndpoint+"/"+url.PathEscape(id), &c); err != nil {
		return fl.ClientRecord{}, err
	}

	return c, nil
}

func (sdk *fedSDK) ClientHistory(id string) (coordinator.ClientHistory, error) {
	var h coordinator.ClientHistory
	if err := sdk.get(clientsEndpoint+"/"+url.PathEscape(id)+"/history", &h); err != nil {
		return coordinator.ClientHistory{}, err
	}

	return h, nil
}

func (sdk *fedSDK) ExcludeClient(id string) (fl.ClientRecord, error) {
	return sdk.setAvailability(id, "exclude")
}

func (sdk *fedSDK) IncludeClient(id string) (fl.ClientRecord, error) {
	return sdk.setAvailability(id, "include")
}

func (sdk *fedSDK) setAvailability(id, action string) (fl.ClientRecord, error) {
	reqURL := sdk.coordinatorURL + clientsEndpoint + "/" + url.PathEscape(id) + "/" + action

	body, err := sdk.processRequest(http.MethodPost, reqURL, CTJSON, nil, nil, http.StatusOK)
	if err != nil {
		return fl.ClientRecord{}, err
	}

	var c fl.ClientRecord
	if err := json.Unmarshal(body, &c); err != nil {
		return fl.ClientRecord{}, err
	}

	return c, nil
}

func (sdk *fedSDK) SubmitUpdate(clientID string, update fl.Update) (fl.Verdict, error) {
	route, contentType := updatesEndpoint, CTJSON
	marshal := json.Marshal
	if sdk.useCBOR {
		route, contentType = cborUpdatesRoute, CTCBOR
		marshal = cbor.Marshal
	}

	data, err := marshal(update)
	if err != nil {
		return fl.Verdict{}, err
	}

	headers := map[string]string{clientIDHeader: clientID}
	body, err := sdk.processRequest(http.MethodPost, sdk.coordinatorURL+route, contentType, headers, data, http.StatusAccepted, http.StatusOK)
	if err != nil {
		return fl.Verdict{}, err
	}

	var v fl.Verdict
	if err := json.Unmarshal(body, &v); err != nil {
		return fl.Verdict{}, err
	}

	return v, nil
}
