package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
)

const (
	CTJSON string = "application/json"
	CTCBOR string = "application/cbor"
)

type SDK interface {
	// Status returns the coordinator state and the active round.
	//
	// example:
	//  st, _ := sdk.Status()
	//  fmt.Println(st.State, st.ModelVersion)
	Status() (coordinator.Status, error)

	// CurrentModel returns the latest committed global model.
	//
	// example:
	//  model, _ := sdk.CurrentModel()
	//  fmt.Println(model.Version)
	CurrentModel() (fl.GlobalModel, error)

	// GetModel returns a committed model version.
	//
	// example:
	//  model, _ := sdk.GetModel(3)
	//  fmt.Println(model.Params["dense"])
	GetModel(version uint64) (fl.GlobalModel, error)

	// ListRounds lists round attempts ordered by round number.
	//
	// example:
	//  page, _ := sdk.ListRounds(0, 10)
	//  fmt.Println(page.Total)
	ListRounds(offset, limit uint64) (fl.RoundPage, error)

	// GetRound gets a round attempt by id.
	//
	// example:
	//  rec, _ := sdk.GetRound("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(rec.Status, rec.Loss)
	GetRound(id string) (fl.RoundRecord, error)

	// ListClients lists the client population.
	//
	// example:
	//  page, _ := sdk.ListClients(0, 10)
	//  fmt.Println(page.Clients)
	ListClients(offset, limit uint64) (fl.ClientPage, error)

	// GetClient gets a client by id.
	//
	// example:
	//  c, _ := sdk.GetClient("client-1")
	//  fmt.Println(c.Availability)
	GetClient(id string) (fl.ClientRecord, error)

	// ClientHistory lists what a client contributed or had rejected.
	//
	// example:
	//  h, _ := sdk.ClientHistory("client-1")
	//  fmt.Println(len(h.Contributions))
	ClientHistory(id string) (coordinator.ClientHistory, error)

	// ExcludeClient stops a client from being selected.
	//
	// example:
	//  c, _ := sdk.ExcludeClient("client-1")
	ExcludeClient(id string) (fl.ClientRecord, error)

	// IncludeClient makes an excluded client selectable again.
	//
	// example:
	//  c, _ := sdk.IncludeClient("client-1")
	IncludeClient(id string) (fl.ClientRecord, error)

	// SubmitUpdate sends a local update on behalf of clientID.
	//
	// example:
	//  v, _ := sdk.SubmitUpdate("client-1", update)
	//  fmt.Println(v.Accepted, v.Reason)
	SubmitUpdate(clientID string, update fl.Update) (fl.Verdict, error)
}

type fedSDK struct {
	coordinatorURL string
	useCBOR        bool
	client         *http.Client
}

type Config struct {
	CoordinatorURL  string
	TLSVerification bool
	// CBOR sends updates in CBOR instead of JSON.
	CBOR bool
}

func NewSDK(cfg Config) SDK {
	return &fedSDK{
		coordinatorURL: cfg.CoordinatorURL,
		useCBOR:        cfg.CBOR,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorRes struct {
	Err string `json:"error"`
}

func (sdk *fedSDK) processRequest(method, reqURL, contentType string, headers map[string]string, data []byte, expectedRespCodes ...int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	for _, code := range expectedRespCodes {
		if resp.StatusCode == code {
			return body, nil
		}
	}

	var res errorRes
	if err := json.Unmarshal(body, &res); err == nil && res.Err != "" {
		return []byte{}, fmt.Errorf("unexpected response code %d: %s", resp.StatusCode, res.Err)
	}

	return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
}

func (sdk *fedSDK) get(path string, out any) error {
	body, err := sdk.processRequest(http.MethodGet, sdk.coordinatorURL+path, CTJSON, nil, nil, http.StatusOK)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, out)
}

func pageQuery(offset, limit uint64) string {
	q := url.Values{}
	if offset > 0 {
		q.Set("offset", strconv.FormatUint(offset, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.FormatUint(limit, 10))
	}
	if len(q) == 0 {
		return ""
	}

	return "?" + q.Encode()
}
