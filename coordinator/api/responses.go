package api

import (
	"net/http"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*verdictResponse)(nil)
	_ supermq.Response = (*modelResponse)(nil)
	_ supermq.Response = (*roundResponse)(nil)
	_ supermq.Response = (*listRoundsResponse)(nil)
	_ supermq.Response = (*clientResponse)(nil)
	_ supermq.Response = (*listClientsResponse)(nil)
	_ supermq.Response = (*historyResponse)(nil)
	_ supermq.Response = (*statusResponse)(nil)
)

type verdictResponse struct {
	fl.Verdict
}

// Code is 202 for a counted update. A dropped update is still a well formed
// request, so it gets 200 with the reason in the body.
func (res verdictResponse) Code() int {
	if res.Accepted {
		return http.StatusAccepted
	}

	return http.StatusOK
}

func (res verdictResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res verdictResponse) Empty() bool {
	return false
}

type modelResponse struct {
	fl.GlobalModel
}

func (res modelResponse) Code() int {
	return http.StatusOK
}

func (res modelResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res modelResponse) Empty() bool {
	return false
}

type roundResponse struct {
	fl.RoundRecord
}

func (res roundResponse) Code() int {
	return http.StatusOK
}

func (res roundResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res roundResponse) Empty() bool {
	return false
}

type listRoundsResponse struct {
	fl.RoundPage
}

func (res listRoundsResponse) Code() int {
	return http.StatusOK
}

func (res listRoundsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res listRoundsResponse) Empty() bool {
	return false
}

type clientResponse struct {
	fl.ClientRecord
}

func (res clientResponse) Code() int {
	return http.StatusOK
}

func (res clientResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res clientResponse) Empty() bool {
	return false
}

type listClientsResponse struct {
	fl.ClientPage
}

func (res listClientsResponse) Code() int {
	return http.StatusOK
}

func (res listClientsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res listClientsResponse) Empty() bool {
	return false
}

type historyResponse struct {
	coordinator.ClientHistory
}

func (res historyResponse) Code() int {
	return http.StatusOK
}

func (res historyResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res historyResponse) Empty() bool {
	return false
}

type statusResponse struct {
	coordinator.Status
}

func (res statusResponse) Code() int {
	return http.StatusOK
}

func (res statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res statusResponse) Empty() bool {
	return false
}
