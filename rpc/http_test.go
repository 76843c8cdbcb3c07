package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"trustpay/core"
	"trustpay/crypto"
	"trustpay/storage"
)

func rpcAddr(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func bech(addr [20]byte) string {
	return crypto.NewAddress(crypto.TrustPayPrefix, append([]byte(nil), addr[:]...)).String()
}

var (
	rpcAuthority = rpcAddr(0xAA)
	rpcPayer     = rpcAddr(0x01)
	rpcRecipient = rpcAddr(0x02)
	rpcFeeDest   = rpcAddr(0xFE)
)

func newTestServer(t *testing.T) (*Server, *core.Node) {
	t.Helper()
	node := core.NewNode(storage.NewMemDB())
	node.Engine().SetNowFunc(func() int64 { return 1_000_000 })
	_, err := node.InitializeGlobalState(rpcAuthority, 5, rpcFeeDest, 6)
	require.NoError(t, err)

	account, err := node.State().GetAccount(rpcPayer[:])
	require.NoError(t, err)
	account.SetBalance("USDC", big.NewInt(10_000_000))
	require.NoError(t, node.State().PutAccount(rpcPayer[:], account))

	return NewServer(node, nil), node
}

func call(t *testing.T, srv *Server, method string, params interface{}, headers map[string]string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	paramList := []interface{}{}
	if params != nil {
		paramList = append(paramList, params)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  paramList,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return recorder, resp
}

func createViaRPC(t *testing.T, srv *Server) contractView {
	t.Helper()
	recorder, resp := call(t, srv, "trustpay_create", map[string]interface{}{
		"caller":       bech(rpcPayer),
		"seed":         1,
		"role":         "payer",
		"counterparty": bech(rpcRecipient),
		"type":         "milestone",
		"asset":        "USDC",
		"title":        "Website build",
		"terms":        "Two milestones, paid on approval.",
		"totalAmount":  "2000000",
		"milestones": []map[string]string{
			{"description": "Design", "amount": "1000000"},
			{"description": "Launch", "amount": "1000000"},
		},
		"deadlineDuration": 1000,
	}, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var view contractView
	require.NoError(t, json.Unmarshal(raw, &view))
	return view
}

func TestRPCCreateAndGet(t *testing.T) {
	srv, _ := newTestServer(t)

	view := createViaRPC(t, srv)
	require.Equal(t, "in_progress", view.Status)
	require.Equal(t, bech(rpcPayer), view.Payer)
	require.Equal(t, bech(rpcRecipient), view.Recipient)
	require.Equal(t, "2000000", view.TotalAmount)
	require.Equal(t, "1000", view.ReservedFee)
	require.Len(t, view.Milestones, 2)

	recorder, resp := call(t, srv, "trustpay_get", map[string]interface{}{"id": view.ID}, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)

	recorder, resp = call(t, srv, "trustpay_get", map[string]interface{}{
		"id": "0x" + fmt.Sprintf("%064x", 1),
	}, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNotFound, resp.Error.Code)
}

func TestRPCMilestoneFlow(t *testing.T) {
	srv, node := newTestServer(t)
	view := createViaRPC(t, srv)

	recorder, resp := call(t, srv, "trustpay_markComplete", map[string]interface{}{
		"caller":         bech(rpcRecipient),
		"id":             view.ID,
		"milestoneIndex": 0,
	}, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)

	recorder, resp = call(t, srv, "trustpay_approve", map[string]interface{}{
		"caller":         bech(rpcPayer),
		"id":             view.ID,
		"milestoneIndex": 0,
	}, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)

	// Wrong caller surfaces as a forbidden error.
	recorder, resp = call(t, srv, "trustpay_markComplete", map[string]interface{}{
		"caller":         bech(rpcPayer),
		"id":             view.ID,
		"milestoneIndex": 1,
	}, nil)
	require.Equal(t, http.StatusForbidden, recorder.Code)
	require.Equal(t, codeForbidden, resp.Error.Code)

	account, err := node.GetAccount(rpcRecipient)
	require.NoError(t, err)
	require.Equal(t, "999500", account.Balance("USDC").String())

	_, resp = call(t, srv, "trustpay_balance", map[string]interface{}{
		"address": bech(rpcRecipient),
		"asset":   "usdc",
	}, nil)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	require.Equal(t, "999500", result["balance"])
}

func TestRPCDisputeAndResolve(t *testing.T) {
	srv, _ := newTestServer(t)
	view := createViaRPC(t, srv)

	_, resp := call(t, srv, "trustpay_markComplete", map[string]interface{}{
		"caller":         bech(rpcRecipient),
		"id":             view.ID,
		"milestoneIndex": 0,
	}, nil)
	require.Nil(t, resp.Error)

	_, resp = call(t, srv, "trustpay_dispute", map[string]interface{}{
		"caller":         bech(rpcPayer),
		"id":             view.ID,
		"milestoneIndex": 0,
		"reason":         "the design was never delivered",
	}, nil)
	require.Nil(t, resp.Error)

	// Missing resolution is rejected before reaching the engine.
	recorder, resp := call(t, srv, "trustpay_resolve", map[string]interface{}{
		"caller":         bech(rpcAuthority),
		"id":             view.ID,
		"milestoneIndex": 0,
		"reason":         "resolver weighed the evidence",
	}, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	_, resp = call(t, srv, "trustpay_resolve", map[string]interface{}{
		"caller":         bech(rpcAuthority),
		"id":             view.ID,
		"milestoneIndex": 0,
		"resolution":     0,
		"reason":         "resolver weighed the evidence",
	}, nil)
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var resolved contractView
	require.NoError(t, json.Unmarshal(raw, &resolved))
	require.Equal(t, "in_progress", resolved.Status)
	require.Equal(t, "resolved", resolved.Milestones[0].Status)
	require.Equal(t, "favor_payer", resolved.Milestones[0].Resolution)
}

func TestRPCGlobalStateAndEvents(t *testing.T) {
	srv, _ := newTestServer(t)
	createViaRPC(t, srv)

	_, resp := call(t, srv, "trustpay_globalState", nil, nil)
	require.Nil(t, resp.Error)
	global := resp.Result.(map[string]interface{})
	require.Equal(t, bech(rpcAuthority), global["authority"])
	require.Equal(t, float64(1), global["totalContractsCreated"])

	_, resp = call(t, srv, "trustpay_listEvents", map[string]interface{}{"prefix": "trustpay."}, nil)
	require.Nil(t, resp.Error)
	events := resp.Result.([]interface{})
	require.Len(t, events, 1)
}

func TestRPCUnknownMethodAndBadPayload(t *testing.T) {
	srv, _ := newTestServer(t)

	recorder, resp := call(t, srv, "trustpay_nope", nil, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	recorder = httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, req)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRPCAuthToken(t *testing.T) {
	t.Setenv("TRUSTPAY_RPC_TOKEN", "secret")
	srv, _ := newTestServer(t)

	recorder, resp := call(t, srv, "trustpay_decline", map[string]interface{}{
		"caller": bech(rpcPayer),
		"id":     "0x" + fmt.Sprintf("%064x", 1),
	}, nil)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	recorder, resp = call(t, srv, "trustpay_decline", map[string]interface{}{
		"caller": bech(rpcPayer),
		"id":     "0x" + fmt.Sprintf("%064x", 1),
	}, map[string]string{"Authorization": "Bearer secret"})
	// Authenticated but the contract does not exist.
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Equal(t, codeNotFound, resp.Error.Code)

	// Reads stay open.
	recorder, resp = call(t, srv, "trustpay_globalState", nil, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Nil(t, resp.Error)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "ok", recorder.Body.String())
}
