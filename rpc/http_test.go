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

	"chainbills/native/ledger"
	statestore "chainbills/state/ledger"
	"chainbills/storage"
)

const (
	testOwnerHex = "0101010101010101010101010101010101010101010101010101010101010101"
	testFeeHex   = "0202020202020202020202020202020202020202020202020202020202020202"
	testHostHex  = "a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1"
	testPayerHex = "b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7b7"
)

func newTestServer(t *testing.T) (*httptest.Server, *ledger.Engine) {
	t.Helper()
	engine := ledger.NewEngine()
	engine.SetState(statestore.NewManager(storage.NewMemDB()))
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })

	owner, err := ledger.ParseWallet(testOwnerHex)
	require.NoError(t, err)
	feeCollector, err := ledger.ParseWallet(testFeeHex)
	require.NoError(t, err)
	_, err = engine.Initialize(9001, 1, owner, feeCollector, "cbill")
	require.NoError(t, err)

	server := httptest.NewServer(NewServer(engine, nil).Router())
	t.Cleanup(server.Close)
	return server, engine
}

func rpcCall(t *testing.T, server *httptest.Server, method string, params interface{}) RPCResponse {
	t.Helper()
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		request["params"] = []interface{}{params}
	}
	body, err := json.Marshal(request)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func resultMap(t *testing.T, resp RPCResponse) map[string]interface{} {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	m, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "result is not an object: %T", resp.Result)
	return m
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownMethod(t *testing.T) {
	server, _ := newTestServer(t)
	resp := rpcCall(t, server, "ledger_noSuchMethod", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestPayableLifecycleOverRPC(t *testing.T) {
	server, _ := newTestServer(t)

	created := resultMap(t, rpcCall(t, server, "ledger_createPayable", createPayableParams{Host: testHostHex}))
	payableID, _ := created["id"].(string)
	require.Len(t, payableID, 64)
	require.Equal(t, false, created["isClosed"])

	closed := rpcCall(t, server, "ledger_closePayable", payableActionParams{Host: testHostHex, PayableID: payableID})
	require.Nil(t, closed.Error)

	again := rpcCall(t, server, "ledger_closePayable", payableActionParams{Host: testHostHex, PayableID: payableID})
	require.NotNil(t, again.Error)
	require.Equal(t, codeLedgerConflict, again.Error.Code)

	fetched := resultMap(t, rpcCall(t, server, "ledger_getPayable", idParams{ID: payableID}))
	require.Equal(t, true, fetched["isClosed"])

	foreign := rpcCall(t, server, "ledger_closePayable", payableActionParams{Host: testPayerHex, PayableID: payableID})
	require.NotNil(t, foreign.Error)
	require.Equal(t, codeLedgerForbidden, foreign.Error.Code)
}

func TestPayAndWithdrawOverRPC(t *testing.T) {
	server, _ := newTestServer(t)

	registered := rpcCall(t, server, "ledger_updateTokenSupport", tokenSupportParams{
		Caller:           testOwnerHex,
		Token:            "usdc",
		MaxWithdrawalFee: "1",
	})
	require.Nil(t, registered.Error)

	created := resultMap(t, rpcCall(t, server, "ledger_createPayable", createPayableParams{Host: testHostHex}))
	payableID := created["id"].(string)

	paid := resultMap(t, rpcCall(t, server, "ledger_pay", payParams{
		Payer:     testPayerHex,
		PayableID: payableID,
		Token:     "usdc",
		Amount:    "1000",
	}))
	userPayment, ok := paid["userPayment"].(map[string]interface{})
	require.True(t, ok)
	payablePayment, ok := paid["payablePayment"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, userPayment["id"], payablePayment["id"])

	withdrawn := resultMap(t, rpcCall(t, server, "ledger_withdraw", withdrawParams{
		Host:      testHostHex,
		PayableID: payableID,
		Token:     "usdc",
		Amount:    "1000",
	}))
	// 2% of 1000 capped at the token ceiling of 1.
	require.Equal(t, "1", withdrawn["fee"])
	require.Equal(t, "999", withdrawn["amountDue"])

	over := rpcCall(t, server, "ledger_withdraw", withdrawParams{
		Host:      testHostHex,
		PayableID: payableID,
		Token:     "usdc",
		Amount:    "1",
	})
	require.NotNil(t, over.Error)
	require.Equal(t, codeLedgerInvalidParams, over.Error.Code)
}

func TestReceiveForeignPaymentOverRPC(t *testing.T) {
	server, _ := newTestServer(t)
	emitterHex := "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"

	require.Nil(t, rpcCall(t, server, "ledger_updateTokenSupport", tokenSupportParams{
		Caller:           testOwnerHex,
		Token:            "usdc",
		MaxWithdrawalFee: "1",
	}).Error)
	require.Nil(t, rpcCall(t, server, "ledger_registerForeignContract", foreignContractParams{
		Caller:  testOwnerHex,
		ChainID: 2,
		Address: emitterHex,
	}).Error)

	contract := resultMap(t, rpcCall(t, server, "ledger_getForeignContract", chainIDParams{ChainID: 2}))
	require.Equal(t, emitterHex, contract["address"])

	created := resultMap(t, rpcCall(t, server, "ledger_createPayable", createPayableParams{Host: testHostHex}))
	payableID := created["id"].(string)
	parsedID, err := ledger.ParseID(payableID)
	require.NoError(t, err)
	payer, err := ledger.ParseWallet(testPayerHex)
	require.NoError(t, err)

	payload, err := (ledger.PaymentPayload{
		PayableID: parsedID,
		Payer:     payer,
		Token:     "usdc",
		Amount:    mustAmount(t, "30"),
	}).Encode()
	require.NoError(t, err)

	params := receiveMessageParams{
		Envelope: envelopeJSON{EmitterChainID: 2, EmitterAddress: emitterHex, Sequence: 7},
		Payload:  fmt.Sprintf("%x", payload),
	}
	first := resultMap(t, rpcCall(t, server, "ledger_receiveForeignPayment", params))
	require.Equal(t, float64(2), first["payerChainId"])

	replay := rpcCall(t, server, "ledger_receiveForeignPayment", params)
	require.NotNil(t, replay.Error)
	require.Equal(t, codeLedgerDuplicate, replay.Error.Code)
}

func TestGetEntityIDOverRPC(t *testing.T) {
	server, _ := newTestServer(t)

	created := resultMap(t, rpcCall(t, server, "ledger_createPayable", createPayableParams{Host: testHostHex}))
	payableID := created["id"].(string)

	found := resultMap(t, rpcCall(t, server, "ledger_getEntityId", entityIDParams{
		Kind:  "payable",
		Scope: "chain",
		Count: 1,
	}))
	require.Equal(t, payableID, found["id"])

	byHost := resultMap(t, rpcCall(t, server, "ledger_getEntityId", entityIDParams{
		Kind:   "payable",
		Scope:  "user",
		Wallet: testHostHex,
		Count:  1,
	}))
	require.Equal(t, payableID, byHost["id"])

	missing := rpcCall(t, server, "ledger_getEntityId", entityIDParams{Kind: "payable", Scope: "chain", Count: 9})
	require.NotNil(t, missing.Error)
	require.Equal(t, codeLedgerNotFound, missing.Error.Code)
}

func mustAmount(t *testing.T, raw string) *big.Int {
	t.Helper()
	amount, err := parseAmount(raw)
	require.NoError(t, err)
	return amount
}
