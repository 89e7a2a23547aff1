package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chainbills/native/ledger"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000

	codeLedgerInvalidParams = -32041
	codeLedgerNotFound      = -32042
	codeLedgerForbidden     = -32043
	codeLedgerConflict      = -32044
	codeLedgerDuplicate     = -32045
	codeLedgerInternal      = -32046
)

// Server exposes the ledger engine over JSON-RPC plus the operational
// endpoints (health, metrics).
type Server struct {
	engine *ledger.Engine
	log    *slog.Logger
}

// NewServer wraps the engine. A nil logger falls back to slog's default.
func NewServer(engine *ledger.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, log: log}
}

// Router builds the HTTP handler: the JSON-RPC mount plus /healthz and
// /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	return r
}

// Start serves the router on addr, blocking.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON-RPC request", err.Error())
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method is required", nil)
		return
	}

	switch req.Method {
	case "ledger_createPayable":
		s.handleCreatePayable(w, &req)
	case "ledger_closePayable":
		s.handleClosePayable(w, &req)
	case "ledger_reopenPayable":
		s.handleReopenPayable(w, &req)
	case "ledger_updatePayableAllowedTokensAndAmounts":
		s.handleUpdatePayableAllowed(w, &req)
	case "ledger_pay":
		s.handlePay(w, &req)
	case "ledger_payForeign":
		s.handlePayForeign(w, &req)
	case "ledger_receiveForeignPayment":
		s.handleReceiveForeignPayment(w, &req)
	case "ledger_withdraw":
		s.handleWithdraw(w, &req)
	case "ledger_receiveForeignWithdrawal":
		s.handleReceiveForeignWithdrawal(w, &req)
	case "ledger_updateTokenSupport":
		s.handleUpdateTokenSupport(w, &req)
	case "ledger_updateMaxWithdrawalFee":
		s.handleUpdateMaxWithdrawalFee(w, &req)
	case "ledger_updateWithdrawalFeeBps":
		s.handleUpdateWithdrawalFeeBps(w, &req)
	case "ledger_registerForeignContract":
		s.handleRegisterForeignContract(w, &req)
	case "ledger_getConfig":
		s.handleGetConfig(w, &req)
	case "ledger_getStats":
		s.handleGetStats(w, &req)
	case "ledger_getUser":
		s.handleGetUser(w, &req)
	case "ledger_getPayable":
		s.handleGetPayable(w, &req)
	case "ledger_getForeignPayable":
		s.handleGetForeignPayable(w, &req)
	case "ledger_getTokenDetails":
		s.handleGetTokenDetails(w, &req)
	case "ledger_getForeignContract":
		s.handleGetForeignContract(w, &req)
	case "ledger_getUserPayment":
		s.handleGetUserPayment(w, &req)
	case "ledger_getPayablePayment":
		s.handleGetPayablePayment(w, &req)
	case "ledger_getWithdrawal":
		s.handleGetWithdrawal(w, &req)
	case "ledger_getActivity":
		s.handleGetActivity(w, &req)
	case "ledger_getEntityId":
		s.handleGetEntityID(w, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "unknown method "+req.Method, nil)
	}
}
