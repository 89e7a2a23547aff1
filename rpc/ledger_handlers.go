package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"chainbills/native/ledger"
	"chainbills/observability/metrics"
)

type tokenAndAmountJSON struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type envelopeJSON struct {
	EmitterChainID uint16 `json:"emitterChainId"`
	EmitterAddress string `json:"emitterAddress"`
	Sequence       uint64 `json:"sequence"`
	Nonce          uint32 `json:"nonce"`
}

type createPayableParams struct {
	Host                    string               `json:"host"`
	AllowedTokensAndAmounts []tokenAndAmountJSON `json:"allowedTokensAndAmounts"`
}

type payableActionParams struct {
	Host      string `json:"host"`
	PayableID string `json:"payableId"`
}

type updateAllowedParams struct {
	Host                    string               `json:"host"`
	PayableID               string               `json:"payableId"`
	AllowedTokensAndAmounts []tokenAndAmountJSON `json:"allowedTokensAndAmounts"`
}

type payParams struct {
	Payer     string `json:"payer"`
	PayableID string `json:"payableId"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
}

type payForeignParams struct {
	Payer          string `json:"payer"`
	PayableID      string `json:"payableId"`
	PayableChainID uint16 `json:"payableChainId"`
	Token          string `json:"token"`
	Amount         string `json:"amount"`
}

type receiveMessageParams struct {
	Envelope envelopeJSON `json:"envelope"`
	// Payload is the hex-encoded cross-chain payload body.
	Payload string `json:"payload"`
}

type withdrawParams struct {
	Host      string `json:"host"`
	PayableID string `json:"payableId"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
}

type tokenSupportParams struct {
	Caller           string `json:"caller"`
	Token            string `json:"token"`
	IsNative         bool   `json:"isNative"`
	MaxWithdrawalFee string `json:"maxWithdrawalFee"`
}

type maxFeeParams struct {
	Caller           string `json:"caller"`
	Token            string `json:"token"`
	MaxWithdrawalFee string `json:"maxWithdrawalFee"`
}

type feeBpsParams struct {
	Caller string `json:"caller"`
	Bps    uint16 `json:"bps"`
}

type foreignContractParams struct {
	Caller  string `json:"caller"`
	ChainID uint16 `json:"chainId"`
	Address string `json:"address"`
}

type walletParams struct {
	Wallet string `json:"wallet"`
}

type idParams struct {
	ID string `json:"id"`
}

type tokenParams struct {
	Token string `json:"token"`
}

type chainIDParams struct {
	ChainID uint16 `json:"chainId"`
}

type entityIDParams struct {
	Kind      string `json:"kind"`
	Scope     string `json:"scope"`
	Wallet    string `json:"wallet,omitempty"`
	PayableID string `json:"payableId,omitempty"`
	ChainID   uint16 `json:"chainId,omitempty"`
	Count     uint64 `json:"count"`
}

type configJSON struct {
	ChainID          uint16 `json:"chainId"`
	Owner            string `json:"owner"`
	FeeCollector     string `json:"feeCollector"`
	NativeDenom      string `json:"nativeDenom"`
	WithdrawalFeeBps uint16 `json:"withdrawalFeeBps"`
}

type statsJSON struct {
	UsersCount            uint64 `json:"usersCount"`
	PayablesCount         uint64 `json:"payablesCount"`
	ForeignPayablesCount  uint64 `json:"foreignPayablesCount"`
	UserPaymentsCount     uint64 `json:"userPaymentsCount"`
	PayablePaymentsCount  uint64 `json:"payablePaymentsCount"`
	WithdrawalsCount      uint64 `json:"withdrawalsCount"`
	ActivitiesCount       uint64 `json:"activitiesCount"`
	ConsumedMessagesCount uint64 `json:"consumedMessagesCount"`
}

type userJSON struct {
	Wallet           string `json:"wallet"`
	ChainCount       uint64 `json:"chainCount"`
	PayablesCount    uint64 `json:"payablesCount"`
	PaymentsCount    uint64 `json:"paymentsCount"`
	WithdrawalsCount uint64 `json:"withdrawalsCount"`
	ActivitiesCount  uint64 `json:"activitiesCount"`
}

type chainCountJSON struct {
	ChainID uint16 `json:"chainId"`
	Count   uint64 `json:"count"`
}

type payableJSON struct {
	ID                      string               `json:"id"`
	Host                    string               `json:"host"`
	ChainCount              uint64               `json:"chainCount"`
	HostCount               uint64               `json:"hostCount"`
	AllowedTokensAndAmounts []tokenAndAmountJSON `json:"allowedTokensAndAmounts"`
	Balances                []tokenAndAmountJSON `json:"balances"`
	CreatedAt               uint64               `json:"createdAt"`
	PaymentsCount           uint64               `json:"paymentsCount"`
	WithdrawalsCount        uint64               `json:"withdrawalsCount"`
	ActivitiesCount         uint64               `json:"activitiesCount"`
	ForeignPaymentCounts    []chainCountJSON     `json:"foreignPaymentCounts,omitempty"`
	IsClosed                bool                 `json:"isClosed"`
}

type foreignPayableJSON struct {
	PayableID     string `json:"payableId"`
	ChainID       uint16 `json:"chainId"`
	ChainCount    uint64 `json:"chainCount"`
	PaymentsCount uint64 `json:"paymentsCount"`
}

type tokenDetailsJSON struct {
	Token                string `json:"token"`
	IsSupported          bool   `json:"isSupported"`
	IsNative             bool   `json:"isNative"`
	MaxWithdrawalFee     string `json:"maxWithdrawalFee"`
	TotalUserPaid        string `json:"totalUserPaid"`
	TotalPayableReceived string `json:"totalPayableReceived"`
	TotalWithdrawn       string `json:"totalWithdrawn"`
	TotalFeesCollected   string `json:"totalFeesCollected"`
}

type userPaymentJSON struct {
	ID             string             `json:"id"`
	PayableID      string             `json:"payableId"`
	Payer          string             `json:"payer"`
	PayableChainID uint16             `json:"payableChainId"`
	ChainCount     uint64             `json:"chainCount"`
	PayerCount     uint64             `json:"payerCount"`
	Details        tokenAndAmountJSON `json:"details"`
	Timestamp      uint64             `json:"timestamp"`
}

type payablePaymentJSON struct {
	ID              string             `json:"id"`
	PayableID       string             `json:"payableId"`
	Payer           string             `json:"payer"`
	PayerChainID    uint16             `json:"payerChainId"`
	ChainCount      uint64             `json:"chainCount"`
	PayableCount    uint64             `json:"payableCount"`
	PayerChainCount uint64             `json:"payerChainCount"`
	Details         tokenAndAmountJSON `json:"details"`
	Timestamp       uint64             `json:"timestamp"`
}

type withdrawalJSON struct {
	ID           string             `json:"id"`
	PayableID    string             `json:"payableId"`
	Host         string             `json:"host"`
	HostChainID  uint16             `json:"hostChainId"`
	ChainCount   uint64             `json:"chainCount"`
	HostCount    uint64             `json:"hostCount"`
	PayableCount uint64             `json:"payableCount"`
	Details      tokenAndAmountJSON `json:"details"`
	Timestamp    uint64             `json:"timestamp"`
}

type withdrawalResultJSON struct {
	Withdrawal withdrawalJSON `json:"withdrawal"`
	AmountDue  string         `json:"amountDue"`
	Fee        string         `json:"fee"`
}

type activityJSON struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Entity       string `json:"entity"`
	ChainCount   uint64 `json:"chainCount"`
	UserCount    uint64 `json:"userCount,omitempty"`
	PayableCount uint64 `json:"payableCount,omitempty"`
	Timestamp    uint64 `json:"timestamp"`
}

type foreignContractJSON struct {
	ChainID uint16 `json:"chainId"`
	Address string `json:"address"`
}

type paymentPairJSON struct {
	UserPayment    userPaymentJSON    `json:"userPayment"`
	PayablePayment payablePaymentJSON `json:"payablePayment"`
}

type entityIDJSON struct {
	ID string `json:"id"`
}

func taaToJSON(taa ledger.TokenAndAmount) tokenAndAmountJSON {
	amount := "0"
	if taa.Amount != nil {
		amount = taa.Amount.String()
	}
	return tokenAndAmountJSON{Token: taa.Token, Amount: amount}
}

func taaListToJSON(list []ledger.TokenAndAmount) []tokenAndAmountJSON {
	out := make([]tokenAndAmountJSON, len(list))
	for i, taa := range list {
		out[i] = taaToJSON(taa)
	}
	return out
}

func payableToJSON(p *ledger.Payable) payableJSON {
	counts := make([]chainCountJSON, len(p.ForeignPaymentCounts))
	for i, cpc := range p.ForeignPaymentCounts {
		counts[i] = chainCountJSON{ChainID: cpc.ChainID, Count: cpc.Count}
	}
	return payableJSON{
		ID:                      ledger.FormatID(p.ID),
		Host:                    ledger.FormatWallet(p.Host),
		ChainCount:              p.ChainCount,
		HostCount:               p.HostCount,
		AllowedTokensAndAmounts: taaListToJSON(p.AllowedTokensAndAmounts),
		Balances:                taaListToJSON(p.Balances),
		CreatedAt:               p.CreatedAt,
		PaymentsCount:           p.PaymentsCount,
		WithdrawalsCount:        p.WithdrawalsCount,
		ActivitiesCount:         p.ActivitiesCount,
		ForeignPaymentCounts:    counts,
		IsClosed:                p.IsClosed,
	}
}

func userPaymentToJSON(p *ledger.UserPayment) userPaymentJSON {
	return userPaymentJSON{
		ID:             ledger.FormatID(p.ID),
		PayableID:      ledger.FormatID(p.PayableID),
		Payer:          ledger.FormatWallet(p.Payer),
		PayableChainID: p.PayableChainID,
		ChainCount:     p.ChainCount,
		PayerCount:     p.PayerCount,
		Details:        taaToJSON(p.Details),
		Timestamp:      p.Timestamp,
	}
}

func payablePaymentToJSON(p *ledger.PayablePayment) payablePaymentJSON {
	return payablePaymentJSON{
		ID:              ledger.FormatID(p.ID),
		PayableID:       ledger.FormatID(p.PayableID),
		Payer:           ledger.FormatWallet(p.Payer),
		PayerChainID:    p.PayerChainID,
		ChainCount:      p.ChainCount,
		PayableCount:    p.PayableCount,
		PayerChainCount: p.PayerChainCount,
		Details:         taaToJSON(p.Details),
		Timestamp:       p.Timestamp,
	}
}

func withdrawalToJSON(w *ledger.Withdrawal) withdrawalJSON {
	return withdrawalJSON{
		ID:           ledger.FormatID(w.ID),
		PayableID:    ledger.FormatID(w.PayableID),
		Host:         ledger.FormatWallet(w.Host),
		HostChainID:  w.HostChainID,
		ChainCount:   w.ChainCount,
		HostCount:    w.HostCount,
		PayableCount: w.PayableCount,
		Details:      taaToJSON(w.Details),
		Timestamp:    w.Timestamp,
	}
}

func tokenDetailsToJSON(d *ledger.TokenDetails) tokenDetailsJSON {
	format := func(v *big.Int) string {
		if v == nil {
			return "0"
		}
		return v.String()
	}
	return tokenDetailsJSON{
		Token:                d.Token,
		IsSupported:          d.IsSupported,
		IsNative:             d.IsNative,
		MaxWithdrawalFee:     format(d.MaxWithdrawalFee),
		TotalUserPaid:        format(d.TotalUserPaid),
		TotalPayableReceived: format(d.TotalPayableReceived),
		TotalWithdrawn:       format(d.TotalWithdrawn),
		TotalFeesCollected:   format(d.TotalFeesCollected),
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return errors.New("missing params object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount is required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, errors.New("amount must be a non-negative decimal string")
	}
	return amount, nil
}

func parseAllowList(list []tokenAndAmountJSON) ([]ledger.TokenAndAmount, error) {
	out := make([]ledger.TokenAndAmount, 0, len(list))
	for _, taa := range list {
		amount, err := parseAmount(taa.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.TokenAndAmount{Token: taa.Token, Amount: amount})
	}
	return out, nil
}

func parseEnvelope(raw envelopeJSON) (ledger.Envelope, error) {
	address, err := ledger.ParseID(raw.EmitterAddress)
	if err != nil {
		return ledger.Envelope{}, errors.New("invalid emitter address")
	}
	return ledger.Envelope{
		EmitterChainID: raw.EmitterChainID,
		EmitterAddress: address,
		Sequence:       raw.Sequence,
		Nonce:          raw.Nonce,
	}, nil
}

// writeLedgerError maps engine sentinels onto JSON-RPC error codes and
// bumps the failure metric for the method.
func writeLedgerError(w http.ResponseWriter, id interface{}, method string, err error) {
	metrics.Ledger().ObserveFailure(method)
	switch {
	case errors.Is(err, ledger.ErrMessageAlreadyConsumed):
		metrics.Ledger().ObserveReplayDropped()
		writeError(w, http.StatusConflict, id, codeLedgerDuplicate, err.Error(), nil)
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrInvalidPayableID):
		writeError(w, http.StatusNotFound, id, codeLedgerNotFound, err.Error(), nil)
	case errors.Is(err, ledger.ErrOwnerUnauthorized),
		errors.Is(err, ledger.ErrNotYourPayable):
		writeError(w, http.StatusForbidden, id, codeLedgerForbidden, err.Error(), nil)
	case errors.Is(err, ledger.ErrPayableIsClosed),
		errors.Is(err, ledger.ErrPayableIsAlreadyClosed),
		errors.Is(err, ledger.ErrPayableIsNotClosed),
		errors.Is(err, ledger.ErrAlreadyInitialized):
		writeError(w, http.StatusConflict, id, codeLedgerConflict, err.Error(), nil)
	case errors.Is(err, ledger.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, id, codeLedgerInternal, err.Error(), nil)
	case errors.Is(err, ledger.ErrZeroAmountSpecified),
		errors.Is(err, ledger.ErrUnsupportedToken),
		errors.Is(err, ledger.ErrMatchingTokenAndAmountNotFound),
		errors.Is(err, ledger.ErrInvalidNativeTokenPayment),
		errors.Is(err, ledger.ErrNoBalanceForWithdrawalToken),
		errors.Is(err, ledger.ErrInsufficientWithdrawAmount),
		errors.Is(err, ledger.ErrInvalidWallet),
		errors.Is(err, ledger.ErrInvalidToken),
		errors.Is(err, ledger.ErrInvalidChainID),
		errors.Is(err, ledger.ErrInvalidFeeBps),
		errors.Is(err, ledger.ErrForeignChainNotRegistered),
		errors.Is(err, ledger.ErrUnknownEmitter),
		errors.Is(err, ledger.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, id, codeLedgerInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeLedgerInternal, err.Error(), nil)
	}
}

func (s *Server) handleCreatePayable(w http.ResponseWriter, req *RPCRequest) {
	var params createPayableParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	host, err := ledger.ParseWallet(params.Host)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid host wallet", nil)
		return
	}
	allowed, err := parseAllowList(params.AllowedTokensAndAmounts)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payable, err := s.engine.CreatePayable(host, allowed)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	metrics.Ledger().ObservePayableCreated(len(payable.AllowedTokensAndAmounts) > 0)
	writeResult(w, req.ID, payableToJSON(payable))
}

func (s *Server) handleClosePayable(w http.ResponseWriter, req *RPCRequest) {
	s.handlePayableToggle(w, req, s.engine.ClosePayable)
}

func (s *Server) handleReopenPayable(w http.ResponseWriter, req *RPCRequest) {
	s.handlePayableToggle(w, req, s.engine.ReopenPayable)
}

func (s *Server) handlePayableToggle(w http.ResponseWriter, req *RPCRequest, fn func(ledger.Wallet, [32]byte) error) {
	var params payableActionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	host, err := ledger.ParseWallet(params.Host)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid host wallet", nil)
		return
	}
	id, err := ledger.ParseID(params.PayableID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payable id", nil)
		return
	}
	if err := fn(host, id); err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, entityIDJSON{ID: ledger.FormatID(id)})
}

func (s *Server) handleUpdatePayableAllowed(w http.ResponseWriter, req *RPCRequest) {
	var params updateAllowedParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	host, err := ledger.ParseWallet(params.Host)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid host wallet", nil)
		return
	}
	id, err := ledger.ParseID(params.PayableID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payable id", nil)
		return
	}
	allowed, err := parseAllowList(params.AllowedTokensAndAmounts)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payable, err := s.engine.UpdatePayableAllowedTokensAndAmounts(host, id, allowed)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, payableToJSON(payable))
}

func (s *Server) handlePay(w http.ResponseWriter, req *RPCRequest) {
	var params payParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payer, err := ledger.ParseWallet(params.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payer wallet", nil)
		return
	}
	id, err := ledger.ParseID(params.PayableID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payable id", nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	userPayment, payablePayment, err := s.engine.Pay(payer, id, params.Token, amount)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	metrics.Ledger().ObservePayment("local")
	writeResult(w, req.ID, paymentPairJSON{
		UserPayment:    userPaymentToJSON(userPayment),
		PayablePayment: payablePaymentToJSON(payablePayment),
	})
}

func (s *Server) handlePayForeign(w http.ResponseWriter, req *RPCRequest) {
	var params payForeignParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payer, err := ledger.ParseWallet(params.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payer wallet", nil)
		return
	}
	id, err := ledger.ParseID(params.PayableID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payable id", nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payment, err := s.engine.PayForeign(payer, id, params.PayableChainID, params.Token, amount)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	metrics.Ledger().ObservePayment("outbound")
	writeResult(w, req.ID, userPaymentToJSON(payment))
}

func (s *Server) handleReceiveForeignPayment(w http.ResponseWriter, req *RPCRequest) {
	var params receiveMessageParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	env, err := parseEnvelope(params.Envelope)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(params.Payload, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "payload must be hex", nil)
		return
	}
	payload, err := ledger.DecodePaymentPayload(raw)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	payment, err := s.engine.ReceiveForeignPayment(env, payload)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	metrics.Ledger().ObservePayment("inbound")
	writeResult(w, req.ID, payablePaymentToJSON(payment))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params withdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	host, err := ledger.ParseWallet(params.Host)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid host wallet", nil)
		return
	}
	id, err := ledger.ParseID(params.PayableID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payable id", nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	result, err := s.engine.Withdraw(host, id, params.Token, amount)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	metrics.Ledger().ObserveWithdrawal()
	writeResult(w, req.ID, withdrawalResultJSON{
		Withdrawal: withdrawalToJSON(result.Withdrawal),
		AmountDue:  result.AmountDue.String(),
		Fee:        result.Fee.String(),
	})
}

func (s *Server) handleReceiveForeignWithdrawal(w http.ResponseWriter, req *RPCRequest) {
	var params receiveMessageParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	env, err := parseEnvelope(params.Envelope)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(params.Payload, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "payload must be hex", nil)
		return
	}
	payload, err := ledger.DecodeWithdrawalPayload(raw)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	result, err := s.engine.ReceiveForeignWithdrawal(env, payload)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	metrics.Ledger().ObserveWithdrawal()
	writeResult(w, req.ID, withdrawalResultJSON{
		Withdrawal: withdrawalToJSON(result.Withdrawal),
		AmountDue:  result.AmountDue.String(),
		Fee:        result.Fee.String(),
	})
}

func (s *Server) handleUpdateTokenSupport(w http.ResponseWriter, req *RPCRequest) {
	var params tokenSupportParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := ledger.ParseWallet(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller wallet", nil)
		return
	}
	maxFee, err := parseAmount(params.MaxWithdrawalFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	details, err := s.engine.UpdateTokenSupport(caller, params.Token, params.IsNative, maxFee)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, tokenDetailsToJSON(details))
}

func (s *Server) handleUpdateMaxWithdrawalFee(w http.ResponseWriter, req *RPCRequest) {
	var params maxFeeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := ledger.ParseWallet(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller wallet", nil)
		return
	}
	maxFee, err := parseAmount(params.MaxWithdrawalFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	details, err := s.engine.UpdateMaxWithdrawalFee(caller, params.Token, maxFee)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, tokenDetailsToJSON(details))
}

func (s *Server) handleUpdateWithdrawalFeeBps(w http.ResponseWriter, req *RPCRequest) {
	var params feeBpsParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := ledger.ParseWallet(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller wallet", nil)
		return
	}
	cfg, err := s.engine.UpdateWithdrawalFeeBps(caller, params.Bps)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, configToJSON(cfg))
}

func (s *Server) handleRegisterForeignContract(w http.ResponseWriter, req *RPCRequest) {
	var params foreignContractParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := ledger.ParseWallet(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller wallet", nil)
		return
	}
	address, err := ledger.ParseID(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid contract address", nil)
		return
	}
	contract, err := s.engine.RegisterForeignContract(caller, params.ChainID, address)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, foreignContractJSON{
		ChainID: contract.ChainID,
		Address: ledger.FormatID(contract.Address),
	})
}

func configToJSON(cfg *ledger.Config) configJSON {
	return configJSON{
		ChainID:          cfg.ChainID,
		Owner:            ledger.FormatWallet(cfg.Owner),
		FeeCollector:     ledger.FormatWallet(cfg.FeeCollector),
		NativeDenom:      cfg.NativeDenom,
		WithdrawalFeeBps: cfg.WithdrawalFeeBps,
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, req *RPCRequest) {
	cfg, err := s.engine.ChainConfig()
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, configToJSON(cfg))
}

func (s *Server) handleGetStats(w http.ResponseWriter, req *RPCRequest) {
	stats, err := s.engine.Stats()
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, statsJSON{
		UsersCount:            stats.UsersCount,
		PayablesCount:         stats.PayablesCount,
		ForeignPayablesCount:  stats.ForeignPayablesCount,
		UserPaymentsCount:     stats.UserPaymentsCount,
		PayablePaymentsCount:  stats.PayablePaymentsCount,
		WithdrawalsCount:      stats.WithdrawalsCount,
		ActivitiesCount:       stats.ActivitiesCount,
		ConsumedMessagesCount: stats.ConsumedMessagesCount,
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, req *RPCRequest) {
	var params walletParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	wallet, err := ledger.ParseWallet(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid wallet", nil)
		return
	}
	user, err := s.engine.UserByWallet(wallet)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, userJSON{
		Wallet:           ledger.FormatWallet(user.Wallet),
		ChainCount:       user.ChainCount,
		PayablesCount:    user.PayablesCount,
		PaymentsCount:    user.PaymentsCount,
		WithdrawalsCount: user.WithdrawalsCount,
		ActivitiesCount:  user.ActivitiesCount,
	})
}

func (s *Server) handleGetPayable(w http.ResponseWriter, req *RPCRequest) {
	id, ok := s.decodeID(w, req)
	if !ok {
		return
	}
	payable, err := s.engine.PayableByID(id)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, payableToJSON(payable))
}

func (s *Server) handleGetForeignPayable(w http.ResponseWriter, req *RPCRequest) {
	id, ok := s.decodeID(w, req)
	if !ok {
		return
	}
	foreign, err := s.engine.ForeignPayableByID(id)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, foreignPayableJSON{
		PayableID:     ledger.FormatID(foreign.PayableID),
		ChainID:       foreign.ChainID,
		ChainCount:    foreign.ChainCount,
		PaymentsCount: foreign.PaymentsCount,
	})
}

func (s *Server) handleGetTokenDetails(w http.ResponseWriter, req *RPCRequest) {
	var params tokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	details, err := s.engine.TokenDetailsFor(params.Token)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, tokenDetailsToJSON(details))
}

func (s *Server) handleGetForeignContract(w http.ResponseWriter, req *RPCRequest) {
	var params chainIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	contract, err := s.engine.ForeignContractFor(params.ChainID)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, foreignContractJSON{
		ChainID: contract.ChainID,
		Address: ledger.FormatID(contract.Address),
	})
}

func (s *Server) handleGetUserPayment(w http.ResponseWriter, req *RPCRequest) {
	id, ok := s.decodeID(w, req)
	if !ok {
		return
	}
	payment, err := s.engine.UserPaymentByID(id)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, userPaymentToJSON(payment))
}

func (s *Server) handleGetPayablePayment(w http.ResponseWriter, req *RPCRequest) {
	id, ok := s.decodeID(w, req)
	if !ok {
		return
	}
	payment, err := s.engine.PayablePaymentByID(id)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, payablePaymentToJSON(payment))
}

func (s *Server) handleGetWithdrawal(w http.ResponseWriter, req *RPCRequest) {
	id, ok := s.decodeID(w, req)
	if !ok {
		return
	}
	withdrawal, err := s.engine.WithdrawalByID(id)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, withdrawalToJSON(withdrawal))
}

func (s *Server) handleGetActivity(w http.ResponseWriter, req *RPCRequest) {
	id, ok := s.decodeID(w, req)
	if !ok {
		return
	}
	activity, err := s.engine.ActivityByID(id)
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, activityJSON{
		ID:           ledger.FormatID(activity.ID),
		Kind:         activity.Kind.String(),
		Entity:       ledger.FormatID(activity.Entity),
		ChainCount:   activity.ChainCount,
		UserCount:    activity.UserCount,
		PayableCount: activity.PayableCount,
		Timestamp:    activity.Timestamp,
	})
}

func (s *Server) decodeID(w http.ResponseWriter, req *RPCRequest) ([32]byte, bool) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return [32]byte{}, false
	}
	id, err := ledger.ParseID(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid identifier", nil)
		return [32]byte{}, false
	}
	return id, true
}

var entityKindNames = map[string]ledger.EntityKind{
	"user":           ledger.KindUser,
	"payable":        ledger.KindPayable,
	"foreignPayable": ledger.KindForeignPayable,
	"userPayment":    ledger.KindUserPayment,
	"payablePayment": ledger.KindPayablePayment,
	"withdrawal":     ledger.KindWithdrawal,
	"activity":       ledger.KindActivity,
}

// handleGetEntityID resolves ordinal lookups: "the Nth entity of this kind
// in this scope". The scope decides which key field is required.
func (s *Server) handleGetEntityID(w http.ResponseWriter, req *RPCRequest) {
	var params entityIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	kind, ok := entityKindNames[params.Kind]
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "unknown entity kind "+params.Kind, nil)
		return
	}
	var (
		id  [32]byte
		err error
	)
	switch params.Scope {
	case "chain":
		id, err = s.engine.EntityIDAt(kind, ledger.ScopeChain, nil, params.Count)
	case "user":
		wallet, werr := ledger.ParseWallet(params.Wallet)
		if werr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid wallet", nil)
			return
		}
		id, err = s.engine.EntityIDAt(kind, ledger.ScopeUser, wallet[:], params.Count)
	case "payable":
		payableID, perr := ledger.ParseID(params.PayableID)
		if perr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payable id", nil)
			return
		}
		id, err = s.engine.EntityIDAt(kind, ledger.ScopePayable, payableID[:], params.Count)
	case "payableChain":
		payableID, perr := ledger.ParseID(params.PayableID)
		if perr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payable id", nil)
			return
		}
		id, err = s.engine.PayablePaymentIDForPayableChain(payableID, params.ChainID, params.Count)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "unknown scope "+params.Scope, nil)
		return
	}
	if err != nil {
		writeLedgerError(w, req.ID, req.Method, err)
		return
	}
	writeResult(w, req.ID, entityIDJSON{ID: ledger.FormatID(id)})
}
