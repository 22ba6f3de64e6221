package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"pairvault/core/types"
	"pairvault/gateway/middleware"
	"pairvault/native/vault"
	"pairvault/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	metricsModule = "vault"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

var errPairNotFound = errors.New("rpc: pair not found")

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
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// access is the authorisation level a method demands.
type access int

const (
	accessPublic access = iota
	accessUser
	accessAdmin
)

type handlerFunc func(s *Server, ctx context.Context, caller *middleware.Identity, params []json.RawMessage) (interface{}, error)

type method struct {
	access access
	call   handlerFunc
}

var methods = map[string]method{
	// Liquidity providers and claim holders.
	"vault_merge":    {accessUser, (*Server).handleMerge},
	"vault_split":    {accessUser, (*Server).handleSplit},
	"vault_deposit":  {accessUser, (*Server).handleDeposit},
	"vault_withdraw": {accessUser, (*Server).handleWithdraw},
	"vault_redeem":   {accessUser, (*Server).handleRedeem},
	"claims_approve": {accessUser, (*Server).handleClaimsApprove},
	"bank_approve":   {accessUser, (*Server).handleBankApprove},

	// Owner.
	"vault_registerPair":      {accessAdmin, (*Server).handleRegisterPair},
	"vault_removePair":        {accessAdmin, (*Server).handleRemovePair},
	"vault_startSettlement":   {accessAdmin, (*Server).handleStartSettlement},
	"vault_reportOutcome":     {accessAdmin, (*Server).handleReportOutcome},
	"vault_reportAndRemove":   {accessAdmin, (*Server).handleReportAndRemove},
	"vault_setFeesPercentage": {accessAdmin, (*Server).handleSetFeesPercentage},
	"vault_setFeeRecipient":   {accessAdmin, (*Server).handleSetFeeRecipient},
	"vault_transferOwnership": {accessAdmin, (*Server).handleTransferOwnership},
	"vault_migrateReserve":    {accessAdmin, (*Server).handleMigrateReserve},
	"bank_mint":               {accessAdmin, (*Server).handleBankMint},
	"claims_mint":             {accessAdmin, (*Server).handleClaimsMint},
	"reserve_accrue":          {accessAdmin, (*Server).handleReserveAccrue},

	// Queries.
	"vault_summary":       {accessPublic, (*Server).handleSummary},
	"vault_pair":          {accessPublic, (*Server).handlePair},
	"vault_pairs":         {accessPublic, (*Server).handlePairs},
	"vault_pairCount":     {accessPublic, (*Server).handlePairCount},
	"vault_isPairAllowed": {accessPublic, (*Server).handleIsPairAllowed},
	"vault_estimateMerge": {accessPublic, (*Server).handleEstimateMerge},
	"vault_estimateSplit": {accessPublic, (*Server).handleEstimateSplit},
	"vault_balance":       {accessPublic, (*Server).handleBalance},
	"vault_events":        {accessPublic, (*Server).handleEvents},
	"claims_balance":      {accessPublic, (*Server).handleClaimsBalance},
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	code := s.dispatch(w, r, req)
	observability.ModuleMetrics().Observe(metricsModule, req.Method, code, time.Since(start))
}

// dispatch runs req and returns the JSON-RPC error code written, zero on
// success.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	m, ok := methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return codeMethodNotFound
	}

	var caller *middleware.Identity
	if m.access != accessPublic {
		var scopes []string
		if m.access == accessAdmin {
			scopes = append(scopes, middleware.ScopeAdmin)
		}
		id, err := middleware.Require(r.Context(), scopes...)
		if err != nil {
			status, code := classify(err)
			writeError(w, status, req.ID, code, err.Error(), nil)
			return code
		}
		if !s.limiter.Allow(middleware.CallerKey(r)) {
			observability.ModuleMetrics().RecordThrottle(metricsModule, "rate")
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return codeRateLimited
		}
		caller = id
	}

	result, err := m.call(s, r.Context(), caller, req.Params)
	if err != nil {
		status, code := classify(err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return code
	}
	writeResult(w, req.ID, result)
	return 0
}

// classify maps a handler failure onto an HTTP status and JSON-RPC code.
func classify(err error) (int, int) {
	var pe *paramsError
	switch {
	case errors.As(err, &pe):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, middleware.ErrMissingToken), errors.Is(err, middleware.ErrInvalidToken):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, middleware.ErrInsufficientScope), errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidLeg),
		errors.Is(err, vault.ErrInvalidRange),
		errors.Is(err, vault.ErrInvalidAddress),
		errors.Is(err, vault.ErrFeeTooHigh),
		errors.Is(err, vault.ErrUnknownOracle),
		errors.Is(err, types.ErrIdenticalLegs):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, errPairNotFound):
		return http.StatusNotFound, codeServerError
	case errors.Is(err, errEventsDisabled):
		return http.StatusServiceUnavailable, codeServerError
	case errors.Is(err, vault.ErrInvariantViolated):
		return http.StatusInternalServerError, codeServerError
	default:
		return http.StatusUnprocessableEntity, codeServerError
	}
}
