package rpc

import (
	"encoding/json"
	"net/http"

	"tiersale/core"
)

const (
	codeBadRequest         = "bad_request"
	codeInvalidAddress     = "invalid_address"
	codeRateLimited        = "rate_limited"
	codeHistoryUnavailable = "history_unavailable"
	codeStreamUnavailable  = "stream_unavailable"
	codeInternal           = "internal"
)

var statusByCode = map[string]int{
	"unauthorized": http.StatusForbidden,

	"conflict":            http.StatusConflict,
	"already_initialized": http.StatusConflict,
	"already_active":      http.StatusConflict,
	"invalid_nonce":       http.StatusConflict,

	"not_initialized":    http.StatusNotFound,
	"purchase_not_found": http.StatusNotFound,

	"sale_inactive":        http.StatusUnprocessableEntity,
	"zero_amount":          http.StatusUnprocessableEntity,
	"amount_above_tier":    http.StatusUnprocessableEntity,
	"wallet_cap_exceeded":  http.StatusUnprocessableEntity,
	"hard_cap_exceeded":    http.StatusUnprocessableEntity,
	"all_tiers_sold":       http.StatusUnprocessableEntity,
	"insufficient_balance": http.StatusUnprocessableEntity,
	"math_overflow":        http.StatusUnprocessableEntity,
	"invalid_timestamp":    http.StatusUnprocessableEntity,

	"malformed_transaction": http.StatusBadRequest,
	"invalid_signature":     http.StatusBadRequest,
	"invalid_chain_id":      http.StatusBadRequest,
	"invalid_treasury":      http.StatusBadRequest,
	"invalid_asset":         http.StatusBadRequest,
	"invalid_schedule":      http.StatusBadRequest,
	codeBadRequest:          http.StatusBadRequest,
	codeInvalidAddress:      http.StatusBadRequest,

	codeRateLimited:        http.StatusTooManyRequests,
	codeHistoryUnavailable: http.StatusServiceUnavailable,
	codeStreamUnavailable:  http.StatusServiceUnavailable,
}

// ErrorBody is the envelope of every failed response.
type ErrorBody struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusForCode returns the HTTP status used for an error code.
func StatusForCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: APIError{Code: code, Message: message}})
}

// writeLedgerError classifies an error returned by the ledger. Unclassified
// errors are reported without their message.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	code := core.ErrorCode(err)
	if code == "" || code == "state_unavailable" {
		s.logger.Error("request failed", "path", r.URL.Path, "requestId", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}
	writeError(w, StatusForCode(code), code, err.Error())
}
