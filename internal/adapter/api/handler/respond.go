package handler

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the body of rejected requests.
const (
	CodeBadRequest    = "bad_request"
	CodeLimitExceeded = "limit_exceeded"
	CodeInvalidRange  = "invalid_range"
	CodeUnauthorized  = "unauthorized"
	CodeRateLimited   = "rate_limited"
	CodeInternal      = "internal_error"
)

// StatusClientClosedRequest marks requests the client abandoned before a
// response was ready. Nothing reaches the client; it keeps them apart in logs
// and metrics.
const StatusClientClosedRequest = 499

// ErrorResponse is the JSON body of every rejected request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON encodes payload with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError sends a structured rejection.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// Health is a simple liveness endpoint.
func Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
