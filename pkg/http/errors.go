package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Machine-readable error codes returned to clients
const (
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeInternal           = "internal_error"
	CodeRateLimited        = "rate_limited"
	CodeBlocked            = "blocked"
	CodeInvalidCredentials = "invalid_credentials"
	CodeAccountLocked      = "account_locked"
	CodeTwoFactorInvalid   = "two_factor_invalid"
	CodeServiceUnavailable = "service_unavailable"
	CodeBadGateway         = "bad_gateway"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`             // Machine-readable error code
	Message string `json:"message"`           // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// RateLimitResponse is the 429 body for throttled requests
type RateLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"` // whole seconds
}

// LockedResponse is the 429 body while an account is locked
type LockedResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Locked     bool   `json:"locked"`
	RetryAfter int    `json:"retryAfter"`
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Encoding errors are not exposed to the client
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// WriteRateLimited writes a 429 with the Retry-After header set
func WriteRateLimited(w http.ResponseWriter, message string, retryAfterSeconds int) {
	if message == "" {
		message = "Too many requests, please try again later."
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteJSON(w, http.StatusTooManyRequests, RateLimitResponse{
		Error:      CodeRateLimited,
		Message:    message,
		RetryAfter: retryAfterSeconds,
	})
}

// WriteLocked writes the account-locked 429 with the remaining lockout time
func WriteLocked(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteJSON(w, http.StatusTooManyRequests, LockedResponse{
		Error:      CodeAccountLocked,
		Message:    "Account temporarily locked due to repeated failed attempts.",
		Locked:     true,
		RetryAfter: retryAfterSeconds,
	})
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeBadRequest, message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

func WriteBlocked(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeBlocked, message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func WriteInvalidCredentials(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password.")
}

func WriteTwoFactorInvalid(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeTwoFactorInvalid, message)
}

func WriteServiceUnavailable(w http.ResponseWriter) {
	WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "Service temporarily unavailable, please try again later.")
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, message)
}

func WriteBadGateway(w http.ResponseWriter) {
	WriteError(w, http.StatusBadGateway, CodeBadGateway, "Upstream service unavailable.")
}
