package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shardgate/controlplane/internal/captoken"
	"github.com/shardgate/controlplane/internal/sigv4"
)

// Standard error codes for API responses.
const (
	// ErrCodeInvalidRequest indicates a malformed request body or parameter.
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeAuthFailed indicates a token or signature that did not verify.
	ErrCodeAuthFailed = "authentication_failed"

	// ErrCodeForbidden indicates a verified identity without permission.
	ErrCodeForbidden = "forbidden"

	// ErrCodeInternalRequired indicates the shared internal token is required.
	ErrCodeInternalRequired = "internal_token_required"

	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodePersistence indicates the state store rejected a required write.
	ErrCodePersistence = "persistence_failure"

	// ErrCodeInternalError indicates a server error.
	ErrCodeInternalError = "internal_error"
)

// APIError is the standard error response format for JSON APIs.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// WriteError writes a JSON error response with the given status code, error code, and message.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithHint(w, status, code, message, "")
}

// WriteErrorWithHint writes a JSON error response with an optional hint for resolving the error.
func WriteErrorWithHint(w http.ResponseWriter, status int, code, message, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIError{
		Error:   code,
		Message: message,
		Hint:    hint,
	}
	// Encoding errors are not critical since headers are already sent
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		_ = err
	}
}

// WriteJSON writes a JSON success response.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Response already started, nothing we can do
		_ = err
	}
}

// authStatus maps a verification failure to an HTTP status: 403 for a valid
// identity that is out of policy or revoked, 401 for everything else. Errors
// never reach the client as raw text from this path; the stable sentinel
// message is the machine-readable reason.
func authStatus(err error) int {
	switch {
	case errors.Is(err, sigv4.ErrPolicyViolation),
		errors.Is(err, sigv4.ErrCredentialRevoked),
		errors.Is(err, captoken.ErrRevoked):
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}
