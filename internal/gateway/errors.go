package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is the structured error body returned to callers:
// {"error": ..., "message": ..., "hint": ...}.
type APIError struct {
	StatusCode int    `json:"-"`
	Kind       string `json:"-"`
	Message    string `json:"error"`
	Detail     string `json:"message,omitempty"`
	Hint       string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

const docsURL = "https://request.directory"

var (
	errUnauthorized = &APIError{
		StatusCode: http.StatusUnauthorized,
		Kind:       "unauthorized",
		Message:    "Invalid API key.",
	}
	errProviderNotFound = &APIError{
		StatusCode: http.StatusBadRequest,
		Kind:       "provider_not_found",
		Message:    "This provider does not exist.",
		Hint:       "Check the docs at " + docsURL,
	}
	errProviderDisabled = &APIError{
		StatusCode: http.StatusBadRequest,
		Kind:       "provider_disabled",
		Message:    "This provider is currently disabled.",
		Hint:       "Check the docs at " + docsURL,
	}
	errInvalidPath = &APIError{
		StatusCode: http.StatusBadRequest,
		Kind:       "invalid_path",
		Message:    "Invalid request path.",
	}
	errInvalidBody = &APIError{
		StatusCode: http.StatusBadRequest,
		Kind:       "invalid_body",
		Message:    "Invalid request body.",
	}
	errInsufficientFunds = &APIError{
		StatusCode: http.StatusBadRequest,
		Kind:       "insufficient_funds",
		Message:    "You don't have enough credits.",
		Hint:       "Top up at " + docsURL,
	}
	errRateLimited = &APIError{
		StatusCode: http.StatusTooManyRequests,
		Kind:       "rate_limited",
		Message:    "Rate limit exceeded.",
		Detail:     "Retry after 60s.",
	}
	// errUpstream covers every post-reservation failure. The caller has
	// been fully refunded by the time this is written.
	errUpstream = &APIError{
		StatusCode: http.StatusInternalServerError,
		Kind:       "upstream_error",
		Message:    "Internal server error.",
		Detail:     "We've encountered an error while processing your request. You have not been charged.",
	}
	errInternal = &APIError{
		StatusCode: http.StatusInternalServerError,
		Kind:       "internal_error",
		Message:    "Internal server error.",
	}
)

func missingParameter(name string) *APIError {
	return &APIError{
		StatusCode: http.StatusBadRequest,
		Kind:       "missing_parameter",
		Message:    fmt.Sprintf("Missing required parameter: %s", name),
	}
}

func writeError(w http.ResponseWriter, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	_ = json.NewEncoder(w).Encode(apiErr)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
