package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is the structured error returned for any non-2xx response.
// Message is taken from the response body when the backend returns a
// structured error object; otherwise it falls back to the raw body text.
type APIError struct {
	// Message is the human-readable error description.
	Message string

	// Status is the HTTP status code.
	Status int

	// Code is an optional machine-readable error code from the backend.
	Code string

	// Details carries any additional structured context from the backend.
	Details map[string]any
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Retryable reports whether err warrants a retry: network-level failures
// and 5xx responses qualify, 4xx responses never do.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	// Anything that is not an APIError is a transport-level failure
	// (connection refused, timeout, DNS) and is worth retrying.
	return err != nil
}

// errorBody mirrors the backend's structured error envelope.
type errorBody struct {
	Message string         `json:"message"`
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

// parseError converts a non-2xx response into an [*APIError]. The body is
// read in full; malformed or non-JSON bodies degrade to raw text.
func parseError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(raw) == 0 {
		apiErr.Message = resp.Status
		return apiErr
	}

	var body errorBody
	if json.Unmarshal(raw, &body) == nil && (body.Message != "" || body.Error != "") {
		apiErr.Message = body.Message
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
		apiErr.Code = body.Code
		apiErr.Details = body.Details
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}
