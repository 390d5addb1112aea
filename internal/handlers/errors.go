package handlers

import "net/http"

const (
	msgInvalidCategory = "Invalid number type. Use p, f, e, or r."
	msgFetchFailed     = "Failed to fetch or process numbers"
	msgRateLimited     = "rate limit exceeded"
)

// APIError is the error body every endpoint of the service writes:
// {"error": "...", "details": "..."}.
type APIError struct {
	Status  int    `json:"-"`
	Message string `doc:"What went wrong"         json:"error"`
	Details string `doc:"The underlying cause"    json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details == "" {
		return e.Message
	}

	return e.Message + ": " + e.Details
}

// GetStatus makes APIError a huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.Status
}

// NewAPIError creates an APIError.
func NewAPIError(status int, message, details string) *APIError {
	return &APIError{Status: status, Message: message, Details: details}
}

// ErrInvalidCategory is returned for a category code outside p, f, e, r.
func ErrInvalidCategory() *APIError {
	return NewAPIError(http.StatusBadRequest, msgInvalidCategory, "")
}

// ErrFetchFailed is returned when the fetch failed and there is no window to fall back on.
func ErrFetchFailed(cause error) *APIError {
	return NewAPIError(http.StatusInternalServerError, msgFetchFailed, cause.Error())
}

// ErrRateLimited is returned when a client exceeded its request budget.
func ErrRateLimited() *APIError {
	return NewAPIError(http.StatusTooManyRequests, msgRateLimited, "")
}
