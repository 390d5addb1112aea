package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/numbers-window/internal/ratelimit"
)

// RegisterRoutes registers the numbers and window routes. Only the numbers
// endpoint, which calls the provider, is rate limited.
func RegisterRoutes(api huma.API, h *NumbersHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-numbers",
		Method:      http.MethodGet,
		Path:        "/numbers/{code}",
		Summary:     "Fetch numbers and average the window",
		Description: "Fetches fresh numbers of the category from the provider, folds them into the " +
			"category's sliding window and returns the window before and after with its mean.",
		Tags: []string{"Numbers"},
		Errors: []int{
			http.StatusBadRequest,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
		},
	}, h.GetNumbers)

	huma.Register(api, huma.Operation{
		OperationID: "get-window",
		Method:      http.MethodGet,
		Path:        "/windows/{code}",
		Summary:     "Inspect a window",
		Description: "Returns the current window of the category with insertion times. Does not call the provider.",
		Tags:        []string{"Numbers"},
		Errors:      []int{http.StatusBadRequest},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.GetWindow)
}
