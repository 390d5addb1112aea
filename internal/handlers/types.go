package handlers

import "github.com/serroba/numbers-window/internal/window"

// NumbersRequest is the request for fetching and averaging numbers.
type NumbersRequest struct {
	Code string `doc:"Number category: p (prime), f (fibonacci), e (even) or r (random)" example:"e" path:"code"`
}

// NumbersBody is the window state before and after the request.
type NumbersBody struct {
	WindowPrevState []float64 `doc:"Window before this request"                    json:"windowPrevState"`
	WindowCurrState []float64 `doc:"Window after this request"                     json:"windowCurrState"`
	Numbers         []float64 `doc:"Numbers received from the provider"            json:"numbers"`
	Avg             float64   `doc:"Mean of the current window, 2 decimal places"  json:"avg"`
	Error           string    `doc:"Set when the provider failed and state was kept" json:"error,omitempty"`
}

// NumbersResponse is the response for a numbers request.
type NumbersResponse struct {
	Body NumbersBody
}

// WindowRequest is the request for inspecting a window.
type WindowRequest struct {
	Code string `doc:"Number category: p, f, e or r" example:"p" path:"code"`
}

// WindowResponse is the current window of a category with insertion times.
type WindowResponse struct {
	Body struct {
		Category string         `doc:"Category code"                     example:"p"     json:"category"`
		Name     string         `doc:"Category name"                     example:"prime" json:"name"`
		Size     int            `doc:"Maximum number of entries"         example:"10"    json:"size"`
		Entries  []window.Entry `doc:"Entries in stored order"                           json:"entries"`
		Avg      float64        `doc:"Mean rounded to 2 decimal places"                  json:"avg"`
		Mean     float64        `doc:"Unrounded mean"                                    json:"mean"`
	}
}
