package httpx

import (
	"encoding/json"
	"net/http"
)

// Middleware is a standard net/http middleware.
type Middleware func(http.Handler) http.Handler

// Envelope is the uniform response wrapper. Successful responses carry
// code 0 and the payload; failures carry code -1 and an ErrorBody payload.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	URL     string `json:"url"`
}

// ErrorBody is the failure payload: a stable machine code, a human message
// and the originating request path.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// WriteSuccess wraps data in the success envelope.
func WriteSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, Envelope{
		Code:    0,
		Message: "Success",
		Data:    data,
		URL:     r.URL.Path,
	})
}

// WriteError wraps an error descriptor in the failure envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, Envelope{
		Code:    -1,
		Message: "Failed",
		Data: ErrorBody{
			Error:   code,
			Message: message,
			Path:    r.URL.Path,
		},
		URL: r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache prevents caching of sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
