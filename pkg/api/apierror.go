// Package api hosts the remote factory endpoint: authentication and rate
// middleware, the invocation handler, and RFC 7807 problem responses for
// protocol-level rejects. Anything the factory itself decides — denial,
// fault, business error — travels inside a response envelope with HTTP
// 200; problem responses are reserved for requests that never reach the
// factory.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Problem implements RFC 7807 problem details.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteProblem writes an RFC 7807 response enriched with request context.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	p := &Problem{
		Type:    fmt.Sprintf("https://neatoo.net/factory/errors/%d", status),
		Title:   title,
		Status:  status,
		Detail:  detail,
		TraceID: w.Header().Get(requestIDHeader),
	}
	if r != nil {
		p.Instance = r.URL.Path
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, r, http.StatusBadRequest, "Bad Request", detail)
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteProblem(w, r, http.StatusUnauthorized, "Unauthorized", detail)
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteProblem(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", "Only POST is supported on this endpoint")
}

func writeTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteProblem(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// writeInternal logs the error but never exposes it to the client.
func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "error", err, "path", r.URL.Path)
	WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}
