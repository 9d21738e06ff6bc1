package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// CallerHeader carries the pre-authenticated caller identity.
const CallerHeader = "X-Quorum-Caller"

// RequestIDHeader echoes the request id on every response.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

func newRequestID() string { return "req_" + uuid.NewString() }

// withRequestID assigns a request id (or keeps the client's) and echoes it.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(RequestIDHeader)
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(req.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func requestID(req *http.Request) string {
	id, _ := req.Context().Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(req *http.Request, dst any) error {
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	RequestID string      `json:"request_id"`
	Error     ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Domain  string `json:"domain,omitempty"`
	Alias   string `json:"alias,omitempty"`
}

func writeError(w http.ResponseWriter, req *http.Request, status int, detail ErrorDetail) {
	writeJSON(w, status, ErrorBody{RequestID: requestID(req), Error: detail})
}
