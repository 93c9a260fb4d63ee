package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDMiddleware tags each request with an ID for log correlation.
// Callers may supply their own via X-Request-ID; otherwise a ULID is
// minted, same as run IDs elsewhere in the pipeline.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = strings.ToLower(ulid.Make().String())
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// APIKeyMiddleware validates the X-API-Key header against the configured
// key. An empty key disables auth entirely. Worker health endpoints
// (GET .../health) are always exempt so load balancers can probe without
// credentials.
func APIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	key := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case apiKey == "":
			case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/health"):
			case subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), key) == 1:
			default:
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodyMiddleware caps request body size. Trigger payloads are small;
// anything larger than the cap is a client bug.
func MaxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
