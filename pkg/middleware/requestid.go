package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mediakeep/mediakeep/pkg/contextkeys"
)

// RequestID assigns each request a UUID, honoring an inbound X-Request-ID
// from a trusted proxy, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(contextkeys.WithRequestID(r.Context(), id)))
	})
}
