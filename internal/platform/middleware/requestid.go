package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"tollgate/pkg/requestcontext"
)

// RequestID assigns a correlation id to every request and stores client
// metadata (IP, User-Agent) for downstream services.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithClientMetadata(ctx, r.RemoteAddr, r.UserAgent())

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
