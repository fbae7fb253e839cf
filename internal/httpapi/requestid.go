package httpapi

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const (
	RequestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 128
)

var validRequestID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type requestIDKey struct{}

// RequestID propagates a caller-supplied X-Request-ID or mints a new one, and
// echoes it on the response. Nested uses keep the outermost id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromContext(r.Context()) != "" {
			next.ServeHTTP(w, r)
			return
		}
		requestID := r.Header.Get(RequestIDHeader)
		if !isValidRequestID(requestID) {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID)))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

func isValidRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	return validRequestID.MatchString(id)
}
