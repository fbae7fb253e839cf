package httpapi

import (
	"expvar"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	requestsTotal  = expvar.NewInt("requests_total")
	requestsErrors = expvar.NewInt("requests_errors_total")
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func LoggingMiddleware(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		duration := time.Since(start)
		requestsTotal.Add(1)
		if writer.status >= http.StatusBadRequest {
			requestsErrors.Add(1)
		}
		entry := log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": duration.Milliseconds(),
			"request_id":  writer.Header().Get(RequestIDHeader),
		})
		if writer.status >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Info("request")
	})
}
