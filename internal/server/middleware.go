package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/medassist/internal/metrics"
	"github.com/fpang/medassist/internal/transport"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// withRequestLog logs each request and emits RequestLatencyMs and
// RequestCount metrics. The Endpoint dimension is the matched route pattern,
// which keeps path parameters out of the metric cardinality.
func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sr, r)

		elapsed := time.Since(start)
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.statusCode).
			Str("requestId", r.Header.Get(transport.RequestIDHeader)).
			Dur("duration", elapsed).
			Msg("API request")

		metrics.New(metrics.Namespace).
			Dimension("Endpoint", endpoint).
			Duration("RequestLatencyMs", elapsed).
			Count("RequestCount").
			Property("method", r.Method).
			Property("statusCode", strconv.Itoa(sr.statusCode)).
			Property("path", r.URL.Path).
			Flush()
	})
}
