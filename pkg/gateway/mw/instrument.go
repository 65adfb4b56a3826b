package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/versevox/versevox/pkg/gateway/metrics"
)

// Instrument records request counts and latency. The route set is small and
// fixed, so the raw path is a safe label.
func Instrument(m *metrics.Metrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		m.RecordRequest(r.URL.Path, strconv.Itoa(sw.status), time.Since(start))
	})
}
