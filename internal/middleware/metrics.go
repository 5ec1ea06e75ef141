package middleware

import (
	"net/http"
	"time"

	"github.com/hitoshi/watchlog/internal/metrics"
)

// NewMetricsMiddleware はHTTPリクエスト数と処理時間を記録するミドルウェアを返す。
func NewMetricsMiddleware(m metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.RecordHTTPRequest(r.Method, rec.statusCode, time.Since(start))
		})
	}
}
