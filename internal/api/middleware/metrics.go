// metrics.go — HTTP метрики Archive Module:
// ar_http_requests_total, ar_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ar_http_requests_total",
			Help: "Общее количество HTTP-запросов к Archive Module",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ar_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Archive Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware собирает количество и длительность запросов.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(statusOf(ww))).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// dynamicPrefixes — коллекции, в которых следующий сегмент — идентификатор.
var dynamicPrefixes = []string{
	"/api/v1/requests/",
	"/api/v1/items/",
	"/api/v1/jobs/",
}

// normalizePath заменяет идентификатор в пути на {id}:
// /api/v1/requests/42/close → /api/v1/requests/{id}/close.
func normalizePath(path string) string {
	for _, prefix := range dynamicPrefixes {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || rest == "" {
			continue
		}
		_, suffix, found := strings.Cut(rest, "/")
		if found {
			return prefix + "{id}/" + suffix
		}
		return prefix + "{id}"
	}
	return path
}
