// health.go — health endpoints Archive Module.
// /health/live — процесс жив
// /health/ready — PostgreSQL доступен (Redis влияет только на degraded)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/archive-module/internal/config"
)

// Статусы health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
	serviceName    = "archive-module"
)

// ReadinessChecker — проверка готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	pgChecker    ReadinessChecker
	redisChecker ReadinessChecker
	promHandler  http.Handler
}

// NewHealthHandler создаёт обработчик. redisChecker может быть nil:
// лимитер тогда отключён, и Redis не проверяется.
func NewHealthHandler(pgChecker, redisChecker ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		pgChecker:    pgChecker,
		redisChecker: redisChecker,
		promHandler:  promhttp.Handler(),
	}
}

type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		PostgreSQL healthCheckResult  `json:"postgresql"`
		Redis      *healthCheckResult `json:"redis,omitempty"`
	} `json:"checks"`
}

// HealthLive — liveness probe.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe: 200 (ok/degraded) или 503 (fail).
// Недоступность Redis даёт degraded: лимиты работают в режиме fail-open.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	if h.pgChecker != nil {
		st, msg := h.pgChecker.CheckReady()
		resp.Checks.PostgreSQL = healthCheckResult{Status: st, Message: msg}
	} else {
		resp.Checks.PostgreSQL = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}
	statuses := []string{resp.Checks.PostgreSQL.Status}

	if h.redisChecker != nil {
		st, msg := h.redisChecker.CheckReady()
		resp.Checks.Redis = &healthCheckResult{Status: st, Message: msg}
		if st == statusFail {
			st = statusDegraded
		}
		statuses = append(statuses, st)
	}

	resp.Status = overallStatus(statuses...)
	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus: fail, если есть fail; degraded, если есть degraded; иначе ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
