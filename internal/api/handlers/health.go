// health.go — обработчики health endpoints для проверок liveness и readiness Kubernetes.
// /health/live — процесс жив; /health/ready — директории данных и WAL
// доступны на запись, PostgreSQL отвечает.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/goartstore/meeting-module/internal/config"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — проверка готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status string, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	dataDir string
	walDir  string
	db      ReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
// db == nil — readiness вернёт fail для PostgreSQL.
func NewHealthHandler(dataDir, walDir string, db ReadinessChecker) *HealthHandler {
	return &HealthHandler{dataDir: dataDir, walDir: walDir, db: db}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse — ответ health endpoints.
type healthResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks,omitempty"`
}

// HealthLive обрабатывает GET /health/live. Зависимости не проверяются.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "meeting-module",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Недоступность данных или PostgreSQL — 503, недоступность WAL — degraded.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]healthCheckResult{
		"filesystem": checkWritable(h.dataDir, "Директория данных недоступна для записи"),
		"wal":        checkWritable(h.walDir, "Директория WAL недоступна для записи"),
	}
	if h.db != nil {
		status, msg := h.db.CheckReady()
		checks["postgresql"] = healthCheckResult{Status: status, Message: msg}
	} else {
		checks["postgresql"] = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}

	wal := checks["wal"]
	if wal.Status == statusFail {
		wal.Status = statusDegraded
		checks["wal"] = wal
	}

	resp := healthResponse{
		Status:    overallStatus(checks["filesystem"].Status, checks["wal"].Status, checks["postgresql"].Status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   "meeting-module",
		Checks:    checks,
	}

	status := http.StatusOK
	if resp.Status == statusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// checkWritable проверяет, что в директорию можно записать файл.
func checkWritable(dir, failMessage string) healthCheckResult {
	if dir == "" {
		return healthCheckResult{Status: statusOK, Message: "Проверка не настроена"}
	}
	testFile := filepath.Join(dir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return healthCheckResult{Status: statusFail, Message: failMessage}
	}
	_ = os.Remove(testFile)
	return healthCheckResult{Status: statusOK}
}

// overallStatus: хотя бы один fail — fail, хотя бы один degraded — degraded.
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
