package handlers

import (
	"net/http"
	"time"
)

// health_handler.go - liveness операционного API
//
// Назначение:
// Отдает состояние потока рыночных данных: возраст последнего
// сообщения шлюза. Протухший поток - 503, чтобы оркестратор
// перезапустил процесс или снял трафик.

// GatewayProbe - состояние WebSocket шлюза
type GatewayProbe interface {
	LastMessageAt() time.Time
	IsStale() bool
}

// HealthHandler обслуживает GET /healthz
type HealthHandler struct {
	gateway GatewayProbe
}

// NewHealthHandler создает handler проверки живости
func NewHealthHandler(gateway GatewayProbe) *HealthHandler {
	return &HealthHandler{gateway: gateway}
}

// healthResponse - тело ответа /healthz
type healthResponse struct {
	Status           string `json:"status"`
	LastMessageAgeMs int64  `json:"last_message_age_ms"`
}

// Health обрабатывает GET /healthz
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:           "ok",
		LastMessageAgeMs: time.Since(h.gateway.LastMessageAt()).Milliseconds(),
	}

	if h.gateway.IsStale() {
		resp.Status = "stale"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
