package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradingbot/internal/api/handlers"
	"tradingbot/internal/api/middleware"
	"tradingbot/pkg/utils"
)

// routes.go - маршруты операционного HTTP API
//
// Назначение:
// Сервисная поверхность для оператора и мониторинга. Управляющих
// endpoint'ов нет: торговые решения принимает только движок.
//
// Маршруты:
//
//	GET /healthz - живость потока рыночных данных
//	GET /status  - портфель, позиции, отслеживаемые пары
//	GET /metrics - метрики Prometheus
//
// Middleware: Recovery, затем Logging для всех маршрутов.

// Dependencies - зависимости операционного API
type Dependencies struct {
	Gateway   handlers.GatewayProbe
	Positions handlers.PositionReader
	Snapshots handlers.SnapshotReader
	Pairs     handlers.PairLister
	Log       *utils.Logger
}

// SetupRoutes настраивает маршруты и middleware
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Log))
	router.Use(middleware.Logging(deps.Log))

	health := handlers.NewHealthHandler(deps.Gateway)
	status := handlers.NewStatusHandler(deps.Positions, deps.Snapshots, deps.Pairs)

	router.HandleFunc("/healthz", health.Health).Methods("GET")
	router.HandleFunc("/status", status.Status).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}
