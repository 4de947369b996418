package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================

// ============ Поток событий ============

// EventsProcessed - количество обработанных событий по типам
var EventsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradingbot",
		Subsystem: "pipeline",
		Name:      "events_processed_total",
		Help:      "Total number of processed stream events",
	},
	[]string{"type"}, // kline, trade, ticker
)

// EventsDropped - события, отброшенные после исчерпания ретраев
var EventsDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradingbot",
		Subsystem: "pipeline",
		Name:      "events_dropped_total",
		Help:      "Total number of events dropped after retry exhaustion",
	},
	[]string{"type"},
)

// PersistRetries - повторные попытки записи в хранилище
var PersistRetries = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradingbot",
		Subsystem: "pipeline",
		Name:      "persist_retries_total",
		Help:      "Total number of storage write retries",
	},
)

// SignificantTrades - сделки с notional выше порога значимости
var SignificantTrades = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradingbot",
		Subsystem: "pipeline",
		Name:      "significant_trades_total",
		Help:      "Total number of trades above the notional significance threshold",
	},
	[]string{"symbol"},
)

// QueueDepth - глубина очереди шарда воркеров
var QueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "tradingbot",
		Subsystem: "pipeline",
		Name:      "queue_depth",
		Help:      "Current depth of a worker shard queue",
	},
	[]string{"shard"},
)

// ============ Торговля ============

// OrdersTotal - отправленные ордера по результату
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradingbot",
		Subsystem: "trading",
		Name:      "orders_total",
		Help:      "Total number of submitted orders",
	},
	[]string{"symbol", "side", "result"}, // result: success, failed, compensation
)

// OpenPositions - текущее количество открытых позиций
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "tradingbot",
		Subsystem: "trading",
		Name:      "open_positions",
		Help:      "Current number of open positions",
	},
)

// RiskRejections - отказы риск-движка по причинам
var RiskRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "tradingbot",
		Subsystem: "trading",
		Name:      "risk_rejections_total",
		Help:      "Total number of entries rejected by the risk engine",
	},
	[]string{"reason"},
)

// RealizedPnl - суммарный реализованный PNL в USDT
var RealizedPnl = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradingbot",
		Subsystem: "trading",
		Name:      "realized_pnl_usdt",
		Help:      "Total realized PnL in USDT",
	},
)

// TickDuration - длительность одного тика управляющего цикла
var TickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "tradingbot",
		Subsystem: "trading",
		Name:      "tick_duration_ms",
		Help:      "Duration of one control loop tick in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	},
)

// ============ Шлюз ============

// GatewayReconnects - переподключения потокового шлюза
var GatewayReconnects = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradingbot",
		Subsystem: "gateway",
		Name:      "reconnects_total",
		Help:      "Total number of gateway reconnect attempts",
	},
)

// GatewayStaleRestarts - принудительные рестарты по сторожевому таймеру
var GatewayStaleRestarts = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "tradingbot",
		Subsystem: "gateway",
		Name:      "stale_restarts_total",
		Help:      "Total number of forced reconnects after stale stream detection",
	},
)
