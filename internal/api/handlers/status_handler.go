package handlers

import (
	"net/http"
	"time"

	"tradingbot/internal/models"
)

// status_handler.go - сводка состояния торгового движка
//
// Назначение:
// Отдает оператору текущую картину: стоимость портфеля из последнего
// снимка, открытые позиции и отслеживаемые пары. Только чтение,
// управляющих операций операционный API не имеет.

// PositionReader - открытые позиции для сводки
type PositionReader interface {
	GetOpen() ([]*models.Position, error)
}

// SnapshotReader - последний снимок портфеля
type SnapshotReader interface {
	GetLatest() (*models.PortfolioSnapshot, error)
}

// PairLister - активные торговые пары
type PairLister interface {
	GetActive() ([]*models.TradingPair, error)
}

// StatusHandler обслуживает GET /status
type StatusHandler struct {
	positions PositionReader
	snapshots SnapshotReader
	pairs     PairLister
}

// NewStatusHandler создает handler сводки состояния
func NewStatusHandler(positions PositionReader, snapshots SnapshotReader, pairs PairLister) *StatusHandler {
	return &StatusHandler{positions: positions, snapshots: snapshots, pairs: pairs}
}

// positionSummary - открытая позиция в сводке
type positionSummary struct {
	PairID        int     `json:"pair_id"`
	Strategy      string  `json:"strategy"`
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

// statusResponse - тело ответа /status
type statusResponse struct {
	PortfolioValueUSDT float64           `json:"portfolio_value_usdt"`
	DailyPnl           float64           `json:"daily_pnl"`
	DailyDrawdown      float64           `json:"daily_drawdown"`
	SnapshotAt         *time.Time        `json:"snapshot_at,omitempty"`
	ActivePairs        []string          `json:"active_pairs"`
	OpenPositions      []positionSummary `json:"open_positions"`
}

// Status обрабатывает GET /status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		ActivePairs:   []string{},
		OpenPositions: []positionSummary{},
	}

	// Снимка может еще не быть: сводка отдается с нулями
	if snap, err := h.snapshots.GetLatest(); err == nil {
		resp.PortfolioValueUSDT = snap.TotalValueUSDT
		resp.DailyPnl = snap.DailyPnl
		resp.DailyDrawdown = snap.DailyDrawdown
		resp.SnapshotAt = &snap.SnapshotTime
	}

	pairs, err := h.pairs.GetActive()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load pairs", err)
		return
	}
	for _, pair := range pairs {
		resp.ActivePairs = append(resp.ActivePairs, pair.Symbol)
	}

	open, err := h.positions.GetOpen()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load positions", err)
		return
	}
	for _, pos := range open {
		resp.OpenPositions = append(resp.OpenPositions, positionSummary{
			PairID:        pos.TradingPairID,
			Strategy:      pos.StrategyName,
			Side:          pos.Side,
			Quantity:      pos.Quantity,
			EntryPrice:    pos.EntryPrice,
			CurrentPrice:  pos.CurrentPrice,
			UnrealizedPnl: pos.UnrealizedPnl,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
