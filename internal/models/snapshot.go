package models

import "time"

// PortfolioSnapshot представляет состояние портфеля на момент времени
// (таблица portfolio_snapshots)
//
// Снимки пишутся периодической задачей движка; риск-движок читает
// последний снимок для portfolio value и дневной просадки.
type PortfolioSnapshot struct {
	ID             int64     `json:"id" db:"id"`
	SnapshotTime   time.Time `json:"snapshot_time" db:"snapshot_time"`
	TotalValueUSDT float64   `json:"total_value_usdt" db:"total_value_usdt"`
	FreeUSDT       float64   `json:"free_usdt" db:"free_usdt"`
	LockedUSDT     float64   `json:"locked_usdt" db:"locked_usdt"`
	DailyPnl       float64   `json:"daily_pnl" db:"daily_pnl"`
	DailyPnlPct    float64   `json:"daily_pnl_percentage" db:"daily_pnl_percentage"`
	TotalPnl       float64   `json:"total_pnl" db:"total_pnl"`
	DailyDrawdown  float64   `json:"daily_drawdown" db:"daily_drawdown"` // доля, отрицательная при падении
	MaxDrawdown    float64   `json:"max_drawdown" db:"max_drawdown"`
	OpenPositions  int       `json:"open_positions" db:"open_positions"`
}
