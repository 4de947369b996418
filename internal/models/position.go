package models

import "time"

// Стороны позиции
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Статусы позиции
const (
	PositionOpen   = "OPEN"
	PositionClosed = "CLOSED"
)

// Position представляет открытую или закрытую экспозицию
//
// Инварианты (обеспечиваются движком стратегий, не хранилищем):
// - не более одной OPEN позиции на (пара, стратегия)
// - trailing stop двигается только в пользу позиции
// - closed_at устанавливается ровно один раз
type Position struct {
	ID            int64      `json:"id" db:"id"`
	TradingPairID int        `json:"trading_pair_id" db:"trading_pair_id"`
	Side          string     `json:"side" db:"side"`     // LONG, SHORT
	Status        string     `json:"status" db:"status"` // OPEN, CLOSED
	Quantity      float64    `json:"quantity" db:"quantity"`
	EntryPrice    float64    `json:"entry_price" db:"entry_price"`
	CurrentPrice  float64    `json:"current_price" db:"current_price"`
	StopLoss      float64    `json:"stop_loss" db:"stop_loss"`
	TakeProfit    float64    `json:"take_profit" db:"take_profit"`
	TrailingStop  float64    `json:"trailing_stop" db:"trailing_stop"`
	RealizedPnl   float64    `json:"realized_pnl" db:"realized_pnl"`
	UnrealizedPnl float64    `json:"unrealized_pnl" db:"unrealized_pnl"`
	StrategyName  string     `json:"strategy_name" db:"strategy_name"` // слабая ссылка по имени
	OpenedAt      time.Time  `json:"opened_at" db:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at" db:"closed_at"`
}

// IsOpen возвращает true для открытой позиции
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// IsLong возвращает true для длинной позиции
func (p *Position) IsLong() bool {
	return p.Side == SideLong
}

// EntryValue возвращает стоимость позиции по цене входа
func (p *Position) EntryValue() float64 {
	return p.Quantity * p.EntryPrice
}

// PositionValue возвращает текущую стоимость позиции
func (p *Position) PositionValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// UnrealizedPnLAt возвращает нереализованный PNL при заданной цене
func (p *Position) UnrealizedPnLAt(price float64) float64 {
	if p.IsLong() {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}

// RiskAmount возвращает сумму под риском: |entry - stop| * qty
func (p *Position) RiskAmount() float64 {
	d := p.EntryPrice - p.StopLoss
	if d < 0 {
		d = -d
	}
	return d * p.Quantity
}
