package models

import "time"

// Стороны и типы ордеров (формат биржи)
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"

	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
)

// Статусы ордеров
const (
	OrderStatusNew      = "NEW"
	OrderStatusFilled   = "FILLED"
	OrderStatusCanceled = "CANCELED"
	OrderStatusRejected = "REJECTED"
)

// Order - исполненный или отправленный биржевой ордер (таблица orders)
//
// Хранится для аудита: каждая открытая/закрытая позиция ссылается на
// породившие её ордера через position_id.
type Order struct {
	ID              int64     `json:"id" db:"id"`
	TradingPairID   int       `json:"trading_pair_id" db:"trading_pair_id"`
	PositionID      int64     `json:"position_id" db:"position_id"`
	ExchangeOrderID int64     `json:"exchange_order_id" db:"exchange_order_id"`
	Side            string    `json:"side" db:"side"`
	Type            string    `json:"type" db:"type"`
	Status          string    `json:"status" db:"status"`
	Quantity        float64   `json:"quantity" db:"quantity"`
	Price           float64   `json:"price" db:"price"`                     // 0 для market
	ExecutedQty     float64   `json:"executed_qty" db:"executed_qty"`       // из ответа биржи
	ExecutedPrice   float64   `json:"executed_price" db:"executed_price"`   // средняя цена исполнения
	CommissionPaid  float64   `json:"commission_paid" db:"commission_paid"` // в quote
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
