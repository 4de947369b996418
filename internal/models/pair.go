package models

import (
	"errors"
	"strings"
	"time"
)

// Ошибки валидации пары
var (
	ErrPairQtyBounds     = errors.New("min_qty must not exceed max_qty")
	ErrPairPositionBound = errors.New("max_position_size must be at least min_qty")
)

// TradingPair представляет торгуемый инструмент
type TradingPair struct {
	ID              int       `json:"id" db:"id"`
	Symbol          string    `json:"symbol" db:"symbol"`                       // BTC/USDT
	BaseAsset       string    `json:"base_asset" db:"base_asset"`               // BTC
	QuoteAsset      string    `json:"quote_asset" db:"quote_asset"`             // USDT
	MinQty          float64   `json:"min_qty" db:"min_qty"`                     // минимальный объём ордера
	MaxQty          float64   `json:"max_qty" db:"max_qty"`                     // максимальный объём ордера
	MinNotional     float64   `json:"min_notional" db:"min_notional"`           // минимальная стоимость ордера в quote
	MaxPositionSize float64   `json:"max_position_size" db:"max_position_size"` // лимит размера позиции
	MakerFee        float64   `json:"maker_fee" db:"maker_fee"`
	TakerFee        float64   `json:"taker_fee" db:"taker_fee"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// ExchangeSymbol возвращает символ в формате REST API биржи (BTCUSDT)
func (p *TradingPair) ExchangeSymbol() string {
	return strings.ToUpper(strings.ReplaceAll(p.Symbol, "/", ""))
}

// StreamSymbol возвращает символ в формате имён стримов (btcusdt)
func (p *TradingPair) StreamSymbol() string {
	return strings.ToLower(strings.ReplaceAll(p.Symbol, "/", ""))
}

// Validate проверяет инварианты пары
func (p *TradingPair) Validate() error {
	if p.MinQty > p.MaxQty {
		return ErrPairQtyBounds
	}
	if p.MaxPositionSize < p.MinQty {
		return ErrPairPositionBound
	}
	return nil
}
