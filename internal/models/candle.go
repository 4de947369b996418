package models

import "time"

// Candle представляет одну OHLCV свечу (таблица market_data)
//
// Записывается Event Processor'ом из kline событий и после записи
// не изменяется. Производные метрики считаются один раз при приёме:
// - Volatility = (high - low) / open * 100
// - BuySellRatio = taker_buy_volume / (volume - taker_buy_volume)
type Candle struct {
	ID                  int64     `json:"id" db:"id"`
	TradingPairID       int       `json:"trading_pair_id" db:"trading_pair_id"`
	Timestamp           time.Time `json:"timestamp" db:"timestamp"` // время открытия интервала
	Open                float64   `json:"open" db:"open"`
	High                float64   `json:"high" db:"high"`
	Low                 float64   `json:"low" db:"low"`
	Close               float64   `json:"close" db:"close"`
	Volume              float64   `json:"volume" db:"volume"`
	QuoteVolume         float64   `json:"quote_volume" db:"quote_volume"`
	NumberOfTrades      int       `json:"number_of_trades" db:"number_of_trades"`
	TakerBuyVolume      float64   `json:"taker_buy_volume" db:"taker_buy_volume"`
	TakerBuyQuoteVolume float64   `json:"taker_buy_quote_volume" db:"taker_buy_quote_volume"`
	Volatility          float64   `json:"volatility" db:"daily_volatility"`
	BuySellRatio        float64   `json:"buy_sell_ratio" db:"buy_sell_ratio"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

// BuyVolume возвращает объём агрессивных покупок
func (c *Candle) BuyVolume() float64 {
	return c.TakerBuyVolume
}

// SellVolume возвращает объём агрессивных продаж
func (c *Candle) SellVolume() float64 {
	return c.Volume - c.TakerBuyVolume
}

// IsValid проверяет инвариант high >= max(open, close) >= min(open, close) >= low
func (c *Candle) IsValid() bool {
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	return c.High >= hi && lo >= c.Low
}
