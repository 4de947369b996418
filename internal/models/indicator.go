package models

import "time"

// IndicatorSnapshot представляет рассчитанные технические индикаторы
// на момент времени (таблица technical_indicators)
//
// Снимок пересчитывается при каждой новой свече пары и никогда не
// мутируется — новый снимок просто вытесняет предыдущий.
type IndicatorSnapshot struct {
	ID            int64     `json:"id" db:"id"`
	TradingPairID int       `json:"trading_pair_id" db:"trading_pair_id"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	RSI           float64   `json:"rsi" db:"rsi"`
	MACDLine      float64   `json:"macd_line" db:"macd_line"`
	MACDSignal    float64   `json:"macd_signal" db:"macd_signal"`
	MACDHistogram float64   `json:"macd_histogram" db:"macd_histogram"`
	BBUpper       float64   `json:"bb_upper" db:"bb_upper"`
	BBMiddle      float64   `json:"bb_middle" db:"bb_middle"`
	BBLower       float64   `json:"bb_lower" db:"bb_lower"`
	ATR           float64   `json:"atr" db:"atr"`
	Volatility    float64   `json:"volatility" db:"volatility"`
	SMA20         float64   `json:"sma_20" db:"sma_20"`
	EMA20         float64   `json:"ema_20" db:"ema_20"`
}

// HasBullishMACD возвращает true при бычьем пересечении MACD
func (s *IndicatorSnapshot) HasBullishMACD() bool {
	return s.MACDHistogram > 0 && s.MACDLine > s.MACDSignal
}

// HasBearishMACD возвращает true при медвежьем пересечении MACD
func (s *IndicatorSnapshot) HasBearishMACD() bool {
	return s.MACDHistogram < 0 && s.MACDLine < s.MACDSignal
}
