package models

import "time"

// SentimentRecord - одна запись внешнего сервиса анализа настроений
// (таблица sentiment_data). Сам text-mining сервис - внешний чёрный ящик,
// движок только читает его результаты.
type SentimentRecord struct {
	ID              int64     `json:"id" db:"id"`
	TradingPairID   int       `json:"trading_pair_id" db:"trading_pair_id"`
	SentimentScore  float64   `json:"sentiment_score" db:"sentiment_score"`   // -1..1
	ConfidenceScore float64   `json:"confidence_score" db:"confidence_score"` // 0..1
	ImpactScore     float64   `json:"impact_score" db:"impact_score"`         // 0..1
	AnalyzedAt      time.Time `json:"analyzed_at" db:"analyzed_at"`
}

// Sentiment - агрегированное настроение по паре за trailing окно.
// Score взвешивается произведением impact * confidence каждой записи.
type Sentiment struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Impact     float64 `json:"impact"`
	Count      int     `json:"count"`
}

// Bullish возвращает true при положительном настроении
func (s Sentiment) Bullish() bool {
	return s.Score > 0
}

// Bearish возвращает true при отрицательном настроении
func (s Sentiment) Bearish() bool {
	return s.Score < 0
}
