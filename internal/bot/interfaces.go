package bot

import (
	"context"
	"time"

	"tradingbot/internal/exchange"
	"tradingbot/internal/models"
)

// interfaces.go - контракты хранилищ и внешних коллабораторов ядра
//
// Узкие интерфейсы вместо конкретных репозиториев: ядро зависит
// только от нужных операций, тесты подставляют моки.

// CandleStore - персистентное хранилище свечей
type CandleStore interface {
	Insert(candle *models.Candle) (bool, error)
	GetRecent(pairID, limit int) ([]*models.Candle, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// IndicatorStore - персистентное хранилище снимков индикаторов
type IndicatorStore interface {
	Insert(snap *models.IndicatorSnapshot) error
}

// PositionStore - персистентное хранилище позиций
type PositionStore interface {
	Create(pos *models.Position) error
	GetOpenByStrategy(pairID int, strategyName string) (*models.Position, error)
	GetOpen() ([]*models.Position, error)
	UpdateMarks(id int64, currentPrice, unrealizedPnl float64) error
	UpdateTrailingStop(id int64, stop float64) error
	Close(id int64, exitPrice, realizedPnl float64, closedAt time.Time) error
	CountOpen() (int, error)
	SumOpenRisk() (float64, error)
}

// OrderStore - журнал биржевых ордеров
type OrderStore interface {
	Create(order *models.Order) error
}

// SnapshotStore - хранилище снимков портфеля
type SnapshotStore interface {
	Insert(snap *models.PortfolioSnapshot) error
	GetLatest() (*models.PortfolioSnapshot, error)
	GetFirstSince(since time.Time) (*models.PortfolioSnapshot, error)
}

// SentimentProvider - источник агрегированного настроения пары.
// Реализуется repository.SentimentRepository; сам анализ - внешний сервис.
type SentimentProvider interface {
	Aggregate(pairID int, since time.Time) (models.Sentiment, error)
}

// OrderClient - операции биржи, нужные движку стратегий
type OrderClient interface {
	PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*exchange.OrderResult, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetAccountBalance(ctx context.Context, asset string) (*exchange.Balance, error)
}
