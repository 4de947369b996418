// Package exchange содержит клиентов REST и WebSocket API биржи.
package exchange

import (
	"context"
	"errors"
	"time"
)

// Сигнальные ошибки биржевого слоя
var (
	// ErrMissingCredentials - нет API ключей; фатально для приватных операций
	ErrMissingCredentials = errors.New("exchange: missing API credentials")

	// ErrNotConnected - операция требует установленного соединения
	ErrNotConnected = errors.New("exchange: not connected")

	// ErrReconnectExhausted - исчерпаны попытки переподключения шлюза
	ErrReconnectExhausted = errors.New("exchange: reconnect attempts exhausted")
)

// OrderClient - операции с ордерами и рыночными данными через REST
//
// Интерфейс позволяет подменять биржу заглушкой в тестах
// торговой логики.
type OrderClient interface {
	// PlaceMarketOrder размещает рыночный ордер
	PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*OrderResult, error)

	// PlaceLimitOrder размещает лимитный ордер
	PlaceLimitOrder(ctx context.Context, symbol, side string, qty, price float64) (*OrderResult, error)

	// CancelOrder отменяет ордер по ID
	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	// GetOrder возвращает состояние ордера
	GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderResult, error)

	// GetPrice возвращает текущую цену символа
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// Get24hrTicker возвращает 24-часовую статистику символа
	Get24hrTicker(ctx context.Context, symbol string) (*Ticker24h, error)

	// GetExchangeInfo возвращает торговые лимиты символов
	GetExchangeInfo(ctx context.Context, symbols []string) (map[string]Limits, error)

	// GetAccountBalance возвращает свободный и заблокированный баланс актива
	GetAccountBalance(ctx context.Context, asset string) (*Balance, error)
}

// OrderResult - результат размещения или запроса ордера
type OrderResult struct {
	OrderID       int64     `json:"order_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	ExecutedQty   float64   `json:"executed_qty"`
	ExecutedPrice float64   `json:"executed_price"` // средневзвешенная цена исполнения
	Commission    float64   `json:"commission"`
	TransactTime  time.Time `json:"transact_time"`
}

// Ticker24h - 24-часовая статистика символа
type Ticker24h struct {
	Symbol             string    `json:"symbol"`
	LastPrice          float64   `json:"last_price"`
	PriceChange        float64   `json:"price_change"`
	PriceChangePercent float64   `json:"price_change_percent"`
	HighPrice          float64   `json:"high_price"`
	LowPrice           float64   `json:"low_price"`
	Volume             float64   `json:"volume"`
	QuoteVolume        float64   `json:"quote_volume"`
	Timestamp          time.Time `json:"timestamp"`
}

// Limits - торговые ограничения символа
type Limits struct {
	Symbol      string  `json:"symbol"`
	MinOrderQty float64 `json:"min_order_qty"` // минимальный размер ордера
	MaxOrderQty float64 `json:"max_order_qty"` // максимальный размер ордера
	QtyStep     float64 `json:"qty_step"`      // шаг изменения количества (lot size)
	MinNotional float64 `json:"min_notional"`  // минимальная сумма сделки в USDT
	PriceStep   float64 `json:"price_step"`    // шаг изменения цены (tick size)
}

// Balance - баланс одного актива
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Стороны ордеров
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Типы ордеров
const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
)
