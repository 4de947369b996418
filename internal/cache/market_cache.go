package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"tradingbot/internal/models"
)

// market_cache.go - горячий кэш рыночных данных в памяти
//
// Назначение:
// Последние цены, свечи, тикеры и индикаторы для каждого символа.
// Читается торговым циклом каждые несколько секунд, пишется
// воркерами обработки событий, поэтому кэш шардирован по символу
// для снижения конкуренции за блокировки.
//
// TTL:
// - Рыночные данные (цены, свечи, тикеры): 5 минут
// - Индикаторы: 60 секунд
// Протухшие записи считаются отсутствующими.

// TickerSnapshot - последнее состояние 24h тикера
type TickerSnapshot struct {
	Symbol             string
	LastPrice          float64
	PriceChangePercent float64
	HighPrice          float64
	LowPrice           float64
	Volume             float64
	QuoteVolume        float64
	UpdatedAt          time.Time
}

// TradeTick - одна рыночная сделка для кольцевого буфера
type TradeTick struct {
	Price        float64
	Quantity     float64
	QuoteValue   float64
	IsBuyerMaker bool
	TradeTime    time.Time
}

// TradeStats - агрегат по буферу последних сделок
type TradeStats struct {
	Count        int
	AvgPrice     float64
	TotalVolume  float64
	BuyVolume    float64
	SellVolume   float64
	BuySellRatio float64
}

// entry - значение с временем записи
type entry struct {
	value    interface{}
	storedAt time.Time
}

// shard - один сегмент кэша со своей блокировкой
type shard struct {
	mu         sync.RWMutex
	prices     map[string]entry
	candles    map[string]entry
	tickers    map[string]entry
	indicators map[string]entry
	trades     map[string]*tradeRing
}

// tradeRing - кольцевой буфер последних сделок символа
type tradeRing struct {
	buf  []TradeTick
	head int
	size int
}

func newTradeRing(capacity int) *tradeRing {
	return &tradeRing{buf: make([]TradeTick, capacity)}
}

// push добавляет сделку, вытесняя самую старую при переполнении
func (r *tradeRing) push(t TradeTick) {
	r.buf[r.head] = t
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// snapshot возвращает сделки от старой к новой
func (r *tradeRing) snapshot() []TradeTick {
	out := make([]TradeTick, 0, r.size)
	start := r.head - r.size
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// MarketCache - шардированный кэш рыночных данных
type MarketCache struct {
	shards       []*shard
	marketTTL    time.Duration
	indicatorTTL time.Duration
	tradeBuffer  int

	now func() time.Time // подменяется в тестах
}

// Option - функциональная опция конфигурации кэша
type Option func(*MarketCache)

// WithClock подменяет источник времени (для тестов TTL)
func WithClock(now func() time.Time) Option {
	return func(c *MarketCache) { c.now = now }
}

// NewMarketCache создаёт кэш
//
// Параметры:
//   - marketTTL: время жизни цен/свечей/тикеров
//   - indicatorTTL: время жизни индикаторов
//   - tradeBuffer: ёмкость кольцевого буфера сделок на символ
func NewMarketCache(marketTTL, indicatorTTL time.Duration, tradeBuffer int, opts ...Option) *MarketCache {
	const shardCount = 16

	c := &MarketCache{
		shards:       make([]*shard, shardCount),
		marketTTL:    marketTTL,
		indicatorTTL: indicatorTTL,
		tradeBuffer:  tradeBuffer,
		now:          time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			prices:     make(map[string]entry),
			candles:    make(map[string]entry),
			tickers:    make(map[string]entry),
			indicators: make(map[string]entry),
			trades:     make(map[string]*tradeRing),
		}
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// shardFor выбирает шард по FNV-хэшу символа
func (c *MarketCache) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// fresh проверяет что запись ещё жива
func (c *MarketCache) fresh(e entry, ttl time.Duration) bool {
	return c.now().Sub(e.storedAt) < ttl
}

// ============================================================
// Цены
// ============================================================

// SetPrice сохраняет последнюю цену символа
func (c *MarketCache) SetPrice(symbol string, price float64) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.prices[symbol] = entry{value: price, storedAt: c.now()}
	s.mu.Unlock()
}

// GetPrice возвращает последнюю цену символа
func (c *MarketCache) GetPrice(symbol string) (float64, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	e, ok := s.prices[symbol]
	s.mu.RUnlock()

	if !ok || !c.fresh(e, c.marketTTL) {
		return 0, false
	}
	return e.value.(float64), true
}

// ============================================================
// Свечи
// ============================================================

// SetCandle сохраняет последнюю закрытую свечу символа
func (c *MarketCache) SetCandle(symbol string, candle models.Candle) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.candles[symbol] = entry{value: candle, storedAt: c.now()}
	s.mu.Unlock()
}

// GetCandle возвращает последнюю закрытую свечу символа
func (c *MarketCache) GetCandle(symbol string) (models.Candle, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	e, ok := s.candles[symbol]
	s.mu.RUnlock()

	if !ok || !c.fresh(e, c.marketTTL) {
		return models.Candle{}, false
	}
	return e.value.(models.Candle), true
}

// ============================================================
// Тикеры
// ============================================================

// SetTicker сохраняет снимок 24h тикера
func (c *MarketCache) SetTicker(symbol string, ticker TickerSnapshot) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.tickers[symbol] = entry{value: ticker, storedAt: c.now()}
	s.mu.Unlock()
}

// GetTicker возвращает снимок 24h тикера
func (c *MarketCache) GetTicker(symbol string) (TickerSnapshot, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	e, ok := s.tickers[symbol]
	s.mu.RUnlock()

	if !ok || !c.fresh(e, c.marketTTL) {
		return TickerSnapshot{}, false
	}
	return e.value.(TickerSnapshot), true
}

// ============================================================
// Индикаторы
// ============================================================

// SetIndicators сохраняет рассчитанный снимок индикаторов
// TTL короче рыночного: устаревшие индикаторы опаснее устаревших цен
func (c *MarketCache) SetIndicators(symbol string, snap models.IndicatorSnapshot) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.indicators[symbol] = entry{value: snap, storedAt: c.now()}
	s.mu.Unlock()
}

// GetIndicators возвращает снимок индикаторов
func (c *MarketCache) GetIndicators(symbol string) (models.IndicatorSnapshot, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	e, ok := s.indicators[symbol]
	s.mu.RUnlock()

	if !ok || !c.fresh(e, c.indicatorTTL) {
		return models.IndicatorSnapshot{}, false
	}
	return e.value.(models.IndicatorSnapshot), true
}

// ============================================================
// Сделки
// ============================================================

// AddTrade добавляет сделку в кольцевой буфер символа
func (c *MarketCache) AddTrade(symbol string, tick TradeTick) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	ring, ok := s.trades[symbol]
	if !ok {
		ring = newTradeRing(c.tradeBuffer)
		s.trades[symbol] = ring
	}
	ring.push(tick)
	s.mu.Unlock()
}

// RecentTrades возвращает сделки буфера от старой к новой
func (c *MarketCache) RecentTrades(symbol string) []TradeTick {
	s := c.shardFor(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.trades[symbol]
	if !ok {
		return nil
	}
	return ring.snapshot()
}

// GetTradeStats агрегирует буфер сделок символа
//
// BuySellRatio = объём покупок / объём продаж;
// при нулевых продажах возвращается объём покупок (деление на 1).
func (c *MarketCache) GetTradeStats(symbol string) TradeStats {
	trades := c.RecentTrades(symbol)
	if len(trades) == 0 {
		return TradeStats{}
	}

	var stats TradeStats
	var sumPrice float64
	for _, t := range trades {
		sumPrice += t.Price
		stats.TotalVolume += t.Quantity
		// IsBuyerMaker=true: агрессор продавец
		if t.IsBuyerMaker {
			stats.SellVolume += t.Quantity
		} else {
			stats.BuyVolume += t.Quantity
		}
	}

	stats.Count = len(trades)
	stats.AvgPrice = sumPrice / float64(len(trades))

	if stats.SellVolume > 0 {
		stats.BuySellRatio = stats.BuyVolume / stats.SellVolume
	} else {
		stats.BuySellRatio = stats.BuyVolume
	}

	return stats
}

// ============================================================
// Обслуживание
// ============================================================

// PurgeExpired удаляет протухшие записи из всех шардов
// Вызывается периодической задачей движка
func (c *MarketCache) PurgeExpired() int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.prices {
			if !c.fresh(e, c.marketTTL) {
				delete(s.prices, k)
				removed++
			}
		}
		for k, e := range s.candles {
			if !c.fresh(e, c.marketTTL) {
				delete(s.candles, k)
				removed++
			}
		}
		for k, e := range s.tickers {
			if !c.fresh(e, c.marketTTL) {
				delete(s.tickers, k)
				removed++
			}
		}
		for k, e := range s.indicators {
			if !c.fresh(e, c.indicatorTTL) {
				delete(s.indicators, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
