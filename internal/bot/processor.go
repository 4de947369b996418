package bot

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"tradingbot/internal/cache"
	"tradingbot/internal/exchange"
	"tradingbot/internal/indicator"
	"tradingbot/internal/models"
	"tradingbot/pkg/retry"
	"tradingbot/pkg/utils"
)

// processor.go - конвейер обработки потоковых событий
//
// Назначение:
// - превращает сырые события шлюза в канонические записи и кэш
// - kline → свеча в БД + кэш + пересчёт индикаторов
// - trade → кольцевой буфер сделок + лог значимых сделок
// - ticker → только кэш
//
// Архитектура: worker pool с шардированием по символу. События одного
// символа попадают в один шард и обрабатываются последовательно,
// разные символы - параллельно. Транзиентные ошибки записи ретраятся
// в бюджете ~30с, затем событие отбрасывается с ERROR и полным
// payload (at-most-once).

// Окно свечей для пересчёта индикаторов
const indicatorWindow = 50

// Processor - обработчик событий рыночных данных
type Processor struct {
	market     *cache.MarketCache
	candles    CandleStore
	indicators IndicatorStore

	// Индекс пар по биржевому символу (BTCUSDT), только чтение после старта
	pairs map[string]*models.TradingPair

	significantTradeValue float64

	shards  []chan exchange.StreamEvent
	workers int

	persistCfg retry.Config

	syslog *SystemLogger
	log    *utils.Logger

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// ProcessorConfig - параметры конвейера
type ProcessorConfig struct {
	Workers               int
	QueueSize             int
	SignificantTradeValue float64
}

// NewProcessor создает конвейер обработки событий
func NewProcessor(cfg ProcessorConfig, market *cache.MarketCache, candles CandleStore, indicators IndicatorStore, pairs []*models.TradingPair, syslog *SystemLogger, log *utils.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}

	index := make(map[string]*models.TradingPair, len(pairs))
	for _, pair := range pairs {
		index[pair.ExchangeSymbol()] = pair
	}

	shards := make([]chan exchange.StreamEvent, cfg.Workers)
	for i := range shards {
		shards[i] = make(chan exchange.StreamEvent, cfg.QueueSize)
	}

	persistCfg := retry.PersistenceConfig()
	persistCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		PersistRetries.Inc()
	}

	return &Processor{
		market:                market,
		candles:               candles,
		indicators:            indicators,
		pairs:                 index,
		significantTradeValue: cfg.SignificantTradeValue,
		shards:                shards,
		workers:               cfg.Workers,
		persistCfg:            persistCfg,
		syslog:                syslog,
		log:                   log.WithComponent("processor"),
	}
}

// Start запускает воркеры шардов
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i, shard := range p.shards {
		p.wg.Add(1)
		go p.worker(ctx, i, shard)
	}

	p.log.Info("конвейер запущен", utils.Int("workers", p.workers))
}

// Submit ставит событие в очередь своего шарда
//
// Неблокирующая постановка: при переполненной очереди событие
// отбрасывается с предупреждением (лучше потерять тик, чем
// заблокировать шлюз).
func (p *Processor) Submit(event exchange.StreamEvent) {
	shard := p.shardFor(event.Symbol())

	select {
	case p.shards[shard] <- event:
		QueueDepth.WithLabelValues(strconv.Itoa(shard)).Set(float64(len(p.shards[shard])))
	default:
		EventsDropped.WithLabelValues(event.Type()).Inc()
		p.log.Warn("очередь шарда переполнена, событие отброшено",
			utils.Symbol(event.Symbol()),
			utils.String("type", event.Type()),
			utils.Int("shard", shard),
		)
	}
}

// Wait блокируется до завершения всех воркеров
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) shardFor(symbol string) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(len(p.shards)))
}

// worker последовательно обрабатывает события своего шарда
func (p *Processor) worker(ctx context.Context, id int, events <-chan exchange.StreamEvent) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			p.dispatch(ctx, event)
		}
	}
}

// dispatch направляет событие в обработчик своего типа
func (p *Processor) dispatch(ctx context.Context, event exchange.StreamEvent) {
	EventsProcessed.WithLabelValues(event.Type()).Inc()

	switch e := event.(type) {
	case *exchange.KlineEvent:
		p.handleKline(ctx, e)
	case *exchange.TradeEvent:
		p.handleTrade(e)
	case *exchange.TickerEvent:
		p.handleTicker(e)
	default:
		p.log.Warn("событие неизвестного типа", utils.String("type", event.Type()))
	}
}

// ============================================================
// Kline
// ============================================================

// handleKline строит свечу из закрытого kline и пересчитывает индикаторы
func (p *Processor) handleKline(ctx context.Context, event *exchange.KlineEvent) {
	// Промежуточные обновления интервала идут только в кэш цены
	p.market.SetPrice(event.EventSymbol, event.Close)
	if !event.Closed {
		return
	}

	pair, ok := p.pairs[event.EventSymbol]
	if !ok {
		return
	}

	candle := buildCandle(pair.ID, event)

	err := retry.Do(ctx, func(ctx context.Context) error {
		_, err := p.candles.Insert(&candle)
		return err
	}, p.persistCfg)

	if err != nil {
		EventsDropped.WithLabelValues(exchange.EventTypeKline).Inc()
		p.syslog.Error("processor", "candle_persist_failed",
			"свеча отброшена после исчерпания повторов",
			map[string]interface{}{
				"symbol":    event.EventSymbol,
				"timestamp": candle.Timestamp,
				"payload":   fmt.Sprintf("%+v", candle),
				"error":     err.Error(),
			})
		return
	}

	p.market.SetCandle(event.EventSymbol, candle)
	p.recomputeIndicators(ctx, pair, candle)
}

// buildCandle превращает kline в каноническую свечу с производными метриками
func buildCandle(pairID int, event *exchange.KlineEvent) models.Candle {
	candle := models.Candle{
		TradingPairID:       pairID,
		Timestamp:           event.OpenTime,
		Open:                event.Open,
		High:                event.High,
		Low:                 event.Low,
		Close:               event.Close,
		Volume:              event.Volume,
		QuoteVolume:         event.QuoteVolume,
		NumberOfTrades:      event.Trades,
		TakerBuyVolume:      event.TakerBuyVolume,
		TakerBuyQuoteVolume: event.TakerBuyQuoteVolume,
	}

	if candle.Open > 0 {
		candle.Volatility = (candle.High - candle.Low) / candle.Open * 100
	}
	if sell := candle.SellVolume(); sell > 0 {
		candle.BuySellRatio = candle.BuyVolume() / sell
	}

	return candle
}

// recomputeIndicators пересчитывает снимок по окну последних свечей
func (p *Processor) recomputeIndicators(ctx context.Context, pair *models.TradingPair, latest models.Candle) {
	recent, err := p.candles.GetRecent(pair.ID, indicatorWindow)
	if err != nil {
		p.log.Error("не удалось прочитать окно свечей",
			utils.Symbol(pair.Symbol),
			utils.Err(err),
		)
		return
	}

	window := make([]models.Candle, len(recent))
	for i, c := range recent {
		window[i] = *c
	}

	snap := indicator.Compute(window)
	snap.TradingPairID = pair.ID
	snap.Timestamp = latest.Timestamp

	err = retry.Do(ctx, func(ctx context.Context) error {
		return p.indicators.Insert(&snap)
	}, p.persistCfg)
	if err != nil {
		p.log.Error("не удалось записать снимок индикаторов",
			utils.Symbol(pair.Symbol),
			utils.Err(err),
		)
		// Кэш всё равно обновляем: стратегии работают по кэшу
	}

	p.market.SetIndicators(pair.ExchangeSymbol(), snap)
}

// ============================================================
// Trade
// ============================================================

// handleTrade пополняет кольцевой буфер и логирует значимые сделки
func (p *Processor) handleTrade(event *exchange.TradeEvent) {
	tick := cache.TradeTick{
		Price:        event.Price,
		Quantity:     event.Quantity,
		QuoteValue:   event.QuoteValue(),
		IsBuyerMaker: event.IsBuyerMaker,
		TradeTime:    event.TradeTime,
	}
	p.market.AddTrade(event.EventSymbol, tick)
	p.market.SetPrice(event.EventSymbol, event.Price)

	// Порог значимости ограничивает объём логов
	if tick.QuoteValue >= p.significantTradeValue {
		SignificantTrades.WithLabelValues(event.EventSymbol).Inc()
		side := "BUY"
		if event.IsBuyerMaker {
			side = "SELL"
		}
		p.log.Info("значимая сделка",
			utils.Symbol(event.EventSymbol),
			utils.Side(side),
			utils.Price(event.Price),
			utils.Quantity(event.Quantity),
			utils.Notional(tick.QuoteValue),
		)
	}
}

// ============================================================
// Ticker
// ============================================================

// handleTicker обновляет 24-часовую статистику в кэше
func (p *Processor) handleTicker(event *exchange.TickerEvent) {
	p.market.SetTicker(event.EventSymbol, cache.TickerSnapshot{
		Symbol:             event.EventSymbol,
		LastPrice:          event.LastPrice,
		PriceChangePercent: event.PriceChangePercent,
		HighPrice:          event.HighPrice,
		LowPrice:           event.LowPrice,
		Volume:             event.Volume,
		QuoteVolume:        event.QuoteVolume,
		UpdatedAt:          event.EventTime,
	})
	p.market.SetPrice(event.EventSymbol, event.LastPrice)
}
