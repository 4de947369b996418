package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradingbot/internal/cache"
	"tradingbot/internal/exchange"
	"tradingbot/internal/indicator"
	"tradingbot/internal/models"
	"tradingbot/internal/repository"
	"tradingbot/pkg/utils"
)

// strategy.go - движок исполнения стратегий
//
// Машина состояний на комбинацию (стратегия, пара):
// Idle (нет открытой позиции) ↔ Managing (позиция открыта).
// Переходы только через размещение ордеров.
//
// Вход оценивается тремя последовательными проверками
// (RSI → MACD → Боллинджер); каждая сработавшая проверка
// безусловно перезаписывает решение, выживает голос последнего
// совпавшего правила. Поведение перенесено из продакшена как есть.

// Направления торгового сигнала
const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
)

// Причина закрытия по сигналу разворота
const CloseSignalReversal = "signal_reversal"

// Пороги разворота настроения для выхода
const (
	reversalScoreThreshold      = 0.5
	reversalConfidenceThreshold = 0.7
)

// StrategyEngine исполняет стратегии по тикам управляющего цикла
type StrategyEngine struct {
	risk      *RiskEngine
	positions PositionStore
	orders    OrderStore
	client    OrderClient
	market    *cache.MarketCache
	sentiment SentimentProvider
	syslog    *SystemLogger
	log       *utils.Logger

	sentimentWindow time.Duration

	// Подменяется в тестах
	now func() time.Time
}

// NewStrategyEngine создает движок исполнения стратегий
func NewStrategyEngine(risk *RiskEngine, positions PositionStore, orders OrderStore, client OrderClient, market *cache.MarketCache, sentiment SentimentProvider, syslog *SystemLogger, log *utils.Logger) *StrategyEngine {
	return &StrategyEngine{
		risk:            risk,
		positions:       positions,
		orders:          orders,
		client:          client,
		market:          market,
		sentiment:       sentiment,
		syslog:          syslog,
		log:             log.WithComponent("strategy"),
		sentimentWindow: time.Hour,
		now:             time.Now,
	}
}

// Evaluate выполняет один тик для комбинации (стратегия, пара)
//
// Ошибки возвращаются вызывающему циклу, который их логирует и
// продолжает со следующей комбинацией.
func (s *StrategyEngine) Evaluate(ctx context.Context, strategy *models.TradingStrategy, pair *models.TradingPair) error {
	pos, err := s.positions.GetOpenByStrategy(pair.ID, strategy.Name)
	if err != nil {
		if !errors.Is(err, repository.ErrPositionNotFound) {
			return fmt.Errorf("load open position: %w", err)
		}
		return s.idleTick(ctx, strategy, pair)
	}

	return s.managingTick(ctx, strategy, pair, pos)
}

// ============================================================
// Idle: оценка входа
// ============================================================

func (s *StrategyEngine) idleTick(ctx context.Context, strategy *models.TradingStrategy, pair *models.TradingPair) error {
	if !strategy.IsActive || !strategy.IsWithinTradingHours(s.now()) {
		return nil
	}

	// Лимит одновременных позиций стратегии
	if strategy.MaxPositions > 0 {
		count, err := s.countStrategyPositions(strategy.Name)
		if err != nil {
			return err
		}
		if count >= strategy.MaxPositions {
			return nil
		}
	}

	symbol := pair.ExchangeSymbol()
	snap, ok := s.market.GetIndicators(symbol)
	if !ok {
		// Индикаторы ещё не рассчитаны или протухли
		return nil
	}

	price, err := s.currentPrice(ctx, symbol)
	if err != nil {
		return err
	}

	sentiment, err := s.sentiment.Aggregate(pair.ID, s.now().Add(-s.sentimentWindow))
	if err != nil {
		return fmt.Errorf("aggregate sentiment: %w", err)
	}

	signal := EvaluateEntrySignal(&snap, price, sentiment)
	if signal == "" {
		return nil
	}

	return s.openPosition(ctx, strategy, pair, snap, signal, price)
}

// EvaluateEntrySignal оценивает сигналы входа в фиксированном порядке
//
// Каждая проверка при совпадении перезаписывает решение: выживает
// последнее совпавшее правило (Боллинджер > MACD > RSI). Сигнал
// требует согласия настроения: score > 0 для покупки, < 0 для продажи.
func EvaluateEntrySignal(snap *models.IndicatorSnapshot, price float64, sentiment models.Sentiment) string {
	signal := ""

	if indicator.IsOversold(snap.RSI) && sentiment.Bullish() {
		signal = SignalBuy
	}
	if indicator.IsOverbought(snap.RSI) && sentiment.Bearish() {
		signal = SignalSell
	}

	if snap.HasBullishMACD() && sentiment.Bullish() {
		signal = SignalBuy
	}
	if snap.HasBearishMACD() && sentiment.Bearish() {
		signal = SignalSell
	}

	if indicator.BreaksLowerBand(price, snap.BBLower) && sentiment.Bullish() {
		signal = SignalBuy
	}
	if indicator.BreaksUpperBand(price, snap.BBUpper) && sentiment.Bearish() {
		signal = SignalSell
	}

	return signal
}

// openPosition открывает позицию: стоп → размер → риск-гейт → ордер → запись
//
// Всё-или-ничего: если запись позиции после исполненного ордера не
// удалась, отправляется компенсирующий ордер противоположной стороны.
func (s *StrategyEngine) openPosition(ctx context.Context, strategy *models.TradingStrategy, pair *models.TradingPair, snap models.IndicatorSnapshot, signal string, price float64) error {
	side := models.SideLong
	orderSide := exchange.SideBuy
	if signal == SignalSell {
		side = models.SideShort
		orderSide = exchange.SideSell
	}

	stopLoss := s.risk.CalculateStopLoss(price, side, snap.ATR)

	size, err := s.risk.CalculatePositionSize(pair, price, stopLoss)
	if err != nil {
		return fmt.Errorf("position size: %w", err)
	}
	if pair.MinQty > 0 {
		size = utils.RoundToLotSize(size, pair.MinQty)
	}
	if size <= 0 || size*price < pair.MinNotional {
		return nil
	}

	decision, err := s.risk.CanOpenPosition(pair, size, price)
	if err != nil {
		return fmt.Errorf("risk gate: %w", err)
	}
	if !decision.Allowed {
		// Отказ риск-гейта - ожидаемый исход, не ошибка
		s.log.Info("вход отклонён риск-движком",
			utils.Strategy(strategy.Name),
			utils.Symbol(pair.Symbol),
			utils.Reason(decision.Reason),
		)
		return nil
	}

	symbol := pair.ExchangeSymbol()
	order, err := s.client.PlaceMarketOrder(ctx, symbol, orderSide, size)
	if err != nil {
		OrdersTotal.WithLabelValues(symbol, orderSide, "failed").Inc()
		return fmt.Errorf("place entry order: %w", err)
	}
	OrdersTotal.WithLabelValues(symbol, orderSide, "success").Inc()

	entryPrice := order.ExecutedPrice
	if entryPrice <= 0 {
		entryPrice = price
	}

	pos := &models.Position{
		TradingPairID: pair.ID,
		Side:          side,
		Quantity:      order.ExecutedQty,
		EntryPrice:    entryPrice,
		CurrentPrice:  entryPrice,
		StopLoss:      stopLoss,
		TakeProfit:    s.risk.CalculateTakeProfit(entryPrice, stopLoss),
		TrailingStop:  stopLoss,
		StrategyName:  strategy.Name,
		OpenedAt:      s.now(),
	}
	if pos.Quantity <= 0 {
		pos.Quantity = size
	}

	if err := s.positions.Create(pos); err != nil {
		// Ордер исполнен, позицию записать не удалось: выравниваем
		s.compensate(ctx, symbol, orderSide, pos.Quantity, err)
		return fmt.Errorf("persist position: %w", err)
	}

	s.recordOrder(pair.ID, pos.ID, order)

	s.syslog.Info("strategy", "position_opened", "позиция открыта",
		map[string]interface{}{
			"strategy":    strategy.Name,
			"symbol":      pair.Symbol,
			"side":        side,
			"quantity":    pos.Quantity,
			"entry_price": pos.EntryPrice,
			"stop_loss":   pos.StopLoss,
			"take_profit": pos.TakeProfit,
		})

	return nil
}

// compensate отправляет ордер противоположной стороны для выравнивания
func (s *StrategyEngine) compensate(ctx context.Context, symbol, entrySide string, qty float64, cause error) {
	flattenSide := exchange.SideSell
	if entrySide == exchange.SideSell {
		flattenSide = exchange.SideBuy
	}

	_, err := s.client.PlaceMarketOrder(ctx, symbol, flattenSide, qty)
	if err != nil {
		// Исполненный ордер без записи позиции и без компенсации -
		// требуется ручное вмешательство
		s.syslog.Critical("strategy", "compensation_failed",
			"компенсирующий ордер не исполнен, возможна непокрытая экспозиция",
			map[string]interface{}{
				"symbol":   symbol,
				"side":     flattenSide,
				"quantity": qty,
				"cause":    cause.Error(),
				"error":    err.Error(),
			})
		return
	}

	OrdersTotal.WithLabelValues(symbol, flattenSide, "compensation").Inc()
	s.syslog.Error("strategy", "position_rolled_back",
		"запись позиции не удалась, экспозиция выровнена компенсирующим ордером",
		map[string]interface{}{
			"symbol": symbol,
			"cause":  cause.Error(),
		})
}

// ============================================================
// Managing: сопровождение открытой позиции
// ============================================================

func (s *StrategyEngine) managingTick(ctx context.Context, strategy *models.TradingStrategy, pair *models.TradingPair, pos *models.Position) error {
	symbol := pair.ExchangeSymbol()

	price, err := s.currentPrice(ctx, symbol)
	if err != nil {
		return err
	}

	unrealized := pos.UnrealizedPnLAt(price)
	if err := s.positions.UpdateMarks(pos.ID, price, unrealized); err != nil {
		return fmt.Errorf("update marks: %w", err)
	}
	pos.CurrentPrice = price
	pos.UnrealizedPnl = unrealized

	// Trailing stop двигается до проверки условий закрытия
	atr := s.currentATR(symbol)
	if newStop, moved := s.risk.UpdateTrailingStop(pos, price, atr); moved {
		if err := s.positions.UpdateTrailingStop(pos.ID, newStop); err != nil {
			return fmt.Errorf("update trailing stop: %w", err)
		}
		pos.TrailingStop = newStop
	}

	shouldClose, reason := s.risk.ShouldClosePosition(pos, price)
	if !shouldClose {
		if s.exitSignalFired(pair, pos, price) {
			shouldClose = true
			reason = CloseSignalReversal
		}
	}
	if !shouldClose {
		return nil
	}

	return s.closePosition(ctx, strategy, pair, pos, reason)
}

// exitSignalFired проверяет сигналы выхода, симметричные входу
//
// Разворот индикаторов против позиции или сильный разворот
// настроения (|score| > 0.5 при уверенности > 0.7).
func (s *StrategyEngine) exitSignalFired(pair *models.TradingPair, pos *models.Position, price float64) bool {
	symbol := pair.ExchangeSymbol()

	if snap, ok := s.market.GetIndicators(symbol); ok {
		if pos.IsLong() && (indicator.IsOverbought(snap.RSI) || snap.HasBearishMACD()) {
			return true
		}
		if !pos.IsLong() && (indicator.IsOversold(snap.RSI) || snap.HasBullishMACD()) {
			return true
		}
	}

	sentiment, err := s.sentiment.Aggregate(pair.ID, s.now().Add(-s.sentimentWindow))
	if err != nil {
		s.log.Warn("настроение недоступно при оценке выхода",
			utils.Symbol(pair.Symbol),
			utils.Err(err),
		)
		return false
	}

	if utils.Abs(sentiment.Score) > reversalScoreThreshold && sentiment.Confidence > reversalConfidenceThreshold {
		if pos.IsLong() && sentiment.Bearish() {
			return true
		}
		if !pos.IsLong() && sentiment.Bullish() {
			return true
		}
	}

	return false
}

// closePosition закрывает позицию встречным рыночным ордером
func (s *StrategyEngine) closePosition(ctx context.Context, strategy *models.TradingStrategy, pair *models.TradingPair, pos *models.Position, reason string) error {
	symbol := pair.ExchangeSymbol()

	orderSide := exchange.SideSell
	if !pos.IsLong() {
		orderSide = exchange.SideBuy
	}

	order, err := s.client.PlaceMarketOrder(ctx, symbol, orderSide, pos.Quantity)
	if err != nil {
		OrdersTotal.WithLabelValues(symbol, orderSide, "failed").Inc()
		return fmt.Errorf("place exit order: %w", err)
	}
	OrdersTotal.WithLabelValues(symbol, orderSide, "success").Inc()

	exitPrice := order.ExecutedPrice
	if exitPrice <= 0 {
		exitPrice = pos.CurrentPrice
	}

	realized := utils.CalculatePNL(strings.ToLower(pos.Side), pos.EntryPrice, exitPrice, pos.Quantity)

	if err := s.positions.Close(pos.ID, exitPrice, realized, s.now()); err != nil {
		return fmt.Errorf("close position: %w", err)
	}

	s.recordOrder(pair.ID, pos.ID, order)
	if realized > 0 {
		RealizedPnl.Add(realized)
	}

	s.syslog.Info("strategy", "position_closed", "позиция закрыта",
		map[string]interface{}{
			"strategy":     strategy.Name,
			"symbol":       pair.Symbol,
			"reason":       reason,
			"exit_price":   exitPrice,
			"realized_pnl": realized,
		})

	return nil
}

// ============================================================
// Вспомогательные
// ============================================================

// currentPrice берёт цену из кэша, при промахе - REST запросом
func (s *StrategyEngine) currentPrice(ctx context.Context, symbol string) (float64, error) {
	if price, ok := s.market.GetPrice(symbol); ok {
		return price, nil
	}

	price, err := s.client.GetPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("current price for %s: %w", symbol, err)
	}
	s.market.SetPrice(symbol, price)
	return price, nil
}

// currentATR возвращает ATR из кэша индикаторов, 0 при промахе
func (s *StrategyEngine) currentATR(symbol string) float64 {
	if snap, ok := s.market.GetIndicators(symbol); ok {
		return snap.ATR
	}
	return 0
}

// countStrategyPositions считает открытые позиции стратегии
func (s *StrategyEngine) countStrategyPositions(strategyName string) (int, error) {
	open, err := s.positions.GetOpen()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, pos := range open {
		if pos.StrategyName == strategyName {
			count++
		}
	}
	return count, nil
}

// recordOrder сохраняет исполненный ордер в историю
//
// Сбой записи не откатывает сделку: ордер уже исполнен на бирже,
// потеря записи - только предупреждение.
func (s *StrategyEngine) recordOrder(pairID int, positionID int64, order *exchange.OrderResult) {
	rec := &models.Order{
		TradingPairID:   pairID,
		PositionID:      positionID,
		ExchangeOrderID: order.OrderID,
		Side:            order.Side,
		Type:            order.Type,
		Status:          order.Status,
		Quantity:        order.Quantity,
		Price:           order.Price,
		ExecutedQty:     order.ExecutedQty,
		ExecutedPrice:   order.ExecutedPrice,
		CommissionPaid:  order.Commission,
	}

	if err := s.orders.Create(rec); err != nil {
		s.log.Warn("не удалось сохранить ордер",
			utils.Int64("exchange_order_id", order.OrderID),
			utils.Err(err))
	}
}
