package bot

import (
	"context"
	"testing"
	"time"

	"tradingbot/internal/cache"
	"tradingbot/internal/exchange"
	"tradingbot/internal/models"
	"tradingbot/pkg/utils"
)

// ============================================================
// StrategyEngine Tests
// ============================================================

type strategyHarness struct {
	engine    *StrategyEngine
	positions *mockPositionStore
	orders    *mockOrderStore
	client    *mockOrderClient
	market    *cache.MarketCache
	sentiment *mockSentiment
	snapshots *mockSnapshotStore
	syslog    *mockSyslogStore
}

func newStrategyHarness() *strategyHarness {
	log := utils.GetGlobalLogger()
	positions := newMockPositionStore()
	snapshots := &mockSnapshotStore{latest: &models.PortfolioSnapshot{TotalValueUSDT: 10000}}
	market := cache.NewMarketCache(5*time.Minute, time.Minute, 100)
	orders := &mockOrderStore{}
	client := &mockOrderClient{price: 100}
	sentiment := &mockSentiment{}
	syslogStore := &mockSyslogStore{}

	risk := NewRiskEngine(testRiskLimits(), positions, snapshots, market, log)
	engine := NewStrategyEngine(risk, positions, orders, client, market, sentiment,
		NewSystemLogger(syslogStore, log), log)

	return &strategyHarness{
		engine:    engine,
		positions: positions,
		orders:    orders,
		client:    client,
		market:    market,
		sentiment: sentiment,
		snapshots: snapshots,
		syslog:    syslogStore,
	}
}

func testStrategy() *models.TradingStrategy {
	return &models.TradingStrategy{
		ID:       1,
		Name:     "momentum",
		IsActive: true,
	}
}

// Пара с крупным лотом, чтобы округление размера было точным
func strategyTestPair() *models.TradingPair {
	pair := testPair()
	pair.MinQty = 0.5
	return pair
}

func TestEvaluateEntrySignal(t *testing.T) {
	bullish := models.Sentiment{Score: 0.4, Confidence: 0.6}
	bearish := models.Sentiment{Score: -0.4, Confidence: 0.6}
	neutral := models.Sentiment{}

	tests := []struct {
		name      string
		snap      models.IndicatorSnapshot
		price     float64
		sentiment models.Sentiment
		want      string
	}{
		{
			name:      "oversold RSI with bullish sentiment buys",
			snap:      models.IndicatorSnapshot{RSI: 25},
			price:     100,
			sentiment: bullish,
			want:      SignalBuy,
		},
		{
			name:      "overbought RSI with bearish sentiment sells",
			snap:      models.IndicatorSnapshot{RSI: 75},
			price:     100,
			sentiment: bearish,
			want:      SignalSell,
		},
		{
			name:      "oversold RSI without sentiment agreement is ignored",
			snap:      models.IndicatorSnapshot{RSI: 25},
			price:     100,
			sentiment: neutral,
			want:      "",
		},
		{
			name:      "oversold RSI against bearish sentiment is ignored",
			snap:      models.IndicatorSnapshot{RSI: 25},
			price:     100,
			sentiment: bearish,
			want:      "",
		},
		{
			name:      "bullish MACD crossover buys",
			snap:      models.IndicatorSnapshot{RSI: 50, MACDLine: 1, MACDSignal: 0.5, MACDHistogram: 0.5},
			price:     100,
			sentiment: bullish,
			want:      SignalBuy,
		},
		{
			name:      "lower band break buys",
			snap:      models.IndicatorSnapshot{RSI: 50, BBLower: 95, BBUpper: 110},
			price:     94,
			sentiment: bullish,
			want:      SignalBuy,
		},
		{
			name:      "upper band break sells",
			snap:      models.IndicatorSnapshot{RSI: 50, BBLower: 90, BBUpper: 105},
			price:     106,
			sentiment: bearish,
			want:      SignalSell,
		},
		{
			// RSI перекуплен (кандидат SELL подавлен бычьим настроением),
			// пробой нижней полосы срабатывает последним и выживает
			name:      "later rule overrides earlier candidates",
			snap:      models.IndicatorSnapshot{RSI: 75, BBLower: 95, BBUpper: 120},
			price:     94,
			sentiment: bullish,
			want:      SignalBuy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateEntrySignal(&tt.snap, tt.price, tt.sentiment)
			if got != tt.want {
				t.Errorf("signal = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdleTickOpensLongPosition(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	h.market.SetIndicators(pair.ExchangeSymbol(), models.IndicatorSnapshot{RSI: 25, ATR: 2})
	h.market.SetPrice(pair.ExchangeSymbol(), 100)
	h.sentiment.value = models.Sentiment{Score: 0.5, Confidence: 0.8}

	if err := h.engine.Evaluate(context.Background(), testStrategy(), pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.client.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(h.client.placed))
	}
	order := h.client.placed[0]
	if order.Side != exchange.SideBuy || order.Symbol != "BTCUSDT" {
		t.Errorf("order = %+v, want BUY BTCUSDT", order)
	}
	// risk 10000*2% = 200, дистанция до стопа 4: базовый размер 50,
	// зажат потолком max_position_size = 5
	if order.Qty != 5 {
		t.Errorf("qty = %v, want 5", order.Qty)
	}

	if len(h.positions.created) != 1 {
		t.Fatalf("created %d positions, want 1", len(h.positions.created))
	}
	pos := h.positions.created[0]
	if pos.Side != models.SideLong || pos.EntryPrice != 100 {
		t.Errorf("position = %+v, want LONG at 100", pos)
	}
	if pos.StopLoss != 96 || pos.TakeProfit != 108 || pos.TrailingStop != 96 {
		t.Errorf("stops = (%v, %v, %v), want (96, 108, 96)", pos.StopLoss, pos.TakeProfit, pos.TrailingStop)
	}
	if pos.StrategyName != "momentum" {
		t.Errorf("strategy name = %q", pos.StrategyName)
	}

	if len(h.orders.orders) != 1 {
		t.Errorf("recorded %d orders, want 1", len(h.orders.orders))
	}
}

func TestIdleTickSkipsInactiveStrategy(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	h.market.SetIndicators(pair.ExchangeSymbol(), models.IndicatorSnapshot{RSI: 25, ATR: 2})
	h.sentiment.value = models.Sentiment{Score: 0.5}

	strategy := testStrategy()
	strategy.IsActive = false

	if err := h.engine.Evaluate(context.Background(), strategy, pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.client.placed) != 0 {
		t.Errorf("inactive strategy placed %d orders", len(h.client.placed))
	}
}

func TestIdleTickRespectsTradingHours(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	h.market.SetIndicators(pair.ExchangeSymbol(), models.IndicatorSnapshot{RSI: 25, ATR: 2})
	h.sentiment.value = models.Sentiment{Score: 0.5}

	strategy := testStrategy()
	strategy.TradingHours = models.Schedule{
		"monday": {{Start: "09:00", End: "17:00"}},
	}
	// Суббота, вне расписания
	h.engine.now = func() time.Time {
		return time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)
	}

	if err := h.engine.Evaluate(context.Background(), strategy, pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.client.placed) != 0 {
		t.Errorf("out-of-hours strategy placed %d orders", len(h.client.placed))
	}
}

func TestIdleTickRespectsMaxPositions(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	h.market.SetIndicators(pair.ExchangeSymbol(), models.IndicatorSnapshot{RSI: 25, ATR: 2})
	h.sentiment.value = models.Sentiment{Score: 0.5}

	// Открытая позиция той же стратегии по другой паре
	h.positions.open = append(h.positions.open, &models.Position{
		ID: 99, TradingPairID: 2, StrategyName: "momentum",
		Side: models.SideLong, Status: models.PositionOpen,
		Quantity: 1, EntryPrice: 50,
	})

	strategy := testStrategy()
	strategy.MaxPositions = 1

	if err := h.engine.Evaluate(context.Background(), strategy, pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.client.placed) != 0 {
		t.Errorf("over-limit strategy placed %d orders", len(h.client.placed))
	}
}

func TestIdleTickRiskDenialIsNotError(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	h.market.SetIndicators(pair.ExchangeSymbol(), models.IndicatorSnapshot{RSI: 25, ATR: 2})
	h.sentiment.value = models.Sentiment{Score: 0.5}
	h.snapshots.latest.DailyDrawdown = -0.2

	if err := h.engine.Evaluate(context.Background(), testStrategy(), pair); err != nil {
		t.Fatalf("risk denial must not be an error, got: %v", err)
	}
	if len(h.client.placed) != 0 {
		t.Errorf("denied entry placed %d orders", len(h.client.placed))
	}
	if len(h.positions.created) != 0 {
		t.Errorf("denied entry created %d positions", len(h.positions.created))
	}
}

func TestOpenPositionCompensatesOnPersistFailure(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	h.market.SetIndicators(pair.ExchangeSymbol(), models.IndicatorSnapshot{RSI: 25, ATR: 2})
	h.market.SetPrice(pair.ExchangeSymbol(), 100)
	h.sentiment.value = models.Sentiment{Score: 0.5}
	h.positions.createErr = errStoreDown

	err := h.engine.Evaluate(context.Background(), testStrategy(), pair)
	if err == nil {
		t.Fatal("expected error when position persist fails")
	}

	// Входной ордер плюс компенсирующий противоположной стороны
	if len(h.client.placed) != 2 {
		t.Fatalf("placed %d orders, want entry + compensation", len(h.client.placed))
	}
	entry, comp := h.client.placed[0], h.client.placed[1]
	if entry.Side != exchange.SideBuy || comp.Side != exchange.SideSell {
		t.Errorf("sides = (%s, %s), want (BUY, SELL)", entry.Side, comp.Side)
	}
	if comp.Qty != entry.Qty {
		t.Errorf("compensation qty = %v, want %v", comp.Qty, entry.Qty)
	}

	found := false
	for _, entry := range h.syslog.entries {
		if entry.Event == "position_rolled_back" {
			found = true
		}
	}
	if !found {
		t.Error("rollback must be journaled")
	}
}

func TestManagingTickClosesOnStopLoss(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	pos := &models.Position{
		ID: 7, TradingPairID: pair.ID, StrategyName: "momentum",
		Side: models.SideLong, Status: models.PositionOpen,
		Quantity: 1, EntryPrice: 100, CurrentPrice: 100,
		StopLoss: 96, TrailingStop: 96, TakeProfit: 108,
	}
	h.positions.open = append(h.positions.open, pos)
	h.market.SetPrice(pair.ExchangeSymbol(), 95)
	h.client.execPrice = 95

	if err := h.engine.Evaluate(context.Background(), testStrategy(), pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.client.placed) != 1 || h.client.placed[0].Side != exchange.SideSell {
		t.Fatalf("placed = %+v, want one SELL", h.client.placed)
	}
	if len(h.positions.closed) != 1 || h.positions.closed[0] != 7 {
		t.Fatalf("closed = %v, want [7]", h.positions.closed)
	}
	// realized = (95 - 100) * 1
	if pos.RealizedPnl != -5 {
		t.Errorf("realized pnl = %v, want -5", pos.RealizedPnl)
	}
}

func TestManagingTickAdvancesTrailingStop(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	pos := &models.Position{
		ID: 7, TradingPairID: pair.ID, StrategyName: "momentum",
		Side: models.SideLong, Status: models.PositionOpen,
		Quantity: 1, EntryPrice: 100, CurrentPrice: 100,
		StopLoss: 90, TrailingStop: 95, TakeProfit: 130,
	}
	h.positions.open = append(h.positions.open, pos)
	h.market.SetPrice(pair.ExchangeSymbol(), 110)
	h.market.SetIndicators(pair.ExchangeSymbol(), models.IndicatorSnapshot{RSI: 50, ATR: 2})

	if err := h.engine.Evaluate(context.Background(), testStrategy(), pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Кандидат 110 - 2*2 = 106 > 95: стоп подтянут
	if got := h.positions.trailingSet[7]; got != 106 {
		t.Errorf("trailing stop = %v, want 106", got)
	}
	if len(h.positions.closed) != 0 {
		t.Errorf("position unexpectedly closed: %v", h.positions.closed)
	}
}

func TestManagingTickClosesOnSignalReversal(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	pos := &models.Position{
		ID: 7, TradingPairID: pair.ID, StrategyName: "momentum",
		Side: models.SideLong, Status: models.PositionOpen,
		Quantity: 1, EntryPrice: 100, CurrentPrice: 100,
		StopLoss: 90, TakeProfit: 130,
	}
	h.positions.open = append(h.positions.open, pos)
	h.market.SetPrice(pair.ExchangeSymbol(), 105)
	h.client.execPrice = 105

	// Стопы не задеты, но RSI перекуплен против лонга
	h.market.SetIndicators(pair.ExchangeSymbol(), models.IndicatorSnapshot{RSI: 75})

	if err := h.engine.Evaluate(context.Background(), testStrategy(), pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.positions.closed) != 1 {
		t.Fatalf("closed = %v, want [7]", h.positions.closed)
	}
	// realized = (105 - 100) * 1
	if pos.RealizedPnl != 5 {
		t.Errorf("realized pnl = %v, want 5", pos.RealizedPnl)
	}
}

func TestManagingTickSentimentReversalExit(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	pos := &models.Position{
		ID: 7, TradingPairID: pair.ID, StrategyName: "momentum",
		Side: models.SideLong, Status: models.PositionOpen,
		Quantity: 1, EntryPrice: 100, CurrentPrice: 100,
		StopLoss: 90, TakeProfit: 130,
	}
	h.positions.open = append(h.positions.open, pos)
	h.market.SetPrice(pair.ExchangeSymbol(), 105)
	h.market.SetIndicators(pair.ExchangeSymbol(), models.IndicatorSnapshot{RSI: 50})

	// Слабый разворот не закрывает
	h.sentiment.value = models.Sentiment{Score: -0.4, Confidence: 0.9}
	if err := h.engine.Evaluate(context.Background(), testStrategy(), pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.positions.closed) != 0 {
		t.Fatal("weak sentiment reversal must not close")
	}

	// Сильный уверенный разворот закрывает
	h.sentiment.value = models.Sentiment{Score: -0.8, Confidence: 0.9}
	if err := h.engine.Evaluate(context.Background(), testStrategy(), pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.positions.closed) != 1 {
		t.Error("strong sentiment reversal must close the position")
	}
}

func TestClosePositionOrderFailureKeepsPosition(t *testing.T) {
	h := newStrategyHarness()
	pair := strategyTestPair()

	pos := &models.Position{
		ID: 7, TradingPairID: pair.ID, StrategyName: "momentum",
		Side: models.SideLong, Status: models.PositionOpen,
		Quantity: 1, EntryPrice: 100, CurrentPrice: 100,
		StopLoss: 96, TakeProfit: 108,
	}
	h.positions.open = append(h.positions.open, pos)
	h.market.SetPrice(pair.ExchangeSymbol(), 95)
	h.client.orderErr = errStoreDown

	if err := h.engine.Evaluate(context.Background(), testStrategy(), pair); err == nil {
		t.Fatal("expected error when exit order fails")
	}
	if len(h.positions.closed) != 0 {
		t.Error("position must stay open when exit order fails")
	}
}
