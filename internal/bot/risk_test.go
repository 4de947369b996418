package bot

import (
	"testing"
	"time"

	"tradingbot/internal/cache"
	"tradingbot/internal/config"
	"tradingbot/internal/models"
	"tradingbot/pkg/utils"
)

// ============================================================
// RiskEngine Tests
// ============================================================

func testRiskLimits() config.RiskConfig {
	return config.RiskConfig{
		MaxPortfolioRisk:      0.05,
		MaxPositionRisk:       0.02,
		MaxPairExposure:       0.20,
		MaxDrawdown:           0.15,
		VolatilityCap:         0.5,
		ATRStopMultiplier:     2,
		DefaultStopPct:        0.05,
		RiskRewardRatio:       2,
		TrailingATRMultiplier: 2,
		PositionDrawdownLimit: 0.15,
	}
}

func newTestRiskEngine(positions *mockPositionStore, snapshots *mockSnapshotStore, market *cache.MarketCache) *RiskEngine {
	if market == nil {
		market = cache.NewMarketCache(5*time.Minute, time.Minute, 100)
	}
	return NewRiskEngine(testRiskLimits(), positions, snapshots, market, utils.GetGlobalLogger())
}

func testPair() *models.TradingPair {
	return &models.TradingPair{
		ID:              1,
		Symbol:          "BTC/USDT",
		BaseAsset:       "BTC",
		QuoteAsset:      "USDT",
		MinQty:          0.001,
		MaxQty:          10,
		MinNotional:     10,
		MaxPositionSize: 5,
		IsActive:        true,
	}
}

func TestCalculateStopLossFromATR(t *testing.T) {
	r := newTestRiskEngine(newMockPositionStore(), &mockSnapshotStore{}, nil)

	// LONG, entry=100, ATR=2: стоп 100 - 2*2 = 96
	if got := r.CalculateStopLoss(100, models.SideLong, 2); got != 96 {
		t.Errorf("long stop = %v, want 96", got)
	}
	if got := r.CalculateStopLoss(100, models.SideShort, 2); got != 104 {
		t.Errorf("short stop = %v, want 104", got)
	}
}

func TestCalculateStopLossFallback(t *testing.T) {
	r := newTestRiskEngine(newMockPositionStore(), &mockSnapshotStore{}, nil)

	// ATR недоступен: процентный фолбэк 5%
	if got := r.CalculateStopLoss(100, models.SideLong, 0); got != 95 {
		t.Errorf("long fallback = %v, want 95", got)
	}
	if got := r.CalculateStopLoss(100, models.SideShort, 0); got != 105 {
		t.Errorf("short fallback = %v, want 105", got)
	}
}

func TestCalculateTakeProfit(t *testing.T) {
	r := newTestRiskEngine(newMockPositionStore(), &mockSnapshotStore{}, nil)

	// entry=100, stop=96, RR=2: цель 100 + 4*2 = 108
	if got := r.CalculateTakeProfit(100, 96); got != 108 {
		t.Errorf("long take profit = %v, want 108", got)
	}
	// short: entry=100, stop=104: цель 100 - 8 = 92
	if got := r.CalculateTakeProfit(100, 104); got != 92 {
		t.Errorf("short take profit = %v, want 92", got)
	}
}

func TestUpdateTrailingStopLong(t *testing.T) {
	r := newTestRiskEngine(newMockPositionStore(), &mockSnapshotStore{}, nil)

	pos := &models.Position{Side: models.SideLong, TrailingStop: 95}

	// Цена 100, ATR=2: кандидат 96 > 95, стоп двигается
	stop, moved := r.UpdateTrailingStop(pos, 100, 2)
	if !moved || stop != 96 {
		t.Errorf("stop = %v moved = %v, want 96 true", stop, moved)
	}
	pos.TrailingStop = stop

	// Цена падает до 97: кандидат 93 < 96, стоп не откатывается
	stop, moved = r.UpdateTrailingStop(pos, 97, 2)
	if moved || stop != 96 {
		t.Errorf("stop = %v moved = %v, want 96 false", stop, moved)
	}
}

func TestUpdateTrailingStopShort(t *testing.T) {
	r := newTestRiskEngine(newMockPositionStore(), &mockSnapshotStore{}, nil)

	pos := &models.Position{Side: models.SideShort, TrailingStop: 106}

	// Цена 100, ATR=2: кандидат 104 < 106, двигается вниз
	stop, moved := r.UpdateTrailingStop(pos, 100, 2)
	if !moved || stop != 104 {
		t.Errorf("stop = %v moved = %v, want 104 true", stop, moved)
	}
	pos.TrailingStop = stop

	// Цена растёт до 103: кандидат 105 > 104, не ослабляется
	stop, moved = r.UpdateTrailingStop(pos, 103, 2)
	if moved || stop != 104 {
		t.Errorf("stop = %v moved = %v, want 104 false", stop, moved)
	}
}

func TestUpdateTrailingStopNoATR(t *testing.T) {
	r := newTestRiskEngine(newMockPositionStore(), &mockSnapshotStore{}, nil)

	pos := &models.Position{Side: models.SideLong, TrailingStop: 95}
	if _, moved := r.UpdateTrailingStop(pos, 200, 0); moved {
		t.Error("stop must not move without ATR")
	}
}

func TestShouldClosePositionPriority(t *testing.T) {
	r := newTestRiskEngine(newMockPositionStore(), &mockSnapshotStore{}, nil)

	tests := []struct {
		name       string
		pos        *models.Position
		price      float64
		wantClose  bool
		wantReason string
	}{
		{
			name: "stop loss wins over everything",
			pos: &models.Position{
				Side: models.SideLong, Quantity: 1, EntryPrice: 100,
				StopLoss: 96, TrailingStop: 98, TakeProfit: 108,
			},
			price:      95,
			wantClose:  true,
			wantReason: CloseStopLoss,
		},
		{
			name: "trailing stop before take profit",
			pos: &models.Position{
				Side: models.SideLong, Quantity: 1, EntryPrice: 100,
				StopLoss: 90, TrailingStop: 97, TakeProfit: 108,
			},
			price:      96,
			wantClose:  true,
			wantReason: CloseTrailingStop,
		},
		{
			name: "take profit",
			pos: &models.Position{
				Side: models.SideLong, Quantity: 1, EntryPrice: 100,
				StopLoss: 90, TrailingStop: 92, TakeProfit: 108,
			},
			price:      109,
			wantClose:  true,
			wantReason: CloseTakeProfit,
		},
		{
			name: "position drawdown without stops",
			pos: &models.Position{
				Side: models.SideLong, Quantity: 1, EntryPrice: 100,
			},
			price:      80,
			wantClose:  true,
			wantReason: CloseMaxDrawdown,
		},
		{
			name: "no close",
			pos: &models.Position{
				Side: models.SideLong, Quantity: 1, EntryPrice: 100,
				StopLoss: 90, TrailingStop: 92, TakeProfit: 120,
			},
			price:     105,
			wantClose: false,
		},
		{
			name: "short stop loss on rise",
			pos: &models.Position{
				Side: models.SideShort, Quantity: 1, EntryPrice: 100,
				StopLoss: 104, TrailingStop: 103, TakeProfit: 92,
			},
			price:      105,
			wantClose:  true,
			wantReason: CloseStopLoss,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotClose, gotReason := r.ShouldClosePosition(tt.pos, tt.price)
			if gotClose != tt.wantClose || gotReason != tt.wantReason {
				t.Errorf("(%v, %q), want (%v, %q)", gotClose, gotReason, tt.wantClose, tt.wantReason)
			}

			// Детерминизм: повторный вызов даёт тот же результат
			again, reasonAgain := r.ShouldClosePosition(tt.pos, tt.price)
			if again != gotClose || reasonAgain != gotReason {
				t.Error("ShouldClosePosition is not deterministic")
			}
		})
	}
}

func TestCalculatePositionSizeClamped(t *testing.T) {
	snapshots := &mockSnapshotStore{latest: &models.PortfolioSnapshot{TotalValueUSDT: 10000}}
	r := newTestRiskEngine(newMockPositionStore(), snapshots, nil)
	pair := testPair()

	// riskAmount = 10000*0.02 = 200; дистанция 4: базовый размер 50,
	// но max_position_size = 5
	size, err := r.CalculatePositionSize(pair, 100, 96)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != pair.MaxPositionSize {
		t.Errorf("size = %v, want clamp to %v", size, pair.MaxPositionSize)
	}

	// Карликовый портфель: размер ниже min_qty, зажимается снизу
	snapshots.latest.TotalValueUSDT = 1
	size, err = r.CalculatePositionSize(pair, 100, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != pair.MinQty {
		t.Errorf("size = %v, want clamp to min_qty %v", size, pair.MinQty)
	}
}

func TestCalculatePositionSizeVolatilityScaling(t *testing.T) {
	market := cache.NewMarketCache(5*time.Minute, time.Minute, 100)
	snapshots := &mockSnapshotStore{latest: &models.PortfolioSnapshot{TotalValueUSDT: 10000}}
	r := newTestRiskEngine(newMockPositionStore(), snapshots, market)
	pair := testPair()

	market.SetIndicators(pair.ExchangeSymbol(), models.IndicatorSnapshot{Volatility: 0.2})

	// Базовый размер 200/100 = 2, масштаб (1-0.2) = 0.8: итог 1.6
	size, err := r.CalculatePositionSize(pair, 200, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if utils.Abs(size-1.6) > 1e-9 {
		t.Errorf("size = %v, want 1.6", size)
	}
}

func TestCanOpenPositionOrderedChecks(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(positions *mockPositionStore, snapshots *mockSnapshotStore, market *cache.MarketCache)
		wantAllow  bool
		wantReason string
	}{
		{
			name: "allowed",
			setup: func(p *mockPositionStore, s *mockSnapshotStore, m *cache.MarketCache) {
				s.latest = &models.PortfolioSnapshot{TotalValueUSDT: 100000}
			},
			wantAllow: true,
		},
		{
			name: "portfolio risk first",
			setup: func(p *mockPositionStore, s *mockSnapshotStore, m *cache.MarketCache) {
				s.latest = &models.PortfolioSnapshot{TotalValueUSDT: 100000, DailyDrawdown: -0.99}
				p.openRisk = 6000 // 6% > 5%, просадка не проверяется
			},
			wantAllow:  false,
			wantReason: ReasonPortfolioRisk,
		},
		{
			name: "pair exposure second",
			setup: func(p *mockPositionStore, s *mockSnapshotStore, m *cache.MarketCache) {
				s.latest = &models.PortfolioSnapshot{TotalValueUSDT: 100000}
				p.open = append(p.open, &models.Position{
					TradingPairID: 1, Side: models.SideLong, Status: models.PositionOpen,
					Quantity: 0.5, EntryPrice: 40000, CurrentPrice: 40000,
				})
			},
			wantAllow:  false,
			wantReason: ReasonPairExposure,
		},
		{
			name: "daily drawdown third",
			setup: func(p *mockPositionStore, s *mockSnapshotStore, m *cache.MarketCache) {
				s.latest = &models.PortfolioSnapshot{TotalValueUSDT: 100000, DailyDrawdown: -0.2}
			},
			wantAllow:  false,
			wantReason: ReasonDailyDrawdown,
		},
		{
			name: "volatility cap last",
			setup: func(p *mockPositionStore, s *mockSnapshotStore, m *cache.MarketCache) {
				s.latest = &models.PortfolioSnapshot{TotalValueUSDT: 100000}
				m.SetIndicators("BTCUSDT", models.IndicatorSnapshot{Volatility: 0.6})
			},
			wantAllow:  false,
			wantReason: ReasonVolatility,
		},
		{
			name: "no portfolio snapshot",
			setup: func(p *mockPositionStore, s *mockSnapshotStore, m *cache.MarketCache) {
				s.latest = &models.PortfolioSnapshot{TotalValueUSDT: 0}
			},
			wantAllow:  false,
			wantReason: ReasonNoPortfolio,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			positions := newMockPositionStore()
			snapshots := &mockSnapshotStore{}
			market := cache.NewMarketCache(5*time.Minute, time.Minute, 100)
			tt.setup(positions, snapshots, market)

			r := newTestRiskEngine(positions, snapshots, market)

			// size 0.1 по 50000 = 5000 notional, 5% портфеля
			decision, err := r.CanOpenPosition(testPair(), 0.1, 50000)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if decision.Allowed != tt.wantAllow || decision.Reason != tt.wantReason {
				t.Errorf("decision = %+v, want allow=%v reason=%q", decision, tt.wantAllow, tt.wantReason)
			}
		})
	}
}
