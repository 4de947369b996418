package bot

import (
	"fmt"
	"time"

	"tradingbot/internal/cache"
	"tradingbot/internal/config"
	"tradingbot/internal/models"
	"tradingbot/pkg/utils"
)

// risk.go - риск-движок
//
// Назначение:
// - гейт перед открытием каждой позиции (CanOpenPosition)
// - расчёт размера позиции, стопов и целей
// - непрерывный контроль открытых позиций (ShouldClosePosition)
//
// Лимиты загружаются при старте и не меняются в рантайме. Отказы
// риск-гейта - не ошибки, а ожидаемый отрицательный результат,
// возвращаемый структурой RiskDecision.

// Причины отказов и закрытий
const (
	ReasonPortfolioRisk = "portfolio_risk_exceeded"
	ReasonPairExposure  = "pair_exposure_exceeded"
	ReasonDailyDrawdown = "daily_drawdown_exceeded"
	ReasonVolatility    = "volatility_too_high"
	ReasonNoPortfolio   = "portfolio_value_unavailable"

	CloseStopLoss     = "stop_loss"
	CloseTrailingStop = "trailing_stop"
	CloseTakeProfit   = "take_profit"
	CloseMaxDrawdown  = "position_drawdown"
)

// RiskDecision - структурированный результат риск-гейта
type RiskDecision struct {
	Allowed bool
	Reason  string
}

// allow - положительное решение
func allow() RiskDecision {
	return RiskDecision{Allowed: true}
}

// deny - отказ с причиной
func deny(reason string) RiskDecision {
	return RiskDecision{Allowed: false, Reason: reason}
}

// RiskEngine применяет портфельные лимиты к торговым решениям
type RiskEngine struct {
	limits    config.RiskConfig
	positions PositionStore
	snapshots SnapshotStore
	market    *cache.MarketCache
	log       *utils.Logger
}

// NewRiskEngine создает риск-движок с лимитами из конфига
func NewRiskEngine(limits config.RiskConfig, positions PositionStore, snapshots SnapshotStore, market *cache.MarketCache, log *utils.Logger) *RiskEngine {
	return &RiskEngine{
		limits:    limits,
		positions: positions,
		snapshots: snapshots,
		market:    market,
		log:       log.WithComponent("risk"),
	}
}

// PortfolioValue возвращает стоимость портфеля из последнего снимка
func (r *RiskEngine) PortfolioValue() (float64, error) {
	snap, err := r.snapshots.GetLatest()
	if err != nil {
		return 0, err
	}
	return snap.TotalValueUSDT, nil
}

// CanOpenPosition - риск-гейт перед открытием позиции
//
// Проверки выполняются строго по порядку, первая нарушенная
// определяет причину отказа:
// 1. портфельный риск: Σ(|entry-stop|·qty) открытых позиций / портфель
// 2. экспозиция пары с учётом предлагаемого размера
// 3. дневная просадка последнего снимка портфеля
// 4. текущая волатильность пары
func (r *RiskEngine) CanOpenPosition(pair *models.TradingPair, size, price float64) (RiskDecision, error) {
	snap, err := r.snapshots.GetLatest()
	if err != nil {
		return deny(ReasonNoPortfolio), err
	}
	portfolioValue := snap.TotalValueUSDT
	if portfolioValue <= 0 {
		return deny(ReasonNoPortfolio), nil
	}

	// 1. Портфельный риск
	openRisk, err := r.positions.SumOpenRisk()
	if err != nil {
		return deny(ReasonPortfolioRisk), err
	}
	if openRisk/portfolioValue > r.limits.MaxPortfolioRisk {
		RiskRejections.WithLabelValues(ReasonPortfolioRisk).Inc()
		return deny(ReasonPortfolioRisk), nil
	}

	// 2. Экспозиция пары: текущая плюс предлагаемая
	exposure, err := r.pairExposure(pair.ID)
	if err != nil {
		return deny(ReasonPairExposure), err
	}
	if (exposure+size*price)/portfolioValue > r.limits.MaxPairExposure {
		RiskRejections.WithLabelValues(ReasonPairExposure).Inc()
		return deny(ReasonPairExposure), nil
	}

	// 3. Дневная просадка портфеля
	if utils.Abs(snap.DailyDrawdown) > r.limits.MaxDrawdown {
		RiskRejections.WithLabelValues(ReasonDailyDrawdown).Inc()
		return deny(ReasonDailyDrawdown), nil
	}

	// 4. Волатильность пары
	if vol := r.pairVolatility(pair); vol > r.limits.VolatilityCap {
		RiskRejections.WithLabelValues(ReasonVolatility).Inc()
		return deny(ReasonVolatility), nil
	}

	return allow(), nil
}

// pairExposure возвращает суммарную стоимость открытых позиций пары
func (r *RiskEngine) pairExposure(pairID int) (float64, error) {
	open, err := r.positions.GetOpen()
	if err != nil {
		return 0, err
	}

	var total float64
	for _, pos := range open {
		if pos.TradingPairID == pairID {
			total += pos.PositionValue()
		}
	}
	return total, nil
}

// pairVolatility возвращает волатильность пары из кэша индикаторов
func (r *RiskEngine) pairVolatility(pair *models.TradingPair) float64 {
	snap, ok := r.market.GetIndicators(pair.ExchangeSymbol())
	if !ok {
		return 0
	}
	return snap.Volatility
}

// CalculatePositionSize считает размер позиции от риска на сделку
//
// riskAmount = портфель * MaxPositionRisk; базовый размер - риск,
// делённый на дистанцию до стопа; волатильность масштабирует вниз
// множителем (1 - min(vol, 0.5)). Итог зажат в
// [pair.MinQty, pair.MaxPositionSize].
func (r *RiskEngine) CalculatePositionSize(pair *models.TradingPair, price, stopLoss float64) (float64, error) {
	portfolioValue, err := r.PortfolioValue()
	if err != nil {
		return 0, err
	}

	distance := utils.Abs(price - stopLoss)
	if distance <= 0 {
		return 0, fmt.Errorf("zero stop distance for %s at price %.8f", pair.Symbol, price)
	}

	riskAmount := portfolioValue * r.limits.MaxPositionRisk
	size := riskAmount / distance

	if vol := r.pairVolatility(pair); vol > 0 {
		size *= 1 - utils.Min(vol, 0.5)
	}

	return utils.Clamp(size, pair.MinQty, pair.MaxPositionSize), nil
}

// CalculateStopLoss считает стоп от ATR
//
// entry ∓ ATR*множитель; при недоступном ATR (== 0) процентный
// фолбэк DefaultStopPct от цены входа.
func (r *RiskEngine) CalculateStopLoss(entryPrice float64, side string, atr float64) float64 {
	if atr > 0 {
		distance := atr * r.limits.ATRStopMultiplier
		if side == models.SideLong {
			return entryPrice - distance
		}
		return entryPrice + distance
	}

	if side == models.SideLong {
		return entryPrice * (1 - r.limits.DefaultStopPct)
	}
	return entryPrice * (1 + r.limits.DefaultStopPct)
}

// CalculateTakeProfit считает цель от дистанции до стопа
//
// Дистанция |entry-stop| умножается на risk/reward и откладывается
// от входа в сторону прибыли.
func (r *RiskEngine) CalculateTakeProfit(entryPrice, stopLoss float64) float64 {
	distance := utils.Abs(entryPrice-stopLoss) * r.limits.RiskRewardRatio
	if stopLoss < entryPrice {
		// long: стоп ниже входа, цель выше
		return entryPrice + distance
	}
	return entryPrice - distance
}

// UpdateTrailingStop двигает trailing stop только в пользу позиции
//
// Возвращает новый стоп и признак изменения. Дистанция ATR*множитель;
// для LONG стоп только растёт, для SHORT только падает.
func (r *RiskEngine) UpdateTrailingStop(pos *models.Position, currentPrice, atr float64) (float64, bool) {
	if atr <= 0 {
		return pos.TrailingStop, false
	}

	distance := atr * r.limits.TrailingATRMultiplier
	if pos.IsLong() {
		candidate := currentPrice - distance
		if candidate > pos.TrailingStop {
			return candidate, true
		}
		return pos.TrailingStop, false
	}

	candidate := currentPrice + distance
	if pos.TrailingStop == 0 || candidate < pos.TrailingStop {
		return candidate, true
	}
	return pos.TrailingStop, false
}

// ShouldClosePosition проверяет условия закрытия в строгом приоритете
//
// Порядок: стоп-лосс > trailing stop > тейк-профит > просадка позиции.
// Первое сработавшее условие определяет причину, дальше не проверяется.
func (r *RiskEngine) ShouldClosePosition(pos *models.Position, currentPrice float64) (bool, string) {
	if pos.IsLong() {
		if pos.StopLoss > 0 && currentPrice <= pos.StopLoss {
			return true, CloseStopLoss
		}
		if pos.TrailingStop > 0 && currentPrice <= pos.TrailingStop {
			return true, CloseTrailingStop
		}
		if pos.TakeProfit > 0 && currentPrice >= pos.TakeProfit {
			return true, CloseTakeProfit
		}
	} else {
		if pos.StopLoss > 0 && currentPrice >= pos.StopLoss {
			return true, CloseStopLoss
		}
		if pos.TrailingStop > 0 && currentPrice >= pos.TrailingStop {
			return true, CloseTrailingStop
		}
		if pos.TakeProfit > 0 && currentPrice <= pos.TakeProfit {
			return true, CloseTakeProfit
		}
	}

	// Просадка позиции: |unrealized| / стоимость входа
	if entryValue := pos.EntryValue(); entryValue > 0 {
		pnl := pos.UnrealizedPnLAt(currentPrice)
		if pnl < 0 && utils.Abs(pnl)/entryValue >= r.limits.PositionDrawdownLimit {
			return true, CloseMaxDrawdown
		}
	}

	return false, ""
}

// DailyDrawdown считает дневную просадку портфеля
//
// База - первый снимок текущего дня; результат отрицателен при
// падении стоимости.
func (r *RiskEngine) DailyDrawdown(current float64, now time.Time) (float64, error) {
	base, err := r.snapshots.GetFirstSince(utils.GetDayStartFrom(now))
	if err != nil {
		return 0, err
	}
	if base.TotalValueUSDT <= 0 {
		return 0, nil
	}
	return (current - base.TotalValueUSDT) / base.TotalValueUSDT, nil
}
