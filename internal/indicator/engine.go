package indicator

import (
	"tradingbot/internal/models"
	"tradingbot/pkg/utils"
)

// engine.go - расчёт технических индикаторов
//
// Назначение:
// Чистые функции расчёта индикаторов по ряду закрытых свечей.
// Вход всегда упорядочен от старых к новым; на выходе — значения
// для последней свечи ряда.
//
// Индикаторы:
// - RSI(14): индекс относительной силы
// - EMA/SMA: скользящие средние
// - MACD(12/26/9): схождение/расхождение скользящих средних
// - Bollinger Bands(20, 2.0): полосы Боллинджера
// - ATR(14): средний истинный диапазон
// - Volatility: стандартное отклонение доходностей
//
// При недостатке данных индикаторы возвращают нейтральные значения,
// а не ошибки: торговая логика трактует нейтральное значение как
// отсутствие сигнала.

// Периоды по умолчанию
const (
	RSIPeriod    = 14
	MACDFast     = 12
	MACDSlow     = 26
	MACDSignal   = 9
	BBPeriod     = 20
	BBMultiplier = 2.0
	ATRPeriod    = 14
	VolWindow    = 20
	SMAPeriod    = 20
	EMAPeriod    = 20

	// RSINeutral возвращается при недостатке данных
	RSINeutral = 50.0
)

// RSI вычисляет индекс относительной силы за period
//
// Средние рост/падение считаются простым средним последних
// period изменений (без сглаживания Уайлдера).
//
// Граничные случаи:
//   - Меньше period+1 цен: нейтральные 50
//   - Нет падений (avgLoss = 0): 100
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return RSINeutral
	}

	// Последние period изменений цены
	var gains, losses float64
	start := len(prices) - period
	for i := start; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// SMA вычисляет простое скользящее среднее последних period цен
//
// При недостатке данных усредняет всё что есть.
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if period <= 0 || period > len(prices) {
		period = len(prices)
	}
	return utils.Mean(prices[len(prices)-period:])
}

// EMASeries вычисляет ряд экспоненциального скользящего среднего
//
// Затравка — первый элемент ряда, множитель 2/(period+1):
//
//	ema[0] = prices[0]
//	ema[i] = prices[i]*k + ema[i-1]*(1-k)
func EMASeries(prices []float64, period int) []float64 {
	if len(prices) == 0 {
		return nil
	}
	if period <= 0 {
		period = 1
	}

	k := 2.0 / (float64(period) + 1)
	ema := make([]float64, len(prices))
	ema[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		ema[i] = prices[i]*k + ema[i-1]*(1-k)
	}
	return ema
}

// EMA вычисляет последнее значение экспоненциального скользящего среднего
func EMA(prices []float64, period int) float64 {
	series := EMASeries(prices, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// MACD вычисляет линию MACD, сигнальную линию и гистограмму
//
// Линия считается поэлементно: macd[i] = ema12[i] - ema26[i],
// сигнальная линия — EMA9 от ряда MACD, гистограмма — разность.
// Возвращаются значения для последней свечи.
//
// При недостатке данных (меньше MACDSlow цен) все значения нулевые.
func MACD(prices []float64) (line, signal, histogram float64) {
	if len(prices) < MACDSlow {
		return 0, 0, 0
	}

	fast := EMASeries(prices, MACDFast)
	slow := EMASeries(prices, MACDSlow)

	macdSeries := make([]float64, len(prices))
	for i := range prices {
		macdSeries[i] = fast[i] - slow[i]
	}

	signalSeries := EMASeries(macdSeries, MACDSignal)

	last := len(prices) - 1
	line = macdSeries[last]
	signal = signalSeries[last]
	histogram = line - signal
	return line, signal, histogram
}

// BollingerBands вычисляет полосы Боллинджера
//
// Средняя полоса — SMA(period), ширина — multiplier стандартных
// отклонений совокупности (делитель N) последних period цен.
//
// При недостатке данных окно сжимается до доступного.
func BollingerBands(prices []float64, period int, multiplier float64) (upper, middle, lower float64) {
	if len(prices) == 0 {
		return 0, 0, 0
	}
	if period <= 0 || period > len(prices) {
		period = len(prices)
	}

	window := prices[len(prices)-period:]
	middle = utils.Mean(window)
	dev := utils.StdDev(window) * multiplier
	return middle + dev, middle, middle - dev
}

// ATR вычисляет средний истинный диапазон за period
//
// Истинный диапазон свечи:
//
//	TR = max(high-low, |high-prevClose|, |low-prevClose|)
//
// ATR — простое среднее последних period значений TR.
// При недостатке данных (меньше period+1 свечей) возвращает 0.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	trueRanges := make([]float64, 0, period)
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		tr := utils.Max(
			candles[i].High-candles[i].Low,
			utils.Max(
				utils.Abs(candles[i].High-prevClose),
				utils.Abs(candles[i].Low-prevClose),
			),
		)
		trueRanges = append(trueRanges, tr)
	}

	return utils.Mean(trueRanges)
}

// Volatility вычисляет волатильность как стандартное отклонение
// простых доходностей за окно min(len, VolWindow)
//
// Возвращает долю: 0.02 = 2% типичного движения за свечу.
func Volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	window := prices
	if len(window) > VolWindow {
		window = window[len(window)-VolWindow:]
	}

	returns := utils.SimpleReturns(window)
	if len(returns) == 0 {
		return 0
	}
	return utils.StdDev(returns)
}

// Compute рассчитывает полный снимок индикаторов по ряду свечей
//
// Свечи упорядочены от старых к новым.
func Compute(candles []models.Candle) models.IndicatorSnapshot {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	line, signal, histogram := MACD(closes)
	upper, middle, lower := BollingerBands(closes, BBPeriod, BBMultiplier)

	return models.IndicatorSnapshot{
		RSI:           RSI(closes, RSIPeriod),
		MACDLine:      line,
		MACDSignal:    signal,
		MACDHistogram: histogram,
		BBUpper:       upper,
		BBMiddle:      middle,
		BBLower:       lower,
		ATR:           ATR(candles, ATRPeriod),
		Volatility:    Volatility(closes),
		SMA20:         SMA(closes, SMAPeriod),
		EMA20:         EMA(closes, EMAPeriod),
	}
}

// ============================================================
// Сигнальные помощники
// ============================================================

// Пороговые уровни RSI
const (
	RSIOversold   = 30.0
	RSIOverbought = 70.0
)

// IsOversold - RSI в зоне перепроданности (сигнал на покупку)
func IsOversold(rsi float64) bool {
	return rsi < RSIOversold
}

// IsOverbought - RSI в зоне перекупленности (сигнал на продажу)
func IsOverbought(rsi float64) bool {
	return rsi > RSIOverbought
}

// BreaksLowerBand - цена пробила нижнюю полосу Боллинджера
func BreaksLowerBand(price, lower float64) bool {
	return lower > 0 && price < lower
}

// BreaksUpperBand - цена пробила верхнюю полосу Боллинджера
func BreaksUpperBand(price, upper float64) bool {
	return upper > 0 && price > upper
}

// TrendStrength оценивает силу тренда как расхождение EMA и SMA
// в процентах от SMA, ограничено диапазоном [-100, 100]
func TrendStrength(ema, sma float64) float64 {
	if sma == 0 {
		return 0
	}
	return utils.Clamp((ema-sma)/sma*100, -100, 100)
}
