package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradingbot/internal/cache"
	"tradingbot/internal/config"
	"tradingbot/internal/exchange"
	"tradingbot/internal/models"
	"tradingbot/internal/repository"
	"tradingbot/pkg/utils"
)

// engine.go - управляющий цикл торгового ядра
//
// Назначение:
// - тик раз в 5 секунд: последовательный обход активных комбинаций
//   (стратегия, пара), сбой одной комбинации не прерывает обход
// - периодические задачи: снимок портфеля, очистка устаревших данных,
//   сторожевой таймер потока рыночных данных
// - шлюз и конвейер работают конкурентно с циклом, цикл читает
//   только кэш
//
// Остановка через отмену контекста: новые тики не планируются,
// шлюз закрывается (идемпотентно), незавершённые обработчики
// дорабатывают или безопасно бросаются.

// PairSource - источник активных торговых пар
type PairSource interface {
	GetActive() ([]*models.TradingPair, error)
}

// StrategySource - источник активных стратегий
type StrategySource interface {
	GetActive() ([]*models.TradingStrategy, error)
}

// Engine - главный движок торгового бота
type Engine struct {
	cfg *config.Config

	gateway    *exchange.Gateway
	processor  *Processor
	strategies *StrategyEngine
	risk       *RiskEngine

	pairSource     PairSource
	strategySource StrategySource
	positions      PositionStore
	snapshots      SnapshotStore
	candles        CandleStore
	client         OrderClient
	market         *cache.MarketCache

	syslog *SystemLogger
	log    *utils.Logger
}

// NewEngine создает движок из собранных компонентов
func NewEngine(cfg *config.Config, gateway *exchange.Gateway, processor *Processor, strategies *StrategyEngine, risk *RiskEngine, pairSource PairSource, strategySource StrategySource, positions PositionStore, snapshots SnapshotStore, candles CandleStore, client OrderClient, market *cache.MarketCache, syslog *SystemLogger, log *utils.Logger) *Engine {
	return &Engine{
		cfg:            cfg,
		gateway:        gateway,
		processor:      processor,
		strategies:     strategies,
		risk:           risk,
		pairSource:     pairSource,
		strategySource: strategySource,
		positions:      positions,
		snapshots:      snapshots,
		candles:        candles,
		client:         client,
		market:         market,
		syslog:         syslog,
		log:            log.WithComponent("engine"),
	}
}

// Run запускает ядро и блокируется до отмены контекста
func (e *Engine) Run(ctx context.Context) error {
	pairs, err := e.pairSource.GetActive()
	if err != nil {
		return fmt.Errorf("load active pairs: %w", err)
	}
	if len(pairs) == 0 {
		e.log.Warn("нет активных пар, ядро работает вхолостую")
	}

	symbols := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		symbols = append(symbols, pair.ExchangeSymbol())
	}

	e.processor.Start(ctx)

	e.gateway.SetOnEvent(e.processor.Submit)
	e.gateway.SetOnDisconnect(func(err error) {
		GatewayReconnects.Inc()
	})
	e.gateway.SetOnExhausted(func() {
		e.syslog.Critical("gateway", "reconnect_exhausted",
			"попытки переподключения исчерпаны, поток рыночных данных остановлен", nil)
	})

	e.gateway.SubscribeKlines(symbols, e.cfg.Bot.Timeframe)
	e.gateway.SubscribeTrades(symbols)
	e.gateway.SubscribeTickers(symbols)

	if err := e.gateway.Connect(); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}

	e.log.Info("ядро запущено",
		utils.Int("pairs", len(pairs)),
		utils.String("timeframe", e.cfg.Bot.Timeframe),
	)

	ticker := time.NewTicker(e.cfg.Bot.TickInterval)
	snapshotTicker := time.NewTicker(e.cfg.Bot.SnapshotInterval)
	cleanupTicker := time.NewTicker(e.cfg.Bot.CleanupInterval)
	watchdogTicker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	defer snapshotTicker.Stop()
	defer cleanupTicker.Stop()
	defer watchdogTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.shutdown()
		case <-ticker.C:
			e.tick(ctx)
		case <-snapshotTicker.C:
			e.writeSnapshot(ctx)
		case <-cleanupTicker.C:
			e.cleanup()
		case <-watchdogTicker.C:
			e.watchdog()
		}
	}
}

// shutdown останавливает шлюз и дожидается воркеров конвейера
func (e *Engine) shutdown() error {
	e.log.Info("остановка ядра")

	if err := e.gateway.Close(); err != nil {
		e.log.Warn("ошибка закрытия шлюза", utils.Err(err))
	}
	e.processor.Wait()

	e.log.Info("ядро остановлено")
	return nil
}

// ============================================================
// Тик стратегий
// ============================================================

// tick выполняет один проход по всем активным комбинациям
func (e *Engine) tick(ctx context.Context) {
	started := time.Now()
	defer func() {
		TickDuration.Observe(float64(time.Since(started).Milliseconds()))
	}()

	strategies, err := e.strategySource.GetActive()
	if err != nil {
		e.log.Error("не удалось загрузить стратегии", utils.Err(err))
		return
	}
	pairs, err := e.pairSource.GetActive()
	if err != nil {
		e.log.Error("не удалось загрузить пары", utils.Err(err))
		return
	}

	for _, strategy := range strategies {
		for _, pair := range pairs {
			e.evaluateSafe(ctx, strategy, pair)
		}
	}

	if count, err := e.positions.CountOpen(); err == nil {
		OpenPositions.Set(float64(count))
	}
}

// evaluateSafe изолирует сбой одной комбинации (стратегия, пара)
func (e *Engine) evaluateSafe(ctx context.Context, strategy *models.TradingStrategy, pair *models.TradingPair) {
	defer func() {
		if r := recover(); r != nil {
			e.syslog.Error("engine", "evaluation_panic",
				"паника при оценке комбинации",
				map[string]interface{}{
					"strategy": strategy.Name,
					"symbol":   pair.Symbol,
					"panic":    fmt.Sprintf("%v", r),
				})
		}
	}()

	if err := e.strategies.Evaluate(ctx, strategy, pair); err != nil {
		e.syslog.Error("engine", "evaluation_failed",
			"оценка комбинации завершилась ошибкой",
			map[string]interface{}{
				"strategy": strategy.Name,
				"symbol":   pair.Symbol,
				"error":    err.Error(),
			})
	}
}

// ============================================================
// Периодические задачи
// ============================================================

// writeSnapshot пишет снимок портфеля: баланс + открытые позиции
func (e *Engine) writeSnapshot(ctx context.Context) {
	balance, err := e.client.GetAccountBalance(ctx, "USDT")
	if err != nil {
		e.log.Error("не удалось получить баланс для снимка", utils.Err(err))
		return
	}

	open, err := e.positions.GetOpen()
	if err != nil {
		e.log.Error("не удалось получить открытые позиции", utils.Err(err))
		return
	}

	var positionsValue float64
	for _, pos := range open {
		positionsValue += pos.PositionValue()
	}

	total := balance.Free + balance.Locked + positionsValue

	snap := &models.PortfolioSnapshot{
		SnapshotTime:   time.Now(),
		TotalValueUSDT: total,
		FreeUSDT:       balance.Free,
		LockedUSDT:     balance.Locked,
		OpenPositions:  len(open),
	}

	// База дневной просадки - первый снимок текущего дня
	drawdown, err := e.risk.DailyDrawdown(total, snap.SnapshotTime)
	if err == nil {
		snap.DailyDrawdown = drawdown
		if base, berr := e.snapshots.GetFirstSince(utils.GetDayStartFrom(snap.SnapshotTime)); berr == nil {
			snap.DailyPnl = total - base.TotalValueUSDT
			snap.DailyPnlPct = utils.PercentChange(base.TotalValueUSDT, total)
		}
	} else if !isNotFound(err) {
		e.log.Warn("не удалось рассчитать дневную просадку", utils.Err(err))
	}

	if prev, perr := e.snapshots.GetLatest(); perr == nil {
		snap.TotalPnl = prev.TotalPnl + (total - prev.TotalValueUSDT)
		snap.MaxDrawdown = utils.Min(prev.MaxDrawdown, snap.DailyDrawdown)
	}

	if err := e.snapshots.Insert(snap); err != nil {
		e.log.Error("не удалось записать снимок портфеля", utils.Err(err))
		return
	}

	e.log.Debug("снимок портфеля записан",
		utils.Float64("total_usdt", total),
		utils.Int("open_positions", len(open)),
	)
}

// cleanup удаляет рыночные данные за пределами окна хранения
func (e *Engine) cleanup() {
	cutoff := time.Now().AddDate(0, 0, -e.cfg.Bot.RetentionDays)

	deleted, err := e.candles.DeleteOlderThan(cutoff)
	if err != nil {
		e.log.Error("очистка рыночных данных не удалась", utils.Err(err))
		return
	}

	purged := e.market.PurgeExpired()

	e.log.Info("очистка выполнена",
		utils.Int64("candles_deleted", deleted),
		utils.Int("cache_entries_purged", purged),
		utils.Time("cutoff", cutoff),
	)
}

// watchdog форсирует переподключение при протухшем потоке данных
func (e *Engine) watchdog() {
	if !e.gateway.IsStale() {
		return
	}

	GatewayStaleRestarts.Inc()
	e.syslog.Error("engine", "gateway_stale",
		"поток рыночных данных протух, принудительное переподключение",
		map[string]interface{}{
			"last_message_at": e.gateway.LastMessageAt(),
		})
	e.gateway.ForceReconnect()
}

// isNotFound проверяет сентинели отсутствия данных
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrSnapshotNotFound) ||
		errors.Is(err, repository.ErrCandleNotFound)
}
