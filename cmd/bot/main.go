package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"tradingbot/internal/api"
	"tradingbot/internal/bot"
	"tradingbot/internal/cache"
	"tradingbot/internal/config"
	"tradingbot/internal/exchange"
	"tradingbot/internal/repository"
	"tradingbot/pkg/crypto"
	"tradingbot/pkg/utils"
)

// main.go - сборка и запуск торгового бота
//
// Порядок запуска:
// 1. Конфигурация из переменных окружения
// 2. Логгер, БД, биржевой клиент
// 3. Репозитории, кэш, конвейер, движки
// 4. Операционный HTTP сервер
// 5. Главный цикл до SIGINT/SIGTERM, затем graceful shutdown

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	defer logger.Sync()

	// Секрет биржи хранится зашифрованным, расшифровка один раз при старте
	if cfg.Security.EncryptionPassphrase != "" {
		key := crypto.DeriveKey(cfg.Security.EncryptionPassphrase, []byte(cfg.Security.EncryptionSalt))
		secret, err := crypto.Decrypt(cfg.Binance.APISecret, key)
		if err != nil {
			logger.Fatal("не удалось расшифровать API secret", utils.Err(err))
		}
		cfg.Binance.APISecret = secret
	}

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("не удалось подключиться к БД", utils.Err(err))
	}
	defer db.Close()

	logger.Info("подключение к БД установлено",
		utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Репозитории
	pairRepo := repository.NewPairRepository(db)
	candleRepo := repository.NewCandleRepository(db)
	indicatorRepo := repository.NewIndicatorRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	strategyRepo := repository.NewStrategyRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	sentimentRepo := repository.NewSentimentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	syslogRepo := repository.NewSyslogRepository(db)

	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("не удалось создать биржевой клиент", utils.Err(err))
	}

	market := cache.NewMarketCache(cfg.Cache.MarketTTL, cfg.Cache.IndicatorTTL, cfg.Cache.TradeBuffer)
	syslog := bot.NewSystemLogger(syslogRepo, logger)
	gateway := exchange.NewGateway(cfg.Gateway, cfg.Binance.WSBase, logger)

	pairs, err := pairRepo.GetActive()
	if err != nil {
		logger.Fatal("не удалось загрузить торговые пары", utils.Err(err))
	}

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Workers:               cfg.Bot.Workers,
		QueueSize:             cfg.Bot.QueueSize,
		SignificantTradeValue: cfg.Bot.SignificantTradeValue,
	}, market, candleRepo, indicatorRepo, pairs, syslog, logger)

	risk := bot.NewRiskEngine(cfg.Risk, positionRepo, snapshotRepo, market, logger)
	strategies := bot.NewStrategyEngine(risk, positionRepo, orderRepo, client, market, sentimentRepo, syslog, logger)

	engine := bot.NewEngine(cfg, gateway, processor, strategies, risk,
		pairRepo, strategyRepo, positionRepo, snapshotRepo, candleRepo,
		client, market, syslog, logger)

	// Операционный HTTP сервер: health, status, metrics
	router := api.SetupRoutes(&api.Dependencies{
		Gateway:   gateway,
		Positions: positionRepo,
		Snapshots: snapshotRepo,
		Pairs:     pairRepo,
		Log:       logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("операционный API запущен", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http сервер упал", utils.Err(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx); err != nil {
		logger.Error("движок завершился с ошибкой", utils.Err(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http сервер не остановился корректно", utils.Err(err))
	}

	logger.Info("бот остановлен")
}

// initDatabase открывает подключение и настраивает пул
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
