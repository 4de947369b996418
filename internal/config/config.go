package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Binance  BinanceConfig
	Gateway  GatewayConfig
	Bot      BotConfig
	Risk     RiskConfig
	Cache    CacheConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки операционного HTTP сервера (health, status, metrics)
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// BinanceConfig - доступ к REST и WebSocket API биржи
type BinanceConfig struct {
	APIKey     string
	APISecret  string
	RESTBase   string
	WSBase     string
	RecvWindow time.Duration
}

// GatewayConfig - настройки WebSocket шлюза рыночных данных
type GatewayConfig struct {
	ReconnectBaseDelay   time.Duration // база экспоненциального backoff
	ReconnectMaxDelay    time.Duration // потолок задержки переподключения
	MaxReconnectAttempts int           // 0 = без лимита
	PingInterval         time.Duration // интервал ping для поддержания соединения
	ReadTimeout          time.Duration // таймаут чтения WS сообщений
	StaleThreshold       time.Duration // отсутствие данных дольше = принудительный reconnect
}

// BotConfig - настройки торгового цикла
type BotConfig struct {
	TickInterval    time.Duration // период главного цикла принятия решений
	Workers         int           // количество воркеров обработки событий
	QueueSize       int           // ёмкость очереди событий на воркера
	Timeframe       string        // рабочий таймфрейм свечей

	// Крупная сделка: объём в валюте котировки выше порога
	// логируется отдельным событием
	SignificantTradeValue float64

	SnapshotInterval time.Duration // период снимков портфеля
	RetentionDays    int           // хранение рыночных данных
	CleanupInterval  time.Duration // период очистки старых данных
}

// RiskConfig - лимиты риск-менеджмента
//
// Доли от капитала, не проценты: 0.05 = 5%
type RiskConfig struct {
	MaxPortfolioRisk float64 // суммарный риск открытых позиций
	MaxPositionRisk  float64 // риск одной позиции
	MaxPairExposure  float64 // доля капитала в одной паре
	MaxDrawdown      float64 // дневная просадка, после которой торговля блокируется
	VolatilityCap    float64 // максимальная допустимая волатильность инструмента

	ATRStopMultiplier     float64 // стоп = вход ∓ ATR × множитель
	DefaultStopPct        float64 // резервный стоп если ATR недоступен
	RiskRewardRatio       float64 // тейк-профит относительно стопа
	TrailingATRMultiplier float64 // дистанция трейлинг-стопа
	PositionDrawdownLimit float64 // закрытие при убытке позиции от пика
}

// CacheConfig - TTL кэша рыночных данных
type CacheConfig struct {
	MarketTTL    time.Duration // цены, свечи, тикеры
	IndicatorTTL time.Duration // рассчитанные индикаторы
	TradeBuffer  int           // ёмкость кольцевого буфера сделок на символ
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionPassphrase string // passphrase для вывода ключа AES-256
	EncryptionSalt       string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "tradingbot"),
			User:            getEnv("DB_USER", "user"),
			Password:        getEnv("DB_PASSWORD", "password"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Binance: BinanceConfig{
			APIKey:     getEnv("BINANCE_API_KEY", ""),
			APISecret:  getEnv("BINANCE_API_SECRET", ""),
			RESTBase:   getEnv("BINANCE_REST_BASE", "https://api.binance.com"),
			WSBase:     getEnv("BINANCE_WS_BASE", "wss://stream.binance.com:9443/ws"),
			RecvWindow: getEnvAsDuration("BINANCE_RECV_WINDOW", 5*time.Second),
		},
		Gateway: GatewayConfig{
			ReconnectBaseDelay:   getEnvAsDuration("WS_RECONNECT_BASE_DELAY", 1*time.Second),
			ReconnectMaxDelay:    getEnvAsDuration("WS_RECONNECT_MAX_DELAY", 30*time.Second),
			MaxReconnectAttempts: getEnvAsInt("WS_MAX_RECONNECT_ATTEMPTS", 0),
			PingInterval:         getEnvAsDuration("WS_PING_INTERVAL", 15*time.Second),
			ReadTimeout:          getEnvAsDuration("WS_READ_TIMEOUT", 30*time.Second),
			StaleThreshold:       getEnvAsDuration("WS_STALE_THRESHOLD", 5*time.Minute),
		},
		Bot: BotConfig{
			TickInterval:          getEnvAsDuration("BOT_TICK_INTERVAL", 5*time.Second),
			Workers:               getEnvAsInt("BOT_WORKERS", 4),
			QueueSize:             getEnvAsInt("BOT_QUEUE_SIZE", 1024),
			Timeframe:             getEnv("BOT_TIMEFRAME", "5m"),
			SignificantTradeValue: getEnvAsFloat("BOT_SIGNIFICANT_TRADE_VALUE", 10000),
			SnapshotInterval:      getEnvAsDuration("BOT_SNAPSHOT_INTERVAL", 1*time.Hour),
			RetentionDays:         getEnvAsInt("BOT_RETENTION_DAYS", 30),
			CleanupInterval:       getEnvAsDuration("BOT_CLEANUP_INTERVAL", 6*time.Hour),
		},
		Risk: RiskConfig{
			MaxPortfolioRisk:      getEnvAsFloat("RISK_MAX_PORTFOLIO", 0.05),
			MaxPositionRisk:       getEnvAsFloat("RISK_MAX_POSITION", 0.02),
			MaxPairExposure:       getEnvAsFloat("RISK_MAX_PAIR_EXPOSURE", 0.20),
			MaxDrawdown:           getEnvAsFloat("RISK_MAX_DRAWDOWN", 0.15),
			VolatilityCap:         getEnvAsFloat("RISK_VOLATILITY_CAP", 0.5),
			ATRStopMultiplier:     getEnvAsFloat("RISK_ATR_STOP_MULT", 2.0),
			DefaultStopPct:        getEnvAsFloat("RISK_DEFAULT_STOP_PCT", 0.05),
			RiskRewardRatio:       getEnvAsFloat("RISK_REWARD_RATIO", 2.0),
			TrailingATRMultiplier: getEnvAsFloat("RISK_TRAILING_ATR_MULT", 2.0),
			PositionDrawdownLimit: getEnvAsFloat("RISK_POSITION_DRAWDOWN", 0.15),
		},
		Cache: CacheConfig{
			MarketTTL:    getEnvAsDuration("CACHE_MARKET_TTL", 5*time.Minute),
			IndicatorTTL: getEnvAsDuration("CACHE_INDICATOR_TTL", 60*time.Second),
			TradeBuffer:  getEnvAsInt("CACHE_TRADE_BUFFER", 100),
		},
		Security: SecurityConfig{
			EncryptionPassphrase: getEnv("ENCRYPTION_PASSPHRASE", ""),
			EncryptionSalt:       getEnv("ENCRYPTION_SALT", "tradingbot-v1"),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", ""),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// Ключи биржи обязательны: без них невозможны приватные запросы
	if c.Binance.APIKey == "" {
		return fmt.Errorf("BINANCE_API_KEY is required")
	}
	if c.Binance.APISecret == "" {
		return fmt.Errorf("BINANCE_API_SECRET is required")
	}

	// Passphrase шифрования обязательна для хранения секретов в БД
	if c.Security.EncryptionPassphrase == "" {
		return fmt.Errorf("ENCRYPTION_PASSPHRASE is required for encrypting stored credentials")
	}
	if len(c.Security.EncryptionPassphrase) < 16 {
		return fmt.Errorf("ENCRYPTION_PASSPHRASE must be at least 16 characters")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Bot.TickInterval <= 0 {
		return fmt.Errorf("BOT_TICK_INTERVAL must be positive, got %v", c.Bot.TickInterval)
	}

	if c.Bot.Workers < 1 {
		return fmt.Errorf("BOT_WORKERS must be at least 1, got %d", c.Bot.Workers)
	}

	if c.Bot.QueueSize < 1 {
		return fmt.Errorf("BOT_QUEUE_SIZE must be at least 1, got %d", c.Bot.QueueSize)
	}

	if _, err := parseTimeframe(c.Bot.Timeframe); err != nil {
		return fmt.Errorf("BOT_TIMEFRAME invalid: %w", err)
	}

	if c.Gateway.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("WS_RECONNECT_BASE_DELAY must be positive, got %v", c.Gateway.ReconnectBaseDelay)
	}

	if c.Gateway.ReconnectMaxDelay < c.Gateway.ReconnectBaseDelay {
		return fmt.Errorf("WS_RECONNECT_MAX_DELAY must be >= base delay")
	}

	if c.Gateway.ReadTimeout <= 0 {
		return fmt.Errorf("WS_READ_TIMEOUT must be positive, got %v", c.Gateway.ReadTimeout)
	}

	// Риск-лимиты в долях (0, 1]
	fractions := []struct {
		name  string
		value float64
	}{
		{"RISK_MAX_PORTFOLIO", c.Risk.MaxPortfolioRisk},
		{"RISK_MAX_POSITION", c.Risk.MaxPositionRisk},
		{"RISK_MAX_PAIR_EXPOSURE", c.Risk.MaxPairExposure},
		{"RISK_MAX_DRAWDOWN", c.Risk.MaxDrawdown},
		{"RISK_POSITION_DRAWDOWN", c.Risk.PositionDrawdownLimit},
	}
	for _, f := range fractions {
		if f.value <= 0 || f.value > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", f.name, f.value)
		}
	}

	if c.Risk.VolatilityCap <= 0 {
		return fmt.Errorf("RISK_VOLATILITY_CAP must be positive, got %v", c.Risk.VolatilityCap)
	}

	if c.Risk.RiskRewardRatio <= 0 {
		return fmt.Errorf("RISK_REWARD_RATIO must be positive, got %v", c.Risk.RiskRewardRatio)
	}

	if c.Cache.TradeBuffer < 1 {
		return fmt.Errorf("CACHE_TRADE_BUFFER must be at least 1, got %d", c.Cache.TradeBuffer)
	}

	if c.Bot.RetentionDays < 1 {
		return fmt.Errorf("BOT_RETENTION_DAYS must be at least 1, got %d", c.Bot.RetentionDays)
	}

	return nil
}

// parseTimeframe проверяет допустимость таймфрейма
func parseTimeframe(tf string) (time.Duration, error) {
	switch tf {
	case "1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "1d":
		return time.Minute, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe %q", tf)
	}
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
