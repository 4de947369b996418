package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradingbot/internal/models"
)

// Ошибки репозитория индикаторов
var ErrIndicatorNotFound = errors.New("indicator snapshot not found")

// IndicatorRepository - работа с таблицей technical_indicators
type IndicatorRepository struct {
	db *sql.DB
}

// NewIndicatorRepository создает новый экземпляр репозитория
func NewIndicatorRepository(db *sql.DB) *IndicatorRepository {
	return &IndicatorRepository{db: db}
}

const indicatorColumns = `id, trading_pair_id, timestamp, rsi, macd_line, macd_signal, macd_histogram, bb_upper, bb_middle, bb_lower, atr, volatility, sma_20, ema_20`

// Insert записывает снимок индикаторов
func (r *IndicatorRepository) Insert(snap *models.IndicatorSnapshot) error {
	query := `
		INSERT INTO technical_indicators (trading_pair_id, timestamp, rsi, macd_line, macd_signal, macd_histogram, bb_upper, bb_middle, bb_lower, atr, volatility, sma_20, ema_20)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	return r.db.QueryRow(
		query,
		snap.TradingPairID,
		snap.Timestamp,
		snap.RSI,
		snap.MACDLine,
		snap.MACDSignal,
		snap.MACDHistogram,
		snap.BBUpper,
		snap.BBMiddle,
		snap.BBLower,
		snap.ATR,
		snap.Volatility,
		snap.SMA20,
		snap.EMA20,
	).Scan(&snap.ID)
}

// GetLatest возвращает последний снимок индикаторов пары
func (r *IndicatorRepository) GetLatest(pairID int) (*models.IndicatorSnapshot, error) {
	query := `
		SELECT ` + indicatorColumns + `
		FROM technical_indicators
		WHERE trading_pair_id = $1
		ORDER BY timestamp DESC
		LIMIT 1`

	snap := &models.IndicatorSnapshot{}
	err := r.db.QueryRow(query, pairID).Scan(
		&snap.ID,
		&snap.TradingPairID,
		&snap.Timestamp,
		&snap.RSI,
		&snap.MACDLine,
		&snap.MACDSignal,
		&snap.MACDHistogram,
		&snap.BBUpper,
		&snap.BBMiddle,
		&snap.BBLower,
		&snap.ATR,
		&snap.Volatility,
		&snap.SMA20,
		&snap.EMA20,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIndicatorNotFound
		}
		return nil, err
	}

	return snap, nil
}

// DeleteOlderThan удаляет снимки старше границы, возвращает число удалённых
func (r *IndicatorRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	query := `DELETE FROM technical_indicators WHERE timestamp < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
