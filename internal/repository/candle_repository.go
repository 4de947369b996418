package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradingbot/internal/models"
)

// Ошибки репозитория свечей
var ErrCandleNotFound = errors.New("candle not found")

// CandleRepository - работа с таблицей market_data
//
// Таблица имеет уникальный индекс (trading_pair_id, timestamp): повторная
// запись того же интервала молча игнорируется через ON CONFLICT DO NOTHING,
// поэтому ретраи записи идемпотентны.
type CandleRepository struct {
	db *sql.DB
}

// NewCandleRepository создает новый экземпляр репозитория
func NewCandleRepository(db *sql.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

const candleColumns = `id, trading_pair_id, timestamp, open, high, low, close, volume, quote_volume, number_of_trades, taker_buy_volume, taker_buy_quote_volume, daily_volatility, buy_sell_ratio, created_at`

// Insert записывает закрытую свечу
//
// Дубликат интервала не считается ошибкой: Inserted = false.
func (r *CandleRepository) Insert(candle *models.Candle) (bool, error) {
	query := `
		INSERT INTO market_data (trading_pair_id, timestamp, open, high, low, close, volume, quote_volume, number_of_trades, taker_buy_volume, taker_buy_quote_volume, daily_volatility, buy_sell_ratio, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (trading_pair_id, timestamp) DO NOTHING
		RETURNING id`

	if candle.CreatedAt.IsZero() {
		candle.CreatedAt = time.Now()
	}

	err := r.db.QueryRow(
		query,
		candle.TradingPairID,
		candle.Timestamp,
		candle.Open,
		candle.High,
		candle.Low,
		candle.Close,
		candle.Volume,
		candle.QuoteVolume,
		candle.NumberOfTrades,
		candle.TakerBuyVolume,
		candle.TakerBuyQuoteVolume,
		candle.Volatility,
		candle.BuySellRatio,
		candle.CreatedAt,
	).Scan(&candle.ID)

	if err != nil {
		// DO NOTHING не возвращает строку при конфликте
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// GetRecent возвращает последние limit свечей пары от старых к новым
func (r *CandleRepository) GetRecent(pairID, limit int) ([]*models.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM (
			SELECT ` + candleColumns + `
			FROM market_data
			WHERE trading_pair_id = $1
			ORDER BY timestamp DESC
			LIMIT $2
		) recent
		ORDER BY timestamp ASC`

	return r.queryCandles(query, pairID, limit)
}

// GetRange возвращает свечи пары в интервале [from, to) от старых к новым
func (r *CandleRepository) GetRange(pairID int, from, to time.Time) ([]*models.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM market_data
		WHERE trading_pair_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC`

	return r.queryCandles(query, pairID, from, to)
}

// LatestTimestamp возвращает время последней свечи пары
func (r *CandleRepository) LatestTimestamp(pairID int) (time.Time, error) {
	query := `
		SELECT timestamp
		FROM market_data
		WHERE trading_pair_id = $1
		ORDER BY timestamp DESC
		LIMIT 1`

	var ts time.Time
	err := r.db.QueryRow(query, pairID).Scan(&ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrCandleNotFound
		}
		return time.Time{}, err
	}

	return ts, nil
}

// DeleteOlderThan удаляет свечи старше границы, возвращает число удалённых
func (r *CandleRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	query := `DELETE FROM market_data WHERE timestamp < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *CandleRepository) queryCandles(query string, args ...interface{}) ([]*models.Candle, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []*models.Candle
	for rows.Next() {
		candle := &models.Candle{}
		err := rows.Scan(
			&candle.ID,
			&candle.TradingPairID,
			&candle.Timestamp,
			&candle.Open,
			&candle.High,
			&candle.Low,
			&candle.Close,
			&candle.Volume,
			&candle.QuoteVolume,
			&candle.NumberOfTrades,
			&candle.TakerBuyVolume,
			&candle.TakerBuyQuoteVolume,
			&candle.Volatility,
			&candle.BuySellRatio,
			&candle.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return candles, nil
}
