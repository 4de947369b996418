package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"tradingbot/internal/models"
)

// Ошибки репозитория пар
var (
	ErrPairNotFound = errors.New("trading pair not found")
	ErrPairExists   = errors.New("trading pair already exists")
)

// PairRepository - работа с таблицей trading_pairs
type PairRepository struct {
	db *sql.DB
}

// NewPairRepository создает новый экземпляр репозитория
func NewPairRepository(db *sql.DB) *PairRepository {
	return &PairRepository{db: db}
}

const pairColumns = `id, symbol, base_asset, quote_asset, min_qty, max_qty, min_notional, max_position_size, maker_fee, taker_fee, is_active, created_at, updated_at`

// Create создает новую торговую пару
func (r *PairRepository) Create(pair *models.TradingPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO trading_pairs (symbol, base_asset, quote_asset, min_qty, max_qty, min_notional, max_position_size, maker_fee, taker_fee, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	now := time.Now()
	pair.CreatedAt = now
	pair.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		pair.Symbol,
		pair.BaseAsset,
		pair.QuoteAsset,
		pair.MinQty,
		pair.MaxQty,
		pair.MinNotional,
		pair.MaxPositionSize,
		pair.MakerFee,
		pair.TakerFee,
		pair.IsActive,
		pair.CreatedAt,
		pair.UpdatedAt,
	).Scan(&pair.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrPairExists
		}
		return err
	}

	return nil
}

func scanPair(row interface{ Scan(...interface{}) error }) (*models.TradingPair, error) {
	pair := &models.TradingPair{}
	err := row.Scan(
		&pair.ID,
		&pair.Symbol,
		&pair.BaseAsset,
		&pair.QuoteAsset,
		&pair.MinQty,
		&pair.MaxQty,
		&pair.MinNotional,
		&pair.MaxPositionSize,
		&pair.MakerFee,
		&pair.TakerFee,
		&pair.IsActive,
		&pair.CreatedAt,
		&pair.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// GetByID возвращает пару по ID
func (r *PairRepository) GetByID(id int) (*models.TradingPair, error) {
	query := `SELECT ` + pairColumns + ` FROM trading_pairs WHERE id = $1`

	pair, err := scanPair(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPairNotFound
		}
		return nil, err
	}
	return pair, nil
}

// GetBySymbol возвращает пару по символу
func (r *PairRepository) GetBySymbol(symbol string) (*models.TradingPair, error) {
	query := `SELECT ` + pairColumns + ` FROM trading_pairs WHERE symbol = $1`

	pair, err := scanPair(r.db.QueryRow(query, symbol))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPairNotFound
		}
		return nil, err
	}
	return pair, nil
}

// GetAll возвращает все пары
func (r *PairRepository) GetAll() ([]*models.TradingPair, error) {
	query := `SELECT ` + pairColumns + ` FROM trading_pairs ORDER BY symbol`
	return r.queryPairs(query)
}

// GetActive возвращает только активные пары
func (r *PairRepository) GetActive() ([]*models.TradingPair, error) {
	query := `SELECT ` + pairColumns + ` FROM trading_pairs WHERE is_active = TRUE ORDER BY symbol`
	return r.queryPairs(query)
}

func (r *PairRepository) queryPairs(query string, args ...interface{}) ([]*models.TradingPair, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*models.TradingPair
	for rows.Next() {
		pair, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return pairs, nil
}

// Update обновляет параметры пары
func (r *PairRepository) Update(pair *models.TradingPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE trading_pairs
		SET symbol = $1, base_asset = $2, quote_asset = $3, min_qty = $4, max_qty = $5, min_notional = $6, max_position_size = $7, maker_fee = $8, taker_fee = $9, is_active = $10, updated_at = $11
		WHERE id = $12`

	pair.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		query,
		pair.Symbol,
		pair.BaseAsset,
		pair.QuoteAsset,
		pair.MinQty,
		pair.MaxQty,
		pair.MinNotional,
		pair.MaxPositionSize,
		pair.MakerFee,
		pair.TakerFee,
		pair.IsActive,
		pair.UpdatedAt,
		pair.ID,
	)
	if err != nil {
		return err
	}

	return requireRows(result, ErrPairNotFound)
}

// SetActive включает или выключает пару
func (r *PairRepository) SetActive(id int, active bool) error {
	query := `
		UPDATE trading_pairs
		SET is_active = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, active, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRows(result, ErrPairNotFound)
}

// Delete удаляет пару
func (r *PairRepository) Delete(id int) error {
	query := `DELETE FROM trading_pairs WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	return requireRows(result, ErrPairNotFound)
}

// ExistsBySymbol проверяет существование пары по символу
func (r *PairRepository) ExistsBySymbol(symbol string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM trading_pairs WHERE symbol = $1)`

	var exists bool
	err := r.db.QueryRow(query, symbol).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// requireRows возвращает notFound, если запрос не затронул ни одной строки
func requireRows(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
