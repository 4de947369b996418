package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradingbot/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
	ErrPositionClosed   = errors.New("position already closed")
)

// PositionRepository - работа с таблицей positions
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

const positionColumns = `id, trading_pair_id, side, status, quantity, entry_price, current_price, stop_loss, take_profit, trailing_stop, realized_pnl, unrealized_pnl, strategy_name, opened_at, closed_at`

// Create создает открытую позицию
func (r *PositionRepository) Create(pos *models.Position) error {
	query := `
		INSERT INTO positions (trading_pair_id, side, status, quantity, entry_price, current_price, stop_loss, take_profit, trailing_stop, realized_pnl, unrealized_pnl, strategy_name, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	if pos.Status == "" {
		pos.Status = models.PositionOpen
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now()
	}

	return r.db.QueryRow(
		query,
		pos.TradingPairID,
		pos.Side,
		pos.Status,
		pos.Quantity,
		pos.EntryPrice,
		pos.CurrentPrice,
		pos.StopLoss,
		pos.TakeProfit,
		pos.TrailingStop,
		pos.RealizedPnl,
		pos.UnrealizedPnl,
		pos.StrategyName,
		pos.OpenedAt,
	).Scan(&pos.ID)
}

func scanPosition(row interface{ Scan(...interface{}) error }) (*models.Position, error) {
	pos := &models.Position{}
	err := row.Scan(
		&pos.ID,
		&pos.TradingPairID,
		&pos.Side,
		&pos.Status,
		&pos.Quantity,
		&pos.EntryPrice,
		&pos.CurrentPrice,
		&pos.StopLoss,
		&pos.TakeProfit,
		&pos.TrailingStop,
		&pos.RealizedPnl,
		&pos.UnrealizedPnl,
		&pos.StrategyName,
		&pos.OpenedAt,
		&pos.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// GetByID возвращает позицию по ID
func (r *PositionRepository) GetByID(id int64) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	pos, err := scanPosition(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return pos, nil
}

// GetOpenByStrategy возвращает открытую позицию пары для стратегии
//
// Пара/стратегия держат не более одной открытой позиции.
func (r *PositionRepository) GetOpenByStrategy(pairID int, strategyName string) (*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE trading_pair_id = $1 AND strategy_name = $2 AND status = $3
		ORDER BY opened_at DESC
		LIMIT 1`

	pos, err := scanPosition(r.db.QueryRow(query, pairID, strategyName, models.PositionOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return pos, nil
}

// GetOpen возвращает все открытые позиции
func (r *PositionRepository) GetOpen() ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status = $1
		ORDER BY opened_at`

	return r.queryPositions(query, models.PositionOpen)
}

// GetClosedSince возвращает позиции, закрытые после границы
func (r *PositionRepository) GetClosedSince(since time.Time) ([]*models.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE status = $1 AND closed_at >= $2
		ORDER BY closed_at`

	return r.queryPositions(query, models.PositionClosed, since)
}

func (r *PositionRepository) queryPositions(query string, args ...interface{}) ([]*models.Position, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}

// UpdateMarks обновляет текущую цену и нереализованный PNL позиции
func (r *PositionRepository) UpdateMarks(id int64, currentPrice, unrealizedPnl float64) error {
	query := `
		UPDATE positions
		SET current_price = $1, unrealized_pnl = $2
		WHERE id = $3 AND status = $4`

	result, err := r.db.Exec(query, currentPrice, unrealizedPnl, id, models.PositionOpen)
	if err != nil {
		return err
	}

	return requireRows(result, ErrPositionNotFound)
}

// UpdateTrailingStop записывает новый trailing stop открытой позиции
func (r *PositionRepository) UpdateTrailingStop(id int64, stop float64) error {
	query := `
		UPDATE positions
		SET trailing_stop = $1
		WHERE id = $2 AND status = $3`

	result, err := r.db.Exec(query, stop, id, models.PositionOpen)
	if err != nil {
		return err
	}

	return requireRows(result, ErrPositionNotFound)
}

// Close закрывает позицию с итоговым PNL
//
// Условие status = OPEN делает закрытие однократным: повторный
// вызов возвращает ErrPositionClosed.
func (r *PositionRepository) Close(id int64, exitPrice, realizedPnl float64, closedAt time.Time) error {
	query := `
		UPDATE positions
		SET status = $1, current_price = $2, realized_pnl = $3, unrealized_pnl = 0, closed_at = $4
		WHERE id = $5 AND status = $6`

	result, err := r.db.Exec(query, models.PositionClosed, exitPrice, realizedPnl, closedAt, id, models.PositionOpen)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		// Различаем отсутствующую и уже закрытую позицию
		var status string
		err := r.db.QueryRow(`SELECT status FROM positions WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPositionNotFound
		}
		if err != nil {
			return err
		}
		return ErrPositionClosed
	}

	return nil
}

// CountOpen возвращает число открытых позиций
func (r *PositionRepository) CountOpen() (int, error) {
	query := `SELECT COUNT(*) FROM positions WHERE status = $1`

	var count int
	err := r.db.QueryRow(query, models.PositionOpen).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// SumOpenRisk возвращает сумму под риском всех открытых позиций:
// SUM(|entry_price - stop_loss| * quantity)
func (r *PositionRepository) SumOpenRisk() (float64, error) {
	query := `
		SELECT COALESCE(SUM(ABS(entry_price - stop_loss) * quantity), 0)
		FROM positions
		WHERE status = $1`

	var total float64
	err := r.db.QueryRow(query, models.PositionOpen).Scan(&total)
	if err != nil {
		return 0, err
	}

	return total, nil
}
