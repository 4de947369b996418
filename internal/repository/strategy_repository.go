package repository

import (
	"database/sql"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradingbot/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки репозитория стратегий
var (
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrStrategyExists   = errors.New("strategy already exists")
)

// StrategyRepository - работа с таблицей trading_strategies
//
// Расписание торговли и история изменений хранятся JSONB колонками.
type StrategyRepository struct {
	db *sql.DB
}

// NewStrategyRepository создает новый экземпляр репозитория
func NewStrategyRepository(db *sql.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

const strategyColumns = `id, name, description, is_active, timeframe, max_positions, max_drawdown, profit_target, stop_loss, trading_hours, version, change_history, created_at, updated_at`

// Create создает новую стратегию
func (r *StrategyRepository) Create(s *models.TradingStrategy) error {
	query := `
		INSERT INTO trading_strategies (name, description, is_active, timeframe, max_positions, max_drawdown, profit_target, stop_loss, trading_hours, version, change_history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Version == "" {
		s.Version = "1.0.0"
	}

	hours, err := json.Marshal(s.TradingHours)
	if err != nil {
		return err
	}
	history, err := json.Marshal(s.ChangeHistory)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(
		query,
		s.Name,
		s.Description,
		s.IsActive,
		s.Timeframe,
		s.MaxPositions,
		s.MaxDrawdown,
		s.ProfitTarget,
		s.StopLossPct,
		hours,
		s.Version,
		history,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrStrategyExists
		}
		return err
	}

	return nil
}

func scanStrategy(row interface{ Scan(...interface{}) error }) (*models.TradingStrategy, error) {
	s := &models.TradingStrategy{}
	var hours, history []byte

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Description,
		&s.IsActive,
		&s.Timeframe,
		&s.MaxPositions,
		&s.MaxDrawdown,
		&s.ProfitTarget,
		&s.StopLossPct,
		&hours,
		&s.Version,
		&history,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &s.TradingHours); err != nil {
			return nil, err
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &s.ChangeHistory); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// GetByID возвращает стратегию по ID
func (r *StrategyRepository) GetByID(id int) (*models.TradingStrategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM trading_strategies WHERE id = $1`

	s, err := scanStrategy(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}
	return s, nil
}

// GetByName возвращает стратегию по имени
func (r *StrategyRepository) GetByName(name string) (*models.TradingStrategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM trading_strategies WHERE name = $1`

	s, err := scanStrategy(r.db.QueryRow(query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}
	return s, nil
}

// GetActive возвращает активные стратегии
func (r *StrategyRepository) GetActive() ([]*models.TradingStrategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM trading_strategies WHERE is_active = TRUE ORDER BY name`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strategies []*models.TradingStrategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return strategies, nil
}

// Update обновляет стратегию
func (r *StrategyRepository) Update(s *models.TradingStrategy) error {
	query := `
		UPDATE trading_strategies
		SET name = $1, description = $2, is_active = $3, timeframe = $4, max_positions = $5, max_drawdown = $6, profit_target = $7, stop_loss = $8, trading_hours = $9, version = $10, change_history = $11, updated_at = $12
		WHERE id = $13`

	s.UpdatedAt = time.Now()

	hours, err := json.Marshal(s.TradingHours)
	if err != nil {
		return err
	}
	history, err := json.Marshal(s.ChangeHistory)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(
		query,
		s.Name,
		s.Description,
		s.IsActive,
		s.Timeframe,
		s.MaxPositions,
		s.MaxDrawdown,
		s.ProfitTarget,
		s.StopLossPct,
		hours,
		s.Version,
		history,
		s.UpdatedAt,
		s.ID,
	)
	if err != nil {
		return err
	}

	return requireRows(result, ErrStrategyNotFound)
}

// SetActive включает или выключает стратегию
func (r *StrategyRepository) SetActive(id int, active bool) error {
	query := `
		UPDATE trading_strategies
		SET is_active = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, active, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRows(result, ErrStrategyNotFound)
}
