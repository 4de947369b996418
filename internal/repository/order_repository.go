package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradingbot/internal/models"
)

// Ошибки репозитория ордеров
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository - работа с таблицей orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, trading_pair_id, position_id, exchange_order_id, side, type, status, quantity, price, executed_qty, executed_price, commission_paid, created_at`

// Create записывает ордер
func (r *OrderRepository) Create(order *models.Order) error {
	query := `
		INSERT INTO orders (trading_pair_id, position_id, exchange_order_id, side, type, status, quantity, price, executed_qty, executed_price, commission_paid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	return r.db.QueryRow(
		query,
		order.TradingPairID,
		order.PositionID,
		order.ExchangeOrderID,
		order.Side,
		order.Type,
		order.Status,
		order.Quantity,
		order.Price,
		order.ExecutedQty,
		order.ExecutedPrice,
		order.CommissionPaid,
		order.CreatedAt,
	).Scan(&order.ID)
}

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.TradingPairID,
		&order.PositionID,
		&order.ExchangeOrderID,
		&order.Side,
		&order.Type,
		&order.Status,
		&order.Quantity,
		&order.Price,
		&order.ExecutedQty,
		&order.ExecutedPrice,
		&order.CommissionPaid,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetByPosition возвращает ордера позиции от старых к новым
func (r *OrderRepository) GetByPosition(positionID int64) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE position_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(query, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// UpdateStatus обновляет статус ордера и исполненный объём
func (r *OrderRepository) UpdateStatus(id int64, status string, executedQty, executedPrice float64) error {
	query := `
		UPDATE orders
		SET status = $1, executed_qty = $2, executed_price = $3
		WHERE id = $4`

	result, err := r.db.Exec(query, status, executedQty, executedPrice, id)
	if err != nil {
		return err
	}

	return requireRows(result, ErrOrderNotFound)
}
