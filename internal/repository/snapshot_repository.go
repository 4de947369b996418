package repository

import (
	"database/sql"
	"errors"
	"time"

	"tradingbot/internal/models"
)

// Ошибки репозитория снимков портфеля
var ErrSnapshotNotFound = errors.New("portfolio snapshot not found")

// SnapshotRepository - работа с таблицей portfolio_snapshots
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository создает новый экземпляр репозитория
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `id, snapshot_time, total_value_usdt, free_usdt, locked_usdt, daily_pnl, daily_pnl_percentage, total_pnl, daily_drawdown, max_drawdown, open_positions`

// Insert записывает снимок портфеля
func (r *SnapshotRepository) Insert(snap *models.PortfolioSnapshot) error {
	query := `
		INSERT INTO portfolio_snapshots (snapshot_time, total_value_usdt, free_usdt, locked_usdt, daily_pnl, daily_pnl_percentage, total_pnl, daily_drawdown, max_drawdown, open_positions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	if snap.SnapshotTime.IsZero() {
		snap.SnapshotTime = time.Now()
	}

	return r.db.QueryRow(
		query,
		snap.SnapshotTime,
		snap.TotalValueUSDT,
		snap.FreeUSDT,
		snap.LockedUSDT,
		snap.DailyPnl,
		snap.DailyPnlPct,
		snap.TotalPnl,
		snap.DailyDrawdown,
		snap.MaxDrawdown,
		snap.OpenPositions,
	).Scan(&snap.ID)
}

func scanSnapshot(row interface{ Scan(...interface{}) error }) (*models.PortfolioSnapshot, error) {
	snap := &models.PortfolioSnapshot{}
	err := row.Scan(
		&snap.ID,
		&snap.SnapshotTime,
		&snap.TotalValueUSDT,
		&snap.FreeUSDT,
		&snap.LockedUSDT,
		&snap.DailyPnl,
		&snap.DailyPnlPct,
		&snap.TotalPnl,
		&snap.DailyDrawdown,
		&snap.MaxDrawdown,
		&snap.OpenPositions,
	)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// GetLatest возвращает последний снимок портфеля
func (r *SnapshotRepository) GetLatest() (*models.PortfolioSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM portfolio_snapshots
		ORDER BY snapshot_time DESC
		LIMIT 1`

	snap, err := scanSnapshot(r.db.QueryRow(query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return snap, nil
}

// GetFirstSince возвращает первый снимок после границы
//
// Используется риск-движком как база дневной просадки: первый
// снимок текущего дня.
func (r *SnapshotRepository) GetFirstSince(since time.Time) (*models.PortfolioSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM portfolio_snapshots
		WHERE snapshot_time >= $1
		ORDER BY snapshot_time ASC
		LIMIT 1`

	snap, err := scanSnapshot(r.db.QueryRow(query, since))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return snap, nil
}

// DeleteOlderThan удаляет снимки старше границы, возвращает число удалённых
func (r *SnapshotRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	query := `DELETE FROM portfolio_snapshots WHERE snapshot_time < $1`

	result, err := r.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
