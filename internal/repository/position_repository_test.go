package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"tradingbot/internal/models"
)

// ============================================================
// PositionRepository Tests
// ============================================================

func TestPositionRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO positions`).
		WithArgs(1, models.SideLong, models.PositionOpen, 0.5, 50000.0, 50000.0,
			48000.0, 54000.0, 48000.0, float64(0), float64(0), "momentum", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	repo := NewPositionRepository(db)
	pos := &models.Position{
		TradingPairID: 1,
		Side:          models.SideLong,
		Quantity:      0.5,
		EntryPrice:    50000,
		CurrentPrice:  50000,
		StopLoss:      48000,
		TakeProfit:    54000,
		TrailingStop:  48000,
		StrategyName:  "momentum",
	}

	if err := repo.Create(pos); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.ID != 11 {
		t.Errorf("ID = %d, want 11", pos.ID)
	}
	if pos.Status != models.PositionOpen {
		t.Errorf("status = %s, want OPEN", pos.Status)
	}
	if pos.OpenedAt.IsZero() {
		t.Error("OpenedAt not set")
	}
}

func TestPositionRepositoryGetOpenByStrategy(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	opened := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "trading_pair_id", "side", "status", "quantity", "entry_price",
		"current_price", "stop_loss", "take_profit", "trailing_stop",
		"realized_pnl", "unrealized_pnl", "strategy_name", "opened_at", "closed_at",
	}).AddRow(11, 1, models.SideLong, models.PositionOpen, 0.5, 50000.0, 51000.0,
		48000.0, 54000.0, 48500.0, 0.0, 500.0, "momentum", opened, nil)

	mock.ExpectQuery(`SELECT .+ FROM positions`).
		WithArgs(1, "momentum", models.PositionOpen).
		WillReturnRows(rows)

	repo := NewPositionRepository(db)
	pos, err := repo.GetOpenByStrategy(1, "momentum")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pos.IsOpen() || !pos.IsLong() {
		t.Errorf("unexpected position: %+v", pos)
	}
	if pos.ClosedAt != nil {
		t.Error("ClosedAt must be nil for open position")
	}
	if pos.UnrealizedPnl != 500.0 {
		t.Errorf("UnrealizedPnl = %v", pos.UnrealizedPnl)
	}
}

func TestPositionRepositoryGetOpenByStrategyNone(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM positions`).
		WithArgs(1, "momentum", models.PositionOpen).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := NewPositionRepository(db)
	_, err = repo.GetOpenByStrategy(1, "momentum")
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestPositionRepositoryClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	closedAt := time.Now()
	mock.ExpectExec(`UPDATE positions`).
		WithArgs(models.PositionClosed, 52000.0, 1000.0, closedAt, int64(11), models.PositionOpen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPositionRepository(db)
	if err := repo.Close(11, 52000, 1000, closedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPositionRepositoryCloseTwice(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	closedAt := time.Now()

	// Повторное закрытие: строка уже не в статусе OPEN
	mock.ExpectExec(`UPDATE positions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM positions`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(models.PositionClosed))

	repo := NewPositionRepository(db)
	err = repo.Close(11, 52000, 1000, closedAt)
	if !errors.Is(err, ErrPositionClosed) {
		t.Errorf("expected ErrPositionClosed, got %v", err)
	}
}

func TestPositionRepositoryCloseMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE positions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM positions`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	repo := NewPositionRepository(db)
	err = repo.Close(99, 52000, 1000, time.Now())
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestPositionRepositoryUpdateTrailingStop(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE positions`).
		WithArgs(49000.0, int64(11), models.PositionOpen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPositionRepository(db)
	if err := repo.UpdateTrailingStop(11, 49000); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPositionRepositorySumOpenRisk(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs(models.PositionOpen).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1250.0))

	repo := NewPositionRepository(db)
	total, err := repo.SumOpenRisk()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1250.0 {
		t.Errorf("total = %v, want 1250", total)
	}
}
