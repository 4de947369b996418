package bot

import (
	"context"
	"errors"
	"time"

	"tradingbot/internal/exchange"
	"tradingbot/internal/models"
	"tradingbot/internal/repository"
)

// ============================================================
// Моки хранилищ и коллабораторов
// ============================================================

type mockPositionStore struct {
	open        []*models.Position
	createErr   error
	created     []*models.Position
	closed      []int64
	trailingSet map[int64]float64
	openRisk    float64
}

func newMockPositionStore() *mockPositionStore {
	return &mockPositionStore{trailingSet: make(map[int64]float64)}
}

func (m *mockPositionStore) Create(pos *models.Position) error {
	if m.createErr != nil {
		return m.createErr
	}
	pos.ID = int64(len(m.created) + 1)
	m.created = append(m.created, pos)
	m.open = append(m.open, pos)
	return nil
}

func (m *mockPositionStore) GetOpenByStrategy(pairID int, strategyName string) (*models.Position, error) {
	for _, pos := range m.open {
		if pos.TradingPairID == pairID && pos.StrategyName == strategyName && pos.IsOpen() {
			return pos, nil
		}
	}
	return nil, repository.ErrPositionNotFound
}

func (m *mockPositionStore) GetOpen() ([]*models.Position, error) {
	var out []*models.Position
	for _, pos := range m.open {
		if pos.IsOpen() {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *mockPositionStore) UpdateMarks(id int64, currentPrice, unrealizedPnl float64) error {
	return nil
}

func (m *mockPositionStore) UpdateTrailingStop(id int64, stop float64) error {
	m.trailingSet[id] = stop
	return nil
}

func (m *mockPositionStore) Close(id int64, exitPrice, realizedPnl float64, closedAt time.Time) error {
	for _, pos := range m.open {
		if pos.ID == id {
			pos.Status = models.PositionClosed
			pos.RealizedPnl = realizedPnl
			pos.ClosedAt = &closedAt
			m.closed = append(m.closed, id)
			return nil
		}
	}
	return repository.ErrPositionNotFound
}

func (m *mockPositionStore) CountOpen() (int, error) {
	out, _ := m.GetOpen()
	return len(out), nil
}

func (m *mockPositionStore) SumOpenRisk() (float64, error) {
	return m.openRisk, nil
}

type mockSnapshotStore struct {
	latest *models.PortfolioSnapshot
	first  *models.PortfolioSnapshot
	stored []*models.PortfolioSnapshot
}

func (m *mockSnapshotStore) Insert(snap *models.PortfolioSnapshot) error {
	m.stored = append(m.stored, snap)
	return nil
}

func (m *mockSnapshotStore) GetLatest() (*models.PortfolioSnapshot, error) {
	if m.latest == nil {
		return nil, repository.ErrSnapshotNotFound
	}
	return m.latest, nil
}

func (m *mockSnapshotStore) GetFirstSince(since time.Time) (*models.PortfolioSnapshot, error) {
	if m.first == nil {
		return nil, repository.ErrSnapshotNotFound
	}
	return m.first, nil
}

type mockCandleStore struct {
	candles    []*models.Candle
	insertErr  error
	insertCnt  int
	deletedCut time.Time
}

func (m *mockCandleStore) Insert(candle *models.Candle) (bool, error) {
	m.insertCnt++
	if m.insertErr != nil {
		return false, m.insertErr
	}
	m.candles = append(m.candles, candle)
	return true, nil
}

func (m *mockCandleStore) GetRecent(pairID, limit int) ([]*models.Candle, error) {
	return m.candles, nil
}

func (m *mockCandleStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	m.deletedCut = cutoff
	return 0, nil
}

type mockIndicatorStore struct {
	stored []*models.IndicatorSnapshot
}

func (m *mockIndicatorStore) Insert(snap *models.IndicatorSnapshot) error {
	m.stored = append(m.stored, snap)
	return nil
}

type mockOrderStore struct {
	orders []*models.Order
}

func (m *mockOrderStore) Create(order *models.Order) error {
	m.orders = append(m.orders, order)
	return nil
}

type mockSyslogStore struct {
	entries []*models.SystemLog
}

func (m *mockSyslogStore) Insert(entry *models.SystemLog) error {
	m.entries = append(m.entries, entry)
	return nil
}

type mockSentiment struct {
	value models.Sentiment
	err   error
}

func (m *mockSentiment) Aggregate(pairID int, since time.Time) (models.Sentiment, error) {
	return m.value, m.err
}

type placedOrder struct {
	Symbol string
	Side   string
	Qty    float64
}

type mockOrderClient struct {
	price     float64
	priceErr  error
	orderErr  error
	execPrice float64
	placed    []placedOrder
	calls     int

	// Возвращать orderErr только для первых n ордеров
	failFirst int
}

func (m *mockOrderClient) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*exchange.OrderResult, error) {
	m.calls++
	if m.orderErr != nil && (m.failFirst == 0 || m.calls <= m.failFirst) {
		return nil, m.orderErr
	}
	m.placed = append(m.placed, placedOrder{Symbol: symbol, Side: side, Qty: qty})
	execPrice := m.execPrice
	if execPrice == 0 {
		execPrice = m.price
	}
	return &exchange.OrderResult{
		OrderID:       int64(len(m.placed)),
		Symbol:        symbol,
		Side:          side,
		Type:          exchange.OrderTypeMarket,
		Status:        "FILLED",
		Quantity:      qty,
		ExecutedQty:   qty,
		ExecutedPrice: execPrice,
		TransactTime:  time.Now(),
	}, nil
}

func (m *mockOrderClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if m.priceErr != nil {
		return 0, m.priceErr
	}
	return m.price, nil
}

func (m *mockOrderClient) GetAccountBalance(ctx context.Context, asset string) (*exchange.Balance, error) {
	return &exchange.Balance{Asset: asset, Free: 10000}, nil
}

var errStoreDown = errors.New("store unavailable")
