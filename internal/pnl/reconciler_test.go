package pnl

import (
	"context"
	"testing"
	"time"

	"tradeflow/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPriceProvider struct {
	mock.Mock
}

func (m *MockPriceProvider) Name() string { return "mock_price" }

func (m *MockPriceProvider) GetCurrentPrice(ctx context.Context, symbol string) (*types.MarketData, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.MarketData), args.Error(1)
}

func (m *MockPriceProvider) IsMarketOpen(ctx context.Context) (bool, error) { return true, nil }

func (m *MockPriceProvider) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	return true, nil
}

func (m *MockPriceProvider) HealthCheck(ctx context.Context) types.ProviderHealth {
	return types.ProviderHealth{Provider: "mock_price", Status: types.HealthHealthy}
}

type MockSnapshotter struct {
	mock.Mock
}

func (m *MockSnapshotter) SavePositionSnapshots(positions []types.Position) error {
	args := m.Called(positions)
	return args.Error(0)
}

func (m *MockSnapshotter) SaveMetrics(metrics map[string]float64) error {
	args := m.Called(metrics)
	return args.Error(0)
}

func (m *MockSnapshotter) RecordPrice(symbol string, price float64, source string) error {
	args := m.Called(symbol, price, source)
	return args.Error(0)
}

func (m *MockSnapshotter) LatestPrice(symbol string) (float64, bool, error) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

func openTrade(id, sym string, qty, entry float64) types.Trade {
	return types.Trade{
		ID:         id,
		Symbol:     sym,
		Side:       types.SideBuy,
		Quantity:   qty,
		EntryPrice: entry,
		EntryTime:  time.Now().Add(-time.Hour),
		Status:     types.TradeOpen,
	}
}

func closedTrade(id string, pnl float64, exitedAt time.Time) types.Trade {
	return types.Trade{
		ID:       id,
		Symbol:   "AAPL",
		Side:     types.SideBuy,
		Quantity: 1,
		Status:   types.TradeClosed,
		ExitTime: exitedAt,
		PnL:      &pnl,
	}
}

func TestPositionAggregationVWAP(t *testing.T) {
	price := &MockPriceProvider{}
	price.On("GetCurrentPrice", mock.Anything, "AAPL").Return(&types.MarketData{
		Symbol: "AAPL", Price: 120, Provider: "mock_price",
	}, nil)

	r := NewReconciler(price, nil)
	trades := []types.Trade{
		openTrade("t1", "AAPL", 10, 100),
		openTrade("t2", "AAPL", 10, 110),
	}
	positions, err := r.CalculatePositionPnL(context.Background(), trades)
	assert.NoError(t, err)
	assert.Len(t, positions, 1)

	p := positions[0]
	assert.InDelta(t, 20, p.Quantity, 1e-9)
	assert.InDelta(t, 105, p.EntryPrice, 1e-9)
	assert.InDelta(t, 120, p.CurrentPrice, 1e-9)
	assert.InDelta(t, 300, p.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 300.0/2100*100, p.UnrealizedPnLPct, 1e-9)
	assert.ElementsMatch(t, []string{"t1", "t2"}, p.ContributingTrade)
}

func TestShortPositionSignConvention(t *testing.T) {
	price := &MockPriceProvider{}
	price.On("GetCurrentPrice", mock.Anything, "TSLA").Return(&types.MarketData{
		Symbol: "TSLA", Price: 90, Provider: "mock_price",
	}, nil)

	r := NewReconciler(price, nil)
	short := openTrade("s1", "TSLA", 5, 100)
	short.Side = types.SideSell

	positions, err := r.CalculatePositionPnL(context.Background(), []types.Trade{short})
	assert.NoError(t, err)
	assert.Len(t, positions, 1)
	// Short entered at 100, marked at 90: +50 unrealized.
	assert.InDelta(t, 50, positions[0].UnrealizedPnL, 1e-9)
}

func TestClosedTradesProduceNoPositions(t *testing.T) {
	r := NewReconciler(nil, nil)
	pnl := 25.0
	trades := []types.Trade{
		{ID: "c1", Symbol: "AAPL", Side: types.SideBuy, Quantity: 10, Status: types.TradeClosed, PnL: &pnl},
	}
	positions, err := r.CalculatePositionPnL(context.Background(), trades)
	assert.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPriceFallbackChain(t *testing.T) {
	price := &MockPriceProvider{}
	price.On("GetCurrentPrice", mock.Anything, "AAPL").Return(nil, assert.AnError)

	st := &MockSnapshotter{}
	st.On("LatestPrice", "AAPL").Return(115.0, true, nil)
	st.On("SavePositionSnapshots", mock.Anything).Return(nil)

	r := NewReconciler(price, st)
	positions, err := r.CalculatePositionPnL(context.Background(), []types.Trade{openTrade("t1", "AAPL", 10, 100)})
	assert.NoError(t, err)
	assert.Len(t, positions, 1)
	assert.InDelta(t, 115, positions[0].CurrentPrice, 1e-9)
	assert.Equal(t, "price_history", positions[0].PriceSource)
}

func TestEntryPriceFallbackWhenNoMarketData(t *testing.T) {
	price := &MockPriceProvider{}
	price.On("GetCurrentPrice", mock.Anything, "AAPL").Return(nil, assert.AnError)

	st := &MockSnapshotter{}
	st.On("LatestPrice", "AAPL").Return(0.0, false, nil)
	st.On("SavePositionSnapshots", mock.Anything).Return(nil)

	r := NewReconciler(price, st)
	positions, err := r.CalculatePositionPnL(context.Background(), []types.Trade{openTrade("t1", "AAPL", 10, 100)})
	assert.NoError(t, err)
	assert.Len(t, positions, 1)
	assert.InDelta(t, 100, positions[0].CurrentPrice, 1e-9)
	assert.Equal(t, "entry_fallback", positions[0].PriceSource)
	assert.Zero(t, positions[0].UnrealizedPnL)
}

func TestPerformanceMetricsFromClosedTrades(t *testing.T) {
	r := NewReconciler(nil, nil)

	base := time.Now().Add(-time.Hour)
	pnls := []float64{100, -40, 60, -20, 80}
	trades := make([]types.Trade, 0, len(pnls))
	for i, p := range pnls {
		trades = append(trades, closedTrade("c"+string(rune('1'+i)), p, base.Add(time.Duration(i)*time.Minute)))
	}

	m, err := r.CalculatePerformanceMetrics(context.Background(), trades, nil)
	assert.NoError(t, err)

	assert.Equal(t, 5, m.ClosedTrades)
	assert.Equal(t, 3, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.InDelta(t, 60, m.WinRate, 1e-9)
	assert.InDelta(t, 180, m.RealizedPnL, 1e-9)
	assert.InDelta(t, 240, m.GrossProfit, 1e-9)
	assert.InDelta(t, 60, m.GrossLoss, 1e-9)
	assert.InDelta(t, 4.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 100, m.LargestWin, 1e-9)
	assert.InDelta(t, 40, m.LargestLoss, 1e-9)
	assert.InDelta(t, 80, m.AverageWin, 1e-9)
	assert.InDelta(t, 30, m.AverageLoss, 1e-9)
	// Cumulative curve: 100, 60, 120, 100, 180 -> deepest fall is 40
	// off the 100 peak.
	assert.InDelta(t, 40, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 40, m.MaxDrawdownPercent, 1e-9)
	// Last trade was a win, so only the win streak is live.
	assert.Equal(t, 1, m.ConsecutiveWins)
	assert.Zero(t, m.ConsecutiveLosses)
	// Five closed trades is not enough for a Sharpe estimate.
	assert.Nil(t, m.SharpeRatio)
}

func TestWinRateCountsBreakEvenTrades(t *testing.T) {
	now := time.Now()
	r := NewReconciler(nil, nil)
	m, err := r.CalculatePerformanceMetrics(context.Background(), []types.Trade{
		closedTrade("t1", 100, now.Add(-2*time.Minute)),
		closedTrade("t2", 0, now.Add(-time.Minute)),
	}, nil)
	assert.NoError(t, err)

	// A flat exit is a closed trade that was not a win, so one win out
	// of two closed trades is 50%, not 100%.
	assert.Equal(t, 2, m.ClosedTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 0, m.LosingTrades)
	assert.InDelta(t, 50, m.WinRate, 1e-9)
}

func TestWinRateZeroWithNoClosedTrades(t *testing.T) {
	r := NewReconciler(nil, nil)
	m, err := r.CalculatePerformanceMetrics(context.Background(), []types.Trade{
		openTrade("t1", "AAPL", 10, 100),
	}, nil)
	assert.NoError(t, err)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.ProfitFactor)
	assert.Equal(t, 1, m.OpenTrades)
}

func TestSharpeRequiresMoreThanFiveTrades(t *testing.T) {
	r := NewReconciler(nil, nil)
	base := time.Now().Add(-time.Hour)
	var trades []types.Trade
	for i, p := range []float64{10, -5, 20, 8, -3, 12} {
		trades = append(trades, closedTrade("c"+string(rune('1'+i)), p, base.Add(time.Duration(i)*time.Minute)))
	}
	m, err := r.CalculatePerformanceMetrics(context.Background(), trades, nil)
	assert.NoError(t, err)
	assert.NotNil(t, m.SharpeRatio)
}

func TestMetricsCachedUntilInvalidate(t *testing.T) {
	r := NewReconciler(nil, nil)
	base := time.Now().Add(-time.Hour)
	trades := []types.Trade{closedTrade("c1", 50, base)}

	first, err := r.CalculatePerformanceMetrics(context.Background(), trades, nil)
	assert.NoError(t, err)
	second, err := r.CalculatePerformanceMetrics(context.Background(), trades, nil)
	assert.NoError(t, err)
	assert.Equal(t, first, second)

	r.Invalidate()
	third, err := r.CalculatePerformanceMetrics(context.Background(), trades, nil)
	assert.NoError(t, err)
	assert.Equal(t, first.RealizedPnL, third.RealizedPnL)
	assert.Equal(t, first.WinRate, third.WinRate)
	assert.Equal(t, first.MaxDrawdown, third.MaxDrawdown)
}

func TestUnrealizedFoldedIntoTotal(t *testing.T) {
	r := NewReconciler(nil, nil)
	base := time.Now().Add(-time.Hour)
	trades := []types.Trade{closedTrade("c1", 50, base)}
	positions := []types.Position{{Symbol: "AAPL", UnrealizedPnL: 30}}

	m, err := r.CalculatePerformanceMetrics(context.Background(), trades, positions)
	assert.NoError(t, err)
	assert.InDelta(t, 50, m.RealizedPnL, 1e-9)
	assert.InDelta(t, 30, m.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 80, m.TotalPnL, 1e-9)
}
