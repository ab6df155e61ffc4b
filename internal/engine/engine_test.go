package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"tradeflow/internal/capital"
	"tradeflow/internal/execmode"
	"tradeflow/internal/pnl"
	"tradeflow/internal/provider/paper"
	"tradeflow/internal/risk"
	"tradeflow/internal/router"
	"tradeflow/internal/sigproc"
	"tradeflow/internal/types"

	"github.com/stretchr/testify/assert"
)

// stubQuotes is a settable quote board so tests can move the market
// between fills.
type stubQuotes struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newStubQuotes() *stubQuotes {
	return &stubQuotes{prices: map[string]float64{}}
}

func (s *stubQuotes) set(symbol string, price float64) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()
}

func (s *stubQuotes) Name() string { return "stub_quotes" }

func (s *stubQuotes) GetCurrentPrice(ctx context.Context, symbol string) (*types.MarketData, error) {
	s.mu.Lock()
	price, ok := s.prices[symbol]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &types.MarketData{Symbol: symbol, Price: price, Timestamp: time.Now(), Provider: "stub_quotes"}, nil
}

func (s *stubQuotes) IsMarketOpen(ctx context.Context) (bool, error) { return true, nil }

func (s *stubQuotes) ValidateSymbol(ctx context.Context, symbol string) (bool, error) {
	return true, nil
}

func (s *stubQuotes) HealthCheck(ctx context.Context) types.ProviderHealth {
	return types.ProviderHealth{Provider: "stub_quotes", Status: types.HealthHealthy}
}

type harness struct {
	engine *Engine
	quotes *stubQuotes
	venue  *paper.Provider
	gate   *execmode.Gate
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	quotes := newStubQuotes()
	gate := execmode.NewGate(nil)
	venue := paper.New(paper.Config{}, quotes)
	validator := risk.NewValidator(risk.Config{}, capital.NewManager(nil), venue, nil)
	processor := sigproc.NewProcessor(sigproc.Config{}, quotes, nil, nil, gate)
	rt := router.New(router.Config{}, gate, nil, venue)
	reconciler := pnl.NewReconciler(quotes, nil)

	eng, err := New(Config{}, validator, processor, rt, reconciler, nil, nil)
	assert.NoError(t, err)
	return &harness{engine: eng, quotes: quotes, venue: venue, gate: gate}
}

func TestBuySignalExecutesOnSimulatedVenue(t *testing.T) {
	h := newHarness(t)
	h.quotes.set("AAPL", 150)

	sig := types.NewSignal("AAPL", types.SideBuy, 10)
	out, err := h.engine.ProcessSignal(context.Background(), sig)
	assert.NoError(t, err)

	assert.Equal(t, types.SignalExecuted, out.Status)
	assert.Equal(t, "paper_trading_simulation", out.Venue)
	assert.InDelta(t, 150, out.ExecutionPrice, 1e-9)
	assert.Contains(t, out.Metadata, "execution")

	trades := h.engine.Trades()
	assert.Len(t, trades, 1)
	assert.Equal(t, types.TradeOpen, trades[0].Status)
	assert.InDelta(t, 10, trades[0].Quantity, 1e-9)
	assert.InDelta(t, 150, trades[0].EntryPrice, 1e-9)
}

func TestSellClosesOpenBuysOldestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.quotes.set("AAPL", 100)
	first, err := h.engine.ProcessSignal(ctx, types.NewSignal("AAPL", types.SideBuy, 5))
	assert.NoError(t, err)
	assert.Equal(t, types.SignalExecuted, first.Status)

	h.quotes.set("AAPL", 110)
	second, err := h.engine.ProcessSignal(ctx, types.NewSignal("AAPL", types.SideBuy, 5))
	assert.NoError(t, err)
	assert.Equal(t, types.SignalExecuted, second.Status)

	h.quotes.set("AAPL", 120)
	sell, err := h.engine.ProcessSignal(ctx, types.NewSignal("AAPL", types.SideSell, 5))
	assert.NoError(t, err)
	assert.Equal(t, types.SignalExecuted, sell.Status)

	var closed []types.Trade
	for _, tr := range h.engine.Trades() {
		if tr.Status == types.TradeClosed {
			closed = append(closed, tr)
		}
	}
	assert.Len(t, closed, 1)
	// The oldest buy (entry 100) closes first.
	assert.Equal(t, first.ID, closed[0].ID)
	assert.NotNil(t, closed[0].PnL)
	assert.InDelta(t, 100, *closed[0].PnL, 1e-9)

	metrics := h.engine.RiskMetrics(ctx)
	assert.InDelta(t, 100, metrics.DailyPnL, 1e-9)
}

func TestPartialCloseSplitsTrade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.quotes.set("AAPL", 150)
	buy, err := h.engine.ProcessSignal(ctx, types.NewSignal("AAPL", types.SideBuy, 10))
	assert.NoError(t, err)
	assert.Equal(t, types.SignalExecuted, buy.Status)

	h.quotes.set("AAPL", 170)
	sell, err := h.engine.ProcessSignal(ctx, types.NewSignal("AAPL", types.SideSell, 4))
	assert.NoError(t, err)
	assert.Equal(t, types.SignalExecuted, sell.Status)

	var open, closed *types.Trade
	for _, tr := range h.engine.Trades() {
		tr := tr
		switch tr.Status {
		case types.TradeOpen:
			open = &tr
		case types.TradeClosed:
			closed = &tr
		}
	}
	assert.NotNil(t, open)
	assert.NotNil(t, closed)
	assert.InDelta(t, 6, open.Quantity, 1e-9)
	assert.Equal(t, buy.ID+"_c1", closed.ID)
	assert.InDelta(t, 4, closed.Quantity, 1e-9)
	assert.InDelta(t, 80, *closed.PnL, 1e-9)
}

func TestRiskRejectionBlocksSignal(t *testing.T) {
	h := newHarness(t)
	h.quotes.set("AAPL", 150)

	// The paper account starts at 100k; the fallback position cap is 10%
	// of that, so a 150k order cannot pass.
	sig := types.NewSignal("AAPL", types.SideBuy, 1000)
	sig.Price = 150
	out, err := h.engine.ProcessSignal(context.Background(), sig)
	assert.NoError(t, err)
	assert.Equal(t, types.SignalBlocked, out.Status)
	assert.NotEmpty(t, out.BlockReason)
}

func TestMissingPriceDataBlocksSignal(t *testing.T) {
	h := newHarness(t)

	out, err := h.engine.ProcessSignal(context.Background(), types.NewSignal("ZZZZ", types.SideBuy, 1))
	assert.NoError(t, err)
	assert.Equal(t, types.SignalBlocked, out.Status)
	assert.Equal(t, "No price data available for ZZZZ", out.BlockReason)
}

func TestPanicBecomesBlockedSignal(t *testing.T) {
	h := newHarness(t)
	h.quotes.set("AAPL", 150)

	// A nil processor panics mid-pipeline; the engine must surface that
	// as a BLOCKED signal, never a crash.
	eng, err := New(Config{}, h.engine.risk, nil, h.engine.router, h.engine.reconciler, nil, nil)
	assert.NoError(t, err)

	out, err := eng.ProcessSignal(context.Background(), types.NewSignal("AAPL", types.SideBuy, 1))
	assert.NoError(t, err)
	assert.Equal(t, types.SignalBlocked, out.Status)
	assert.Contains(t, out.BlockReason, "System error")
}

func TestQuerySurfaceTracksLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.quotes.set("AAPL", 150)

	executed, err := h.engine.ProcessSignal(ctx, types.NewSignal("AAPL", types.SideBuy, 2))
	assert.NoError(t, err)
	assert.Equal(t, types.SignalExecuted, executed.Status)

	blocked, err := h.engine.ProcessSignal(ctx, types.NewSignal("ZZZZ", types.SideBuy, 1))
	assert.NoError(t, err)
	assert.Equal(t, types.SignalBlocked, blocked.Status)

	got, ok := h.engine.SignalByID(executed.ID)
	assert.True(t, ok)
	assert.Equal(t, executed.ID, got.ID)

	assert.Len(t, h.engine.ExecutedSignals(), 1)
	assert.Len(t, h.engine.BlockedSignals(), 1)
	assert.Empty(t, h.engine.ActiveSignals())

	recent := h.engine.RecentSignals(1)
	assert.Len(t, recent, 1)

	executions := h.engine.RecentExecutions(10)
	assert.Len(t, executions, 1)
	assert.Equal(t, executed.ID, executions[0].ID)

	summary := h.engine.StatusSummary()
	assert.Equal(t, 1, summary[types.SignalExecuted])
	assert.Equal(t, 1, summary[types.SignalBlocked])
}

func TestConcentrationShrinkRecordsOriginalQuantity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.quotes.set("TSLA", 10)

	// Seed $5000 of TSLA. The next order is checked against a $95000
	// balance: the 15% concentration cap leaves $9250 of room, so a
	// $9400 request shrinks to 925 shares instead of rejecting.
	seed := types.NewSignal("TSLA", types.SideBuy, 500)
	seed.Price = 10
	out, err := h.engine.ProcessSignal(ctx, seed)
	assert.NoError(t, err)
	assert.Equal(t, types.SignalExecuted, out.Status)

	sig := types.NewSignal("TSLA", types.SideBuy, 940)
	sig.Price = 10
	out, err = h.engine.ProcessSignal(ctx, sig)
	assert.NoError(t, err)
	assert.Equal(t, types.SignalExecuted, out.Status)
	assert.InDelta(t, 925, out.Quantity, 1e-9)
	assert.Equal(t, 940.0, out.Metadata["original_quantity"])
}

func TestReconcileReportsPositionsAndMetrics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.quotes.set("AAPL", 100)
	_, err := h.engine.ProcessSignal(ctx, types.NewSignal("AAPL", types.SideBuy, 10))
	assert.NoError(t, err)

	h.quotes.set("AAPL", 120)
	_, err = h.engine.ProcessSignal(ctx, types.NewSignal("AAPL", types.SideSell, 4))
	assert.NoError(t, err)

	positions, metrics, err := h.engine.Reconcile(ctx)
	assert.NoError(t, err)
	assert.Len(t, positions, 1)
	assert.InDelta(t, 6, positions[0].Quantity, 1e-9)
	assert.InDelta(t, 120, positions[0].CurrentPrice, 1e-9)
	assert.InDelta(t, 120, positions[0].UnrealizedPnL, 1e-9)

	assert.InDelta(t, 80, metrics.RealizedPnL, 1e-9)
	assert.InDelta(t, 200, metrics.TotalPnL, 1e-9)
	assert.InDelta(t, 100, metrics.WinRate, 1e-9)
}

func TestSignalLogIsBounded(t *testing.T) {
	h := newHarness(t)
	h.quotes.set("AAPL", 10)

	eng, err := New(Config{SignalLogSize: 3}, h.engine.risk, h.engine.processor, h.engine.router, h.engine.reconciler, nil, nil)
	assert.NoError(t, err)

	ctx := context.Background()
	var last *types.TradingSignal
	for i := 0; i < 5; i++ {
		last, err = eng.ProcessSignal(ctx, types.NewSignal("AAPL", types.SideBuy, 1))
		assert.NoError(t, err)
	}
	assert.Equal(t, types.SignalExecuted, last.Status)
	assert.LessOrEqual(t, len(eng.RecentSignals(0)), 3)
	_, ok := eng.SignalByID(last.ID)
	assert.True(t, ok)
}

func TestEvictionSkipsInFlightSignals(t *testing.T) {
	h := newHarness(t)
	h.quotes.set("AAPL", 10)

	eng, err := New(Config{SignalLogSize: 2}, h.engine.risk, h.engine.processor, h.engine.router, h.engine.reconciler, nil, nil)
	assert.NoError(t, err)

	// An in-flight signal sits at the front of the log while later
	// signals force evictions past it.
	inflight := types.NewSignal("AAPL", types.SideBuy, 1)
	inflight.Status = types.SignalProcessing
	eng.track(inflight)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err = eng.ProcessSignal(ctx, types.NewSignal("AAPL", types.SideBuy, 1))
		assert.NoError(t, err)
	}

	// Still queryable: only terminal signals may be evicted.
	got, ok := eng.SignalByID(inflight.ID)
	assert.True(t, ok)
	assert.Equal(t, inflight.ID, got.ID)

	// Every tracked signal stays reachable through the log.
	eng.mu.Lock()
	assert.Equal(t, len(eng.signalLog), len(eng.signals))
	eng.mu.Unlock()
}
