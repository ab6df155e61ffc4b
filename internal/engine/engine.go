package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tradeflow/internal/logger"
	"tradeflow/internal/pnl"
	"tradeflow/internal/risk"
	"tradeflow/internal/router"
	"tradeflow/internal/sigproc"
	"tradeflow/internal/store"
	"tradeflow/internal/types"
)

// defaultSignalLogSize bounds the in-memory signal history.
const defaultSignalLogSize = 500

type Config struct {
	SignalLogSize int
}

func (c Config) withDefaults() Config {
	if c.SignalLogSize <= 0 {
		c.SignalLogSize = defaultSignalLogSize
	}
	return c
}

// Engine runs the full signal lifecycle: risk check, processing,
// execution, then trade bookkeeping and P&L invalidation. Every signal
// reaches a terminal state; internal panics become BLOCKED signals.
type Engine struct {
	cfg        Config
	risk       *risk.Validator
	processor  *sigproc.Processor
	router     *router.Router
	reconciler *pnl.Reconciler
	store      *store.Store
	journal    *store.SignalJournal

	mu        sync.Mutex
	signals   map[string]*types.TradingSignal
	signalLog []string
	trades    []types.Trade
}

func New(cfg Config, riskValidator *risk.Validator, processor *sigproc.Processor, rt *router.Router, reconciler *pnl.Reconciler, st *store.Store, journal *store.SignalJournal) (*Engine, error) {
	e := &Engine{
		cfg:        cfg.withDefaults(),
		risk:       riskValidator,
		processor:  processor,
		router:     rt,
		reconciler: reconciler,
		store:      st,
		journal:    journal,
		signals:    map[string]*types.TradingSignal{},
	}
	if st != nil {
		trades, err := st.ListTrades()
		if err != nil {
			return nil, fmt.Errorf("engine: loading trade log: %w", err)
		}
		e.trades = trades
	}
	return e, nil
}

// ProcessSignal drives one signal through the pipeline and returns it in
// a terminal state. The returned error is reserved for infrastructure
// failures; trading rejections come back as a BLOCKED signal.
func (e *Engine) ProcessSignal(ctx context.Context, sig *types.TradingSignal) (out *types.TradingSignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("engine: panic while processing signal %s: %v", sig.ID, r)
			sig.Block(fmt.Sprintf("System error: %v", r))
			e.record(ctx, sig)
			out, err = sig, nil
		}
	}()

	sig.Status = types.SignalProcessing
	e.track(sig)
	logger.Infof("engine: processing signal %s: %s %.4f %s", sig.ID, sig.Side, sig.Quantity, sig.Symbol)

	check := e.risk.ValidateTrade(ctx, sig)
	if !check.Passed {
		sig.Block(check.Reason)
		e.record(ctx, sig)
		return sig, nil
	}
	if check.MaxAllowedQuantity > 0 && check.MaxAllowedQuantity < sig.Quantity {
		logger.Warnf("engine: shrinking signal %s quantity %.4f -> %.4f (concentration limit)", sig.ID, sig.Quantity, check.MaxAllowedQuantity)
		sig.Metadata["original_quantity"] = sig.Quantity
		sig.Quantity = check.MaxAllowedQuantity
	}

	sig = e.processor.Process(ctx, sig)
	if sig.Status.Terminal() {
		e.record(ctx, sig)
		return sig, nil
	}

	sig = e.router.Execute(ctx, sig)
	if sig.Status == types.SignalExecuted {
		e.risk.UpdateAfterExecution(sig)
		e.bookFill(sig)
	}
	e.record(ctx, sig)
	return sig, nil
}

func (e *Engine) track(sig *types.TradingSignal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, seen := e.signals[sig.ID]; !seen {
		e.signalLog = append(e.signalLog, sig.ID)
		if len(e.signalLog) > e.cfg.SignalLogSize {
			// Evict the oldest terminal signal. In-flight signals stay
			// in the log so they remain queryable until they settle;
			// the log shrinks back under the cap on the next eviction.
			for i, id := range e.signalLog {
				s, ok := e.signals[id]
				if !ok || s.Status.Terminal() {
					delete(e.signals, id)
					e.signalLog = append(e.signalLog[:i], e.signalLog[i+1:]...)
					break
				}
			}
		}
	}
	e.signals[sig.ID] = sig
}

func (e *Engine) record(ctx context.Context, sig *types.TradingSignal) {
	e.track(sig)
	if e.journal != nil {
		if err := e.journal.Append(ctx, sig); err != nil {
			logger.Warnf("engine: journaling signal %s failed: %v", sig.ID, err)
		}
	}
}

// bookFill updates the trade book from an executed signal. A buy opens a
// trade; a sell closes open buys of the symbol FIFO and realizes P&L.
func (e *Engine) bookFill(sig *types.TradingSignal) {
	price := sig.ExecutionPrice
	if price <= 0 {
		price = sig.Price
	}
	at := sig.ExecutionTime
	if at.IsZero() {
		at = time.Now().UTC()
	}

	e.mu.Lock()
	var touched []types.Trade
	if sig.Side == types.SideBuy {
		t := types.Trade{
			ID:         sig.ID,
			Symbol:     sig.Symbol,
			Side:       types.SideBuy,
			Quantity:   sig.Quantity,
			EntryPrice: price,
			EntryTime:  at,
			Status:     types.TradeOpen,
			Venue:      sig.Venue,
		}
		e.trades = append(e.trades, t)
		touched = append(touched, t)
	} else {
		touched = e.closeFIFO(sig.Symbol, sig.Quantity, price, at)
	}
	e.mu.Unlock()

	var realized float64
	for _, t := range touched {
		if t.PnL != nil {
			realized += *t.PnL
		}
		if e.store != nil {
			if err := e.store.UpsertTrade(t); err != nil {
				logger.Warnf("engine: persisting trade %s failed: %v", t.ID, err)
			}
		}
	}
	if realized != 0 {
		e.risk.UpdateDailyPnL(realized)
	}
	if e.reconciler != nil {
		e.reconciler.Invalidate()
	}
}

// closeFIFO consumes open buy trades of the symbol, oldest first, until
// the sell quantity is exhausted. A partially consumed trade is split:
// the closed slice gets a derived ID, the remainder stays open. Callers
// hold e.mu.
func (e *Engine) closeFIFO(symbol string, quantity, price float64, at time.Time) []types.Trade {
	var touched []types.Trade
	remaining := quantity
	for i := range e.trades {
		if remaining <= 0 {
			break
		}
		t := &e.trades[i]
		if t.Symbol != symbol || t.Side != types.SideBuy || t.Status != types.TradeOpen {
			continue
		}
		closeQty := t.Quantity
		if closeQty > remaining {
			closeQty = remaining
		}
		realized := (price - t.EntryPrice) * closeQty

		if closeQty == t.Quantity {
			t.Status = types.TradeClosed
			t.ExitPrice = price
			t.ExitTime = at
			t.PnL = &realized
			touched = append(touched, *t)
		} else {
			closed := *t
			closed.ID = fmt.Sprintf("%s_c%d", t.ID, len(touched)+1)
			closed.Quantity = closeQty
			closed.Status = types.TradeClosed
			closed.ExitPrice = price
			closed.ExitTime = at
			closed.PnL = &realized
			t.Quantity -= closeQty
			e.trades = append(e.trades, closed)
			touched = append(touched, *t, closed)
		}
		remaining -= closeQty
	}
	if remaining > 0 {
		logger.Warnf("engine: sell of %.4f %s had no matching open position for %.4f", quantity, symbol, remaining)
	}
	return touched
}

// Trades returns a copy of the trade book.
func (e *Engine) Trades() []types.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// Reconcile recomputes positions and performance metrics from the
// current trade book.
func (e *Engine) Reconcile(ctx context.Context) ([]types.Position, types.PerformanceMetrics, error) {
	trades := e.Trades()
	positions, err := e.reconciler.CalculatePositionPnL(ctx, trades)
	if err != nil {
		return nil, types.PerformanceMetrics{}, err
	}
	metrics, err := e.reconciler.CalculatePerformanceMetrics(ctx, trades, positions)
	if err != nil {
		return nil, types.PerformanceMetrics{}, err
	}
	return positions, metrics, nil
}

func (e *Engine) SignalByID(id string) (*types.TradingSignal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig, ok := e.signals[id]
	return sig, ok
}

func (e *Engine) signalsWhere(keep func(*types.TradingSignal) bool) []*types.TradingSignal {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*types.TradingSignal
	for _, id := range e.signalLog {
		if sig, ok := e.signals[id]; ok && keep(sig) {
			out = append(out, sig)
		}
	}
	return out
}

// ActiveSignals returns signals still in flight.
func (e *Engine) ActiveSignals() []*types.TradingSignal {
	return e.signalsWhere(func(s *types.TradingSignal) bool { return !s.Status.Terminal() })
}

func (e *Engine) ExecutedSignals() []*types.TradingSignal {
	return e.signalsWhere(func(s *types.TradingSignal) bool { return s.Status == types.SignalExecuted })
}

func (e *Engine) BlockedSignals() []*types.TradingSignal {
	return e.signalsWhere(func(s *types.TradingSignal) bool { return s.Status == types.SignalBlocked })
}

// RecentSignals returns the newest signals first, up to limit.
func (e *Engine) RecentSignals(limit int) []*types.TradingSignal {
	all := e.signalsWhere(func(*types.TradingSignal) bool { return true })
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// RecentExecutions returns the newest executed signals first, up to limit.
func (e *Engine) RecentExecutions(limit int) []*types.TradingSignal {
	executed := e.ExecutedSignals()
	sort.SliceStable(executed, func(i, j int) bool {
		return executed[i].ExecutionTime.After(executed[j].ExecutionTime)
	})
	if limit > 0 && len(executed) > limit {
		executed = executed[:limit]
	}
	return executed
}

// StatusSummary counts tracked signals per status.
func (e *Engine) StatusSummary() map[types.SignalStatus]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[types.SignalStatus]int{}
	for _, sig := range e.signals {
		out[sig.Status]++
	}
	return out
}

// RiskMetrics exposes the validator's live report.
func (e *Engine) RiskMetrics(ctx context.Context) risk.Metrics {
	return e.risk.Metrics(ctx)
}
