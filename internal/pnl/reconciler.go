package pnl

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"tradeflow/internal/logger"
	"tradeflow/internal/provider"
	"tradeflow/internal/types"
)

// minTradesForSharpe gates the Sharpe ratio: with five or fewer closed
// trades the estimate is noise, so it stays nil.
const minTradesForSharpe = 5

// positionDust is the quantity below which a netted position is dropped.
const positionDust = 1e-9

// Snapshotter is the slice of the store the reconciler writes through.
type Snapshotter interface {
	SavePositionSnapshots(positions []types.Position) error
	SaveMetrics(metrics map[string]float64) error
	RecordPrice(symbol string, price float64, source string) error
	LatestPrice(symbol string) (float64, bool, error)
}

// Reconciler derives open positions and performance metrics from the
// trade log. Metrics are cached and recomputed only after Invalidate, so
// repeated reads with an unchanged trade set return identical values.
type Reconciler struct {
	price provider.PriceDataProvider
	store Snapshotter

	mu        sync.Mutex
	cached    *types.PerformanceMetrics
	positions []types.Position
	dirty     bool
}

func NewReconciler(price provider.PriceDataProvider, store Snapshotter) *Reconciler {
	return &Reconciler{price: price, store: store, dirty: true}
}

// Invalidate marks the cached metrics stale. Call it after any trade
// open, close or fill.
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
}

// CalculatePositionPnL nets the open trades into per-(symbol, side)
// positions with volume-weighted entry prices, marks them with the best
// available price and persists the snapshot set.
func (r *Reconciler) CalculatePositionPnL(ctx context.Context, trades []types.Trade) ([]types.Position, error) {
	type bucket struct {
		first types.Trade
		total float64
		cost  float64
		ids   []string
	}
	buckets := map[string]*bucket{}
	order := []string{}
	for _, t := range trades {
		if t.Status != types.TradeOpen || t.Quantity <= 0 {
			continue
		}
		key := t.Symbol + "|" + string(t.Side)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{first: t}
			buckets[key] = b
			order = append(order, key)
		}
		b.total += t.Quantity
		b.cost += t.Quantity * t.EntryPrice
		b.ids = append(b.ids, t.ID)
	}

	positions := make([]types.Position, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		if b.total <= positionDust {
			continue
		}
		entry := b.cost / b.total
		price, source := r.markPrice(ctx, b.first.Symbol, entry)

		pos := types.Position{
			Symbol:            b.first.Symbol,
			Side:              b.first.Side,
			Quantity:          b.total,
			EntryPrice:        entry,
			CurrentPrice:      price,
			EntryTime:         b.first.EntryTime,
			MarketValue:       b.total * price,
			CostBasis:         b.cost,
			LastPriceUpdate:   time.Now().UTC(),
			PriceSource:       source,
			ContributingTrade: b.ids,
		}
		if b.first.Side == types.SideSell {
			pos.UnrealizedPnL = (entry - price) * b.total
		} else {
			pos.UnrealizedPnL = (price - entry) * b.total
		}
		if pos.CostBasis > 0 {
			pos.UnrealizedPnLPct = pos.UnrealizedPnL / pos.CostBasis * 100
		}
		positions = append(positions, pos)
	}

	if r.store != nil {
		if err := r.store.SavePositionSnapshots(positions); err != nil {
			logger.Warnf("pnl: persisting position snapshots failed: %v", err)
		}
	}

	r.mu.Lock()
	r.positions = positions
	r.mu.Unlock()
	return positions, nil
}

// markPrice resolves the mark for a symbol: live provider first, then the
// last recorded price, then the entry price as a stale fallback.
func (r *Reconciler) markPrice(ctx context.Context, symbol string, entry float64) (float64, string) {
	if r.price != nil {
		md, err := r.price.GetCurrentPrice(ctx, symbol)
		if err == nil && md != nil && md.Price > 0 {
			if r.store != nil {
				if err := r.store.RecordPrice(symbol, md.Price, md.Provider); err != nil {
					logger.Warnf("pnl: recording price for %s failed: %v", symbol, err)
				}
			}
			return md.Price, md.Provider
		}
		if err != nil {
			logger.Debugf("pnl: live price for %s unavailable: %v", symbol, err)
		}
	}
	if r.store != nil {
		if last, ok, err := r.store.LatestPrice(symbol); err == nil && ok && last > 0 {
			return last, "price_history"
		}
	}
	logger.Warnf("pnl: no market price for %s, marking at entry", symbol)
	return entry, "entry_fallback"
}

// CalculatePerformanceMetrics computes the realized metric set from
// closed trades plus unrealized figures from the given positions. The
// result is cached until Invalidate.
func (r *Reconciler) CalculatePerformanceMetrics(ctx context.Context, trades []types.Trade, positions []types.Position) (types.PerformanceMetrics, error) {
	r.mu.Lock()
	if !r.dirty && r.cached != nil {
		m := *r.cached
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	m := compute(trades, positions)

	if r.store != nil {
		if err := r.store.SaveMetrics(metricMap(m)); err != nil {
			logger.Warnf("pnl: persisting metrics failed: %v", err)
		}
	}

	r.mu.Lock()
	r.cached = &m
	r.dirty = false
	r.mu.Unlock()
	return m, nil
}

// Positions returns the last reconciled snapshot without recomputing.
func (r *Reconciler) Positions() []types.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Position, len(r.positions))
	copy(out, r.positions)
	return out
}

func compute(trades []types.Trade, positions []types.Position) types.PerformanceMetrics {
	m := types.PerformanceMetrics{LastUpdated: time.Now().UTC()}
	m.TotalTrades = len(trades)

	closed := make([]types.Trade, 0, len(trades))
	for _, t := range trades {
		switch t.Status {
		case types.TradeOpen:
			m.OpenTrades++
		case types.TradeClosed:
			if t.PnL != nil {
				closed = append(closed, t)
			}
			m.ClosedTrades++
		}
	}
	sort.SliceStable(closed, func(i, j int) bool { return closed[i].ExitTime.Before(closed[j].ExitTime) })

	pnls := make([]float64, 0, len(closed))
	for _, t := range closed {
		p := *t.PnL
		pnls = append(pnls, p)
		m.RealizedPnL += p
		if p > 0 {
			m.WinningTrades++
			m.GrossProfit += p
			if p > m.LargestWin {
				m.LargestWin = p
			}
		} else if p < 0 {
			m.LosingTrades++
			m.GrossLoss += -p
			if -p > m.LargestLoss {
				m.LargestLoss = -p
			}
		}
	}

	// Break-even trades stay in the denominator: win rate is wins over
	// all closed trades, not wins over decided ones.
	if len(pnls) > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(len(pnls)) * 100
	}
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.GrossLoss / float64(m.LosingTrades)
	}
	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	case m.GrossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}

	m.ConsecutiveWins, m.ConsecutiveLosses = currentStreaks(pnls)
	m.MaxDrawdown, m.MaxDrawdownPercent = maxDrawdown(pnls)

	for _, p := range positions {
		m.UnrealizedPnL += p.UnrealizedPnL
	}
	m.TotalPnL = m.RealizedPnL + m.UnrealizedPnL

	if len(pnls) > minTradesForSharpe {
		if sharpe, ok := sharpeRatio(pnls); ok {
			m.SharpeRatio = &sharpe
		}
	}
	return m
}

// currentStreaks returns the run of wins or losses ending at the most
// recent closed trade. At most one of the two is non-zero.
func currentStreaks(pnls []float64) (wins, losses int) {
	for i := len(pnls) - 1; i >= 0; i-- {
		p := pnls[i]
		if p > 0 {
			if losses > 0 {
				return
			}
			wins++
		} else if p < 0 {
			if wins > 0 {
				return
			}
			losses++
		} else {
			return
		}
	}
	return
}

// maxDrawdown walks the cumulative realized curve and reports the deepest
// peak-to-trough fall, absolute and as a percentage of the peak.
func maxDrawdown(pnls []float64) (dd, ddPct float64) {
	var cum, peak float64
	for _, p := range pnls {
		cum += p
		if cum > peak {
			peak = cum
		}
		fall := peak - cum
		if fall > dd {
			dd = fall
			if peak > 0 {
				ddPct = fall / peak * 100
			}
		}
	}
	return
}

func sharpeRatio(pnls []float64) (float64, bool) {
	n := float64(len(pnls))
	var sum float64
	for _, p := range pnls {
		sum += p
	}
	mean := sum / n
	var variance float64
	for _, p := range pnls {
		variance += (p - mean) * (p - mean)
	}
	variance /= n
	std := math.Sqrt(variance)
	if std == 0 {
		return 0, false
	}
	return mean / std, true
}

func metricMap(m types.PerformanceMetrics) map[string]float64 {
	out := map[string]float64{
		"total_trades":         float64(m.TotalTrades),
		"open_trades":          float64(m.OpenTrades),
		"closed_trades":        float64(m.ClosedTrades),
		"winning_trades":       float64(m.WinningTrades),
		"losing_trades":        float64(m.LosingTrades),
		"win_rate":             m.WinRate,
		"total_pnl":            m.TotalPnL,
		"realized_pnl":         m.RealizedPnL,
		"unrealized_pnl":       m.UnrealizedPnL,
		"gross_profit":         m.GrossProfit,
		"gross_loss":           m.GrossLoss,
		"max_drawdown":         m.MaxDrawdown,
		"max_drawdown_percent": m.MaxDrawdownPercent,
		"average_win":          m.AverageWin,
		"average_loss":         m.AverageLoss,
		"largest_win":          m.LargestWin,
		"largest_loss":         m.LargestLoss,
		"consecutive_wins":     float64(m.ConsecutiveWins),
		"consecutive_losses":   float64(m.ConsecutiveLosses),
	}
	if !math.IsInf(m.ProfitFactor, 1) {
		out["profit_factor"] = m.ProfitFactor
	}
	if m.SharpeRatio != nil {
		out["sharpe_ratio"] = *m.SharpeRatio
	}
	return out
}
