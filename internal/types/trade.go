package types

import "time"

type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// Trade is one executed entry, the unit the reconciler aggregates over.
// PnL is meaningful only once the trade is closed.
type Trade struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       OrderSide   `json:"side"`
	Quantity   float64     `json:"quantity"`
	EntryPrice float64     `json:"entry_price"`
	EntryTime  time.Time   `json:"entry_time"`
	Status     TradeStatus `json:"status"`
	ExitPrice  float64     `json:"exit_price,omitempty"`
	ExitTime   time.Time   `json:"exit_time,omitempty"`
	PnL        *float64    `json:"pnl,omitempty"`
	Venue      string      `json:"venue,omitempty"`
}

// Position is an aggregated open holding, derived from open trades and
// never stored as source of truth.
type Position struct {
	Symbol            string    `json:"symbol"`
	Side              OrderSide `json:"side"`
	Quantity          float64   `json:"quantity"`
	EntryPrice        float64   `json:"entry_price"`
	CurrentPrice      float64   `json:"current_price"`
	EntryTime         time.Time `json:"entry_time"`
	UnrealizedPnL     float64   `json:"unrealized_pnl"`
	UnrealizedPnLPct  float64   `json:"unrealized_pnl_pct"`
	MarketValue       float64   `json:"market_value"`
	CostBasis         float64   `json:"cost_basis"`
	LastPriceUpdate   time.Time `json:"last_price_update"`
	PriceSource       string    `json:"price_source,omitempty"`
	ContributingTrade []string  `json:"trade_ids"`
}

// PerformanceMetrics is derived from the trade set; realized figures come
// from closed trades only, unrealized from the live position snapshot.
type PerformanceMetrics struct {
	TotalTrades   int `json:"total_trades"`
	OpenTrades    int `json:"open_trades"`
	ClosedTrades  int `json:"closed_trades"`
	WinningTrades int `json:"winning_trades"`
	LosingTrades  int `json:"losing_trades"`

	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	GrossProfit   float64 `json:"gross_profit"`
	GrossLoss     float64 `json:"gross_loss"`
	ProfitFactor  float64 `json:"profit_factor"`

	SharpeRatio        *float64 `json:"sharpe_ratio,omitempty"`
	MaxDrawdown        float64  `json:"max_drawdown"`
	MaxDrawdownPercent float64  `json:"max_drawdown_percent"`
	AverageWin         float64  `json:"average_win"`
	AverageLoss        float64  `json:"average_loss"`
	LargestWin         float64  `json:"largest_win"`
	LargestLoss        float64  `json:"largest_loss"`
	ConsecutiveWins    int      `json:"consecutive_wins"`
	ConsecutiveLosses  int      `json:"consecutive_losses"`

	LastUpdated time.Time `json:"last_updated"`
}
