package model

import (
	"gorm.io/datatypes"
)

// CapitalConfigModel holds the single capital allocation row.
type CapitalConfigModel struct {
	ID                  int64          `gorm:"column:id;primaryKey"`
	TotalCapital        *float64       `gorm:"column:total_capital"`
	MaxPositionPct      float64        `gorm:"column:max_position_pct"`
	MaxDailyLossPct     float64        `gorm:"column:max_daily_loss_pct"`
	EmergencyReservePct float64        `gorm:"column:emergency_reserve_pct"`
	AvailableTradingPct float64        `gorm:"column:available_trading_pct"`
	MinCapitalThreshold float64        `gorm:"column:min_capital_threshold"`
	Currency            string         `gorm:"column:currency"`
	Initialized         bool           `gorm:"column:initialized"`
	Extra               datatypes.JSON `gorm:"column:extra"`
	UpdatedAtUnix       int64          `gorm:"column:updated_at"`
}

func (CapitalConfigModel) TableName() string { return "capital_config" }

// ExecutionConfigModel holds the single execution-mode row.
type ExecutionConfigModel struct {
	ID                int64          `gorm:"column:id;primaryKey"`
	ExecutionMode     bool           `gorm:"column:execution_mode"`
	MaxTradeValue     float64        `gorm:"column:max_trade_value"`
	ProviderOverrides datatypes.JSON `gorm:"column:provider_overrides"`
	UpdatedAtUnix     int64          `gorm:"column:updated_at"`
}

func (ExecutionConfigModel) TableName() string { return "execution_config" }

// TradeModel is the persisted trade log.
type TradeModel struct {
	ID         int64   `gorm:"column:id;primaryKey"`
	TradeID    string  `gorm:"column:trade_id;uniqueIndex"`
	Symbol     string  `gorm:"column:symbol;index"`
	Side       string  `gorm:"column:side"`
	Quantity   float64 `gorm:"column:quantity"`
	EntryPrice float64 `gorm:"column:entry_price"`
	EntryTime  int64   `gorm:"column:entry_time"`
	Status     string  `gorm:"column:status;index"`
	ExitPrice  float64 `gorm:"column:exit_price"`
	ExitTime   int64   `gorm:"column:exit_time"`
	// PnL is nullable so an open trade can never be mistaken for a
	// zero-pnl closed one.
	PnL           *float64 `gorm:"column:pnl"`
	Venue         string   `gorm:"column:venue"`
	CreatedAtUnix int64    `gorm:"column:created_at"`
	UpdatedAtUnix int64    `gorm:"column:updated_at"`
}

func (TradeModel) TableName() string { return "trades" }

// PositionSnapshotModel is an audit snapshot of one reconciled position.
type PositionSnapshotModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;uniqueIndex:idx_position_key,priority:1"`
	Side          string         `gorm:"column:side;uniqueIndex:idx_position_key,priority:2"`
	Quantity      float64        `gorm:"column:quantity"`
	EntryPrice    float64        `gorm:"column:entry_price"`
	CurrentPrice  float64        `gorm:"column:current_price"`
	UnrealizedPnL float64        `gorm:"column:unrealized_pnl"`
	MarketValue   float64        `gorm:"column:market_value"`
	CostBasis     float64        `gorm:"column:cost_basis"`
	TradeIDs      datatypes.JSON `gorm:"column:trade_ids"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (PositionSnapshotModel) TableName() string { return "position_pnl" }

// MetricSnapshotModel stores one named performance metric value.
type MetricSnapshotModel struct {
	MetricName    string  `gorm:"column:metric_name;primaryKey"`
	MetricValue   float64 `gorm:"column:metric_value"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (MetricSnapshotModel) TableName() string { return "performance_metrics" }

// PriceHistoryModel keeps last-seen prices per symbol, the reconciler's
// fallback source when the live feed has nothing.
type PriceHistoryModel struct {
	ID        int64   `gorm:"column:id;primaryKey"`
	Symbol    string  `gorm:"column:symbol;index:idx_price_symbol_ts,priority:1"`
	Price     float64 `gorm:"column:price"`
	Source    string  `gorm:"column:source"`
	Timestamp int64   `gorm:"column:timestamp;index:idx_price_symbol_ts,priority:2"`
}

func (PriceHistoryModel) TableName() string { return "price_history" }
