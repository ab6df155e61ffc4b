package provider

import (
	"context"

	"tradeflow/internal/types"
)

// PriceDataProvider serves quote snapshots and market-session state.
// Implementations must honor ctx deadlines; the pipeline imposes bounded
// timeouts on every call.
type PriceDataProvider interface {
	Name() string

	GetCurrentPrice(ctx context.Context, symbol string) (*types.MarketData, error)

	IsMarketOpen(ctx context.Context) (bool, error)

	ValidateSymbol(ctx context.Context, symbol string) (bool, error)

	HealthCheck(ctx context.Context) types.ProviderHealth
}

// ExecutionProvider submits orders to a venue and reports account state.
type ExecutionProvider interface {
	Name() string

	ExecuteMarketOrder(ctx context.Context, symbol string, side types.OrderSide, quantity float64) (types.ExecutionResult, error)

	ExecuteLimitOrder(ctx context.Context, symbol string, side types.OrderSide, quantity, price float64) (types.ExecutionResult, error)

	ExecuteStopOrder(ctx context.Context, symbol string, side types.OrderSide, quantity, stopPrice float64) (types.ExecutionResult, error)

	// GetAccountBalance returns (balance, true) or (0, false) when the
	// venue cannot report one.
	GetAccountBalance(ctx context.Context) (float64, bool, error)

	GetPositions(ctx context.Context) ([]types.BrokerPosition, error)

	CancelOrder(ctx context.Context, orderID string) (bool, error)

	HealthCheck(ctx context.Context) types.ProviderHealth
}

// NewsProvider is optional enrichment; a nil provider skips the stage.
type NewsProvider interface {
	Name() string

	// GetSentimentScore returns a score in [-1, 1] and false when no
	// sentiment is available for the symbol.
	GetSentimentScore(ctx context.Context, symbol string) (float64, bool, error)
}

// AnalyticsProvider is optional technical-indicator enrichment.
type AnalyticsProvider interface {
	Name() string

	GetRSI(ctx context.Context, symbol string, period int) (*types.TechnicalIndicator, error)

	GetMovingAverage(ctx context.Context, symbol string, period int, maType string) (*types.TechnicalIndicator, error)
}
