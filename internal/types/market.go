package types

import "time"

// MarketData is one quote snapshot from a price provider.
type MarketData struct {
	Symbol        string         `json:"symbol"`
	Price         float64        `json:"price"`
	Timestamp     time.Time      `json:"timestamp"`
	Volume        float64        `json:"volume,omitempty"`
	Bid           float64        `json:"bid,omitempty"`
	Ask           float64        `json:"ask,omitempty"`
	Spread        float64        `json:"spread,omitempty"`
	PreviousClose float64        `json:"previous_close,omitempty"`
	ChangePercent float64        `json:"change_percent,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ExecutionResult is the normalized outcome of an order submission.
type ExecutionResult struct {
	Success          bool           `json:"success"`
	OrderID          string         `json:"order_id,omitempty"`
	ExecutionPrice   float64        `json:"execution_price,omitempty"`
	ExecutedQuantity float64        `json:"executed_quantity,omitempty"`
	ExecutionTime    time.Time      `json:"execution_time,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func ExecutionFailure(msg string) ExecutionResult {
	return ExecutionResult{Success: false, ErrorMessage: msg}
}

// TechnicalIndicator is one computed indicator value (RSI, SMA, ...).
type TechnicalIndicator struct {
	Name      string         `json:"name"`
	Symbol    string         `json:"symbol"`
	Value     float64        `json:"value"`
	Period    int            `json:"period,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// BrokerPosition is a holding as reported by an execution provider.
type BrokerPosition struct {
	Symbol      string  `json:"symbol"`
	Quantity    float64 `json:"quantity"`
	MarketValue float64 `json:"market_value"`
	Side        string  `json:"side,omitempty"`
}

type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthDegraded    HealthStatus = "degraded"
	HealthUnavailable HealthStatus = "unavailable"
)

// ProviderHealth is the result of a provider health probe.
type ProviderHealth struct {
	Provider       string       `json:"provider"`
	Status         HealthStatus `json:"status"`
	LastCheck      time.Time    `json:"last_check"`
	ResponseTimeMs float64      `json:"response_time_ms,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
}
