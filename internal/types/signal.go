package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SignalStatus is the lifecycle state of a trading signal.
// RECEIVED -> PROCESSING -> {EXECUTED, BLOCKED}; terminal states never change.
type SignalStatus string

const (
	SignalReceived   SignalStatus = "received"
	SignalProcessing SignalStatus = "processing"
	SignalExecuted   SignalStatus = "executed"
	SignalBlocked    SignalStatus = "blocked"
)

func (s SignalStatus) Terminal() bool {
	return s == SignalExecuted || s == SignalBlocked
}

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func ParseOrderSide(s string) (OrderSide, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return SideBuy, true
	case "sell", "short":
		return SideSell, true
	}
	return "", false
}

type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
	OrderStop   OrderType = "stop"
)

func ParseOrderType(s string) (OrderType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "market":
		return OrderMarket, true
	case "limit":
		return OrderLimit, true
	case "stop":
		return OrderStop, true
	}
	return "", false
}

// TradingSignal is a proposed trade moving through the pipeline. It is
// mutated in place by each stage: risk checks may shrink Quantity,
// enrichment fills Price and Metadata, execution stamps the fill.
type TradingSignal struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	Side      OrderSide      `json:"side"`
	Quantity  float64        `json:"quantity"`
	OrderType OrderType      `json:"order_type"`
	Price     float64        `json:"price,omitempty"`
	StopPrice float64        `json:"stop_price,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Status    SignalStatus   `json:"status"`
	Venue     string         `json:"venue,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	BlockReason    string    `json:"block_reason,omitempty"`
	ExecutionPrice float64   `json:"execution_price,omitempty"`
	ExecutionTime  time.Time `json:"execution_time,omitempty"`
}

// NewSignal builds a RECEIVED signal with a fresh id. Price 0 means
// "no explicit price"; enrichment adopts the market price.
func NewSignal(symbol string, side OrderSide, quantity float64) *TradingSignal {
	return &TradingSignal{
		ID:        uuid.NewString(),
		Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
		Side:      side,
		Quantity:  quantity,
		OrderType: OrderMarket,
		CreatedAt: time.Now(),
		Status:    SignalReceived,
		Metadata:  map[string]any{},
	}
}

// Block transitions the signal to BLOCKED unless it is already terminal.
func (s *TradingSignal) Block(reason string) {
	if s.Status.Terminal() {
		return
	}
	s.Status = SignalBlocked
	s.BlockReason = reason
}

// MarkExecuted stamps the fill and transitions the signal to EXECUTED.
func (s *TradingSignal) MarkExecuted(price float64, at time.Time) {
	if s.Status.Terminal() {
		return
	}
	s.Status = SignalExecuted
	s.ExecutionPrice = price
	s.ExecutionTime = at
}

// AddWarning appends a non-blocking quality flag to the signal metadata.
func (s *TradingSignal) AddWarning(code string) {
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	warnings, _ := s.Metadata["warnings"].([]string)
	for _, w := range warnings {
		if w == code {
			return
		}
	}
	s.Metadata["warnings"] = append(warnings, code)
}

// Warnings returns the quality flags accumulated during processing.
func (s *TradingSignal) Warnings() []string {
	warnings, _ := s.Metadata["warnings"].([]string)
	return warnings
}

// RiskCheck is the outcome of risk validation for one signal.
// A passed check with MaxAllowedQuantity > 0 is a soft pass: the trade is
// approved only at the reduced quantity.
type RiskCheck struct {
	Passed             bool    `json:"passed"`
	Reason             string  `json:"reason,omitempty"`
	MaxAllowedQuantity float64 `json:"max_allowed_quantity,omitempty"`
}

func RiskPass() RiskCheck { return RiskCheck{Passed: true} }

func RiskReject(reason string) RiskCheck {
	return RiskCheck{Passed: false, Reason: reason}
}

func RiskShrink(maxQuantity float64) RiskCheck {
	return RiskCheck{Passed: true, MaxAllowedQuantity: maxQuantity}
}
