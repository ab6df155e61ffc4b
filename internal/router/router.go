package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradeflow/internal/execmode"
	"tradeflow/internal/logger"
	"tradeflow/internal/pkg/symbol"
	"tradeflow/internal/provider"
	"tradeflow/internal/types"
)

// Venue names used by the default auto-routing table.
const (
	VenueBrokerage = "brokerage"
	VenueDeFi      = "defi"
	VenuePaper     = "paper"
)

// Config maps instrument classes to venues. A missing class falls back to
// the auto-routing heuristic: crypto to the DeFi venue, everything else to
// the brokerage venue.
type Config struct {
	SymbolRouting map[symbol.Class]string
}

// Router dispatches approved signals to an execution provider and
// normalizes the outcome onto the signal. Provider errors never escape:
// they become a failed ExecutionResult and a BLOCKED signal.
type Router struct {
	cfg        Config
	gate       *execmode.Gate
	classifier symbol.Classifier

	simulated provider.ExecutionProvider
	live      map[string]provider.ExecutionProvider
}

func New(cfg Config, gate *execmode.Gate, classifier symbol.Classifier, simulated provider.ExecutionProvider) *Router {
	if classifier == nil {
		classifier = symbol.PatternClassifier{}
	}
	return &Router{
		cfg:        cfg,
		gate:       gate,
		classifier: classifier,
		simulated:  simulated,
		live:       map[string]provider.ExecutionProvider{},
	}
}

// RegisterVenue attaches a live execution provider under a venue name.
func (r *Router) RegisterVenue(venue string, p provider.ExecutionProvider) {
	r.live[strings.ToLower(strings.TrimSpace(venue))] = p
}

// Execute submits the signal and stamps the terminal state. Simulation
// mode always routes to the simulated venue; that is the mechanism behind
// the "simulation never moves real money" invariant.
func (r *Router) Execute(ctx context.Context, sig *types.TradingSignal) *types.TradingSignal {
	class := r.classifier.Classify(sig.Symbol)
	if venue, ok := r.cfg.SymbolRouting[class]; ok && venue == "blocked" {
		sig.Block(fmt.Sprintf("Symbol type '%s' is blocked in current trading mode", class))
		return sig
	}

	executor, venue := r.selectExecutor(class)
	if executor == nil {
		sig.Block(fmt.Sprintf("No available executor for venue '%s' (symbol: %s)", venue, sig.Symbol))
		return sig
	}
	sig.Venue = venue

	if r.gate != nil && r.gate.IsExecutionMode() {
		value := sig.Quantity * sig.Price
		if err := r.gate.ValidateExecutionSafety(executor.Name(), "order", value); err != nil {
			sig.Block(fmt.Sprintf("Execution safety check failed: %v", err))
			return sig
		}
	}

	result := r.submit(ctx, executor, sig)
	r.applyResult(sig, executor.Name(), result)
	return sig
}

// selectExecutor picks the venue for the class; in simulation mode the
// simulated venue handles everything.
func (r *Router) selectExecutor(class symbol.Class) (provider.ExecutionProvider, string) {
	if r.gate == nil || r.gate.IsSimulationMode() {
		if r.simulated == nil {
			return nil, VenuePaper
		}
		return r.simulated, r.simulated.Name()
	}
	venue, ok := r.cfg.SymbolRouting[class]
	if !ok || venue == "" || venue == "auto_route" {
		if class == symbol.ClassCrypto {
			venue = VenueDeFi
		} else {
			venue = VenueBrokerage
		}
	}
	return r.live[venue], venue
}

func (r *Router) submit(ctx context.Context, executor provider.ExecutionProvider, sig *types.TradingSignal) types.ExecutionResult {
	var (
		result types.ExecutionResult
		err    error
	)
	switch sig.OrderType {
	case types.OrderMarket:
		result, err = executor.ExecuteMarketOrder(ctx, sig.Symbol, sig.Side, sig.Quantity)
	case types.OrderLimit:
		if sig.Price <= 0 {
			return types.ExecutionFailure("Limit order requires price")
		}
		result, err = executor.ExecuteLimitOrder(ctx, sig.Symbol, sig.Side, sig.Quantity, sig.Price)
	case types.OrderStop:
		if sig.StopPrice <= 0 {
			return types.ExecutionFailure("Stop order requires stop price")
		}
		result, err = executor.ExecuteStopOrder(ctx, sig.Symbol, sig.Side, sig.Quantity, sig.StopPrice)
	default:
		return types.ExecutionFailure(fmt.Sprintf("Unsupported order type: %s", sig.OrderType))
	}
	if err != nil {
		logger.Errorf("router: executing signal %s via %s failed: %v", sig.ID, executor.Name(), err)
		return types.ExecutionFailure(fmt.Sprintf("Execution error: %v", err))
	}
	return result
}

func (r *Router) applyResult(sig *types.TradingSignal, providerName string, result types.ExecutionResult) {
	if !result.Success {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "Execution failed"
		}
		sig.Block(msg)
		sig.Metadata["execution_attempt"] = map[string]any{
			"provider":      providerName,
			"error_message": msg,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
		}
		logger.Errorf("router: signal %s execution failed: %s", sig.ID, msg)
		return
	}

	price := result.ExecutionPrice
	if price <= 0 {
		price = sig.Price
	}
	at := result.ExecutionTime
	if at.IsZero() {
		at = time.Now().UTC()
	}
	sig.MarkExecuted(price, at)
	sig.Metadata["execution"] = map[string]any{
		"provider":          providerName,
		"order_id":          result.OrderID,
		"executed_quantity": result.ExecutedQuantity,
		"execution_price":   price,
		"execution_time":    at.Format(time.RFC3339),
	}
	logger.Infof("router: signal %s executed via %s: %.4f %s @ $%.4f", sig.ID, providerName, sig.Quantity, sig.Symbol, price)
	logger.Audit("execution", fmt.Sprintf("%s %s %.4f @ $%.4f via %s", sig.Symbol, sig.Side, sig.Quantity, price, providerName))
}
