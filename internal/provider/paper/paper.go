package paper

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeflow/internal/logger"
	"tradeflow/internal/provider"
	"tradeflow/internal/types"
)

const ProviderName = "paper_trading_simulation"

const defaultInitialBalance = 100000

// Config tunes the simulated venue. SlippageBps skews market fills
// against the order side; FailureRate in [0, 1] makes a fraction of
// submissions fail, for exercising the blocked path in drills.
type Config struct {
	InitialBalance float64
	SlippageBps    float64
	FailureRate    float64
}

// Provider is an always-on simulated venue. Orders fill immediately and
// atomically against an internal cash and position book; nothing ever
// leaves the process.
type Provider struct {
	cfg    Config
	quotes provider.PriceDataProvider

	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
	reference map[string]float64
	fills     int
	rnd       *rand.Rand
}

func New(cfg Config, quotes provider.PriceDataProvider) *Provider {
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = defaultInitialBalance
	}
	return &Provider{
		cfg:       cfg,
		quotes:    quotes,
		cash:      decimal.NewFromFloat(cfg.InitialBalance),
		positions: map[string]decimal.Decimal{},
		reference: map[string]float64{},
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *Provider) Name() string { return ProviderName }

// SetReferencePrice seeds a fallback mark used when no quote source is
// wired, mainly for tests and offline drills.
func (p *Provider) SetReferencePrice(symbol string, price float64) {
	p.mu.Lock()
	p.reference[strings.ToUpper(symbol)] = price
	p.mu.Unlock()
}

func (p *Provider) ExecuteMarketOrder(ctx context.Context, symbol string, side types.OrderSide, quantity float64) (types.ExecutionResult, error) {
	price, err := p.markPrice(ctx, symbol)
	if err != nil {
		return types.ExecutionFailure(err.Error()), nil
	}
	price = p.applySlippage(price, side)
	return p.fill(symbol, side, quantity, price, "market"), nil
}

func (p *Provider) ExecuteLimitOrder(ctx context.Context, symbol string, side types.OrderSide, quantity, price float64) (types.ExecutionResult, error) {
	if price <= 0 {
		return types.ExecutionFailure("limit price must be positive"), nil
	}
	// The simulation fills limits at their limit price immediately.
	return p.fill(symbol, side, quantity, price, "limit"), nil
}

func (p *Provider) ExecuteStopOrder(ctx context.Context, symbol string, side types.OrderSide, quantity, stopPrice float64) (types.ExecutionResult, error) {
	if stopPrice <= 0 {
		return types.ExecutionFailure("stop price must be positive"), nil
	}
	return p.fill(symbol, side, quantity, stopPrice, "stop"), nil
}

func (p *Provider) fill(symbol string, side types.OrderSide, quantity, price float64, orderType string) types.ExecutionResult {
	if quantity <= 0 {
		return types.ExecutionFailure("quantity must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.FailureRate > 0 && p.rnd.Float64() < p.cfg.FailureRate {
		return types.ExecutionFailure("simulated venue rejection")
	}

	sym := strings.ToUpper(symbol)
	qty := decimal.NewFromFloat(quantity)
	px := decimal.NewFromFloat(price)
	value := qty.Mul(px)

	if side == types.SideBuy {
		p.cash = p.cash.Sub(value)
		p.positions[sym] = p.positions[sym].Add(qty)
	} else {
		p.cash = p.cash.Add(value)
		p.positions[sym] = p.positions[sym].Sub(qty)
	}
	if p.positions[sym].IsZero() {
		delete(p.positions, sym)
	}
	p.reference[sym] = price
	p.fills++

	orderID := "PAPER_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	logger.Debugf("paper: filled %s %s %.4f %s @ $%.4f (order %s)", orderType, side, quantity, sym, price, orderID)
	return types.ExecutionResult{
		Success:          true,
		OrderID:          orderID,
		ExecutionPrice:   price,
		ExecutedQuantity: quantity,
		ExecutionTime:    time.Now().UTC(),
		Metadata: map[string]any{
			"venue":      ProviderName,
			"order_type": orderType,
			"simulated":  true,
		},
	}
}

func (p *Provider) markPrice(ctx context.Context, symbol string) (float64, error) {
	if p.quotes != nil {
		md, err := p.quotes.GetCurrentPrice(ctx, symbol)
		if err == nil && md != nil && md.Price > 0 {
			return md.Price, nil
		}
	}
	p.mu.Lock()
	ref, ok := p.reference[strings.ToUpper(symbol)]
	p.mu.Unlock()
	if ok && ref > 0 {
		return ref, nil
	}
	return 0, fmt.Errorf("no reference price for %s", symbol)
}

func (p *Provider) applySlippage(price float64, side types.OrderSide) float64 {
	if p.cfg.SlippageBps <= 0 {
		return price
	}
	slip := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(p.cfg.SlippageBps)).Div(decimal.NewFromInt(10000))
	base := decimal.NewFromFloat(price)
	if side == types.SideBuy {
		base = base.Add(slip)
	} else {
		base = base.Sub(slip)
	}
	f, _ := base.Float64()
	return f
}

func (p *Provider) GetAccountBalance(ctx context.Context) (float64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, _ := p.cash.Float64()
	return f, true, nil
}

func (p *Provider) GetPositions(ctx context.Context) ([]types.BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.BrokerPosition, 0, len(p.positions))
	for sym, qty := range p.positions {
		q, _ := qty.Float64()
		side := "long"
		if q < 0 {
			side = "short"
		}
		pos := types.BrokerPosition{Symbol: sym, Quantity: q, Side: side}
		if ref, ok := p.reference[sym]; ok {
			pos.MarketValue = q * ref
		}
		out = append(out, pos)
	}
	return out, nil
}

// CancelOrder always reports false: simulated fills are immediate, so
// there is never a resting order to cancel.
func (p *Provider) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return false, nil
}

func (p *Provider) HealthCheck(ctx context.Context) types.ProviderHealth {
	return types.ProviderHealth{
		Provider:  ProviderName,
		Status:    types.HealthHealthy,
		LastCheck: time.Now().UTC(),
	}
}

// Fills reports the number of simulated executions, for drill summaries.
func (p *Provider) Fills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fills
}

var _ provider.ExecutionProvider = (*Provider)(nil)
