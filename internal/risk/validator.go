package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradeflow/internal/capital"
	"tradeflow/internal/logger"
	"tradeflow/internal/pkg/symbol"
	"tradeflow/internal/provider"
	"tradeflow/internal/types"
)

// Config carries the fallback limits used when the capital model is not
// initialized, plus the per-mode symbol routing table.
type Config struct {
	FallbackMaxPositionPct  float64
	FallbackMaxDailyLossPct float64
	MinBalanceThreshold     float64
	MaxSymbolExposurePct    float64
	// SymbolRouting maps an instrument class to a venue name, or
	// "blocked" to reject the class outright.
	SymbolRouting map[symbol.Class]string
}

func (c Config) withDefaults() Config {
	if c.FallbackMaxPositionPct <= 0 {
		c.FallbackMaxPositionPct = 0.10
	}
	if c.FallbackMaxDailyLossPct <= 0 {
		c.FallbackMaxDailyLossPct = 0.05
	}
	if c.MinBalanceThreshold <= 0 {
		c.MinBalanceThreshold = 14000
	}
	if c.MaxSymbolExposurePct <= 0 {
		c.MaxSymbolExposurePct = 0.15
	}
	return c
}

// RoutingBlocked marks an instrument class as untradeable in a mode.
const RoutingBlocked = "blocked"

// When the price feed has not filled a signal yet, risk math assumes this
// placeholder price rather than refusing the check.
const assumedPrice = 100.0

// Validator runs the ordered risk checks for one signal. The exposure
// ledger is the only mutable state; it is guarded so two concurrent
// signals on the same symbol cannot interleave a read-modify-write.
type Validator struct {
	cfg        Config
	capital    *capital.Manager
	executor   provider.ExecutionProvider
	classifier symbol.Classifier

	mu        sync.Mutex
	dailyPnL  float64
	exposure  map[string]float64
	lastReset time.Time

	now func() time.Time
}

func NewValidator(cfg Config, cap *capital.Manager, exec provider.ExecutionProvider, classifier symbol.Classifier) *Validator {
	if classifier == nil {
		classifier = symbol.PatternClassifier{}
	}
	v := &Validator{
		cfg:        cfg.withDefaults(),
		capital:    cap,
		executor:   exec,
		classifier: classifier,
		exposure:   map[string]float64{},
		now:        time.Now,
	}
	v.lastReset = v.today()
	return v
}

func (v *Validator) today() time.Time {
	y, m, d := v.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, v.now().Location())
}

// ValidateTrade runs the checks in order, short-circuiting on the first
// failure. It never returns an error: anything unexpected becomes a
// rejection, because a risk check that throws is a risk check that
// silently passed.
func (v *Validator) ValidateTrade(ctx context.Context, sig *types.TradingSignal) (check types.RiskCheck) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("risk: validation panic for %s: %v", sig.Symbol, r)
			check = types.RiskReject(fmt.Sprintf("Risk validation error: %v", r))
		}
	}()

	v.resetDailyMetrics()

	price := sig.Price
	if price <= 0 {
		price = assumedPrice
	}
	positionValue := sig.Quantity * price

	limits, reject := v.resolveLimits(ctx, sig, positionValue)
	if reject != nil {
		return *reject
	}

	// Daily loss limit.
	v.mu.Lock()
	dailyPnL := v.dailyPnL
	v.mu.Unlock()
	if abs(dailyPnL) >= limits.maxDailyLoss {
		return types.RiskReject(fmt.Sprintf("Daily loss $%.2f exceeds limit $%.2f", abs(dailyPnL), limits.maxDailyLoss))
	}

	// Minimum balance after the trade.
	projected := limits.balance - positionValue
	if projected < limits.minThreshold {
		return types.RiskReject(fmt.Sprintf("Projected balance $%.2f below minimum $%.2f", projected, limits.minThreshold))
	}

	// Per-symbol concentration; over the cap the check shrinks rather
	// than rejects when any room remains.
	currentExposure := v.symbolExposure(ctx, sig.Symbol)
	totalExposure := currentExposure + positionValue
	maxExposure := limits.balance * v.cfg.MaxSymbolExposurePct
	if totalExposure > maxExposure {
		remaining := maxExposure - currentExposure
		maxQty := remaining / price
		if maxQty <= 0 {
			return types.RiskReject(fmt.Sprintf("Symbol %s exposure $%.2f exceeds max $%.2f", sig.Symbol, totalExposure, maxExposure))
		}
		logger.Infof("risk: %s exposure cap reached, shrinking quantity to %.4f", sig.Symbol, maxQty)
		return types.RiskShrink(maxQty)
	}

	// Mode-specific symbol routing.
	class := v.classifier.Classify(sig.Symbol)
	if venue, ok := v.cfg.SymbolRouting[class]; ok && venue == RoutingBlocked {
		return types.RiskReject(fmt.Sprintf("Symbol type '%s' blocked in current mode", class))
	}

	logger.Infof("risk: check passed for %s: $%.2f position (balance $%.2f)", sig.Symbol, positionValue, limits.balance)
	return types.RiskPass()
}

type effectiveLimits struct {
	balance      float64
	maxDailyLoss float64
	minThreshold float64
}

// resolveLimits computes the balance and limits, delegating capital
// adequacy to the capital model when it is initialized.
func (v *Validator) resolveLimits(ctx context.Context, sig *types.TradingSignal, positionValue float64) (effectiveLimits, *types.RiskCheck) {
	if v.capital != nil && v.capital.Initialized() {
		price := sig.Price
		if price <= 0 {
			price = assumedPrice
		}
		validation, err := v.capital.ValidateTrade(sig.Symbol, sig.Quantity, price)
		if err != nil {
			r := types.RiskReject(fmt.Sprintf("Risk validation error: %v", err))
			return effectiveLimits{}, &r
		}
		if !validation.Approved {
			r := types.RiskReject(validation.Reason)
			return effectiveLimits{}, &r
		}
		balance, _ := v.capital.Available()
		maxDailyLoss, _ := v.capital.MaxDailyLoss()
		total, _ := v.capital.Total()
		return effectiveLimits{
			balance:      balance,
			maxDailyLoss: maxDailyLoss,
			minThreshold: total * 0.2,
		}, nil
	}

	balance, ok := v.accountBalance(ctx)
	if !ok {
		logger.Warnf("risk: could not retrieve account balance, using fallback default")
		balance = v.cfg.MinBalanceThreshold + 2000
	}
	maxPositionValue := balance * v.cfg.FallbackMaxPositionPct
	if positionValue > maxPositionValue {
		r := types.RiskReject(fmt.Sprintf("Position size $%.2f exceeds max allowed $%.2f", positionValue, maxPositionValue))
		return effectiveLimits{}, &r
	}
	return effectiveLimits{
		balance:      balance,
		maxDailyLoss: balance * v.cfg.FallbackMaxDailyLossPct,
		minThreshold: v.cfg.MinBalanceThreshold,
	}, nil
}

func (v *Validator) accountBalance(ctx context.Context) (float64, bool) {
	if v.executor == nil {
		return 0, false
	}
	balance, ok, err := v.executor.GetAccountBalance(ctx)
	if err != nil || !ok {
		return 0, false
	}
	return balance, true
}

// symbolExposure prefers live broker positions and falls back to the
// cached ledger when the provider call fails.
func (v *Validator) symbolExposure(ctx context.Context, sym string) float64 {
	symUpper := strings.ToUpper(sym)
	if v.executor != nil {
		positions, err := v.executor.GetPositions(ctx)
		if err == nil {
			var total float64
			for _, p := range positions {
				if strings.ToUpper(p.Symbol) == symUpper {
					total += abs(p.MarketValue)
				}
			}
			return total
		}
		logger.Warnf("risk: live positions unavailable, using cached exposure: %v", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.exposure[symUpper]
}

// UpdateAfterExecution adjusts the exposure ledger once a signal filled:
// additive for buys, subtractive for sells. Entries below a dollar are
// pruned so float dust never accumulates.
func (v *Validator) UpdateAfterExecution(sig *types.TradingSignal) {
	if sig == nil || sig.ExecutionPrice <= 0 || sig.Quantity <= 0 {
		return
	}
	value := sig.Quantity * sig.ExecutionPrice
	symUpper := strings.ToUpper(sig.Symbol)

	v.mu.Lock()
	defer v.mu.Unlock()
	if sig.Side == types.SideBuy {
		v.exposure[symUpper] += value
	} else {
		v.exposure[symUpper] -= value
	}
	if abs(v.exposure[symUpper]) < 1.0 {
		delete(v.exposure, symUpper)
	}
	logger.Infof("risk: exposure for %s now $%.2f", symUpper, v.exposure[symUpper])
}

// UpdateDailyPnL folds a realized pnl change into the daily ledger.
func (v *Validator) UpdateDailyPnL(delta float64) {
	v.mu.Lock()
	v.dailyPnL += delta
	current := v.dailyPnL
	v.mu.Unlock()
	logger.Infof("risk: daily pnl now $%.2f", current)
}

func (v *Validator) resetDailyMetrics() {
	today := v.today()
	v.mu.Lock()
	defer v.mu.Unlock()
	if today.After(v.lastReset) {
		v.dailyPnL = 0
		v.lastReset = today
		logger.Infof("risk: daily metrics reset for new trading day")
	}
}

// Metrics is the caller-facing risk report.
type Metrics struct {
	DailyPnL         float64            `json:"daily_pnl"`
	DailyLossLimit   float64            `json:"daily_loss_limit"`
	AvailableBalance float64            `json:"available_balance"`
	MinThreshold     float64            `json:"min_balance_threshold"`
	MaxPositionSize  float64            `json:"max_position_size"`
	Exposure         map[string]float64 `json:"exposure"`
	PositionCount    int                `json:"position_count"`
	LastReset        time.Time          `json:"last_reset"`
}

func (v *Validator) Metrics(ctx context.Context) Metrics {
	balance, ok := v.accountBalance(ctx)
	if !ok {
		balance = v.cfg.MinBalanceThreshold
	}
	v.mu.Lock()
	exposure := make(map[string]float64, len(v.exposure))
	for k, val := range v.exposure {
		exposure[k] = val
	}
	m := Metrics{
		DailyPnL:         v.dailyPnL,
		DailyLossLimit:   balance * v.cfg.FallbackMaxDailyLossPct,
		AvailableBalance: balance,
		MinThreshold:     v.cfg.MinBalanceThreshold,
		MaxPositionSize:  balance * v.cfg.FallbackMaxPositionPct,
		Exposure:         exposure,
		PositionCount:    len(exposure),
		LastReset:        v.lastReset,
	}
	v.mu.Unlock()

	if v.capital != nil && v.capital.Initialized() {
		if available, ok := v.capital.Available(); ok {
			m.AvailableBalance = available
		}
		if dailyLoss, ok := v.capital.MaxDailyLoss(); ok {
			m.DailyLossLimit = dailyLoss
		}
		if maxPos, ok := v.capital.MaxPositionSize(); ok {
			m.MaxPositionSize = maxPos
		}
	}
	return m
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
