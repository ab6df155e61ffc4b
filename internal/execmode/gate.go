package execmode

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradeflow/internal/logger"
	"tradeflow/internal/store"
)

var (
	ErrProviderForcedSimulation = errors.New("provider forced to simulation")
	ErrTradeValueExceeded       = errors.New("trade value exceeds maximum")
)

// ConfigStore persists the execution-mode singleton.
type ConfigStore interface {
	SaveExecutionConfig(store.ExecutionRecord) error
	LoadExecutionConfig() (*store.ExecutionRecord, error)
}

// Gate is the simulation-vs-live switch. The invariant it protects: in
// simulation mode no live brokerage or DEX network path is ever taken, so
// the router only talks to the simulated venue while the gate is off.
type Gate struct {
	mu sync.Mutex

	executionMode bool
	maxTradeValue float64
	overrides     map[string]store.ProviderOverride
	lastUpdated   time.Time

	store ConfigStore
}

const defaultMaxTradeValue = 10000

// NewGate loads the persisted mode; absent a row it starts in simulation
// mode for safety.
func NewGate(cs ConfigStore) *Gate {
	g := &Gate{
		executionMode: false,
		maxTradeValue: defaultMaxTradeValue,
		overrides:     map[string]store.ProviderOverride{},
		store:         cs,
	}
	if cs != nil {
		rec, err := cs.LoadExecutionConfig()
		switch {
		case err != nil:
			logger.Errorf("execmode: loading persisted config failed, defaulting to simulation: %v", err)
		case rec != nil:
			g.executionMode = rec.ExecutionMode
			if rec.MaxTradeValue > 0 {
				g.maxTradeValue = rec.MaxTradeValue
			}
			if rec.ProviderOverrides != nil {
				g.overrides = rec.ProviderOverrides
			}
			g.lastUpdated = rec.UpdatedAt
		}
	}
	logger.Infof("execmode: gate ready (mode=%s)", g.modeString())
	return g
}

func (g *Gate) modeString() string {
	if g.executionMode {
		return "EXECUTION"
	}
	return "SIMULATION"
}

func (g *Gate) IsExecutionMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.executionMode
}

func (g *Gate) IsSimulationMode() bool {
	return !g.IsExecutionMode()
}

// SetExecutionMode flips the global flag. The transition is logged at
// warning level because it changes whether real money moves.
func (g *Gate) SetExecutionMode(enabled bool) (persisted bool) {
	g.mu.Lock()
	old := g.modeString()
	g.executionMode = enabled
	now := g.modeString()
	g.lastUpdated = time.Now()
	persisted = g.persistLocked()
	g.mu.Unlock()

	logger.Warnf("execmode: mode switched %s -> %s", old, now)
	logger.Audit("mode-switch", fmt.Sprintf("%s -> %s", old, now))
	return persisted
}

func (g *Gate) persistLocked() bool {
	if g.store == nil {
		return true
	}
	rec := store.ExecutionRecord{
		ExecutionMode:     g.executionMode,
		MaxTradeValue:     g.maxTradeValue,
		ProviderOverrides: g.overrides,
	}
	if err := g.store.SaveExecutionConfig(rec); err != nil {
		logger.Errorf("execmode: persisting config failed (in-memory state remains authoritative): %v", err)
		return false
	}
	return true
}

// ProviderMode resolves the effective mode for one provider. A
// force-simulation override always wins over the global flag.
func (g *Gate) ProviderMode(provider string) (executionEnabled bool, reason string) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	g.mu.Lock()
	defer g.mu.Unlock()
	if ov, ok := g.overrides[provider]; ok && ov.ForceSimulation {
		reason = ov.Reason
		if reason == "" {
			reason = "provider override"
		}
		return false, reason
	}
	return g.executionMode, "global setting"
}

// SetProviderOverride forces a provider into simulation, or clears the
// override when forceSimulation is false.
func (g *Gate) SetProviderOverride(provider string, forceSimulation bool, reason string) (persisted bool) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	g.mu.Lock()
	if forceSimulation {
		if reason == "" {
			reason = fmt.Sprintf("%s forced to simulation", provider)
		}
		g.overrides[provider] = store.ProviderOverride{ForceSimulation: true, Reason: reason}
	} else {
		delete(g.overrides, provider)
	}
	g.lastUpdated = time.Now()
	persisted = g.persistLocked()
	g.mu.Unlock()

	logger.Infof("execmode: provider override for %s: force_simulation=%v", provider, forceSimulation)
	return persisted
}

// ValidateExecutionSafety gates a live action. Simulation mode always
// passes; execution mode enforces overrides and the trade-value cap.
func (g *Gate) ValidateExecutionSafety(provider, action string, value float64) error {
	g.mu.Lock()
	executionMode := g.executionMode
	maxValue := g.maxTradeValue
	g.mu.Unlock()

	if !executionMode {
		return nil
	}
	allowed, reason := g.ProviderMode(provider)
	if !allowed {
		return fmt.Errorf("%w: %s (%s)", ErrProviderForcedSimulation, provider, reason)
	}
	if value > maxValue {
		return fmt.Errorf("%w: $%.2f > $%.2f (action=%s)", ErrTradeValueExceeded, value, maxValue, action)
	}
	return nil
}

// MaxTradeValue reports the live trade-value cap.
func (g *Gate) MaxTradeValue() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxTradeValue
}

// SetMaxTradeValue adjusts the live trade-value cap.
func (g *Gate) SetMaxTradeValue(v float64) (persisted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v > 0 {
		g.maxTradeValue = v
		g.lastUpdated = time.Now()
		return g.persistLocked()
	}
	return true
}

// ProviderModeInfo is one provider's resolved mode for the summary view.
type ProviderModeInfo struct {
	ExecutionMode bool   `json:"execution_mode"`
	Mode          string `json:"mode"`
	Reason        string `json:"reason"`
}

// Summary describes the gate for callers.
type Summary struct {
	ExecutionMode bool                        `json:"execution_mode"`
	Mode          string                      `json:"mode"`
	MaxTradeValue float64                     `json:"max_trade_value"`
	Providers     map[string]ProviderModeInfo `json:"providers"`
	LastUpdated   time.Time                   `json:"last_updated"`
}

// ModeSummary resolves the effective mode for the given providers.
func (g *Gate) ModeSummary(providers []string) Summary {
	g.mu.Lock()
	executionMode := g.executionMode
	maxValue := g.maxTradeValue
	updated := g.lastUpdated
	g.mu.Unlock()

	out := Summary{
		ExecutionMode: executionMode,
		MaxTradeValue: maxValue,
		LastUpdated:   updated,
		Providers:     make(map[string]ProviderModeInfo, len(providers)),
	}
	if executionMode {
		out.Mode = "EXECUTION"
	} else {
		out.Mode = "SIMULATION"
	}
	for _, p := range providers {
		enabled, reason := g.ProviderMode(p)
		info := ProviderModeInfo{ExecutionMode: enabled, Reason: reason, Mode: "SIMULATION"}
		if enabled {
			info.Mode = "EXECUTION"
		}
		out.Providers[strings.ToLower(p)] = info
	}
	return out
}
