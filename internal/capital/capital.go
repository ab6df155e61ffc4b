package capital

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tradeflow/internal/logger"
	"tradeflow/internal/store"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidCapital        = errors.New("capital must be positive")
	ErrBelowMinimumThreshold = errors.New("capital below minimum threshold")
	ErrCapitalNotInitialized = errors.New("capital not initialized")
	ErrInvalidAllocation     = errors.New("invalid allocation percentages")
)

// Percentages is the allocation split. EmergencyReservePct and
// AvailableTradingPct must sum to 100 within 0.01.
type Percentages struct {
	MaxPositionPct      float64 `json:"max_position_pct"`
	MaxDailyLossPct     float64 `json:"max_daily_loss_pct"`
	EmergencyReservePct float64 `json:"emergency_reserve_pct"`
	AvailableTradingPct float64 `json:"available_trading_pct"`
}

func DefaultPercentages() Percentages {
	return Percentages{
		MaxPositionPct:      10.0,
		MaxDailyLossPct:     5.0,
		EmergencyReservePct: 20.0,
		AvailableTradingPct: 80.0,
	}
}

func (p Percentages) validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"max_position_pct", p.MaxPositionPct},
		{"max_daily_loss_pct", p.MaxDailyLossPct},
		{"emergency_reserve_pct", p.EmergencyReservePct},
		{"available_trading_pct", p.AvailableTradingPct},
	}
	for _, c := range checks {
		if c.value < 0 || c.value > 100 {
			return fmt.Errorf("%w: %s must be between 0 and 100, got %.2f", ErrInvalidAllocation, c.name, c.value)
		}
	}
	total := p.EmergencyReservePct + p.AvailableTradingPct
	if diff := total - 100.0; diff > 0.01 || diff < -0.01 {
		return fmt.Errorf("%w: emergency_reserve_pct + available_trading_pct must sum to 100, got %.2f", ErrInvalidAllocation, total)
	}
	return nil
}

// ConfigStore persists the capital singleton. Save failures never roll
// back the in-memory state; they are reported as Persisted=false.
type ConfigStore interface {
	SaveCapitalConfig(store.CapitalRecord) error
	LoadCapitalConfig() (*store.CapitalRecord, error)
}

// Manager owns the capital allocation singleton. All reads and writes go
// through one mutex so persistence happens against a consistent view.
type Manager struct {
	mu sync.Mutex

	total        *float64
	percentages  Percentages
	minThreshold float64
	currency     string
	initialized  bool
	lastUpdated  time.Time

	store ConfigStore
}

// Option configures a Manager.
type Option func(*Manager)

func WithMinThreshold(v float64) Option {
	return func(m *Manager) { m.minThreshold = v }
}

func WithCurrency(c string) Option {
	return func(m *Manager) { m.currency = c }
}

// NewManager loads persisted capital config, falling back to defaults
// when no row exists or the store is unavailable.
func NewManager(cs ConfigStore, opts ...Option) *Manager {
	m := &Manager{
		percentages:  DefaultPercentages(),
		minThreshold: 1000.0,
		currency:     "USD",
		store:        cs,
	}
	for _, opt := range opts {
		opt(m)
	}
	if cs != nil {
		rec, err := cs.LoadCapitalConfig()
		switch {
		case err != nil:
			logger.Errorf("capital: loading persisted config failed, using defaults: %v", err)
		case rec != nil:
			m.total = rec.TotalCapital
			m.percentages = Percentages{
				MaxPositionPct:      rec.MaxPositionPct,
				MaxDailyLossPct:     rec.MaxDailyLossPct,
				EmergencyReservePct: rec.EmergencyReservePct,
				AvailableTradingPct: rec.AvailableTradingPct,
			}
			m.minThreshold = rec.MinCapitalThreshold
			if rec.Currency != "" {
				m.currency = rec.Currency
			}
			m.initialized = rec.Initialized
			m.lastUpdated = rec.UpdatedAt
			logger.Infof("capital: configuration loaded (initialized=%v)", m.initialized)
		}
	}
	return m
}

// persistLocked writes the current state; the caller holds m.mu.
func (m *Manager) persistLocked() bool {
	if m.store == nil {
		return true
	}
	rec := store.CapitalRecord{
		TotalCapital:        m.total,
		MaxPositionPct:      m.percentages.MaxPositionPct,
		MaxDailyLossPct:     m.percentages.MaxDailyLossPct,
		EmergencyReservePct: m.percentages.EmergencyReservePct,
		AvailableTradingPct: m.percentages.AvailableTradingPct,
		MinCapitalThreshold: m.minThreshold,
		Currency:            m.currency,
		Initialized:         m.initialized,
	}
	if err := m.store.SaveCapitalConfig(rec); err != nil {
		logger.Errorf("capital: persisting config failed (in-memory state remains authoritative): %v", err)
		return false
	}
	return true
}

// Initialize sets the total capital for the first time.
func (m *Manager) Initialize(total float64) (UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initializeLocked(total)
}

func (m *Manager) initializeLocked(total float64) (UpdateResult, error) {
	if total <= 0 {
		return UpdateResult{}, fmt.Errorf("%w: got %.2f", ErrInvalidCapital, total)
	}
	if total < m.minThreshold {
		return UpdateResult{}, fmt.Errorf("%w: minimum is $%.2f", ErrBelowMinimumThreshold, m.minThreshold)
	}
	var old float64
	if m.total != nil {
		old = *m.total
	}
	v := total
	m.total = &v
	m.initialized = true
	m.lastUpdated = time.Now()
	persisted := m.persistLocked()
	logger.Infof("capital: initialized at $%.2f", total)
	return UpdateResult{OldTotal: old, NewTotal: total, Persisted: persisted}, nil
}

// UpdateResult reports an applied capital mutation for audit.
type UpdateResult struct {
	OldTotal  float64 `json:"old_total"`
	NewTotal  float64 `json:"new_total"`
	Persisted bool    `json:"persisted"`
}

// Update replaces the total capital; before initialization it behaves as
// Initialize.
func (m *Manager) Update(total float64) (UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return m.initializeLocked(total)
	}
	if total <= 0 {
		return UpdateResult{}, fmt.Errorf("%w: got %.2f", ErrInvalidCapital, total)
	}
	old := *m.total
	v := total
	m.total = &v
	m.lastUpdated = time.Now()
	persisted := m.persistLocked()
	logger.Infof("capital: updated $%.2f -> $%.2f", old, total)
	return UpdateResult{OldTotal: old, NewTotal: total, Persisted: persisted}, nil
}

func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Total returns the configured capital; ok is false before initialization.
func (m *Manager) Total() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.total == nil {
		return 0, false
	}
	return *m.total, true
}

// Available is total scaled by the trading allocation.
func (m *Manager) Available() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableLocked()
}

func (m *Manager) availableLocked() (float64, bool) {
	if m.total == nil {
		return 0, false
	}
	v := decimal.NewFromFloat(*m.total).
		Mul(decimal.NewFromFloat(m.percentages.AvailableTradingPct)).
		Div(decimal.NewFromInt(100))
	f, _ := v.Float64()
	return f, true
}

// MaxPositionSize is the per-position dollar cap.
func (m *Manager) MaxPositionSize() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxPositionSizeLocked()
}

func (m *Manager) maxPositionSizeLocked() (float64, bool) {
	available, ok := m.availableLocked()
	if !ok {
		return 0, false
	}
	v := decimal.NewFromFloat(available).
		Mul(decimal.NewFromFloat(m.percentages.MaxPositionPct)).
		Div(decimal.NewFromInt(100))
	f, _ := v.Float64()
	return f, true
}

// MaxDailyLoss is the daily loss cutoff in dollars.
func (m *Manager) MaxDailyLoss() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.total == nil {
		return 0, false
	}
	v := decimal.NewFromFloat(*m.total).
		Mul(decimal.NewFromFloat(m.percentages.MaxDailyLossPct)).
		Div(decimal.NewFromInt(100))
	f, _ := v.Float64()
	return f, true
}

// Sizing is the breakdown behind a position-size calculation.
type Sizing struct {
	Symbol           string  `json:"symbol"`
	TotalCapital     float64 `json:"total_capital"`
	AvailableCapital float64 `json:"available_capital"`
	MaxPositionUSD   float64 `json:"max_position_usd"`
	SymbolPrice      float64 `json:"symbol_price"`
	MaxQuantity      float64 `json:"max_quantity"`
}

// CalculatePositionSize returns the maximum quantity of symbol that fits
// the per-position cap at the given price.
func (m *Manager) CalculatePositionSize(sym string, price float64) (Sizing, error) {
	if price <= 0 {
		return Sizing{}, fmt.Errorf("price must be positive, got %.4f", price)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	maxPosition, ok := m.maxPositionSizeLocked()
	if !ok {
		return Sizing{}, ErrCapitalNotInitialized
	}
	available, _ := m.availableLocked()
	qty, _ := decimal.NewFromFloat(maxPosition).Div(decimal.NewFromFloat(price)).Float64()
	return Sizing{
		Symbol:           sym,
		TotalCapital:     *m.total,
		AvailableCapital: available,
		MaxPositionUSD:   maxPosition,
		SymbolPrice:      price,
		MaxQuantity:      qty,
	}, nil
}

// Validation is the outcome of a capital-allocation trade check.
type Validation struct {
	Approved       bool    `json:"approved"`
	Reason         string  `json:"reason,omitempty"`
	PositionValue  float64 `json:"position_value"`
	MaxPosition    float64 `json:"max_position"`
	Available      float64 `json:"available_capital"`
	UtilizationPct float64 `json:"utilization_pct,omitempty"`
}

// ValidateTrade checks the trade against the per-position cap and the
// available trading capital.
func (m *Manager) ValidateTrade(sym string, quantity, price float64) (Validation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	maxPosition, ok := m.maxPositionSizeLocked()
	if !ok {
		return Validation{}, ErrCapitalNotInitialized
	}
	available, _ := m.availableLocked()
	positionValue, _ := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price)).Float64()

	v := Validation{
		PositionValue: positionValue,
		MaxPosition:   maxPosition,
		Available:     available,
	}
	if positionValue > maxPosition {
		v.Reason = fmt.Sprintf("position size $%.2f exceeds max allowed $%.2f", positionValue, maxPosition)
		return v, nil
	}
	if positionValue > available {
		v.Reason = fmt.Sprintf("position size $%.2f exceeds available capital $%.2f", positionValue, available)
		return v, nil
	}
	v.Approved = true
	if maxPosition > 0 {
		v.UtilizationPct = positionValue / maxPosition * 100
	}
	return v, nil
}

// UpdateAllocationPercentages replaces the split after validating every
// field; a rejected update leaves the prior config untouched.
func (m *Manager) UpdateAllocationPercentages(p Percentages) (UpdateResult, error) {
	if err := p.validate(); err != nil {
		return UpdateResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.percentages = p
	m.lastUpdated = time.Now()
	persisted := m.persistLocked()
	logger.Infof("capital: allocation percentages updated")
	var total float64
	if m.total != nil {
		total = *m.total
	}
	return UpdateResult{OldTotal: total, NewTotal: total, Persisted: persisted}, nil
}

// AllocationSummary is a caller-facing snapshot of the capital model.
type AllocationSummary struct {
	TotalCapital     float64     `json:"total_capital"`
	AvailableTrading float64     `json:"available_trading"`
	EmergencyReserve float64     `json:"emergency_reserve"`
	MaxPositionSize  float64     `json:"max_position_size"`
	MaxDailyLoss     float64     `json:"max_daily_loss"`
	Percentages      Percentages `json:"allocation_percentages"`
	Currency         string      `json:"currency"`
	Initialized      bool        `json:"initialized"`
	LastUpdated      time.Time   `json:"last_updated"`
}

func (m *Manager) Summary() (AllocationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.total == nil {
		return AllocationSummary{}, ErrCapitalNotInitialized
	}
	available, _ := m.availableLocked()
	maxPosition, _ := m.maxPositionSizeLocked()
	reserve, _ := decimal.NewFromFloat(*m.total).
		Mul(decimal.NewFromFloat(m.percentages.EmergencyReservePct)).
		Div(decimal.NewFromInt(100)).Float64()
	dailyLoss, _ := decimal.NewFromFloat(*m.total).
		Mul(decimal.NewFromFloat(m.percentages.MaxDailyLossPct)).
		Div(decimal.NewFromInt(100)).Float64()
	return AllocationSummary{
		TotalCapital:     *m.total,
		AvailableTrading: available,
		EmergencyReserve: reserve,
		MaxPositionSize:  maxPosition,
		MaxDailyLoss:     dailyLoss,
		Percentages:      m.percentages,
		Currency:         m.currency,
		Initialized:      m.initialized,
		LastUpdated:      m.lastUpdated,
	}, nil
}

// Percentages returns the active allocation split.
func (m *Manager) Allocation() Percentages {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.percentages
}

// MinThreshold reports the configured capital floor.
func (m *Manager) MinThreshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.minThreshold
}
