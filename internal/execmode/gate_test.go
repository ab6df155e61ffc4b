package execmode

import (
	"testing"

	"tradeflow/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockConfigStore struct {
	mock.Mock
}

func (m *MockConfigStore) SaveExecutionConfig(rec store.ExecutionRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockConfigStore) LoadExecutionConfig() (*store.ExecutionRecord, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.ExecutionRecord), args.Error(1)
}

func TestDefaultsToSimulation(t *testing.T) {
	g := NewGate(nil)
	assert.True(t, g.IsSimulationMode())
	assert.False(t, g.IsExecutionMode())
	assert.Equal(t, 10000.0, g.MaxTradeValue())
}

func TestLoadFailureDefaultsToSimulation(t *testing.T) {
	cs := &MockConfigStore{}
	cs.On("LoadExecutionConfig").Return(nil, assert.AnError)

	g := NewGate(cs)
	assert.True(t, g.IsSimulationMode())
}

func TestLoadsPersistedMode(t *testing.T) {
	cs := &MockConfigStore{}
	cs.On("LoadExecutionConfig").Return(&store.ExecutionRecord{
		ExecutionMode: true,
		MaxTradeValue: 2500,
		ProviderOverrides: map[string]store.ProviderOverride{
			"defi": {ForceSimulation: true, Reason: "wallet not funded"},
		},
	}, nil)

	g := NewGate(cs)
	assert.True(t, g.IsExecutionMode())
	assert.Equal(t, 2500.0, g.MaxTradeValue())

	enabled, reason := g.ProviderMode("defi")
	assert.False(t, enabled)
	assert.Equal(t, "wallet not funded", reason)
}

func TestModeSwitchPersists(t *testing.T) {
	cs := &MockConfigStore{}
	cs.On("LoadExecutionConfig").Return(nil, nil)
	cs.On("SaveExecutionConfig", mock.MatchedBy(func(rec store.ExecutionRecord) bool {
		return rec.ExecutionMode
	})).Return(nil)

	g := NewGate(cs)
	persisted := g.SetExecutionMode(true)
	assert.True(t, persisted)
	assert.True(t, g.IsExecutionMode())
	cs.AssertExpectations(t)
}

func TestSimulationAlwaysPassesSafetyCheck(t *testing.T) {
	g := NewGate(nil)
	assert.NoError(t, g.ValidateExecutionSafety("brokerage", "order", 1e9))
}

func TestExecutionModeEnforcesTradeValueCap(t *testing.T) {
	g := NewGate(nil)
	g.SetExecutionMode(true)
	g.SetMaxTradeValue(5000)

	assert.NoError(t, g.ValidateExecutionSafety("brokerage", "order", 4999))
	err := g.ValidateExecutionSafety("brokerage", "order", 5001)
	assert.ErrorIs(t, err, ErrTradeValueExceeded)
}

func TestProviderOverrideWinsOverGlobalMode(t *testing.T) {
	g := NewGate(nil)
	g.SetExecutionMode(true)
	g.SetProviderOverride("defi", true, "rpc endpoint flaky")

	err := g.ValidateExecutionSafety("defi", "order", 100)
	assert.ErrorIs(t, err, ErrProviderForcedSimulation)

	// Other providers are unaffected.
	assert.NoError(t, g.ValidateExecutionSafety("brokerage", "order", 100))

	g.SetProviderOverride("defi", false, "")
	assert.NoError(t, g.ValidateExecutionSafety("defi", "order", 100))
}

func TestModeSummary(t *testing.T) {
	g := NewGate(nil)
	g.SetExecutionMode(true)
	g.SetProviderOverride("defi", true, "maintenance")

	s := g.ModeSummary([]string{"brokerage", "defi"})
	assert.Equal(t, "EXECUTION", s.Mode)
	assert.Equal(t, "EXECUTION", s.Providers["brokerage"].Mode)
	assert.Equal(t, "SIMULATION", s.Providers["defi"].Mode)
	assert.Equal(t, "maintenance", s.Providers["defi"].Reason)
}
