package talib

import (
	"context"
	"fmt"
	"strings"
	"time"

	talib "github.com/markcheno/go-talib"

	"tradeflow/internal/provider"
	binanceprovider "tradeflow/internal/provider/binance"
	"tradeflow/internal/types"
)

const ProviderName = "talib_analytics"

// CandleSource supplies the bars the indicators are computed over.
// The Binance provider satisfies it directly.
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]binanceprovider.Candle, error)
}

type Config struct {
	Interval string
}

// Provider computes indicators locally from venue candles instead of
// calling a paid indicator API.
type Provider struct {
	cfg     Config
	candles CandleSource
}

func New(cfg Config, candles CandleSource) *Provider {
	if cfg.Interval == "" {
		cfg.Interval = "1h"
	}
	return &Provider{cfg: cfg, candles: candles}
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) closes(ctx context.Context, symbol string, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("talib: period must be positive, got %d", period)
	}
	// Warm-up data beyond the period keeps the last value stable.
	limit := period * 3
	if limit < period+1 {
		limit = period + 1
	}
	bars, err := p.candles.Candles(ctx, symbol, p.cfg.Interval, limit)
	if err != nil {
		return nil, err
	}
	if len(bars) < period+1 {
		return nil, fmt.Errorf("talib: %d bars for %s, need at least %d", len(bars), symbol, period+1)
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes, nil
}

func (p *Provider) GetRSI(ctx context.Context, symbol string, period int) (*types.TechnicalIndicator, error) {
	closes, err := p.closes(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	values := talib.Rsi(closes, period)
	return p.indicator("rsi", symbol, period, values)
}

func (p *Provider) GetMovingAverage(ctx context.Context, symbol string, period int, maType string) (*types.TechnicalIndicator, error) {
	closes, err := p.closes(ctx, symbol, period)
	if err != nil {
		return nil, err
	}
	var (
		name   string
		values []float64
	)
	switch strings.ToLower(strings.TrimSpace(maType)) {
	case "", "sma":
		name, values = "sma", talib.Sma(closes, period)
	case "ema":
		name, values = "ema", talib.Ema(closes, period)
	case "wma":
		name, values = "wma", talib.Wma(closes, period)
	default:
		return nil, fmt.Errorf("talib: unsupported moving average type %q", maType)
	}
	return p.indicator(name, symbol, period, values)
}

func (p *Provider) indicator(name, symbol string, period int, values []float64) (*types.TechnicalIndicator, error) {
	last := 0.0
	found := false
	for i := len(values) - 1; i >= 0; i-- {
		if values[i] != 0 {
			last = values[i]
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("talib: %s(%d) produced no value for %s", name, period, symbol)
	}
	return &types.TechnicalIndicator{
		Name:      name,
		Symbol:    symbol,
		Value:     last,
		Period:    period,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]any{"interval": p.cfg.Interval, "source": "candles"},
	}, nil
}

var _ provider.AnalyticsProvider = (*Provider)(nil)
