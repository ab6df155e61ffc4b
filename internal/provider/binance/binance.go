package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"

	"tradeflow/internal/logger"
	"tradeflow/internal/pkg/circuit"
	"tradeflow/internal/pkg/symbol"
	"tradeflow/internal/provider"
	"tradeflow/internal/types"
)

const ProviderName = "binance"

const (
	breakerThreshold = 5
	breakerCooldown  = 2 * time.Minute
)

type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string
}

// Provider serves spot quotes from Binance. Crypto trades continuously,
// so the market-session probe is a connectivity ping. A circuit breaker
// keeps a flapping exchange endpoint from stalling every signal on
// request timeouts.
type Provider struct {
	client  *binance.Client
	breaker *circuit.Breaker

	mu          sync.Mutex
	validSymbol map[string]bool
}

func New(cfg Config) *Provider {
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client:      client,
		breaker:     circuit.NewBreaker(ProviderName, breakerThreshold, breakerCooldown),
		validSymbol: map[string]bool{},
	}
}

func (p *Provider) Name() string { return ProviderName }

// exchangeSymbol maps a pipeline ticker onto a Binance spot pair. USD
// quotes trade as USDT on spot.
func exchangeSymbol(sym string) string {
	pair := symbol.ParsePair(sym)
	if pair.Quote == "USD" {
		pair.Quote = "USDT"
	}
	return pair.Exchange()
}

func (p *Provider) GetCurrentPrice(ctx context.Context, sym string) (*types.MarketData, error) {
	exch := exchangeSymbol(sym)
	if exch == "" {
		return nil, fmt.Errorf("binance: cannot map symbol %q to a trading pair", sym)
	}
	if !p.breaker.Allow() {
		return nil, fmt.Errorf("binance: circuit open, skipping quote for %s", exch)
	}
	stats, err := p.client.NewListPriceChangeStatsService().Symbol(exch).Do(ctx)
	if err != nil {
		p.breaker.RecordFailure()
		return nil, fmt.Errorf("binance: fetching 24h stats for %s: %w", exch, err)
	}
	p.breaker.RecordSuccess()
	if len(stats) == 0 {
		return nil, fmt.Errorf("binance: no ticker data for %s", exch)
	}
	s := stats[0]

	md := &types.MarketData{
		Symbol:    sym,
		Price:     parseFloat(s.LastPrice),
		Timestamp: time.Now().UTC(),
		Volume:    parseFloat(s.Volume),
		Bid:       parseFloat(s.BidPrice),
		Ask:       parseFloat(s.AskPrice),
		Provider:  ProviderName,
		Metadata:  map[string]any{"exchange_symbol": exch},
	}
	md.PreviousClose = parseFloat(s.PrevClosePrice)
	md.ChangePercent = parseFloat(s.PriceChangePercent)
	if md.Bid > 0 && md.Ask > 0 {
		md.Spread = md.Ask - md.Bid
	}
	if md.Price <= 0 {
		return nil, fmt.Errorf("binance: ticker for %s carries no price", exch)
	}
	return md, nil
}

// IsMarketOpen pings the exchange. Spot crypto has no session calendar;
// reachable means open.
func (p *Provider) IsMarketOpen(ctx context.Context) (bool, error) {
	if err := p.client.NewPingService().Do(ctx); err != nil {
		return false, fmt.Errorf("binance: ping: %w", err)
	}
	return true, nil
}

func (p *Provider) ValidateSymbol(ctx context.Context, sym string) (bool, error) {
	exch := exchangeSymbol(sym)
	if exch == "" {
		return false, nil
	}

	p.mu.Lock()
	known, ok := p.validSymbol[exch]
	p.mu.Unlock()
	if ok {
		return known, nil
	}

	info, err := p.client.NewExchangeInfoService().Symbol(exch).Do(ctx)
	if err != nil {
		// An unknown symbol comes back as an API error; report invalid
		// rather than failing the pipeline.
		logger.Debugf("binance: exchange info for %s: %v", exch, err)
		return false, nil
	}
	valid := false
	for _, s := range info.Symbols {
		if s.Symbol == exch && s.Status == "TRADING" {
			valid = true
			break
		}
	}
	p.mu.Lock()
	p.validSymbol[exch] = valid
	p.mu.Unlock()
	return valid, nil
}

func (p *Provider) HealthCheck(ctx context.Context) types.ProviderHealth {
	start := time.Now()
	health := types.ProviderHealth{Provider: ProviderName, LastCheck: start.UTC()}
	if err := p.client.NewPingService().Do(ctx); err != nil {
		health.Status = types.HealthUnavailable
		health.ErrorMessage = err.Error()
		return health
	}
	health.Status = types.HealthHealthy
	health.ResponseTimeMs = float64(time.Since(start).Milliseconds())
	return health
}

// Candle is one OHLCV bar, newest last.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Candles fetches recent bars for indicator computation.
func (p *Provider) Candles(ctx context.Context, sym, interval string, limit int) ([]Candle, error) {
	exch := exchangeSymbol(sym)
	if exch == "" {
		return nil, fmt.Errorf("binance: cannot map symbol %q to a trading pair", sym)
	}
	if interval == "" {
		interval = "1h"
	}
	if !p.breaker.Allow() {
		return nil, fmt.Errorf("binance: circuit open, skipping klines for %s", exch)
	}
	klines, err := p.client.NewKlinesService().Symbol(exch).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		p.breaker.RecordFailure()
		return nil, fmt.Errorf("binance: fetching klines for %s: %w", exch, err)
	}
	p.breaker.RecordSuccess()
	out := make([]Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, Candle{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

var _ provider.PriceDataProvider = (*Provider)(nil)
