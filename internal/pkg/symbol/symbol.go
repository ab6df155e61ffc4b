package symbol

import "strings"

// Class is the instrument class a ticker resolves to. Risk routing and
// venue selection key off this value.
type Class string

const (
	ClassStock  Class = "stocks"
	ClassETF    Class = "etfs"
	ClassOption Class = "options"
	ClassCrypto Class = "crypto"
)

// Classifier resolves a ticker to an instrument class. The default is a
// pattern heuristic; callers can swap in an authoritative instrument
// reference lookup without touching the pipeline.
type Classifier interface {
	Classify(symbol string) Class
}

// PatternClassifier guesses the class from well-known ticker substrings.
// Known limitation: option detection from raw ticker shape is a heuristic,
// not an OCC parse.
type PatternClassifier struct{}

var cryptoPatterns = []string{
	"BTC", "ETH", "USDT", "USDC", "BNB", "SOL", "DOGE", "ADA", "DOT", "LINK", "AVAX", "UNI", "AAVE",
}

var etfPatterns = []string{
	"SPY", "QQQ", "IWM", "GLD", "TLT", "VTI", "VOO", "VEA", "VWO", "AGG", "BND",
}

func (PatternClassifier) Classify(sym string) Class {
	s := strings.ToUpper(strings.TrimSpace(sym))
	if s == "" {
		return ClassStock
	}
	for _, p := range cryptoPatterns {
		if strings.Contains(s, p) {
			return ClassCrypto
		}
	}
	for _, p := range etfPatterns {
		if strings.Contains(s, p) || strings.HasSuffix(s, "ETF") {
			return ClassETF
		}
	}
	if looksLikeOption(s) {
		return ClassOption
	}
	return ClassStock
}

// looksLikeOption matches OCC-style tickers: underlying + 6-digit expiry +
// C/P + strike digits, e.g. AAPL240119C00150000.
func looksLikeOption(s string) bool {
	if len(s) <= 6 {
		return false
	}
	tail := s
	if len(tail) > 8 {
		tail = tail[len(tail)-8:]
	}
	digits := 0
	for _, r := range tail {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 6 && (strings.ContainsRune(s, 'C') || strings.ContainsRune(s, 'P'))
}

// Pair splits crypto tickers against the common quote currencies.
type Pair struct {
	Base  string
	Quote string
}

var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "USD"}

// ParsePair normalizes "ETH/USDT", "ETHUSDT" or "ETH-USD" into a Pair.
// Non-pair tickers come back with an empty Quote.
func ParsePair(s string) Pair {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Pair{}
	}
	for _, sep := range []string{"/", "-"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return Pair{Base: parts[0], Quote: parts[1]}
		}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Pair{Base: strings.TrimSuffix(s, quote), Quote: quote}
		}
	}
	return Pair{Base: s}
}

// Exchange renders the pair without separator, e.g. ETHUSDT.
func (p Pair) Exchange() string {
	if p.Base == "" {
		return ""
	}
	if p.Quote == "" {
		return p.Base + "USDT"
	}
	return p.Base + p.Quote
}
