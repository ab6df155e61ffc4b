package intake

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"tradeflow/internal/types"
)

// signalSchema is the contract external signal sources must meet before
// a payload enters the pipeline. Side and quantity accept aliases, so
// their presence is enforced after alias resolution rather than here.
const signalSchema = `{
  "type": "object",
  "required": ["symbol"],
  "properties": {
    "symbol": {"type": "string", "minLength": 1},
    "side": {"type": "string"},
    "action": {"type": "string"},
    "quantity": {"type": "number", "exclusiveMinimum": 0},
    "qty": {"type": "number", "exclusiveMinimum": 0},
    "order_type": {"type": "string"},
    "price": {"type": "number", "minimum": 0},
    "stop_price": {"type": "number", "minimum": 0},
    "venue": {"type": "string"},
    "metadata": {"type": "object"}
  }
}`

// Decoder turns raw webhook payloads into validated trading signals.
type Decoder struct {
	schema *jsonschema.Schema
}

func NewDecoder() (*Decoder, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("signal.json", strings.NewReader(signalSchema)); err != nil {
		return nil, fmt.Errorf("intake: adding schema resource: %w", err)
	}
	schema, err := compiler.Compile("signal.json")
	if err != nil {
		return nil, fmt.Errorf("intake: compiling signal schema: %w", err)
	}
	return &Decoder{schema: schema}, nil
}

// Decode validates the payload against the schema and extracts the
// signal. Unknown fields are tolerated; recognized aliases (action for
// side, qty for quantity, type for order_type) are accepted.
func (d *Decoder) Decode(payload []byte) (*types.TradingSignal, error) {
	raw := string(payload)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("intake: payload is not valid JSON")
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("intake: decoding payload: %w", err)
	}
	if err := d.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("intake: payload failed schema validation: %w", err)
	}

	parsed := gjson.Parse(raw)

	symbol := strings.ToUpper(strings.TrimSpace(parsed.Get("symbol").String()))

	sideRaw := firstString(parsed, "side", "action")
	side, ok := types.ParseOrderSide(sideRaw)
	if !ok {
		return nil, fmt.Errorf("intake: unrecognized side %q", sideRaw)
	}

	quantity := firstNumber(parsed, "quantity", "qty")
	if quantity <= 0 {
		return nil, fmt.Errorf("intake: quantity must be positive, got %v", quantity)
	}

	sig := types.NewSignal(symbol, side, quantity)

	if orderRaw := firstString(parsed, "order_type", "type"); orderRaw != "" {
		orderType, ok := types.ParseOrderType(orderRaw)
		if !ok {
			return nil, fmt.Errorf("intake: unrecognized order type %q", orderRaw)
		}
		sig.OrderType = orderType
	}
	if price := parsed.Get("price"); price.Exists() {
		sig.Price = price.Float()
	}
	if stop := parsed.Get("stop_price"); stop.Exists() {
		sig.StopPrice = stop.Float()
	}
	if venue := parsed.Get("venue"); venue.Exists() {
		sig.Venue = strings.TrimSpace(venue.String())
	}
	if meta := parsed.Get("metadata"); meta.IsObject() {
		for key, value := range meta.Map() {
			sig.Metadata[key] = value.Value()
		}
	}
	if id := parsed.Get("id"); id.Exists() && strings.TrimSpace(id.String()) != "" {
		sig.ID = strings.TrimSpace(id.String())
	}
	return sig, nil
}

func firstString(parsed gjson.Result, keys ...string) string {
	for _, key := range keys {
		if v := parsed.Get(key); v.Exists() {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

func firstNumber(parsed gjson.Result, keys ...string) float64 {
	for _, key := range keys {
		if v := parsed.Get(key); v.Exists() {
			return v.Float()
		}
	}
	return 0
}
