package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rickgao/portfolio-stream/internal/store"
)

// Errors
var (
	ErrMissingType = errors.New("frame has no type")
	ErrMissingData = errors.New("frame has no data")
)

// Frame types.
const (
	TypeMarketData     = "market_data"
	TypeAccountSummary = "account_summary"
	TypePnL            = "pnl"
	TypeLedger         = "ledger"
	TypeAllocation     = "allocation"
	TypeCombos         = "combos"
	TypeWatchlists     = "watchlists"
	TypeError          = "error"
)

// RouterConfig configures the router.
type RouterConfig struct {
	// RecordErrors surfaces malformed frames as store error records.
	RecordErrors bool
}

// DefaultRouterConfig returns sensible defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{RecordErrors: true}
}

// messageEnvelope is used to extract the type field.
type messageEnvelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// marketDataWire is the flat market_data frame. Pointer fields are nil
// when omitted or null.
type marketDataWire struct {
	Conid          flexID           `json:"conid"`
	Symbol         string           `json:"symbol"`
	LastPrice      *decimal.Decimal `json:"last_price"`
	Quantity       *decimal.Decimal `json:"quantity"`
	AvgBoughtPrice *decimal.Decimal `json:"avg_bought_price"`
	Value          *decimal.Decimal `json:"value"`
	UnrealizedPnL  *decimal.Decimal `json:"unrealized_pnl"`
}

type comboLegWire struct {
	Conid flexID `json:"conid"`
	Ratio int    `json:"ratio"`
}

type comboWire struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Legs        []comboLegWire `json:"legs"`
}

// flexID accepts an id sent as a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

func (w comboWire) toStore() store.Combo {
	c := store.Combo{Name: w.Name, Description: w.Description}
	if len(w.Legs) > 0 {
		c.Legs = make([]store.ComboLeg, len(w.Legs))
		for i, l := range w.Legs {
			c.Legs[i] = store.ComboLeg{Conid: string(l.Conid), Ratio: l.Ratio}
		}
	}
	return c
}
