package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Errors
var (
	ErrMissingSymbol = errors.New("market data update has no symbol")
)

// PricePoint is a single retained price observation.
type PricePoint struct {
	Price decimal.Decimal `json:"price"`
	At    time.Time       `json:"at"`
}

// Instrument is the merged record for one symbol.
type Instrument struct {
	Symbol         string          `json:"symbol"`
	Conid          string          `json:"conid,omitempty"`
	LastPrice      decimal.Decimal `json:"last_price"`
	Quantity       decimal.Decimal `json:"quantity"`
	AvgBoughtPrice decimal.Decimal `json:"avg_bought_price"`
	Value          decimal.Decimal `json:"value"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	UpdatedAt      time.Time       `json:"updated_at"`
	History        []PricePoint    `json:"history"`
}

// MarketDataUpdate is a partial instrument update. Nil fields were absent
// from the frame and leave the stored value untouched.
type MarketDataUpdate struct {
	Symbol         string
	Conid          string
	LastPrice      *decimal.Decimal
	Quantity       *decimal.Decimal
	AvgBoughtPrice *decimal.Decimal
	Value          *decimal.Decimal
	UnrealizedPnL  *decimal.Decimal
	ReceivedAt     time.Time
}

// PnLRow is one account/model P&L aggregate.
type PnLRow struct {
	DailyRealized   decimal.Decimal `json:"dpl"`
	NetLiquidation  decimal.Decimal `json:"nl"`
	Unrealized      decimal.Decimal `json:"upl"`
	ExcessLiquidity decimal.Decimal `json:"uel"`
	MarginValue     decimal.Decimal `json:"mv"`
}

// CoreTotals is the projection of the core model P&L row.
type CoreTotals struct {
	Key           string          `json:"key,omitempty"` // Row key it was taken from ("" when reset)
	DailyRealized decimal.Decimal `json:"daily_realized"`
	Unrealized    decimal.Decimal `json:"unrealized"`
	NetLiq        decimal.Decimal `json:"net_liq"`
}

// IsZero reports whether the projection is the reset value.
func (c CoreTotals) IsZero() bool {
	return c.Key == "" && c.DailyRealized.IsZero() && c.Unrealized.IsZero() && c.NetLiq.IsZero()
}

// LedgerEntry is the cash bookkeeping for one currency.
type LedgerEntry struct {
	Currency      string          `json:"currency"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	SettledCash   decimal.Decimal `json:"settled_cash"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Dividends     decimal.Decimal `json:"dividends"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
}

// SummaryValue is one account summary field. The backend sends either a
// bare number, a bare string, or an object with amount/currency/value.
type SummaryValue struct {
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Text     string           `json:"value,omitempty"`
}

// UnmarshalJSON accepts the three summary value encodings.
func (v *SummaryValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = SummaryValue{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = SummaryValue{Text: s}
		return nil
	case '{':
		var obj struct {
			Amount   *decimal.Decimal `json:"amount"`
			Currency string           `json:"currency"`
			Value    *string          `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*v = SummaryValue{Amount: obj.Amount, Currency: obj.Currency}
		if obj.Value != nil {
			v.Text = *obj.Value
		}
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = SummaryValue{Text: fmt.Sprint(b)}
		return nil
	default:
		var d decimal.Decimal
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("summary value: %w", err)
		}
		*v = SummaryValue{Amount: &d}
		return nil
	}
}

// AllocationBucket splits exposure into long and short legs by label.
type AllocationBucket struct {
	Long  map[string]decimal.Decimal `json:"long"`
	Short map[string]decimal.Decimal `json:"short"`
}

// Allocation is the portfolio exposure breakdown.
type Allocation struct {
	AssetClass AllocationBucket `json:"assetClass"`
	Sector     AllocationBucket `json:"sector"`
	Group      AllocationBucket `json:"group"`
}

// ComboLeg is one instrument of a combo position.
type ComboLeg struct {
	Conid string `json:"conid"`
	Ratio int    `json:"ratio"`
}

// Combo is a multi-leg position.
type Combo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Legs        []ComboLeg `json:"legs"`
}

// ErrorRecord is a non-fatal error surfaced to observers.
type ErrorRecord struct {
	ID      uuid.UUID `json:"id"`
	Source  string    `json:"source"` // "backend", "router", ...
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Snapshot is a consistent copy of every table.
type Snapshot struct {
	Version        uint64                  `json:"version"`
	Instruments    []Instrument            `json:"instruments"`
	PnL            map[string]PnLRow       `json:"pnl"`
	CoreTotals     CoreTotals              `json:"core_totals"`
	Ledger         []LedgerEntry           `json:"ledger"`
	AccountSummary map[string]SummaryValue `json:"account_summary"`
	Allocation     Allocation              `json:"allocation"`
	Combos         []Combo                 `json:"combos"`
	Watchlists     map[string]string       `json:"watchlists"`
	Errors         []ErrorRecord           `json:"errors"`
}

// Config holds Store configuration.
type Config struct {
	HistorySize     int             // Max retained price points per instrument
	HistoryMinDelta decimal.Decimal // Min price move between consecutive retained points
	CoreModelSuffix string          // Model code selecting the core totals row
	ErrorHistory    int             // Max retained error records
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HistorySize:     50,
		HistoryMinDelta: decimal.RequireFromString("0.01"),
		CoreModelSuffix: "Core",
		ErrorHistory:    20,
	}
}
