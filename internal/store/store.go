package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// instrumentState is the stored form of an Instrument.
type instrumentState struct {
	rec  Instrument // History lives in hist
	hist *priceHistory
}

// Store is the canonical in-memory model.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu             sync.RWMutex
	version        uint64
	instruments    map[string]*instrumentState // symbol → record
	pnl            map[string]PnLRow
	core           CoreTotals
	ledger         map[string]LedgerEntry // currency → entry
	accountSummary map[string]SummaryValue
	allocation     Allocation
	combos         []Combo
	watchlists     map[string]string
	errors         []ErrorRecord

	watchMu  sync.Mutex
	watchers map[*Watcher]struct{}

	now func() time.Time
}

// New creates an empty Store.
func New(cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistorySize < 1 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	if cfg.ErrorHistory < 1 {
		cfg.ErrorHistory = DefaultConfig().ErrorHistory
	}
	if cfg.CoreModelSuffix == "" {
		cfg.CoreModelSuffix = DefaultConfig().CoreModelSuffix
	}

	s := &Store{
		cfg:      cfg,
		logger:   logger,
		watchers: make(map[*Watcher]struct{}),
		now:      time.Now,
	}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.instruments = make(map[string]*instrumentState)
	s.pnl = make(map[string]PnLRow)
	s.core = CoreTotals{}
	s.ledger = make(map[string]LedgerEntry)
	s.accountSummary = make(map[string]SummaryValue)
	s.allocation = Allocation{}
	s.combos = nil
	s.watchlists = make(map[string]string)
	s.errors = nil
}

// ApplyMarketData merges a partial update into the instrument record for
// u.Symbol, creating it on first sight. Fields absent from u keep their
// previous value; a new record starts from zero. Value is recomputed as
// LastPrice * Quantity unless u carries it.
func (s *Store) ApplyMarketData(u MarketDataUpdate) (Instrument, error) {
	if u.Symbol == "" {
		return Instrument{}, ErrMissingSymbol
	}
	at := u.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	st, ok := s.instruments[u.Symbol]
	if !ok {
		st = &instrumentState{
			rec:  Instrument{Symbol: u.Symbol},
			hist: newPriceHistory(s.cfg.HistorySize, s.cfg.HistoryMinDelta),
		}
		s.instruments[u.Symbol] = st
	}

	rec := &st.rec
	if u.Conid != "" {
		rec.Conid = u.Conid
	}
	patch(&rec.LastPrice, u.LastPrice)
	patch(&rec.Quantity, u.Quantity)
	patch(&rec.AvgBoughtPrice, u.AvgBoughtPrice)
	patch(&rec.UnrealizedPnL, u.UnrealizedPnL)
	if u.Value != nil {
		rec.Value = *u.Value
	} else {
		rec.Value = rec.LastPrice.Mul(rec.Quantity)
	}
	rec.UpdatedAt = at

	if u.LastPrice != nil {
		st.hist.add(PricePoint{Price: *u.LastPrice, At: at})
	}

	kind := ChangeInstrument
	if !ok {
		kind = ChangeInstrumentAdded
	}
	out := st.copyOut()
	s.notify(Change{Kind: kind, Key: u.Symbol, Version: s.bumpLocked()})
	s.mu.Unlock()
	return out, nil
}

// RemoveInstrument deletes records whose symbol or conid equals id.
// Returns the number of records removed.
func (s *Store) RemoveInstrument(id string) int {
	if id == "" {
		return 0
	}

	s.mu.Lock()
	var removed []string
	for sym, st := range s.instruments {
		if sym == id || st.rec.Conid == id {
			delete(s.instruments, sym)
			removed = append(removed, sym)
		}
	}
	if len(removed) > 0 {
		v := s.bumpLocked()
		sort.Strings(removed)
		for _, sym := range removed {
			s.notify(Change{Kind: ChangeInstrumentRemoved, Key: sym, Version: v})
		}
	}
	s.mu.Unlock()
	return len(removed)
}

// ReplacePnL replaces the whole P&L row set and recomputes the core totals.
func (s *Store) ReplacePnL(rows map[string]PnLRow) CoreTotals {
	next := make(map[string]PnLRow, len(rows))
	for k, r := range rows {
		next[k] = r
	}

	s.mu.Lock()
	s.pnl = next
	s.core = coreTotals(next, s.cfg.CoreModelSuffix)
	core := s.core
	s.notify(Change{Kind: ChangePnL, Version: s.bumpLocked()})
	s.mu.Unlock()
	return core
}

// coreTotals selects the row whose key ends in "."+suffix. When several
// rows match, the lexically smallest key wins.
func coreTotals(rows map[string]PnLRow, suffix string) CoreTotals {
	want := "." + suffix
	var key string
	for k := range rows {
		if strings.HasSuffix(k, want) && (key == "" || k < key) {
			key = k
		}
	}
	if key == "" {
		return CoreTotals{}
	}
	r := rows[key]
	return CoreTotals{
		Key:           key,
		DailyRealized: r.DailyRealized,
		Unrealized:    r.Unrealized,
		NetLiq:        r.NetLiquidation,
	}
}

// ReplaceLedger replaces the ledger table. Currency codes are upper-cased;
// a later entry for the same currency wins.
func (s *Store) ReplaceLedger(entries []LedgerEntry) {
	next := make(map[string]LedgerEntry, len(entries))
	for _, e := range entries {
		e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
		if e.Currency == "" {
			continue
		}
		next[e.Currency] = e
	}

	s.mu.Lock()
	s.ledger = next
	s.notify(Change{Kind: ChangeLedger, Version: s.bumpLocked()})
	s.mu.Unlock()
}

// SetAccountSummary replaces the account summary.
func (s *Store) SetAccountSummary(summary map[string]SummaryValue) {
	next := make(map[string]SummaryValue, len(summary))
	for k, v := range summary {
		next[k] = v
	}

	s.mu.Lock()
	s.accountSummary = next
	s.notify(Change{Kind: ChangeAccountSummary, Version: s.bumpLocked()})
	s.mu.Unlock()
}

// SetAllocation replaces the allocation breakdown.
func (s *Store) SetAllocation(a Allocation) {
	a = copyAllocation(a)

	s.mu.Lock()
	s.allocation = a
	s.notify(Change{Kind: ChangeAllocation, Version: s.bumpLocked()})
	s.mu.Unlock()
}

// ReplaceCombos replaces the combo positions.
func (s *Store) ReplaceCombos(combos []Combo) {
	next := copyCombos(combos)

	s.mu.Lock()
	s.combos = next
	s.notify(Change{Kind: ChangeCombos, Version: s.bumpLocked()})
	s.mu.Unlock()
}

// ReplaceWatchlists replaces the watchlist id → name table.
func (s *Store) ReplaceWatchlists(lists map[string]string) {
	next := make(map[string]string, len(lists))
	for k, v := range lists {
		next[k] = v
	}

	s.mu.Lock()
	s.watchlists = next
	s.notify(Change{Kind: ChangeWatchlists, Version: s.bumpLocked()})
	s.mu.Unlock()
}

// RecordError appends a non-fatal error for observers.
func (s *Store) RecordError(source, message string) ErrorRecord {
	rec := ErrorRecord{
		ID:      uuid.New(),
		Source:  source,
		Message: message,
		At:      s.now(),
	}

	s.mu.Lock()
	s.errors = append(s.errors, rec)
	if over := len(s.errors) - s.cfg.ErrorHistory; over > 0 {
		s.errors = append([]ErrorRecord(nil), s.errors[over:]...)
	}
	s.notify(Change{Kind: ChangeError, Key: source, Version: s.bumpLocked()})
	s.mu.Unlock()
	return rec
}

// ClearAll wipes every table.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.resetLocked()
	s.notify(Change{Kind: ChangeCleared, Version: s.bumpLocked()})
	s.mu.Unlock()

	s.logger.Info("store cleared")
}

// bumpLocked increments the version. Caller must hold the write lock.
func (s *Store) bumpLocked() uint64 {
	s.version++
	return s.version
}

func patch(dst *decimal.Decimal, v *decimal.Decimal) {
	if v != nil {
		*dst = *v
	}
}

func (st *instrumentState) copyOut() Instrument {
	out := st.rec
	out.History = st.hist.snapshot()
	return out
}

func copyBucket(b AllocationBucket) AllocationBucket {
	out := AllocationBucket{}
	if b.Long != nil {
		out.Long = make(map[string]decimal.Decimal, len(b.Long))
		for k, v := range b.Long {
			out.Long[k] = v
		}
	}
	if b.Short != nil {
		out.Short = make(map[string]decimal.Decimal, len(b.Short))
		for k, v := range b.Short {
			out.Short[k] = v
		}
	}
	return out
}

func copyAllocation(a Allocation) Allocation {
	return Allocation{
		AssetClass: copyBucket(a.AssetClass),
		Sector:     copyBucket(a.Sector),
		Group:      copyBucket(a.Group),
	}
}

func copyCombos(combos []Combo) []Combo {
	if combos == nil {
		return nil
	}
	out := make([]Combo, len(combos))
	for i, c := range combos {
		out[i] = c
		out[i].Legs = append([]ComboLeg(nil), c.Legs...)
	}
	return out
}
