package store

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Instrument returns a copy of the record for symbol.
func (s *Store) Instrument(symbol string) (Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.instruments[symbol]
	if !ok {
		return Instrument{}, false
	}
	return st.copyOut(), true
}

// Instruments returns copies of every record, sorted by symbol.
func (s *Store) Instruments() []Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instrumentsLocked()
}

func (s *Store) instrumentsLocked() []Instrument {
	out := make([]Instrument, 0, len(s.instruments))
	for _, st := range s.instruments {
		out = append(out, st.copyOut())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// PnL returns a copy of the P&L rows.
func (s *Store) PnL() map[string]PnLRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]PnLRow, len(s.pnl))
	for k, v := range s.pnl {
		out[k] = v
	}
	return out
}

// CoreTotals returns the current core model projection.
func (s *Store) CoreTotals() CoreTotals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.core
}

// Ledger returns the ledger entries sorted by currency.
func (s *Store) Ledger() []LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgerLocked()
}

func (s *Store) ledgerLocked() []LedgerEntry {
	out := make([]LedgerEntry, 0, len(s.ledger))
	for _, e := range s.ledger {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// AccountSummary returns a copy of the account summary.
func (s *Store) AccountSummary() map[string]SummaryValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaryLocked()
}

func (s *Store) summaryLocked() map[string]SummaryValue {
	out := make(map[string]SummaryValue, len(s.accountSummary))
	for k, v := range s.accountSummary {
		if v.Amount != nil {
			d := *v.Amount
			v.Amount = &d
		}
		out[k] = v
	}
	return out
}

// Allocation returns a copy of the allocation breakdown.
func (s *Store) Allocation() Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyAllocation(s.allocation)
}

// Combos returns a copy of the combo positions.
func (s *Store) Combos() []Combo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyCombos(s.combos)
}

// Watchlists returns a copy of the watchlist table.
func (s *Store) Watchlists() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.watchlists))
	for k, v := range s.watchlists {
		out[k] = v
	}
	return out
}

// Errors returns the retained error records, oldest first.
func (s *Store) Errors() []ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ErrorRecord(nil), s.errors...)
}

// Version returns the number of writes applied so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// TotalValue sums Value over every instrument.
func (s *Store) TotalValue() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, st := range s.instruments {
		total = total.Add(st.rec.Value)
	}
	return total
}

// Snapshot returns a copy of every table taken under one read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pnl := make(map[string]PnLRow, len(s.pnl))
	for k, v := range s.pnl {
		pnl[k] = v
	}
	lists := make(map[string]string, len(s.watchlists))
	for k, v := range s.watchlists {
		lists[k] = v
	}

	return Snapshot{
		Version:        s.version,
		Instruments:    s.instrumentsLocked(),
		PnL:            pnl,
		CoreTotals:     s.core,
		Ledger:         s.ledgerLocked(),
		AccountSummary: s.summaryLocked(),
		Allocation:     copyAllocation(s.allocation),
		Combos:         copyCombos(s.combos),
		Watchlists:     lists,
		Errors:         append([]ErrorRecord(nil), s.errors...),
	}
}
