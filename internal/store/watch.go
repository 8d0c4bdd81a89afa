package store

import "context"

// ChangeKind names the table a write touched.
type ChangeKind string

const (
	ChangeInstrumentAdded   ChangeKind = "instrument_added"
	ChangeInstrument        ChangeKind = "instrument"
	ChangeInstrumentRemoved ChangeKind = "instrument_removed"
	ChangePnL               ChangeKind = "pnl"
	ChangeLedger            ChangeKind = "ledger"
	ChangeAccountSummary    ChangeKind = "account_summary"
	ChangeAllocation        ChangeKind = "allocation"
	ChangeCombos            ChangeKind = "combos"
	ChangeWatchlists        ChangeKind = "watchlists"
	ChangeError             ChangeKind = "error"
	ChangeCleared           ChangeKind = "cleared"
)

// Change describes one applied write.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	Key     string     `json:"key,omitempty"` // Symbol for instrument changes, source for errors
	Version uint64     `json:"version"`
}

// Watcher receives every Change in write order. Its queue is unbounded,
// so a slow reader never stalls the writer.
type Watcher struct {
	s *Store
	q *Queue[Change]
}

// Watch registers a new observer.
func (s *Store) Watch() *Watcher {
	w := &Watcher{s: s, q: NewQueue[Change](64)}

	s.watchMu.Lock()
	s.watchers[w] = struct{}{}
	s.watchMu.Unlock()
	return w
}

// Next blocks until a change is available or ctx is done. Returns false
// once the watcher is closed and drained, or ctx is done with nothing queued.
func (w *Watcher) Next(ctx context.Context) (Change, bool) {
	return w.q.Pop(ctx)
}

// Pending returns and removes every queued change.
func (w *Watcher) Pending() []Change {
	return w.q.Drain(0)
}

// Close unregisters the watcher.
func (w *Watcher) Close() {
	w.s.watchMu.Lock()
	delete(w.s.watchers, w)
	w.s.watchMu.Unlock()
	w.q.Close()
}

// notify fans c out to every watcher. Callers hold the write lock so
// watchers observe changes in version order.
func (s *Store) notify(c Change) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for w := range s.watchers {
		w.q.Push(c)
	}
}
