package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/portfolio-stream/internal/connection"
	"github.com/rickgao/portfolio-stream/internal/metrics"
	"github.com/rickgao/portfolio-stream/internal/store"
)

// Store is the set of update operations the router dispatches to.
type Store interface {
	ApplyMarketData(u store.MarketDataUpdate) (store.Instrument, error)
	SetAccountSummary(summary map[string]store.SummaryValue)
	ReplacePnL(rows map[string]store.PnLRow) store.CoreTotals
	ReplaceLedger(entries []store.LedgerEntry)
	SetAllocation(a store.Allocation)
	ReplaceCombos(combos []store.Combo)
	ReplaceWatchlists(lists map[string]string)
	RecordError(source, message string) store.ErrorRecord
}

// Router parses raw stream frames and applies them to the store.
type Router interface {
	connection.Handler

	// Stats returns current router statistics.
	Stats() RouterStats
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	UnknownMessages  int64
	BackendErrors    int64
}

// router is the internal implementation.
type router struct {
	cfg    RouterConfig
	store  Store
	logger *slog.Logger

	mu              sync.Mutex
	received        int64
	routed          int64
	parseErrors     int64
	unknownMessages int64
	backendErrors   int64
}

// NewRouter creates a new Message Router.
func NewRouter(cfg RouterConfig, st Store, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		cfg:    cfg,
		store:  st,
		logger: logger,
	}
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RouterStats{
		MessagesReceived: r.received,
		MessagesRouted:   r.routed,
		ParseErrors:      r.parseErrors,
		UnknownMessages:  r.unknownMessages,
		BackendErrors:    r.backendErrors,
	}
}

// HandleMessage parses and routes a single frame. It never panics.
func (r *router) HandleMessage(raw connection.RawMessage) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			r.reject("", fmt.Errorf("handler panic: %v", p))
		}
	}()

	var env messageEnvelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		r.reject("", fmt.Errorf("decode envelope: %w", err))
		return
	}
	if env.Type == "" {
		r.reject("", ErrMissingType)
		return
	}

	var err error
	switch env.Type {
	case TypeMarketData:
		err = r.marketData(raw)
	case TypeAccountSummary:
		err = r.accountSummary(env)
	case TypePnL:
		err = r.pnl(env)
	case TypeLedger:
		err = r.ledger(env)
	case TypeAllocation:
		err = r.allocation(env)
	case TypeCombos:
		err = r.combos(env)
	case TypeWatchlists:
		err = r.watchlists(env)
	case TypeError:
		r.backendError(env)
	default:
		r.logger.Debug("skipping message type", "type", env.Type)
		r.mu.Lock()
		r.unknownMessages++
		r.mu.Unlock()
		metrics.UnknownFramesTotal.Inc()
		return
	}

	if err != nil {
		r.reject(env.Type, err)
		return
	}

	r.mu.Lock()
	r.routed++
	r.mu.Unlock()
	metrics.FramesTotal.WithLabelValues(env.Type).Inc()
}

// reject drops a malformed frame.
func (r *router) reject(msgType string, err error) {
	r.logger.Warn("dropping malformed frame", "type", msgType, "error", err)

	r.mu.Lock()
	r.parseErrors++
	r.mu.Unlock()
	metrics.ParseErrorsTotal.Inc()

	if r.cfg.RecordErrors {
		msg := err.Error()
		if msgType != "" {
			msg = msgType + ": " + msg
		}
		r.store.RecordError("router", msg)
	}
}

func (r *router) marketData(raw connection.RawMessage) error {
	var w marketDataWire
	if err := json.Unmarshal(raw.Data, &w); err != nil {
		return err
	}
	// Some producers nest the fields under data.
	if w.Symbol == "" {
		var env messageEnvelope
		if err := json.Unmarshal(raw.Data, &env); err == nil && hasData(env.Data) {
			if err := json.Unmarshal(env.Data, &w); err != nil {
				return err
			}
		}
	}

	_, err := r.store.ApplyMarketData(store.MarketDataUpdate{
		Symbol:         w.Symbol,
		Conid:          string(w.Conid),
		LastPrice:      w.LastPrice,
		Quantity:       w.Quantity,
		AvgBoughtPrice: w.AvgBoughtPrice,
		Value:          w.Value,
		UnrealizedPnL:  w.UnrealizedPnL,
		ReceivedAt:     raw.ReceivedAt,
	})
	return err
}

func (r *router) accountSummary(env messageEnvelope) error {
	var summary map[string]store.SummaryValue
	if err := decodeData(env, &summary); err != nil {
		return err
	}
	r.store.SetAccountSummary(summary)
	return nil
}

func (r *router) pnl(env messageEnvelope) error {
	var rows map[string]store.PnLRow
	if err := decodeData(env, &rows); err != nil {
		return err
	}
	core := r.store.ReplacePnL(rows)
	r.logger.Debug("pnl replaced", "rows", len(rows), "core", core.Key)
	return nil
}

func (r *router) ledger(env messageEnvelope) error {
	var entries []store.LedgerEntry
	if err := decodeData(env, &entries); err != nil {
		return err
	}
	r.store.ReplaceLedger(entries)
	return nil
}

func (r *router) allocation(env messageEnvelope) error {
	var a store.Allocation
	if err := decodeData(env, &a); err != nil {
		return err
	}
	r.store.SetAllocation(a)
	return nil
}

func (r *router) combos(env messageEnvelope) error {
	var wire []comboWire
	if err := decodeData(env, &wire); err != nil {
		return err
	}
	combos := make([]store.Combo, len(wire))
	for i, w := range wire {
		combos[i] = w.toStore()
	}
	r.store.ReplaceCombos(combos)
	return nil
}

func (r *router) watchlists(env messageEnvelope) error {
	var lists map[string]string
	if err := decodeData(env, &lists); err != nil {
		return err
	}
	r.store.ReplaceWatchlists(lists)
	return nil
}

func (r *router) backendError(env messageEnvelope) {
	msg := env.Message
	if msg == "" && hasData(env.Data) {
		var s string
		if json.Unmarshal(env.Data, &s) == nil {
			msg = s
		} else {
			msg = string(env.Data)
		}
	}
	if msg == "" {
		msg = "unspecified backend error"
	}

	r.logger.Warn("backend error", "message", msg)
	r.mu.Lock()
	r.backendErrors++
	r.mu.Unlock()
	r.store.RecordError("backend", msg)
}

func hasData(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

func decodeData(env messageEnvelope, v any) error {
	if !hasData(env.Data) {
		return ErrMissingData
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
