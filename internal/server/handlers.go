package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/portfolio-stream/internal/connection"
	"github.com/rickgao/portfolio-stream/internal/metrics"
	"github.com/rickgao/portfolio-stream/internal/session"
	"github.com/rickgao/portfolio-stream/internal/store"
)

// HealthResponse is the /health body.
type HealthResponse struct {
	Status       string             `json:"status"` // "ok" or "error"
	Connection   connection.State   `json:"connection"`
	Session      session.GateStatus `json:"session"`
	StoreVersion uint64             `json:"store_version"`
}

// PnLResponse is the /api/pnl body.
type PnLResponse struct {
	Rows map[string]store.PnLRow `json:"rows"`
	Core store.CoreTotals        `json:"core"`
}

// LedgerView is a ledger entry with display strings for known currencies.
type LedgerView struct {
	store.LedgerEntry
	CashBalanceDisplay   string `json:"cash_balance_display,omitempty"`
	SettledCashDisplay   string `json:"settled_cash_display,omitempty"`
	UnrealizedPnLDisplay string `json:"unrealized_pnl_display,omitempty"`
	DividendsDisplay     string `json:"dividends_display,omitempty"`
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "ok",
		Connection:   s.cfg.Conn.State(),
		StoreVersion: s.cfg.Store.Version(),
	}
	if s.cfg.Controls != nil {
		resp.Session = s.cfg.Controls.Status()
	}
	metrics.StoreVersion.Set(float64(resp.StoreVersion))

	status := http.StatusOK
	if resp.Connection.Status == connection.StatusError {
		resp.Status = "error"
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Store.Snapshot())
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Store.Instruments())
}

func (s *Server) handleInstrument(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	inst, ok := s.cfg.Store.Instrument(symbol)
	if !ok {
		s.writeError(w, http.StatusNotFound, "instrument not found: "+symbol)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handlePnL(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, PnLResponse{
		Rows: s.cfg.Store.PnL(),
		Core: s.cfg.Store.CoreTotals(),
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries := s.cfg.Store.Ledger()
	views := make([]LedgerView, len(entries))
	for i, e := range entries {
		views[i] = LedgerView{
			LedgerEntry:          e,
			CashBalanceDisplay:   display(e.CashBalance, e.Currency),
			SettledCashDisplay:   display(e.SettledCash, e.Currency),
			UnrealizedPnLDisplay: display(e.UnrealizedPnL, e.Currency),
			DividendsDisplay:     display(e.Dividends, e.Currency),
		}
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.cfg.Store.Errors())
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	active := map[string]int{}
	if s.cfg.Subscriptions != nil {
		active = s.cfg.Subscriptions.Active()
	}
	s.writeJSON(w, http.StatusOK, active)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Controls == nil {
		s.writeError(w, http.StatusNotImplemented, "connection controls unavailable")
		return
	}
	s.cfg.Controls.Reconnect()
	s.writeJSON(w, http.StatusAccepted, s.cfg.Conn.State())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Controls == nil {
		s.writeError(w, http.StatusNotImplemented, "connection controls unavailable")
		return
	}
	s.cfg.Controls.Disconnect()
	s.writeJSON(w, http.StatusOK, s.cfg.Conn.State())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Controls == nil {
		s.writeError(w, http.StatusNotImplemented, "connection controls unavailable")
		return
	}
	if err := s.cfg.Controls.Logout(r.Context()); err != nil {
		// Local state is already torn down.
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Conn.State())
}

// display renders amount in currency's format, or "" for unknown codes.
func display(amount decimal.Decimal, currency string) string {
	code := strings.ToUpper(currency)
	cur := money.GetCurrency(code)
	if cur == nil {
		return ""
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}
