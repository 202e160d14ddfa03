package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tradecore/engine/internal/events"
)

// Handlers holds the HTTP handler set for the control API.
type Handlers struct {
	ctrl   Controller
	hub    *Hub
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// NewHandlers creates the handler set.
func NewHandlers(ctrl Controller, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		ctrl:   ctrl,
		hub:    hub,
		logger: logger.With("component", "api-handlers"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Every origin is accepted; the router's CORS allow-list is not
			// applied to the stream upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleStart starts a run.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.StartRun(); err != nil {
		h.writeError(w, http.StatusConflict, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// HandleStop stops the current run.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.StopRun(); err != nil {
		h.writeError(w, http.StatusConflict, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// HandleReport returns the analytics report.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctrl.Report())
}

// HandlePnL returns aggregate realized PnL and trade count.
func (h *Handlers) HandlePnL(w http.ResponseWriter, r *http.Request) {
	pnl, trades := h.ctrl.PnL()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"total_pnl":    pnl,
		"total_trades": trades,
	})
}

// HandleStream upgrades to a read-only WebSocket fed by the hub.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	NewClient(h.hub, conn)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("write response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// fillPayload is the stream DTO for a fill.
type fillPayload struct {
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Quantity   float64 `json:"quantity"`
	FillPrice  float64 `json:"fill_price"`
	Commission float64 `json:"commission"`
}

func newFillPayload(f events.Fill) fillPayload {
	return fillPayload{
		Symbol:     f.Symbol,
		Direction:  string(f.Direction),
		Quantity:   f.Quantity.InexactFloat64(),
		FillPrice:  f.FillPrice.InexactFloat64(),
		Commission: f.Commission.InexactFloat64(),
	}
}

// portfolioPayload is the stream DTO for a portfolio update.
type portfolioPayload struct {
	TotalEquity float64 `json:"total_equity"`
	Cash        float64 `json:"cash"`
}

func newPortfolioPayload(u events.PortfolioUpdate) portfolioPayload {
	return portfolioPayload{
		TotalEquity: u.TotalEquity.InexactFloat64(),
		Cash:        u.Cash.InexactFloat64(),
	}
}
