// Package api serves the HTTP control surface: run start/stop, the
// analytics report, aggregate PnL, and a read-only WebSocket stream of
// fills and portfolio updates for dashboards.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tradecore/engine/internal/config"
	"github.com/tradecore/engine/internal/eventbus"
	"github.com/tradecore/engine/internal/events"
	"github.com/tradecore/engine/internal/portfolio"
)

// Controller is the slice of the orchestrator the API drives.
type Controller interface {
	StartRun() error
	StopRun() error
	Report() portfolio.Report
	PnL() (totalPnL float64, totalTrades int)
}

// Server runs the HTTP/WebSocket control API.
type Server struct {
	cfg      config.APIConfig
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates the control API server.
func NewServer(cfg config.APIConfig, ctrl Controller, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(ctrl, hub, logger)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/start", handlers.HandleStart)
		r.Post("/stop", handlers.HandleStop)
		r.Get("/report", handlers.HandleReport)
		r.Get("/pnl", handlers.HandlePnL)
		r.Get("/stream", handlers.HandleStream)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api"),
	}
}

// Attach subscribes the stream hub to the bus events it broadcasts.
// Call before the ingester starts.
func (s *Server) Attach(bus *eventbus.Bus) {
	bus.Subscribe(events.TypeFill, func(e events.Event) {
		s.hub.BroadcastEvent("fill", newFillPayload(e.Fill))
	})
	bus.Subscribe(events.TypePortfolioUpdate, func(e events.Event) {
		s.hub.BroadcastEvent("portfolio_update", newPortfolioPayload(e.PortfolioUpdate))
	})
}

// Start starts the hub and serves until Stop.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("control api listening", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping control api")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
