// Tradecore — an event-driven trading simulation and live-trading engine.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts the pipeline, waits for SIGINT/SIGTERM
//	orchestrator/orchestrator  — wires bus → portfolio → strategies → risk → execution → ingester, manages lifecycle
//	eventbus/bus.go            — typed pub/sub with a single dispatcher goroutine and drain-on-stop
//	events/events.go           — the closed set of event variants flowing through the bus
//	ingest/historical.go       — CSV replay for backtests, terminal System event on EOF
//	ingest/live.go             — TLS WebSocket depth feed with auto-reconnect
//	strategy/container.go      — dispatches market events to strategies, forwards their signals
//	risk/gate.go               — sizes signals into orders against cached equity, cash, and prices
//	execution/simulator.go     — fills orders with proportional slippage and commission
//	portfolio/engine.go        — cash/position state machine, trade log, equity curve
//	api/server.go              — HTTP control surface: start/stop, report, pnl, dashboard stream
//
// How a backtest flows:
//
//	The historical ingester replays ticks onto the bus. Strategies turn
//	ticks into directional signals, the risk gate sizes them into orders,
//	the simulator fills them, and the portfolio books each fill and
//	publishes updated equity — which feeds back into the gate's sizing.
//	When the file is drained a terminal System event ends the run and the
//	analytics report is archived.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradecore/engine/internal/api"
	"github.com/tradecore/engine/internal/config"
	"github.com/tradecore/engine/internal/orchestrator"
)

func main() {
	// Load config
	cfgPath := "configs/config.json"
	if p := os.Getenv("TRADECORE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	orch, err := orchestrator.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	// Start control API server if enabled
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, orch, logger)
		apiServer.Attach(orch.Bus())
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("control api failed", "error", err)
			}
		}()
	}

	if err := orch.StartRun(); err != nil {
		logger.Error("failed to start pipeline", "error", err)
		os.Exit(1)
	}

	logger.Info("tradecore started",
		"run_mode", cfg.RunMode,
		"initial_capital", cfg.InitialCapital,
		"strategies", len(cfg.Strategies),
	)

	// Wait for completion (backtest end-of-stream) or a shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-orch.Done():
		logger.Info("run complete")
	}

	// Stop control API first
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop control api", "error", err)
		}
	}

	if err := orch.StopRun(); err != nil {
		logger.Warn("pipeline stop", "error", err)
	}

	r := orch.Report()
	logger.Info("final report",
		"initial_equity", r.InitialEquity,
		"final_equity", r.FinalEquity,
		"total_return_pct", r.TotalReturnPct,
		"max_drawdown_pct", r.MaxDrawdownPct,
		"sharpe", r.SharpeRatio,
		"sortino", r.SortinoRatio,
		"trades", r.TotalTrades,
		"win_rate_pct", r.WinRatePct,
		"profit_factor", r.ProfitFactor,
	)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
