// Package orchestrator wires the pipeline together and owns its lifecycle.
//
// Construction builds every component against a shared event bus. Start
// brings them up in dependency order — bus, portfolio, strategies, risk,
// execution — and starts the data ingester strictly last: each component's
// Start returns only once its subscriptions are registered, so the
// sequential starts form an explicit readiness barrier and no event can
// outrun a subscriber. Stop tears down in reverse, finishing with the bus,
// which drains its queue so the terminal System event reaches everyone.
//
// Lifecycle: New() → StartRun() → [runs until System event or StopRun()] → StopRun()
package orchestrator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradecore/engine/internal/config"
	"github.com/tradecore/engine/internal/eventbus"
	"github.com/tradecore/engine/internal/events"
	"github.com/tradecore/engine/internal/execution"
	"github.com/tradecore/engine/internal/ingest"
	"github.com/tradecore/engine/internal/portfolio"
	"github.com/tradecore/engine/internal/report"
	"github.com/tradecore/engine/internal/risk"
	"github.com/tradecore/engine/internal/strategy"
)

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateStopped
)

// Orchestrator owns every pipeline component and manages one run.
type Orchestrator struct {
	cfg    config.Config
	logger *slog.Logger

	bus       *eventbus.Bus
	gate      *risk.Gate
	portfolio *portfolio.Engine
	container *strategy.Container
	sim       *execution.Simulator
	ingester  ingest.Ingester
	archiver  *report.Archiver

	mu       sync.Mutex
	state    runState
	done     chan struct{}
	doneOnce sync.Once
}

// New creates and wires all pipeline components.
func New(cfg config.Config, logger *slog.Logger) (*Orchestrator, error) {
	bus := eventbus.New(logger)
	capital := decimal.NewFromFloat(cfg.InitialCapital)

	oracle := risk.NewOracle(cfg.MachineLearning, logger)
	gate := risk.NewGate(cfg.Risk, capital, oracle, bus, logger)
	port := portfolio.NewEngine(capital, gate, bus, logger)

	container := strategy.NewContainer(bus, logger)
	for _, sc := range cfg.Strategies {
		s, err := strategy.Build(sc, logger)
		if err != nil {
			return nil, fmt.Errorf("build strategy: %w", err)
		}
		container.Add(s)
	}

	sim := execution.NewSimulator(cfg.Execution, bus, logger)

	archiver, err := report.NewArchiver(cfg.Report.OutputDir)
	if err != nil {
		return nil, err
	}

	var ingester ingest.Ingester
	switch cfg.RunMode {
	case config.ModeBacktest:
		ingester = ingest.NewHistorical(cfg.Data, bus, logger)
	case config.ModeLive:
		ingester = ingest.NewLive(cfg.WebSocket, bus, logger)
	default:
		return nil, fmt.Errorf("run_mode %s is driven by external tooling, not the core pipeline", cfg.RunMode)
	}

	return &Orchestrator{
		cfg:       cfg,
		logger:    logger.With("component", "orchestrator"),
		bus:       bus,
		gate:      gate,
		portfolio: port,
		container: container,
		sim:       sim,
		ingester:  ingester,
		archiver:  archiver,
		done:      make(chan struct{}),
	}, nil
}

// Bus exposes the event bus so outside subscribers (the control API's
// stream) can attach before the run starts.
func (o *Orchestrator) Bus() *eventbus.Bus {
	return o.bus
}

// StartRun starts the pipeline. The orchestrator manages a single run;
// starting twice is an error.
func (o *Orchestrator) StartRun() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != stateIdle {
		return fmt.Errorf("pipeline already started")
	}

	o.bus.Start()

	// Dependency order. Each Start returns with subscriptions registered.
	components := []struct {
		name  string
		start func() error
	}{
		{"portfolio", o.portfolio.Start},
		{"strategies", o.container.Start},
		{"risk", o.gate.Start},
		{"execution", o.sim.Start},
	}
	for _, c := range components {
		if err := c.start(); err != nil {
			o.bus.Stop()
			return fmt.Errorf("start %s: %w", c.name, err)
		}
		o.logger.Debug("component ready", "component", c.name)
	}

	// Completion: the terminal System event ends the run.
	o.bus.Subscribe(events.TypeSystem, func(events.Event) {
		o.doneOnce.Do(func() { close(o.done) })
	})

	// Every subscriber is registered; the producer may start.
	if err := o.ingester.Start(); err != nil {
		o.bus.Stop()
		return fmt.Errorf("start ingester: %w", err)
	}

	o.state = stateRunning
	o.logger.Info("pipeline started",
		"run_mode", o.cfg.RunMode,
		"initial_capital", o.cfg.InitialCapital,
		"strategies", len(o.cfg.Strategies),
	)
	return nil
}

// StopRun tears the pipeline down in reverse dependency order and archives
// the final report. Calling it when the pipeline is not running returns an
// error and changes nothing.
func (o *Orchestrator) StopRun() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != stateRunning {
		return fmt.Errorf("pipeline not running")
	}
	o.state = stateStopped

	if err := o.ingester.Stop(); err != nil {
		o.logger.Error("ingester stop", "error", err)
	}
	o.sim.Stop()
	o.gate.Stop()
	o.container.Stop()
	o.portfolio.Stop()

	// The bus drains before exiting, so anything published above still
	// reaches its subscribers.
	o.bus.Stop()

	o.doneOnce.Do(func() { close(o.done) })

	o.archive()
	o.logger.Info("pipeline stopped")
	return nil
}

// Done is closed when the run completes: terminal System event, invariant
// abort, or StopRun.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Run executes a full backtest: start, wait for the terminal System
// event, stop, and return the analytics report.
func (o *Orchestrator) Run() (portfolio.Report, error) {
	if err := o.StartRun(); err != nil {
		return portfolio.Report{}, err
	}
	<-o.done
	if err := o.StopRun(); err != nil {
		o.logger.Warn("stop after completion", "error", err)
	}
	return o.Report(), nil
}

// Report builds the current analytics report.
func (o *Orchestrator) Report() portfolio.Report {
	return o.portfolio.Report(o.cfg.Analytics)
}

// PnL returns aggregate realized PnL and trade count.
func (o *Orchestrator) PnL() (float64, int) {
	total, trades := o.portfolio.TotalPnL()
	return total.InexactFloat64(), trades
}

func (o *Orchestrator) archive() {
	doc := report.Archive{
		GeneratedAt: time.Now(),
		Report:      o.portfolio.Report(o.cfg.Analytics),
		EquityCurve: o.portfolio.EquityCurve(),
		Trades:      o.portfolio.Trades(),
	}
	path, err := o.archiver.Write(doc)
	if err != nil {
		o.logger.Error("archive report", "error", err)
		return
	}
	o.logger.Info("report archived", "path", path)
}
