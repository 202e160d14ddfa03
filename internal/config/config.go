// Package config defines all configuration for the trading engine.
// Config is loaded from a JSON file (default: configs/config.json) with
// sensitive fields overridable via TRADECORE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// RunMode selects the orchestrator behavior.
type RunMode string

const (
	ModeBacktest    RunMode = "BACKTEST"
	ModeLive        RunMode = "LIVE"
	ModeOptimize    RunMode = "OPTIMIZATION"
	ModeWalkForward RunMode = "WALK_FORWARD"
)

// Config is the top-level configuration. Maps directly to the JSON file structure.
type Config struct {
	RunMode        RunMode `mapstructure:"run_mode"`
	InitialCapital float64 `mapstructure:"initial_capital"`

	Data            DataConfig        `mapstructure:"data"`
	Execution       ExecutionConfig   `mapstructure:"execution"`
	Risk            RiskConfig        `mapstructure:"risk"`
	Analytics       AnalyticsConfig   `mapstructure:"analytics"`
	Strategies      []StrategyConfig  `mapstructure:"strategies"`
	WebSocket       WebSocketConfig   `mapstructure:"websocket"`
	Optimization    OptimizeConfig    `mapstructure:"optimization"`
	WalkForward     WalkForwardConfig `mapstructure:"walk_forward"`
	MachineLearning MLConfig          `mapstructure:"machine_learning"`
	API             APIConfig         `mapstructure:"api"`
	Logging         LoggingConfig     `mapstructure:"logging"`
	Report          ReportConfig      `mapstructure:"report"`
}

// DataConfig points the historical ingester at its input file.
type DataConfig struct {
	Symbol   string `mapstructure:"symbol"`
	DataFile string `mapstructure:"data_file"`
}

// ExecutionConfig tunes the fill simulation.
//
//   - CommissionPct: broker fee as a fraction of notional (e.g. 0.001 = 10 bps).
//   - SlippagePct:   proportional price adder, against the order's direction.
type ExecutionConfig struct {
	CommissionPct float64 `mapstructure:"commission_pct"`
	SlippagePct   float64 `mapstructure:"slippage_pct"`
}

// RiskConfig tunes the sizing gate.
//
//   - RiskPerTradePct:  fraction of equity risked per signal (e.g. 0.02 = 2%).
//   - UseDynamicSizing: scale order size by the confidence oracle's output.
//   - MinOrderQty:      smallest order quantity the gate will emit.
//   - MinNotional:      smallest order value; below this, quantity is inflated
//     to exactly meet it.
type RiskConfig struct {
	RiskPerTradePct  float64 `mapstructure:"risk_per_trade_pct"`
	UseDynamicSizing bool    `mapstructure:"use_dynamic_sizing"`
	MinOrderQty      float64 `mapstructure:"min_order_qty"`
	MinNotional      float64 `mapstructure:"min_notional"`
}

// AnalyticsConfig toggles individual report metrics.
type AnalyticsConfig struct {
	CalculateSharpe      bool `mapstructure:"calculate_sharpe"`
	CalculateMaxDrawdown bool `mapstructure:"calculate_max_drawdown"`
}

// StrategyConfig configures one strategy instance.
type StrategyConfig struct {
	Name   string         `mapstructure:"name"`
	Symbol string         `mapstructure:"symbol"`
	Params StrategyParams `mapstructure:"params"`
}

// StrategyParams holds per-strategy tuning knobs.
type StrategyParams struct {
	LookbackLevels     int     `mapstructure:"lookback_levels"`
	ImbalanceThreshold float64 `mapstructure:"imbalance_threshold"`
}

// WebSocketConfig names the live ingester's depth-feed target.
type WebSocketConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Target string `mapstructure:"target"`
	Symbol string `mapstructure:"symbol"`
}

// OptimizeConfig describes a parameter sweep for the external optimizer.
type OptimizeConfig struct {
	StrategyName string               `mapstructure:"strategy_name"`
	ParamRanges  map[string][]float64 `mapstructure:"param_ranges"`
}

// WalkForwardConfig describes windows for the external walk-forward analyzer.
type WalkForwardConfig struct {
	StartDate       string `mapstructure:"start_date"`
	EndDate         string `mapstructure:"end_date"`
	InSampleDays    int    `mapstructure:"in_sample_days"`
	OutOfSampleDays int    `mapstructure:"out_of_sample_days"`
}

// MLConfig locates the confidence oracle's model. An empty path means the
// oracle returns a constant 1.0.
type MLConfig struct {
	ModelPath string `mapstructure:"model_path"`
}

// APIConfig controls the HTTP control surface.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ReportConfig sets where the final analytics report is archived.
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// Load reads config from a JSON file with env var overrides.
// Sensitive fields use env vars: TRADECORE_WEBSOCKET_HOST, TRADECORE_MODEL_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("TRADECORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("run_mode", string(ModeBacktest))
	v.SetDefault("initial_capital", 100000.0)
	v.SetDefault("risk.risk_per_trade_pct", 0.02)
	v.SetDefault("risk.min_order_qty", 0.001)
	v.SetDefault("risk.min_notional", 10.0)
	v.SetDefault("analytics.calculate_sharpe", true)
	v.SetDefault("analytics.calculate_max_drawdown", true)
	v.SetDefault("api.port", 8080)
	v.SetDefault("report.output_dir", "reports")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if host := os.Getenv("TRADECORE_WEBSOCKET_HOST"); host != "" {
		cfg.WebSocket.Host = host
	}
	if path := os.Getenv("TRADECORE_MODEL_PATH"); path != "" {
		cfg.MachineLearning.ModelPath = path
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	switch c.RunMode {
	case ModeBacktest, ModeLive, ModeOptimize, ModeWalkForward:
	default:
		return fmt.Errorf("run_mode must be one of: BACKTEST, LIVE, OPTIMIZATION, WALK_FORWARD")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be > 0")
	}
	if c.RunMode == ModeBacktest {
		if c.Data.Symbol == "" {
			return fmt.Errorf("data.symbol is required in BACKTEST mode")
		}
		if c.Data.DataFile == "" {
			return fmt.Errorf("data.data_file is required in BACKTEST mode")
		}
	}
	if c.RunMode == ModeLive {
		if c.WebSocket.Host == "" {
			return fmt.Errorf("websocket.host is required in LIVE mode (set TRADECORE_WEBSOCKET_HOST)")
		}
		if c.WebSocket.Port <= 0 {
			return fmt.Errorf("websocket.port must be > 0 in LIVE mode")
		}
		if c.WebSocket.Symbol == "" {
			return fmt.Errorf("websocket.symbol is required in LIVE mode")
		}
	}
	if c.Execution.CommissionPct < 0 {
		return fmt.Errorf("execution.commission_pct must be >= 0")
	}
	if c.Execution.SlippagePct < 0 {
		return fmt.Errorf("execution.slippage_pct must be >= 0")
	}
	if c.Risk.RiskPerTradePct <= 0 || c.Risk.RiskPerTradePct > 1 {
		return fmt.Errorf("risk.risk_per_trade_pct must be in (0, 1]")
	}
	if c.Risk.MinOrderQty <= 0 {
		return fmt.Errorf("risk.min_order_qty must be > 0")
	}
	if c.Risk.MinNotional <= 0 {
		return fmt.Errorf("risk.min_notional must be > 0")
	}
	for i, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("strategies[%d].name is required", i)
		}
		if s.Symbol == "" {
			return fmt.Errorf("strategies[%d].symbol is required", i)
		}
	}
	return nil
}
