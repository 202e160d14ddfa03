package portfolio

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/tradecore/engine/internal/config"
)

// annualization factor for per-step return ratios: √252 trading days.
var annualize = math.Sqrt(252)

// Report is the analytics summary built from the trade log and equity
// curve. Marshals to the metric map served by the control API.
type Report struct {
	InitialEquity  float64 `json:"initial_equity"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	TotalTrades    int     `json:"total_trades"`
	WinRatePct     float64 `json:"win_rate_pct"`
	ProfitFactor   float64 `json:"profit_factor"`
}

// Report builds the analytics summary from current state.
func (p *Engine) Report(cfg config.AnalyticsConfig) Report {
	curve := p.EquityCurve()
	trades := p.Trades()

	initial, _ := curve[0].Float64()
	final, _ := curve[len(curve)-1].Float64()

	r := Report{
		InitialEquity: initial,
		FinalEquity:   final,
		TotalTrades:   len(trades),
	}
	if initial != 0 {
		r.TotalReturnPct = (final - initial) / initial * 100
	}

	returns := stepReturns(curve)
	if cfg.CalculateSharpe {
		r.SharpeRatio = sharpe(returns)
		r.SortinoRatio = sortino(returns)
	}
	if cfg.CalculateMaxDrawdown {
		r.MaxDrawdownPct = maxDrawdown(curve)
	}

	r.WinRatePct, r.ProfitFactor = tradeStats(trades)
	return r
}

// stepReturns converts the equity curve into per-step fractional returns.
func stepReturns(curve []decimal.Decimal) []float64 {
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Float64()
		cur, _ := curve[i].Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (cur-prev)/prev)
	}
	return returns
}

// sharpe annualizes mean/stddev of per-step returns. Fewer than two
// observations, or zero variance, yields zero.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return mean / std * annualize
}

// sortino is sharpe against downside deviation: the root mean square of
// the negative returns, taken over the total observation count.
func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var downsideSq float64
	for _, r := range returns {
		if r < 0 {
			downsideSq += r * r
		}
	}
	downsideDev := math.Sqrt(downsideSq / float64(len(returns)))
	if downsideDev <= 1e-9 {
		return 0
	}
	return stat.Mean(returns, nil) / downsideDev * annualize
}

// maxDrawdown is the largest peak-to-trough fractional decline over the
// equity curve, in percent.
func maxDrawdown(curve []decimal.Decimal) float64 {
	var peak, maxDD float64
	for _, e := range curve {
		v, _ := e.Float64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}

// tradeStats returns win rate (percent) and profit factor. Profit factor is
// |Σ wins / Σ losses|, zero when there are no losses.
func tradeStats(trades []Trade) (winRate, profitFactor float64) {
	if len(trades) == 0 {
		return 0, 0
	}

	var wins int
	sumWins := decimal.Zero
	sumLosses := decimal.Zero
	for _, t := range trades {
		if t.PnL.IsPositive() {
			wins++
			sumWins = sumWins.Add(t.PnL)
		} else {
			sumLosses = sumLosses.Add(t.PnL)
		}
	}

	winRate = float64(wins) / float64(len(trades)) * 100
	if !sumLosses.IsZero() {
		pf, _ := sumWins.Div(sumLosses).Abs().Float64()
		profitFactor = pf
	}
	return winRate, profitFactor
}
