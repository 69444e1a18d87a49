// Package analytics computes performance metrics from an equity curve and
// a closed-trade log. Everything here is pure.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/optiontrader/broker"
)

// ProfitFactorNoLosses is reported when there are winning trades and no
// losing ones.
const ProfitFactorNoLosses = 999.0

const (
	tradingDaysPerYear = 252
	sessionSeconds     = 6.25 * 3600 // 09:15 to 15:30
	tradingSecondsYear = tradingDaysPerYear * sessionSeconds
)

type EquityPoint struct {
	Time        time.Time `json:"timestamp"`
	Equity      float64   `json:"equity"`
	DrawdownPct float64   `json:"drawdown_pct"`
}

type Summary struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	NetProfit      float64 `json:"net_profit"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TotalTrades    int     `json:"total_trades"`
	WinRate        float64 `json:"win_rate"`
	ProfitFactor   float64 `json:"profit_factor"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	CalmarRatio    float64 `json:"calmar_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

type TradeStats struct {
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
	AvgHoldHours float64 `json:"avg_hold_hours"`
}

type Report struct {
	Summary     Summary       `json:"summary"`
	TradeStats  TradeStats    `json:"trade_stats"`
	EquityCurve []EquityPoint `json:"equity_curve"`
}

// Compute builds the report. Reported figures are rounded to two
// decimals; the curve's drawdowns are filled in on a copy.
func Compute(curve []EquityPoint, trades []broker.ClosedTrade, initialCapital float64) Report {
	r := Report{
		Summary: Summary{InitialCapital: initialCapital, FinalCapital: initialCapital},
	}
	r.TradeStats = tradeStats(trades)
	r.Summary.TotalTrades = len(trades)
	if len(trades) > 0 {
		r.Summary.WinRate = round2(float64(r.TradeStats.Wins) / float64(len(trades)) * 100)
	}
	r.Summary.ProfitFactor = round2(ProfitFactor(trades))

	if len(curve) == 0 {
		r.EquityCurve = []EquityPoint{}
		return r
	}

	r.EquityCurve = Drawdowns(curve)
	final := curve[len(curve)-1].Equity
	maxDD := MaxDrawdown(r.EquityCurve)

	r.Summary.FinalCapital = round2(final)
	r.Summary.NetProfit = round2(final - initialCapital)
	r.Summary.MaxDrawdownPct = round2(maxDD)

	var totalReturn float64
	if initialCapital != 0 {
		totalReturn = (final - initialCapital) / initialCapital
	}
	r.Summary.TotalReturnPct = round2(totalReturn * 100)
	r.Summary.SharpeRatio = round2(Sharpe(curve))
	if maxDD != 0 {
		r.Summary.CalmarRatio = round2(totalReturn / (maxDD / 100))
	}
	return r
}

// Drawdowns returns a copy of curve with DrawdownPct set against the
// running peak.
func Drawdowns(curve []EquityPoint) []EquityPoint {
	out := make([]EquityPoint, len(curve))
	peak := math.Inf(-1)
	for i, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		p.DrawdownPct = 0
		if peak > 0 {
			p.DrawdownPct = (peak - p.Equity) / peak * 100
		}
		out[i] = p
	}
	return out
}

// MaxDrawdown is the largest DrawdownPct in an already processed curve.
func MaxDrawdown(curve []EquityPoint) float64 {
	var max float64
	for _, p := range curve {
		if p.DrawdownPct > max {
			max = p.DrawdownPct
		}
	}
	return max
}

// PeriodsPerYear infers the annualization factor from the median spacing
// of consecutive samples, so overnight and weekend gaps do not dilute an
// intraday curve. Daily or coarser data is 252.
func PeriodsPerYear(curve []EquityPoint) float64 {
	deltas := make([]float64, 0, len(curve))
	for i := 1; i < len(curve); i++ {
		if d := curve[i].Time.Sub(curve[i-1].Time).Seconds(); d > 0 {
			deltas = append(deltas, d)
		}
	}
	if len(deltas) == 0 {
		return tradingDaysPerYear
	}
	sort.Float64s(deltas)
	spacing := deltas[len(deltas)/2]
	if n := len(deltas); n%2 == 0 {
		spacing = (deltas[n/2-1] + deltas[n/2]) / 2
	}
	if spacing >= 24*3600 {
		return tradingDaysPerYear
	}
	if spacing >= sessionSeconds {
		// Several samples a day but not intraday bars.
		return tradingDaysPerYear
	}
	return tradingSecondsYear / spacing
}

// Sharpe annualizes mean/stddev of per-sample returns. The sign of the
// mean is kept, so a losing curve has a negative ratio.
func Sharpe(curve []EquityPoint) float64 {
	rets := Returns(curve)
	if len(rets) < 2 {
		return 0
	}
	mean, sd := meanStd(rets)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(PeriodsPerYear(curve))
}

// Returns is the simple return between consecutive samples. Samples with
// non-positive prior equity are skipped.
func Returns(curve []EquityPoint) []float64 {
	out := make([]float64, 0, len(curve))
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		out = append(out, curve[i].Equity/prev-1)
	}
	return out
}

// meanStd uses the sample (n-1) standard deviation.
func meanStd(xs []float64) (mean, sd float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// ProfitFactor is gross wins over gross losses.
func ProfitFactor(trades []broker.ClosedTrade) float64 {
	var wins, losses float64
	for _, t := range trades {
		if t.NetPnL > 0 {
			wins += t.NetPnL
		} else {
			losses += t.NetPnL
		}
	}
	if losses != 0 {
		return wins / math.Abs(losses)
	}
	if wins > 0 {
		return ProfitFactorNoLosses
	}
	return 0
}

// tradeStats counts a zero P&L trade as a loss.
func tradeStats(trades []broker.ClosedTrade) TradeStats {
	var (
		s               TradeStats
		sumWin, sumLoss float64
		held            time.Duration
	)
	for _, t := range trades {
		held += t.Duration
		if t.NetPnL > 0 {
			s.Wins++
			sumWin += t.NetPnL
			if t.NetPnL > s.LargestWin {
				s.LargestWin = t.NetPnL
			}
			continue
		}
		s.Losses++
		sumLoss += t.NetPnL
		if t.NetPnL < s.LargestLoss {
			s.LargestLoss = t.NetPnL
		}
	}
	if s.Wins > 0 {
		s.AvgWin = round2(sumWin / float64(s.Wins))
	}
	if s.Losses > 0 {
		s.AvgLoss = round2(sumLoss / float64(s.Losses))
	}
	if len(trades) > 0 {
		s.AvgHoldHours = round2(held.Hours() / float64(len(trades)))
	}
	s.LargestWin = round2(s.LargestWin)
	s.LargestLoss = round2(s.LargestLoss)
	return s
}

func round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}
