// Package analytics derives account-level performance statistics from
// closed trades.
package analytics

import (
	"math"
	"sort"
	"time"

	"tradeledger/internal/domain"
)

// PerformanceMetrics holds performance metrics over a set of closed trades.
type PerformanceMetrics struct {
	// Basic Metrics
	TotalTrades        int     `yaml:"total_trades"`
	WinningTrades      int     `yaml:"winning_trades"`
	LosingTrades       int     `yaml:"losing_trades"`
	WinRate            float64 `yaml:"win_rate"`
	TotalProfit        float64 `yaml:"total_profit"`
	MaxDrawdown        float64 `yaml:"max_drawdown"`
	ProfitFactor       float64 `yaml:"profit_factor"`
	AverageWin         float64 `yaml:"average_win"`
	AverageLoss        float64 `yaml:"average_loss"`
	SharpeRatio        float64 `yaml:"sharpe_ratio"` // per trade, not annualised
	FinalBalance       float64 `yaml:"final_balance"`
	ReturnOnInvestment float64 `yaml:"return_on_investment"`

	// Advanced Metrics
	MaxConsecutiveWins   int                `yaml:"max_consecutive_wins"`
	MaxConsecutiveLosses int                `yaml:"max_consecutive_losses"`
	AverageTradeDuration time.Duration      `yaml:"average_trade_duration"`
	RecoveryFactor       float64            `yaml:"recovery_factor"`
	Expectancy           float64            `yaml:"expectancy"`
	RiskRewardRatio      float64            `yaml:"risk_reward_ratio"`
	MonthlyReturns       map[string]float64 `yaml:"monthly_returns"`
	Drawdowns            []Drawdown         `yaml:"drawdowns"`
	EquityCurve          []EquityPoint      `yaml:"-"`
}

// Drawdown represents a drawdown period
type Drawdown struct {
	StartTime  time.Time     `yaml:"start_time"`
	EndTime    time.Time     `yaml:"end_time"`
	StartValue float64       `yaml:"start_value"`
	EndValue   float64       `yaml:"end_value"`
	Depth      float64       `yaml:"depth"`
	Duration   time.Duration `yaml:"duration"`
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// AnalyzePerformance computes metrics over the closed trades in trades,
// replayed in close-date order. Open trades are ignored and the input slice
// is not modified.
func AnalyzePerformance(trades []domain.Trade, initialBalance float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		FinalBalance:   initialBalance,
		MonthlyReturns: make(map[string]float64),
		Drawdowns:      make([]Drawdown, 0),
		EquityCurve:    make([]EquityPoint, 0),
	}

	closed := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if !t.IsOpen && t.CloseDate != nil && t.CloseProfitAbs != nil {
			closed = append(closed, t)
		}
	}
	if len(closed) == 0 {
		return metrics
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].CloseDate.Before(*closed[j].CloseDate)
	})

	var currentBalance = initialBalance
	var peakBalance = initialBalance
	var currentDrawdown *Drawdown
	var consecutiveWins, consecutiveLosses int
	var grossWin, grossLoss float64
	var totalDuration time.Duration
	returns := make([]float64, 0, len(closed))

	for _, trade := range closed {
		pnl := *trade.CloseProfitAbs
		exitTime := *trade.CloseDate
		if trade.CloseProfit != nil {
			returns = append(returns, *trade.CloseProfit)
		}

		metrics.TotalTrades++
		if pnl > 0 {
			metrics.WinningTrades++
			consecutiveWins++
			consecutiveLosses = 0
			grossWin += pnl
		} else {
			metrics.LosingTrades++
			consecutiveLosses++
			consecutiveWins = 0
			grossLoss += pnl
		}
		if consecutiveWins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = consecutiveLosses
		}

		currentBalance += pnl
		metrics.TotalProfit += pnl
		metrics.FinalBalance = currentBalance
		metrics.MonthlyReturns[exitTime.Format("2006-01")] += pnl
		totalDuration += exitTime.Sub(trade.OpenDate)

		if currentBalance > peakBalance {
			peakBalance = currentBalance
			if currentDrawdown != nil {
				currentDrawdown.EndTime = exitTime
				currentDrawdown.EndValue = currentBalance
				currentDrawdown.Duration = currentDrawdown.EndTime.Sub(currentDrawdown.StartTime)
				metrics.Drawdowns = append(metrics.Drawdowns, *currentDrawdown)
				currentDrawdown = nil
			}
		} else if currentBalance < peakBalance {
			drawdown := relativeDrop(peakBalance, currentBalance)
			if currentDrawdown == nil {
				currentDrawdown = &Drawdown{
					StartTime:  exitTime,
					StartValue: peakBalance,
					Depth:      drawdown,
				}
			} else {
				currentDrawdown.Depth = math.Max(currentDrawdown.Depth, drawdown)
			}
			if drawdown > metrics.MaxDrawdown {
				metrics.MaxDrawdown = drawdown
			}
		}

		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{
			Time:     exitTime,
			Value:    currentBalance,
			Drawdown: relativeDrop(peakBalance, currentBalance),
		})
	}

	if currentDrawdown != nil {
		currentDrawdown.EndTime = *closed[len(closed)-1].CloseDate
		currentDrawdown.EndValue = currentBalance
		currentDrawdown.Duration = currentDrawdown.EndTime.Sub(currentDrawdown.StartTime)
		metrics.Drawdowns = append(metrics.Drawdowns, *currentDrawdown)
	}

	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = grossWin / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = grossLoss / float64(metrics.LosingTrades)
	}
	if grossLoss != 0 {
		metrics.ProfitFactor = grossWin / -grossLoss
	}
	if metrics.AverageLoss != 0 {
		metrics.RiskRewardRatio = metrics.AverageWin / -metrics.AverageLoss
	}
	if initialBalance > 0 {
		metrics.ReturnOnInvestment = (metrics.FinalBalance - initialBalance) / initialBalance
		if metrics.MaxDrawdown > 0 {
			metrics.RecoveryFactor = metrics.TotalProfit / (initialBalance * metrics.MaxDrawdown)
		}
	}
	metrics.AverageTradeDuration = totalDuration / time.Duration(len(closed))
	metrics.Expectancy = (metrics.WinRate * metrics.AverageWin) + ((1 - metrics.WinRate) * metrics.AverageLoss)
	metrics.SharpeRatio = sharpe(returns)

	return metrics
}

// relativeDrop is (peak-value)/peak, or 0 when peak is not positive.
func relativeDrop(peak, value float64) float64 {
	if peak <= 0 {
		return 0
	}
	return (peak - value) / peak
}

// sharpe is mean/stddev of per-trade relative returns (sample deviation).
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}
