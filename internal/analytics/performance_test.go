package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
)

var base = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func closedTrade(id int64, pnl, profit float64, opened, closed time.Time) domain.Trade {
	return domain.Trade{
		ID:             id,
		Pair:           "BTC/USDT",
		Leverage:       2,
		OpenDate:       opened,
		CloseDate:      &closed,
		CloseProfitAbs: &pnl,
		CloseProfit:    &profit,
	}
}

func TestAnalyzePerformance(t *testing.T) {
	initialBalance := 10000.0
	trades := []domain.Trade{
		closedTrade(1, 1000, 0.2, base, base.Add(24*time.Hour)),
		closedTrade(2, -1000, -0.18, base.Add(12*time.Hour), base.Add(18*time.Hour)),
	}

	metrics := AnalyzePerformance(trades, initialBalance)

	assert.Equal(t, 2, metrics.TotalTrades)
	assert.Equal(t, 1, metrics.WinningTrades)
	assert.Equal(t, 1, metrics.LosingTrades)
	assert.Equal(t, 0.5, metrics.WinRate)
	assert.Equal(t, 0.0, metrics.TotalProfit)
	assert.Equal(t, initialBalance, metrics.FinalBalance)
	assert.Equal(t, 1, metrics.MaxConsecutiveWins)
	assert.Equal(t, 1, metrics.MaxConsecutiveLosses)
	assert.Equal(t, 1000.0, metrics.AverageWin)
	assert.Equal(t, -1000.0, metrics.AverageLoss)
	assert.Equal(t, 1.0, metrics.ProfitFactor)
	assert.Equal(t, 1.0, metrics.RiskRewardRatio)
	assert.Equal(t, 15*time.Hour, metrics.AverageTradeDuration)

	// Replayed by close date: the loss closes first.
	require.Len(t, metrics.EquityCurve, 2)
	assert.Equal(t, 9000.0, metrics.EquityCurve[0].Value)
	assert.Equal(t, 10000.0, metrics.EquityCurve[1].Value)
	require.Len(t, metrics.Drawdowns, 1)
	assert.InDelta(t, 0.1, metrics.Drawdowns[0].Depth, 1e-12)
	assert.Equal(t, 6*time.Hour, metrics.Drawdowns[0].Duration)

	monthlyReturns := metrics.GetMonthlyReturns()
	require.Len(t, monthlyReturns, 1)
	assert.Equal(t, 0.0, monthlyReturns[0].Return)

	assert.Equal(t, int64(1), trades[0].ID, "input order is preserved")
}

func TestAnalyzePerformanceEmptyTrades(t *testing.T) {
	metrics := AnalyzePerformance(nil, 10000.0)
	assert.Equal(t, 0, metrics.TotalTrades)
	assert.Equal(t, 10000.0, metrics.FinalBalance)
	assert.NotNil(t, metrics.Drawdowns)
}

func TestAnalyzePerformanceIgnoresOpenTrades(t *testing.T) {
	open := domain.Trade{ID: 9, Pair: "ETH/USDT", IsOpen: true, OpenDate: base}
	metrics := AnalyzePerformance([]domain.Trade{open, closedTrade(1, 50, 0.05, base, base.Add(time.Hour))}, 1000)

	assert.Equal(t, 1, metrics.TotalTrades)
	assert.Equal(t, 1050.0, metrics.FinalBalance)
	assert.InDelta(t, 0.05, metrics.ReturnOnInvestment, 1e-12)
}

func TestAnalyzePerformanceDrawdown(t *testing.T) {
	initialBalance := 10000.0
	trades := []domain.Trade{
		closedTrade(1, 1000, 0.2, base, base.Add(6*time.Hour)),
		closedTrade(2, -2200, -0.4, base.Add(12*time.Hour), base.Add(18*time.Hour)),
	}

	metrics := AnalyzePerformance(trades, initialBalance)

	assert.Equal(t, 0.2, metrics.MaxDrawdown)
	require.Len(t, metrics.Drawdowns, 1)
	assert.Equal(t, 0.2, metrics.Drawdowns[0].Depth)
	assert.InDelta(t, -1200.0/(10000*0.2), metrics.RecoveryFactor, 1e-12)
}

func TestAnalyzePerformanceConsecutiveTrades(t *testing.T) {
	trades := []domain.Trade{
		closedTrade(1, 1000, 0.1, base, base.Add(6*time.Hour)),
		closedTrade(2, 1000, 0.3, base.Add(12*time.Hour), base.Add(18*time.Hour)),
	}

	metrics := AnalyzePerformance(trades, 10000.0)

	assert.Equal(t, 2, metrics.MaxConsecutiveWins)
	assert.Equal(t, 0, metrics.MaxConsecutiveLosses)
	assert.Equal(t, 1.0, metrics.WinRate)
	assert.Equal(t, 0.0, metrics.ProfitFactor)
	// mean 0.2, sample std sqrt(0.02)
	assert.InDelta(t, 0.2/0.1414213562, metrics.SharpeRatio, 1e-6)
}
