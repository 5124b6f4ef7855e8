package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
)

type seedTrade struct {
	pair       string
	isShort    bool
	enterTag   string
	open       float64
	close      float64 // zero leaves the trade open
	amount     float64
	openedAt   time.Time
	closedAt   time.Time
	exitReason string
}

func seedLedger(t *testing.T, seeds []seedTrade) *Ledger {
	t.Helper()
	l := newTestLedger(t, Config{})
	ctx := context.Background()
	for _, s := range seeds {
		tr, err := l.RecordEntryFill(ctx, EntryIntent{Pair: s.pair, IsShort: s.isShort, EnterTag: s.enterTag},
			fill(s.open, s.amount, s.openedAt))
		require.NoError(t, err)
		if s.close > 0 {
			_, err = l.RecordExitFill(ctx, tr.ID, fill(s.close, s.amount, s.closedAt), s.exitReason)
			require.NoError(t, err)
		}
	}
	return l
}

func TestGetTrades_Filter(t *testing.T) {
	day := 24 * time.Hour
	l := seedLedger(t, []seedTrade{
		{pair: "ETH/USDT", open: 100, close: 110, amount: 1, openedAt: t0, closedAt: t0.Add(day)},
		{pair: "BTC/USDT", open: 100, close: 90, amount: 1, openedAt: t0, closedAt: t0.Add(day)},
		{pair: "ETH/USDT", open: 100, amount: 1, openedAt: t0.Add(2 * day)},
		{pair: "ETH/USDT", isShort: true, open: 100, close: 95, amount: 1, openedAt: t0.Add(3 * day), closedAt: t0.Add(5 * day)},
		{pair: "BTC/USDT", open: 100, amount: 2, openedAt: t0.Add(4 * day)},
	})

	tests := []struct {
		name    string
		filter  TradeFilter
		wantIDs []int64
	}{
		{name: "no constraint", filter: TradeFilter{}, wantIDs: []int64{1, 2, 3, 4, 5}},
		{name: "pair and closed", filter: TradeFilter{Pair: "ETH/USDT", IsOpen: Bool(false)}, wantIDs: []int64{1, 4}},
		{name: "pair and open", filter: TradeFilter{Pair: "ETH/USDT", IsOpen: Bool(true)}, wantIDs: []int64{3}},
		{name: "open only", filter: TradeFilter{IsOpen: Bool(true)}, wantIDs: []int64{3, 5}},
		{name: "opened since", filter: TradeFilter{OpenDate: t0.Add(2 * day)}, wantIDs: []int64{3, 4, 5}},
		{name: "closed since excludes open trades", filter: TradeFilter{CloseDate: t0.Add(day)}, wantIDs: []int64{1, 2, 4}},
		{name: "closed since later", filter: TradeFilter{CloseDate: t0.Add(2 * day), Pair: "ETH/USDT"}, wantIDs: []int64{4}},
		{name: "no match", filter: TradeFilter{Pair: "XRP/USDT"}, wantIDs: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.GetTrades(tt.filter)
			require.NotNil(t, got)
			ids := make([]int64, 0, len(got))
			for _, tr := range got {
				assert.True(t, tt.filter.Match(&tr))
				ids = append(ids, tr.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	assert.Len(t, l.GetOpenTrades(), 2)
}

func TestAggregates(t *testing.T) {
	l := seedLedger(t, []seedTrade{
		{pair: "ETH/USDT", open: 100, close: 110, amount: 1, openedAt: t0, closedAt: t0},
		{pair: "BTC/USDT", open: 100, close: 90, amount: 2, openedAt: t0, closedAt: t0},
		{pair: "ETH/USDT", open: 50, amount: 2, openedAt: t0},
		{pair: "SOL/USDT", open: 20, amount: 5, openedAt: t0},
	})

	assert.Equal(t, 2, l.GetOpenTradeCount())
	assert.InDelta(t, 200, l.TotalOpenTradesStakes(), 1e-9)

	sum := 0.0
	for _, tr := range l.GetTrades(TradeFilter{IsOpen: Bool(false)}) {
		sum += *tr.CloseProfitAbs
	}
	assert.InDelta(t, sum, l.GetTotalClosedProfit(), 1e-9)
	assert.InDelta(t, -10, l.GetTotalClosedProfit(), 1e-9)

	ctx := context.Background()
	for _, tr := range l.GetOpenTrades() {
		_, err := l.RecordExitFill(ctx, tr.ID, fill(tr.OpenRate, tr.Amount, t0), "")
		require.NoError(t, err)
	}
	assert.Equal(t, 0, l.GetOpenTradeCount())
	assert.Equal(t, 0.0, l.TotalOpenTradesStakes())
}

func TestAggregates_EmptyLedger(t *testing.T) {
	l := newTestLedger(t, Config{})

	assert.Equal(t, 0, l.GetOpenTradeCount())
	assert.Equal(t, 0.0, l.GetTotalClosedProfit())
	assert.Equal(t, 0.0, l.TotalOpenTradesStakes())
	assert.NotNil(t, l.GetTrades(TradeFilter{}))
	assert.Empty(t, l.GetOverallPerformance())
	assert.Empty(t, l.GetEnterTagPerformance())
	_, ok := l.GetBestPair()
	assert.False(t, ok)
}

func TestGetOverallPerformance(t *testing.T) {
	l := seedLedger(t, []seedTrade{
		{pair: "ETH/BTC", open: 100, close: 101, amount: 1, openedAt: t0, closedAt: t0},
		{pair: "XRP/BTC", open: 10, close: 9, amount: 1, openedAt: t0, closedAt: t0},
		{pair: "ETH/BTC", open: 100, close: 102, amount: 1, openedAt: t0, closedAt: t0},
		{pair: "ADA/BTC", open: 100, amount: 1, openedAt: t0},
	})

	perf := l.GetOverallPerformance()
	require.Len(t, perf, 2)

	assert.Equal(t, "ETH/BTC", perf[0].Pair)
	assert.InDelta(t, 0.015, perf[0].Profit, 1e-9)
	assert.InDelta(t, 3, perf[0].ProfitAbs, 1e-9)
	assert.Equal(t, 2, perf[0].Count)

	assert.Equal(t, "XRP/BTC", perf[1].Pair)
	assert.InDelta(t, -0.1, perf[1].Profit, 1e-9)
	assert.Equal(t, 1, perf[1].Count)

	assert.Equal(t, perf, l.GetOverallPerformance(), "ordering is deterministic")

	best, ok := l.GetBestPair()
	require.True(t, ok)
	assert.Equal(t, "ETH/BTC", best.Pair)
}

func TestTagPerformance(t *testing.T) {
	l := seedLedger(t, []seedTrade{
		{pair: "ETH/USDT", enterTag: "breakout", open: 100, close: 110, amount: 1, openedAt: t0, closedAt: t0, exitReason: domain.ExitReasonROI},
		{pair: "BTC/USDT", enterTag: "breakout", open: 100, close: 90, amount: 1, openedAt: t0, closedAt: t0, exitReason: domain.ExitReasonStopLoss},
		{pair: "SOL/USDT", open: 100, close: 105, amount: 1, openedAt: t0, closedAt: t0, exitReason: domain.ExitReasonROI},
	})

	tags := l.GetEnterTagPerformance()
	require.Len(t, tags, 2)
	assert.Equal(t, "Other", tags[0].Tag)
	assert.Equal(t, 1, tags[0].Count)
	assert.Equal(t, "breakout", tags[1].Tag)
	assert.InDelta(t, 0, tags[1].Profit, 1e-9)
	assert.Equal(t, 2, tags[1].Count)

	reasons := l.GetExitReasonPerformance()
	require.Len(t, reasons, 2)
	assert.Equal(t, domain.ExitReasonROI, reasons[0].Tag)
	assert.InDelta(t, 0.075, reasons[0].Profit, 1e-9)
	assert.InDelta(t, 15, reasons[0].ProfitAbs, 1e-9)
	assert.Equal(t, domain.ExitReasonStopLoss, reasons[1].Tag)
}

// Readers must only ever observe a trade before or after a fill, never in between.
func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	l := newTestLedger(t, Config{})
	ctx := context.Background()
	const trades = 200

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < trades; i++ {
			tr, err := l.RecordEntryFill(ctx, EntryIntent{Pair: "ETH/USDT"}, fill(100, 2, t0))
			if err != nil {
				t.Errorf("entry: %v", err)
				return
			}
			if _, err := l.RecordExitFill(ctx, tr.ID, fill(110, 1, t0), ""); err != nil {
				t.Errorf("partial exit: %v", err)
				return
			}
			if _, err := l.RecordExitFill(ctx, tr.ID, fill(120, 1, t0), ""); err != nil {
				t.Errorf("exit: %v", err)
				return
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, tr := range l.GetTrades(TradeFilter{}) {
					closed := tr.CloseProfit != nil && tr.CloseProfitAbs != nil && tr.CloseRate != nil && tr.CloseDate != nil
					if tr.IsOpen == closed {
						t.Errorf("trade %d: is_open=%v but close fields set=%v", tr.ID, tr.IsOpen, closed)
						return
					}
					if !tr.IsOpen && tr.Amount != 0 {
						t.Errorf("trade %d closed with amount %v", tr.ID, tr.Amount)
						return
					}
				}
				_ = l.GetOpenTradeCount()
				_ = l.GetOverallPerformance()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 0, l.GetOpenTradeCount())
	assert.Len(t, l.GetTrades(TradeFilter{IsOpen: Bool(false)}), trades)
	assert.InDelta(t, float64(trades)*30, l.GetTotalClosedProfit(), 1e-6)
}
