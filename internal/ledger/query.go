package ledger

import (
	"sort"
	"time"

	"tradeledger/internal/domain"
)

// TradeFilter selects trades for GetTrades. Zero-valued fields impose no
// constraint; set fields are AND-combined.
type TradeFilter struct {
	Pair      string
	IsOpen    *bool
	OpenDate  time.Time // opened at or after
	CloseDate time.Time // closed at or after; open trades never match
}

// Bool returns a pointer to b, for TradeFilter.IsOpen.
func Bool(b bool) *bool {
	return &b
}

// Match reports whether t satisfies every set field of f.
func (f TradeFilter) Match(t *domain.Trade) bool {
	if f.Pair != "" && t.Pair != f.Pair {
		return false
	}
	if f.IsOpen != nil && t.IsOpen != *f.IsOpen {
		return false
	}
	if !f.OpenDate.IsZero() && t.OpenDate.Before(f.OpenDate) {
		return false
	}
	if !f.CloseDate.IsZero() {
		if t.CloseDate == nil || t.CloseDate.Before(f.CloseDate) {
			return false
		}
	}
	return true
}

// PairPerformance aggregates closed trades of one pair.
type PairPerformance struct {
	Pair      string  `json:"pair" yaml:"pair"`
	Profit    float64 `json:"profit" yaml:"profit"`         // mean close_profit
	ProfitAbs float64 `json:"profit_abs" yaml:"profit_abs"` // sum of close_profit_abs
	Count     int     `json:"count" yaml:"count"`
}

// TagPerformance aggregates closed trades sharing an enter tag or exit reason.
type TagPerformance struct {
	Tag       string  `json:"tag" yaml:"tag"`
	Profit    float64 `json:"profit" yaml:"profit"`
	ProfitAbs float64 `json:"profit_abs" yaml:"profit_abs"`
	Count     int     `json:"count" yaml:"count"`
}

// untaggedKey labels trades without an enter tag or exit reason.
const untaggedKey = "Other"

// GetTrades returns snapshots of the trades matching f, in creation order.
func (l *Ledger) GetTrades(f TradeFilter) []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Trade, 0)
	for _, id := range l.ids {
		t := l.trades[id]
		if f.Match(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// GetOpenTrades is shorthand for GetTrades with IsOpen set.
func (l *Ledger) GetOpenTrades() []domain.Trade {
	return l.GetTrades(TradeFilter{IsOpen: Bool(true)})
}

// GetOpenTradeCount returns the number of open trades.
func (l *Ledger) GetOpenTradeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, t := range l.trades {
		if t.IsOpen {
			n++
		}
	}
	return n
}

// GetTotalClosedProfit sums close_profit_abs over closed trades.
func (l *Ledger) GetTotalClosedProfit() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := 0.0
	for _, id := range l.ids {
		t := l.trades[id]
		if !t.IsOpen && t.CloseProfitAbs != nil {
			total += *t.CloseProfitAbs
		}
	}
	return total
}

// TotalOpenTradesStakes sums stake_amount over open trades.
func (l *Ledger) TotalOpenTradesStakes() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := 0.0
	for _, id := range l.ids {
		t := l.trades[id]
		if t.IsOpen {
			total += t.StakeAmount
		}
	}
	return total
}

// GetOverallPerformance groups closed trades by pair. Rows are sorted by pair.
func (l *Ledger) GetOverallPerformance() []PairPerformance {
	groups := l.groupClosed(func(t *domain.Trade) string { return t.Pair })
	out := make([]PairPerformance, 0, len(groups))
	for _, g := range groups {
		out = append(out, PairPerformance{Pair: g.key, Profit: g.mean(), ProfitAbs: g.profitAbs, Count: g.count})
	}
	return out
}

// GetEnterTagPerformance groups closed trades by enter tag.
func (l *Ledger) GetEnterTagPerformance() []TagPerformance {
	return toTagPerformance(l.groupClosed(func(t *domain.Trade) string { return t.EnterTag }))
}

// GetExitReasonPerformance groups closed trades by exit reason.
func (l *Ledger) GetExitReasonPerformance() []TagPerformance {
	return toTagPerformance(l.groupClosed(func(t *domain.Trade) string { return t.ExitReason }))
}

// GetBestPair returns the pair with the highest summed close_profit.
// ok is false when no trade is closed.
func (l *Ledger) GetBestPair() (best PairPerformance, ok bool) {
	bestSum := 0.0
	for _, g := range l.groupClosed(func(t *domain.Trade) string { return t.Pair }) {
		if !ok || g.profitSum > bestSum {
			best = PairPerformance{Pair: g.key, Profit: g.mean(), ProfitAbs: g.profitAbs, Count: g.count}
			bestSum = g.profitSum
			ok = true
		}
	}
	return best, ok
}

type perfGroup struct {
	key       string
	profitSum float64
	profitAbs float64
	count     int
}

func (g perfGroup) mean() float64 {
	if g.count == 0 {
		return 0
	}
	return g.profitSum / float64(g.count)
}

// groupClosed aggregates closed trades by keyFn, sorted by key.
func (l *Ledger) groupClosed(keyFn func(*domain.Trade) string) []perfGroup {
	l.mu.RLock()
	byKey := make(map[string]*perfGroup)
	for _, id := range l.ids {
		t := l.trades[id]
		if t.IsOpen || t.CloseProfit == nil {
			continue
		}
		key := keyFn(t)
		if key == "" {
			key = untaggedKey
		}
		g, ok := byKey[key]
		if !ok {
			g = &perfGroup{key: key}
			byKey[key] = g
		}
		g.profitSum += *t.CloseProfit
		if t.CloseProfitAbs != nil {
			g.profitAbs += *t.CloseProfitAbs
		}
		g.count++
	}
	l.mu.RUnlock()

	out := make([]perfGroup, 0, len(byKey))
	for _, g := range byKey {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func toTagPerformance(groups []perfGroup) []TagPerformance {
	out := make([]TagPerformance, 0, len(groups))
	for _, g := range groups {
		out = append(out, TagPerformance{Tag: g.key, Profit: g.mean(), ProfitAbs: g.profitAbs, Count: g.count})
	}
	return out
}
