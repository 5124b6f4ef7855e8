package domain

import "time"

// Trade represents a tracked trading position, long or short, open or closed.
//
// CloseRate, CloseDate, CloseProfit and CloseProfitAbs are set if and only if the
// trade is closed. Orders is append-only.
type Trade struct {
	ID       int64
	Pair     string
	IsOpen   bool
	IsShort  bool
	Leverage float64

	OpenRate       float64  // Weighted average entry rate of the current position
	CloseRate      *float64 // Weighted average exit rate, nil while open
	StakeAmount    float64  // Amount * OpenRate / Leverage
	MaxStakeAmount float64  // Highest stake held during the trade's life
	Amount         float64  // Remaining position size in base currency

	OpenDate  time.Time
	CloseDate *time.Time

	CloseProfit    *float64 // Relative profit, nil while open
	CloseProfitAbs *float64 // Absolute profit in stake currency, nil while open
	RealizedProfit float64  // Absolute profit realized by exits so far
	FeeOpenCost    float64  // Fees paid on entry legs
	FeeCloseCost   float64  // Fees paid on exit legs

	EnterTag   string
	ExitReason string

	Orders []Order
}

// EntrySide returns the order side that opens or increases the position.
func (t *Trade) EntrySide() OrderSide {
	if t.IsShort {
		return Sell
	}
	return Buy
}

// ExitSide returns the order side that reduces or closes the position.
func (t *Trade) ExitSide() OrderSide {
	return t.EntrySide().Opposite()
}

// TradeDirection returns "long" or "short".
func (t *Trade) TradeDirection() TradeDirection {
	if t.IsShort {
		return DirectionShort
	}
	return DirectionLong
}

// NrOfSuccessfulEntries counts filled orders on the entry side.
func (t *Trade) NrOfSuccessfulEntries() int {
	return t.countFilled(t.EntrySide())
}

// NrOfSuccessfulExits counts filled orders on the exit side.
func (t *Trade) NrOfSuccessfulExits() int {
	return t.countFilled(t.ExitSide())
}

func (t *Trade) countFilled(side OrderSide) int {
	n := 0
	for i := range t.Orders {
		if t.Orders[i].Side == side && t.Orders[i].IsFilled() {
			n++
		}
	}
	return n
}

// DateLastFilled returns the latest fill timestamp across filled orders,
// or the zero time if nothing has been filled.
func (t *Trade) DateLastFilled() time.Time {
	var last time.Time
	for i := range t.Orders {
		o := &t.Orders[i]
		if o.IsFilled() && o.FillDate.After(last) {
			last = o.FillDate
		}
	}
	return last
}

// Clone returns a deep copy that shares no memory with t.
func (t *Trade) Clone() Trade {
	c := *t
	c.CloseRate = cloneFloat(t.CloseRate)
	c.CloseProfit = cloneFloat(t.CloseProfit)
	c.CloseProfitAbs = cloneFloat(t.CloseProfitAbs)
	if t.CloseDate != nil {
		d := *t.CloseDate
		c.CloseDate = &d
	}
	if t.Orders != nil {
		c.Orders = make([]Order, len(t.Orders))
		copy(c.Orders, t.Orders)
	}
	return c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
