package domain

import "time"

// Order represents a single exchange (or simulated) order belonging to one Trade.
type Order struct {
	ID       int64       // Ledger-assigned sequence number
	TradeID  int64       // Owning trade (back-reference, never ownership)
	OrderID  string      // Exchange or client order identifier
	Pair     string      // Trading pair (e.g., "ETH/USDT")
	Side     OrderSide   // buy or sell
	Status   OrderStatus // open, filled, canceled
	Price    float64     // Fill price (average fill price for aggregated fills)
	Amount   float64     // Filled amount in base currency
	FillDate time.Time   // UTC fill timestamp
}

// IsFilled checks if the order status is filled.
func (o *Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

// Cost returns the notional value of the order in stake currency.
func (o *Order) Cost() float64 {
	return o.Price * o.Amount
}
