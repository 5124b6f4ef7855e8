package ports

import (
	"time"

	"tradeledger/internal/domain"
)

// FillEvent is what the execution/exchange layer hands to the ledger after an
// order has been confirmed. It carries the order details together with the
// trade intent needed to route it.
type FillEvent struct {
	TradeID    int64   // Target trade; zero routes by Pair and IsShort
	Pair       string  // Trading pair (e.g., "ETH/USDT")
	IsShort    bool    // Direction of the position the fill belongs to
	Leverage   float64 // Leverage for new trades (defaults to 1)
	EnterTag   string  // Tag attached when the fill opens a trade
	ExitReason string  // Reason attached when the fill closes a trade

	OrderID   string             // Exchange order ID
	Side      domain.OrderSide   // buy or sell
	Status    domain.OrderStatus // filled or canceled
	Price     float64            // Average fill price
	Amount    float64            // Filled quantity
	Timestamp time.Time          // Fill time
}

// Order converts the event into a domain order.
func (e FillEvent) Order() domain.Order {
	status := e.Status
	if status == "" {
		status = domain.OrderStatusFilled
	}
	return domain.Order{
		OrderID:  e.OrderID,
		Pair:     e.Pair,
		Side:     e.Side,
		Status:   status,
		Price:    e.Price,
		Amount:   e.Amount,
		FillDate: e.Timestamp,
	}
}
