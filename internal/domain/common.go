package domain

// OrderSide represents the side of an order (buy or sell).
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == Buy || s == Sell
}

// OrderStatus represents the fill state of an order.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
)

// TradeDirection is the human readable direction of a trade.
type TradeDirection string

const (
	DirectionLong  TradeDirection = "long"
	DirectionShort TradeDirection = "short"
)

// Exit reasons commonly attached to closing fills. Any free-form string is accepted.
const (
	ExitReasonStopLoss   = "stop_loss"
	ExitReasonROI        = "roi"
	ExitReasonExitSignal = "exit_signal"
	ExitReasonForceExit  = "force_exit"
	ExitReasonLiquidated = "liquidation"
)
