// Package binanceclient turns Binance USDⓈ-M futures order payloads into
// ledger fill events. It performs no network I/O.
package binanceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

// ErrNotFilled is returned for orders that carry nothing for the ledger yet
// (NEW orders, or orders that never traded and were not canceled).
var ErrNotFilled = errors.New("order has no fill")

// quoteAssets are tried in order when splitting a futures symbol into a pair.
var quoteAssets = []string{"USDT", "USDC", "BUSD", "FDUSD", "BTC", "ETH", "BNB"}

// Translator converts futures order responses into fill events.
type Translator struct {
	logger   ports.Logger
	leverage float64
}

// Config holds configuration for the Translator.
type Config struct {
	Logger   ports.Logger
	Leverage float64 // Attached to events that open trades; zero means 1
}

// New creates a Translator.
func New(cfg Config) *Translator {
	logger := cfg.Logger
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return &Translator{logger: logger, leverage: cfg.Leverage}
}

// DecodeOrders reads a JSON array of order responses as returned by the
// futures order endpoints.
func DecodeOrders(r io.Reader) ([]futures.CreateOrderResponse, error) {
	var orders []futures.CreateOrderResponse
	if err := json.NewDecoder(r).Decode(&orders); err != nil {
		return nil, fmt.Errorf("%w: decode binance orders: %v", ports.ErrInvalidRequest, err)
	}
	return orders, nil
}

// Translate converts a single order response into a FillEvent.
func (t *Translator) Translate(order *futures.CreateOrderResponse) (ports.FillEvent, error) {
	if order == nil {
		return ports.FillEvent{}, fmt.Errorf("%w: nil order response", ports.ErrInvalidRequest)
	}

	side, err := translateSide(order.Side)
	if err != nil {
		return ports.FillEvent{}, err
	}
	avgPrice, err := parseDecimal(order.AvgPrice)
	if err != nil {
		return ports.FillEvent{}, fmt.Errorf("%w: order %d avgPrice: %v", ports.ErrInvalidRequest, order.OrderID, err)
	}
	price, err := parseDecimal(order.Price)
	if err != nil {
		return ports.FillEvent{}, fmt.Errorf("%w: order %d price: %v", ports.ErrInvalidRequest, order.OrderID, err)
	}
	executed, err := parseDecimal(order.ExecutedQuantity)
	if err != nil {
		return ports.FillEvent{}, fmt.Errorf("%w: order %d executedQty: %v", ports.ErrInvalidRequest, order.OrderID, err)
	}
	orig, err := parseDecimal(order.OrigQuantity)
	if err != nil {
		return ports.FillEvent{}, fmt.Errorf("%w: order %d origQty: %v", ports.ErrInvalidRequest, order.OrderID, err)
	}

	// Market orders report price 0; the average is the real fill price.
	fillPrice := avgPrice
	if fillPrice.IsZero() {
		fillPrice = price
	}

	ev := ports.FillEvent{
		Pair:      SymbolToPair(order.Symbol),
		IsShort:   isShort(order),
		Leverage:  t.leverage,
		OrderID:   fmt.Sprintf("%d", order.OrderID),
		Side:      side,
		Timestamp: time.UnixMilli(order.UpdateTime).UTC(),
	}
	if order.UpdateTime == 0 {
		ev.Timestamp = time.Time{}
	}

	switch order.Status {
	case futures.OrderStatusTypeFilled, futures.OrderStatusTypePartiallyFilled:
		ev.Status = domain.OrderStatusFilled
		ev.Amount = executed.InexactFloat64()
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired, futures.OrderStatusTypeRejected:
		// Whatever traded before the cancel is a real fill.
		if executed.IsPositive() {
			ev.Status = domain.OrderStatusFilled
			ev.Amount = executed.InexactFloat64()
		} else {
			ev.Status = domain.OrderStatusCanceled
			ev.Amount = orig.InexactFloat64()
		}
	default:
		return ports.FillEvent{}, fmt.Errorf("order %d status %s: %w", order.OrderID, order.Status, ErrNotFilled)
	}
	ev.Price = fillPrice.InexactFloat64()
	return ev, nil
}

// TranslateAll converts a batch, skipping orders without fills. Malformed
// orders are logged and skipped as well; skipped counts both.
func (t *Translator) TranslateAll(ctx context.Context, orders []futures.CreateOrderResponse) (events []ports.FillEvent, skipped int) {
	events = make([]ports.FillEvent, 0, len(orders))
	for i := range orders {
		ev, err := t.Translate(&orders[i])
		if err != nil {
			skipped++
			if errors.Is(err, ErrNotFilled) {
				t.logger.Debug(ctx, "Skipping order without fill", map[string]interface{}{"orderID": orders[i].OrderID})
				continue
			}
			t.logger.Warn(ctx, "Skipping malformed order", map[string]interface{}{"orderID": orders[i].OrderID, "error": err.Error()})
			continue
		}
		events = append(events, ev)
	}
	return events, skipped
}

// SymbolToPair converts an exchange symbol such as "ETHUSDT" into "ETH/USDT".
// Symbols with an unknown quote asset are returned unchanged.
func SymbolToPair(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, "/") {
		return s
	}
	for _, q := range quoteAssets {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return s[:len(s)-len(q)] + "/" + q
		}
	}
	return s
}

func translateSide(s futures.SideType) (domain.OrderSide, error) {
	switch s {
	case futures.SideTypeBuy:
		return domain.Buy, nil
	case futures.SideTypeSell:
		return domain.Sell, nil
	default:
		return "", fmt.Errorf("%w: unknown order side %q", ports.ErrInvalidRequest, s)
	}
}

// isShort derives the position direction. In hedge mode the position side
// says it directly; in one-way mode (BOTH) a non-reducing sell opens a short
// and a reducing buy closes one.
func isShort(order *futures.CreateOrderResponse) bool {
	switch order.PositionSide {
	case futures.PositionSideTypeShort:
		return true
	case futures.PositionSideTypeLong:
		return false
	}
	if order.Side == futures.SideTypeSell {
		return !order.ReduceOnly
	}
	return order.ReduceOnly
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
