package ports

import (
	"context"

	"tradeledger/internal/domain"
)

// TradeRepository persists ledger state. Implementations must write the trade and
// its newly appended order atomically: either both are stored or neither is.
type TradeRepository interface {
	// SaveFill upserts the trade row and inserts the order row in one transaction.
	SaveFill(ctx context.Context, trade *domain.Trade, order *domain.Order) error
	// LoadTrades returns every stored trade with its orders, ordered by trade ID,
	// orders in insertion order.
	LoadTrades(ctx context.Context) ([]*domain.Trade, error)
	// Close releases the underlying connection.
	Close() error
}
