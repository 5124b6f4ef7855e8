package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

// TradeStore implements ports.TradeRepository using PostgreSQL.
type TradeStore struct {
	client *Client
	pool   *pgxpool.Pool
}

// NewTradeStore creates a TradeStore on the client's pool. The store owns the
// client: closing the store closes the pool.
func NewTradeStore(client *Client) *TradeStore {
	return &TradeStore{client: client, pool: client.Pool()}
}

// Close shuts down the underlying pool.
func (s *TradeStore) Close() error {
	s.client.Close()
	return nil
}

// SaveFill upserts the trade and inserts the order in one transaction.
func (s *TradeStore) SaveFill(ctx context.Context, trade *domain.Trade, order *domain.Order) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: postgres: begin tx: %v", ports.ErrUpdateFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsertTrade = `
		INSERT INTO trades (
			id, pair, is_open, is_short, leverage, open_rate, close_rate, stake_amount,
			max_stake_amount, amount, open_date_utc, close_date_utc, close_profit,
			close_profit_abs, realized_profit, fee_open_cost, fee_close_cost, enter_tag, exit_reason
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19
		)
		ON CONFLICT (id) DO UPDATE SET
			is_open = EXCLUDED.is_open,
			leverage = EXCLUDED.leverage,
			open_rate = EXCLUDED.open_rate,
			close_rate = EXCLUDED.close_rate,
			stake_amount = EXCLUDED.stake_amount,
			max_stake_amount = EXCLUDED.max_stake_amount,
			amount = EXCLUDED.amount,
			close_date_utc = EXCLUDED.close_date_utc,
			close_profit = EXCLUDED.close_profit,
			close_profit_abs = EXCLUDED.close_profit_abs,
			realized_profit = EXCLUDED.realized_profit,
			fee_open_cost = EXCLUDED.fee_open_cost,
			fee_close_cost = EXCLUDED.fee_close_cost,
			exit_reason = EXCLUDED.exit_reason`

	if _, err := tx.Exec(ctx, upsertTrade,
		trade.ID, trade.Pair, trade.IsOpen, trade.IsShort, trade.Leverage, trade.OpenRate,
		trade.CloseRate, trade.StakeAmount, trade.MaxStakeAmount, trade.Amount,
		trade.OpenDate.UTC(), trade.CloseDate, trade.CloseProfit, trade.CloseProfitAbs,
		trade.RealizedProfit, trade.FeeOpenCost, trade.FeeCloseCost, trade.EnterTag, trade.ExitReason,
	); err != nil {
		return fmt.Errorf("%w: postgres: upsert trade %d: %v", ports.ErrUpdateFailed, trade.ID, err)
	}

	const insertOrder = `
		INSERT INTO orders (id, trade_id, order_id, pair, side, price, amount, status, fill_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := tx.Exec(ctx, insertOrder,
		order.ID, order.TradeID, order.OrderID, order.Pair, string(order.Side),
		order.Price, order.Amount, string(order.Status), order.FillDate.UTC(),
	); err != nil {
		return fmt.Errorf("%w: postgres: insert order %d: %v", ports.ErrUpdateFailed, order.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: postgres: commit fill for trade %d: %v", ports.ErrUpdateFailed, trade.ID, err)
	}
	return nil
}

const tradeSelectCols = `id, pair, is_open, is_short, leverage, open_rate, close_rate, stake_amount,
	max_stake_amount, amount, open_date_utc, close_date_utc, close_profit, close_profit_abs,
	realized_profit, fee_open_cost, fee_close_cost, enter_tag, exit_reason`

const orderSelectCols = `id, trade_id, order_id, pair, side, price, amount, status, fill_timestamp`

// LoadTrades returns every stored trade with its orders, ordered by ID.
func (s *TradeStore) LoadTrades(ctx context.Context) ([]*domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tradeSelectCols+` FROM trades ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: list trades: %v", ports.ErrQueryFailed, err)
	}
	trades := make([]*domain.Trade, 0)
	byID := make(map[int64]*domain.Trade)
	for rows.Next() {
		t, err := scanTradeFromRow(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: postgres: scan trade: %v", ports.ErrQueryFailed, err)
		}
		trades = append(trades, t)
		byID[t.ID] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: postgres: iterate trades: %v", ports.ErrQueryFailed, err)
	}

	orows, err := s.pool.Query(ctx, `SELECT `+orderSelectCols+` FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: list orders: %v", ports.ErrQueryFailed, err)
	}
	defer orows.Close()

	for orows.Next() {
		o, err := scanOrderFromRow(orows)
		if err != nil {
			return nil, fmt.Errorf("%w: postgres: scan order: %v", ports.ErrQueryFailed, err)
		}
		t, ok := byID[o.TradeID]
		if !ok {
			return nil, fmt.Errorf("%w: order %d references missing trade %d", ports.ErrInconsistentState, o.ID, o.TradeID)
		}
		t.Orders = append(t.Orders, o)
	}
	if err := orows.Err(); err != nil {
		return nil, fmt.Errorf("%w: postgres: iterate orders: %v", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

func scanTradeFromRow(scanner interface{ Scan(dest ...any) error }) (*domain.Trade, error) {
	t := &domain.Trade{}
	err := scanner.Scan(
		&t.ID, &t.Pair, &t.IsOpen, &t.IsShort, &t.Leverage, &t.OpenRate, &t.CloseRate, &t.StakeAmount,
		&t.MaxStakeAmount, &t.Amount, &t.OpenDate, &t.CloseDate, &t.CloseProfit, &t.CloseProfitAbs,
		&t.RealizedProfit, &t.FeeOpenCost, &t.FeeCloseCost, &t.EnterTag, &t.ExitReason,
	)
	if err != nil {
		return nil, err
	}
	t.OpenDate = t.OpenDate.UTC()
	if t.CloseDate != nil {
		d := t.CloseDate.UTC()
		t.CloseDate = &d
	}
	return t, nil
}

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, status string
	if err := scanner.Scan(&o.ID, &o.TradeID, &o.OrderID, &o.Pair, &side, &o.Price, &o.Amount, &status, &o.FillDate); err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.FillDate = o.FillDate.UTC()
	return o, nil
}
