package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (or creates) the database and makes sure the schema exists.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for SQLite repository", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/ledger.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// One connection: the ledger already serialises writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite trade store ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY,
		pair TEXT NOT NULL,
		is_open INTEGER NOT NULL,
		is_short INTEGER NOT NULL,
		leverage REAL NOT NULL,
		open_rate REAL NOT NULL,
		close_rate REAL DEFAULT NULL,
		stake_amount REAL NOT NULL,
		max_stake_amount REAL NOT NULL,
		amount REAL NOT NULL,
		open_date_utc TIMESTAMP NOT NULL,
		close_date_utc TIMESTAMP DEFAULT NULL,
		close_profit REAL DEFAULT NULL,
		close_profit_abs REAL DEFAULT NULL,
		realized_profit REAL NOT NULL DEFAULT 0,
		fee_open_cost REAL NOT NULL DEFAULT 0,
		fee_close_cost REAL NOT NULL DEFAULT 0,
		enter_tag TEXT NOT NULL DEFAULT '',
		exit_reason TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY,
		trade_id INTEGER NOT NULL REFERENCES trades(id),
		order_id TEXT NOT NULL,
		pair TEXT NOT NULL,
		side TEXT NOT NULL,
		price REAL NOT NULL,
		amount REAL NOT NULL,
		status TEXT NOT NULL,
		fill_timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_pair_is_open ON trades (pair, is_open);
	CREATE INDEX IF NOT EXISTS idx_orders_trade_id ON orders (trade_id);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// SaveFill upserts the trade row and inserts the order in a single transaction.
func (r *Repository) SaveFill(ctx context.Context, trade *domain.Trade, order *domain.Order) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ports.ErrUpdateFailed, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const upsertTrade = `
	INSERT INTO trades (id, pair, is_open, is_short, leverage, open_rate, close_rate, stake_amount,
	                    max_stake_amount, amount, open_date_utc, close_date_utc, close_profit,
	                    close_profit_abs, realized_profit, fee_open_cost, fee_close_cost, enter_tag, exit_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		is_open = excluded.is_open,
		leverage = excluded.leverage,
		open_rate = excluded.open_rate,
		close_rate = excluded.close_rate,
		stake_amount = excluded.stake_amount,
		max_stake_amount = excluded.max_stake_amount,
		amount = excluded.amount,
		close_date_utc = excluded.close_date_utc,
		close_profit = excluded.close_profit,
		close_profit_abs = excluded.close_profit_abs,
		realized_profit = excluded.realized_profit,
		fee_open_cost = excluded.fee_open_cost,
		fee_close_cost = excluded.fee_close_cost,
		exit_reason = excluded.exit_reason`

	if _, err = tx.ExecContext(ctx, upsertTrade,
		trade.ID, trade.Pair, trade.IsOpen, trade.IsShort, trade.Leverage, trade.OpenRate,
		nullFloat(trade.CloseRate), trade.StakeAmount, trade.MaxStakeAmount, trade.Amount,
		trade.OpenDate.UTC(), nullTime(trade.CloseDate), nullFloat(trade.CloseProfit),
		nullFloat(trade.CloseProfitAbs), trade.RealizedProfit, trade.FeeOpenCost, trade.FeeCloseCost,
		trade.EnterTag, trade.ExitReason); err != nil {
		return fmt.Errorf("%w: upsert trade %d: %v", ports.ErrUpdateFailed, trade.ID, err)
	}

	const insertOrder = `
	INSERT INTO orders (id, trade_id, order_id, pair, side, price, amount, status, fill_timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err = tx.ExecContext(ctx, insertOrder,
		order.ID, order.TradeID, order.OrderID, order.Pair, string(order.Side),
		order.Price, order.Amount, string(order.Status), order.FillDate.UTC()); err != nil {
		return fmt.Errorf("%w: insert order %d for trade %d: %v", ports.ErrUpdateFailed, order.ID, trade.ID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit fill for trade %d: %v", ports.ErrUpdateFailed, trade.ID, err)
	}
	r.logger.Debug(ctx, "Fill persisted", map[string]interface{}{"tradeID": trade.ID, "orderID": order.ID})
	return nil
}

// LoadTrades returns every stored trade with its orders, ordered by ID.
func (r *Repository) LoadTrades(ctx context.Context) ([]*domain.Trade, error) {
	const tradesQuery = `
	SELECT id, pair, is_open, is_short, leverage, open_rate, close_rate, stake_amount,
	       max_stake_amount, amount, open_date_utc, close_date_utc, close_profit, close_profit_abs,
	       realized_profit, fee_open_cost, fee_close_cost, enter_tag, exit_reason
	FROM trades
	ORDER BY id`

	rows, err := r.db.QueryContext(ctx, tradesQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: query trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	byID := make(map[int64]*domain.Trade)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan trade: %v", ports.ErrQueryFailed, err)
		}
		trades = append(trades, t)
		byID[t.ID] = t
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating trade rows: %v", ports.ErrQueryFailed, err)
	}

	const ordersQuery = `
	SELECT id, trade_id, order_id, pair, side, price, amount, status, fill_timestamp
	FROM orders
	ORDER BY id`

	orows, err := r.db.QueryContext(ctx, ordersQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: query orders: %v", ports.ErrQueryFailed, err)
	}
	defer orows.Close()

	for orows.Next() {
		o, err := scanOrder(orows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan order: %v", ports.ErrQueryFailed, err)
		}
		t, ok := byID[o.TradeID]
		if !ok {
			return nil, fmt.Errorf("%w: order %d references missing trade %d", ports.ErrInconsistentState, o.ID, o.TradeID)
		}
		t.Orders = append(t.Orders, o)
	}
	if err = orows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating order rows: %v", ports.ErrQueryFailed, err)
	}

	r.logger.Debug(ctx, "Trades loaded", map[string]interface{}{"count": len(trades)})
	return trades, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var (
		closeRate, closeProfit, closeProfitAbs sql.NullFloat64
		closeDate                              sql.NullTime
	)
	err := s.Scan(
		&t.ID, &t.Pair, &t.IsOpen, &t.IsShort, &t.Leverage, &t.OpenRate, &closeRate, &t.StakeAmount,
		&t.MaxStakeAmount, &t.Amount, &t.OpenDate, &closeDate, &closeProfit, &closeProfitAbs,
		&t.RealizedProfit, &t.FeeOpenCost, &t.FeeCloseCost, &t.EnterTag, &t.ExitReason)
	if err != nil {
		return nil, err
	}
	t.OpenDate = t.OpenDate.UTC()
	t.CloseRate = floatPtr(closeRate)
	t.CloseProfit = floatPtr(closeProfit)
	t.CloseProfitAbs = floatPtr(closeProfitAbs)
	if closeDate.Valid {
		d := closeDate.Time.UTC()
		t.CloseDate = &d
	}
	return t, nil
}

func scanOrder(s scanner) (domain.Order, error) {
	var o domain.Order
	var side, status string
	err := s.Scan(&o.ID, &o.TradeID, &o.OrderID, &o.Pair, &side, &o.Price, &o.Amount, &status, &o.FillDate)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.FillDate = o.FillDate.UTC()
	return o, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
