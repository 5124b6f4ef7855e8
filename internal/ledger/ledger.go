// Package ledger holds trades and their orders in memory, applies fills
// atomically and answers read-only queries over the resulting state.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

// DefaultAmountEpsilon is the remaining amount below which a trade counts as fully exited.
const DefaultAmountEpsilon = 1e-8

// Config holds configuration for a Ledger.
type Config struct {
	Fees          domain.FeeModel
	AmountEpsilon float64               // Zero selects DefaultAmountEpsilon
	Repository    ports.TradeRepository // Optional; nil keeps state in memory only
	Logger        ports.Logger          // Optional; defaults to a no-op logger
	Clock         func() time.Time      // Optional; used for fills without a timestamp
}

// Ledger is the single owner of trade state. All mutations go through the
// Record* methods; queries return deep copies.
type Ledger struct {
	mu          sync.RWMutex
	trades      map[int64]*domain.Trade
	ids         []int64 // trade IDs in creation order
	lastTradeID int64
	lastOrderID int64

	fees   domain.FeeModel
	eps    float64
	repo   ports.TradeRepository
	logger ports.Logger
	now    func() time.Time
}

// EntryIntent identifies the trade an entry fill belongs to.
// A non-zero TradeID targets that trade and Pair and IsShort are only
// cross-checked. Otherwise the open trade for Pair and IsShort is extended,
// or a new trade is opened with Leverage and EnterTag. Leverage and EnterTag
// only apply to new trades; an extended trade keeps its own.
type EntryIntent struct {
	TradeID  int64
	Pair     string
	IsShort  bool
	Leverage float64
	EnterTag string
}

// New creates a new, empty Ledger.
func New(cfg Config) (*Ledger, error) {
	if err := cfg.Fees.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrConfigurationError, err)
	}
	eps := cfg.AmountEpsilon
	if eps < 0 {
		return nil, fmt.Errorf("%w: amount epsilon cannot be negative", ports.ErrConfigurationError)
	}
	if eps == 0 {
		eps = DefaultAmountEpsilon
	}
	logger := cfg.Logger
	if logger == nil {
		logger = ports.NopLogger{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		trades: make(map[int64]*domain.Trade),
		fees:   cfg.Fees,
		eps:    eps,
		repo:   cfg.Repository,
		logger: logger,
		now:    clock,
	}, nil
}

// Load replaces the in-memory state with the trades stored in the repository.
func (l *Ledger) Load(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}
	stored, err := l.repo.LoadTrades(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trades: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades = make(map[int64]*domain.Trade, len(stored))
	l.ids = l.ids[:0]
	l.lastTradeID, l.lastOrderID = 0, 0
	for _, t := range stored {
		l.trades[t.ID] = t
		l.ids = append(l.ids, t.ID)
		if t.ID > l.lastTradeID {
			l.lastTradeID = t.ID
		}
		for i := range t.Orders {
			if t.Orders[i].ID > l.lastOrderID {
				l.lastOrderID = t.Orders[i].ID
			}
		}
	}
	l.logger.Info(ctx, "Ledger loaded from repository", map[string]interface{}{"trades": len(stored)})
	return nil
}

// RecordEntryFill appends a filled entry order, re-weights the open rate and
// grows the position. A new trade is created when the intent matches none.
func (l *Ledger) RecordEntryFill(ctx context.Context, intent EntryIntent, order domain.Order) (domain.Trade, error) {
	if err := validateFill(order); err != nil {
		return domain.Trade{}, err
	}
	leverage := intent.Leverage
	if leverage == 0 {
		leverage = 1
	}
	if leverage < 1 {
		return domain.Trade{}, fmt.Errorf("%w: leverage %v is below 1", ports.ErrInvalidOrder, intent.Leverage)
	}
	if intent.TradeID == 0 && intent.Pair == "" {
		return domain.Trade{}, fmt.Errorf("%w: pair is required to open a trade", ports.ErrInvalidOrder)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var next domain.Trade
	isNew := false
	if intent.TradeID != 0 {
		cur, ok := l.trades[intent.TradeID]
		if !ok {
			return domain.Trade{}, fmt.Errorf("trade %d: %w", intent.TradeID, ports.ErrNotFound)
		}
		if !cur.IsOpen {
			return domain.Trade{}, fmt.Errorf("%w: trade %d is closed", ports.ErrInconsistentState, cur.ID)
		}
		if intent.Pair != "" && intent.Pair != cur.Pair {
			return domain.Trade{}, fmt.Errorf("%w: trade %d is for %s, not %s", ports.ErrInconsistentState, cur.ID, cur.Pair, intent.Pair)
		}
		if intent.IsShort != cur.IsShort {
			return domain.Trade{}, fmt.Errorf("%w: trade %d is %s", ports.ErrInconsistentState, cur.ID, cur.TradeDirection())
		}
		next = cur.Clone()
	} else if cur := l.findOpen(intent.Pair, intent.IsShort); cur != nil {
		next = cur.Clone()
	} else {
		isNew = true
		next = domain.Trade{
			ID:       l.lastTradeID + 1,
			Pair:     intent.Pair,
			IsOpen:   true,
			IsShort:  intent.IsShort,
			Leverage: leverage,
			EnterTag: intent.EnterTag,
		}
	}

	if order.Side == "" {
		order.Side = next.EntrySide()
	}
	if order.Side != next.EntrySide() {
		return domain.Trade{}, fmt.Errorf("%w: %s order cannot enter a %s trade", ports.ErrInvalidOrder, order.Side, next.TradeDirection())
	}
	l.prepareOrder(&next, &order, domain.OrderStatusFilled)

	total := next.Amount + order.Amount
	next.OpenRate = (next.OpenRate*next.Amount + order.Price*order.Amount) / total
	next.Amount = total
	next.FeeOpenCost += l.fees.Fee(order.Price, order.Amount)
	next.StakeAmount = domain.StakeFor(next.OpenRate, next.Amount, next.Leverage)
	if next.StakeAmount > next.MaxStakeAmount {
		next.MaxStakeAmount = next.StakeAmount
	}
	if next.OpenDate.IsZero() {
		next.OpenDate = order.FillDate
	}
	next.Orders = append(next.Orders, order)

	if err := l.commit(ctx, &next, isNew); err != nil {
		return domain.Trade{}, err
	}
	l.logger.Debug(ctx, "Entry fill recorded", map[string]interface{}{
		"tradeID": next.ID, "pair": next.Pair, "price": order.Price, "amount": order.Amount, "openRate": next.OpenRate,
	})
	return next.Clone(), nil
}

// RecordExitFill appends a filled exit order and reduces the position. When the
// remaining amount falls within the configured epsilon the trade is closed and
// its close fields are computed.
func (l *Ledger) RecordExitFill(ctx context.Context, tradeID int64, order domain.Order, exitReason string) (domain.Trade, error) {
	if err := validateFill(order); err != nil {
		return domain.Trade{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.trades[tradeID]
	if !ok {
		return domain.Trade{}, fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
	}
	if !cur.IsOpen {
		return domain.Trade{}, fmt.Errorf("%w: trade %d is closed", ports.ErrInconsistentState, tradeID)
	}
	if order.Side == "" {
		order.Side = cur.ExitSide()
	}
	if order.Side != cur.ExitSide() {
		return domain.Trade{}, fmt.Errorf("%w: %s order cannot exit a %s trade", ports.ErrInvalidOrder, order.Side, cur.TradeDirection())
	}
	if order.Amount > cur.Amount+l.eps {
		return domain.Trade{}, fmt.Errorf("%w: exit amount %v exceeds remaining %v on trade %d",
			ports.ErrInconsistentState, order.Amount, cur.Amount, tradeID)
	}

	next := cur.Clone()
	l.prepareOrder(&next, &order, domain.OrderStatusFilled)

	closed := order.Amount
	if closed > next.Amount {
		closed = next.Amount
	}
	fee := l.fees.Fee(order.Price, order.Amount)
	next.FeeCloseCost += fee
	next.RealizedProfit += domain.LegProfit(next.OpenRate, order.Price, closed, next.IsShort) - fee
	next.Orders = append(next.Orders, order)

	remaining := next.Amount - order.Amount
	if remaining <= l.eps {
		next.Amount = 0
		next.StakeAmount = 0
		closeTrade(&next, order.FillDate, exitReason)
	} else {
		next.Amount = remaining
		next.StakeAmount = domain.StakeFor(next.OpenRate, next.Amount, next.Leverage)
	}

	if err := l.commit(ctx, &next, false); err != nil {
		return domain.Trade{}, err
	}
	if next.IsOpen {
		l.logger.Debug(ctx, "Partial exit recorded", map[string]interface{}{
			"tradeID": next.ID, "pair": next.Pair, "remaining": next.Amount,
		})
	} else {
		l.logger.Info(ctx, "Trade closed", map[string]interface{}{
			"tradeID": next.ID, "pair": next.Pair, "closeRate": *next.CloseRate,
			"profit": *next.CloseProfit, "profitAbs": *next.CloseProfitAbs, "exitReason": next.ExitReason,
		})
	}
	return next.Clone(), nil
}

// RecordCanceledOrder appends a canceled order to an open trade's history.
// It has no effect on the trade's economics.
func (l *Ledger) RecordCanceledOrder(ctx context.Context, tradeID int64, order domain.Order) (domain.Trade, error) {
	if order.Price < 0 || order.Amount < 0 {
		return domain.Trade{}, fmt.Errorf("%w: negative price or amount", ports.ErrInvalidOrder)
	}
	if order.Side != "" && !order.Side.Valid() {
		return domain.Trade{}, fmt.Errorf("%w: unknown side %q", ports.ErrInvalidOrder, order.Side)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.trades[tradeID]
	if !ok {
		return domain.Trade{}, fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
	}
	if !cur.IsOpen {
		return domain.Trade{}, fmt.Errorf("%w: trade %d is closed", ports.ErrInconsistentState, tradeID)
	}
	next := cur.Clone()
	if order.Side == "" {
		order.Side = next.EntrySide()
	}
	l.prepareOrder(&next, &order, domain.OrderStatusCanceled)
	next.Orders = append(next.Orders, order)

	if err := l.commit(ctx, &next, false); err != nil {
		return domain.Trade{}, err
	}
	return next.Clone(), nil
}

// Trade returns a snapshot of a single trade.
func (l *Ledger) Trade(id int64) (domain.Trade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.trades[id]
	if !ok {
		return domain.Trade{}, fmt.Errorf("trade %d: %w", id, ports.ErrNotFound)
	}
	return t.Clone(), nil
}

// findOpen returns the open trade for pair and direction. Caller holds the lock.
func (l *Ledger) findOpen(pair string, isShort bool) *domain.Trade {
	for _, id := range l.ids {
		t := l.trades[id]
		if t.IsOpen && t.Pair == pair && t.IsShort == isShort {
			return t
		}
	}
	return nil
}

// prepareOrder fills in the ledger-owned order fields. Caller holds the lock.
func (l *Ledger) prepareOrder(t *domain.Trade, o *domain.Order, status domain.OrderStatus) {
	o.ID = l.lastOrderID + 1
	o.TradeID = t.ID
	o.Pair = t.Pair
	o.Status = status
	if o.OrderID == "" {
		o.OrderID = uuid.NewString()
	}
	if o.FillDate.IsZero() {
		o.FillDate = l.now()
	}
	o.FillDate = o.FillDate.UTC()
}

// commit persists next and swaps it into the ledger. Nothing changes on error.
// Caller holds the write lock.
func (l *Ledger) commit(ctx context.Context, next *domain.Trade, isNew bool) error {
	if l.repo != nil {
		last := &next.Orders[len(next.Orders)-1]
		if err := l.repo.SaveFill(ctx, next, last); err != nil {
			l.logger.Error(ctx, err, "Failed to persist fill", map[string]interface{}{"tradeID": next.ID})
			return fmt.Errorf("failed to persist fill for trade %d: %w", next.ID, err)
		}
	}
	l.trades[next.ID] = next
	if isNew {
		l.ids = append(l.ids, next.ID)
		l.lastTradeID = next.ID
	}
	l.lastOrderID = next.Orders[len(next.Orders)-1].ID
	return nil
}

func validateFill(o domain.Order) error {
	if o.Price <= 0 || o.Amount <= 0 {
		return fmt.Errorf("%w: got price %v, amount %v", ports.ErrInvalidOrder, o.Price, o.Amount)
	}
	if o.Side != "" && !o.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ports.ErrInvalidOrder, o.Side)
	}
	return nil
}

// closeTrade sets the close fields from the trade's order history.
func closeTrade(t *domain.Trade, at time.Time, exitReason string) {
	entry, exit := t.EntrySide(), t.ExitSide()
	var entryCost, exitCost, exitAmount float64
	for i := range t.Orders {
		o := &t.Orders[i]
		if !o.IsFilled() {
			continue
		}
		switch o.Side {
		case entry:
			entryCost += o.Cost()
		case exit:
			exitCost += o.Cost()
			exitAmount += o.Amount
		}
	}

	closeRate := 0.0
	if exitAmount > 0 {
		closeRate = exitCost / exitAmount
	}
	profitAbs := t.RealizedProfit - t.FeeOpenCost
	leverage := t.Leverage
	if leverage < 1 {
		leverage = 1
	}
	profit := 0.0
	if t.FeeOpenCost == 0 && t.FeeCloseCost == 0 {
		profit = domain.ProfitRatio(t.OpenRate, closeRate, leverage, t.IsShort)
	} else if invested := entryCost / leverage; invested > 0 {
		profit = profitAbs / invested
	}
	closeDate := at

	t.IsOpen = false
	t.RealizedProfit = profitAbs
	t.CloseRate = &closeRate
	t.CloseDate = &closeDate
	t.CloseProfit = &profit
	t.CloseProfitAbs = &profitAbs
	t.ExitReason = exitReason
}
