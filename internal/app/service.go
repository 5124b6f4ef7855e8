package app

import (
	"context"
	"errors"
	"fmt"

	"tradeledger/internal/domain"
	"tradeledger/internal/ledger"
	"tradeledger/internal/ports"
)

// TradeBook is the subset of the ledger the fill service drives.
type TradeBook interface {
	RecordEntryFill(ctx context.Context, intent ledger.EntryIntent, order domain.Order) (domain.Trade, error)
	RecordExitFill(ctx context.Context, tradeID int64, order domain.Order, exitReason string) (domain.Trade, error)
	RecordCanceledOrder(ctx context.Context, tradeID int64, order domain.Order) (domain.Trade, error)
	GetTrades(f ledger.TradeFilter) []domain.Trade
}

// Summary counts the outcome of a batch or stream of fills.
type Summary struct {
	Processed int `yaml:"processed"`
	Failed    int `yaml:"failed"`
}

// FillService routes confirmed fills from the execution side into the ledger.
type FillService struct {
	book            TradeBook
	logger          ports.Logger
	defaultLeverage float64
}

// Config holds configuration for the FillService.
type Config struct {
	DefaultLeverage float64 // Used for fills that open a trade without a leverage; zero means 1
}

// NewFillService creates a new fill service.
func NewFillService(cfg Config, book TradeBook, logger ports.Logger) (*FillService, error) {
	if book == nil || logger == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for FillService", ports.ErrConfigurationError)
	}
	lev := cfg.DefaultLeverage
	if lev == 0 {
		lev = 1
	}
	if lev < 1 {
		return nil, fmt.Errorf("%w: default leverage %v is below 1", ports.ErrConfigurationError, cfg.DefaultLeverage)
	}
	return &FillService{book: book, logger: logger, defaultLeverage: lev}, nil
}

// Apply routes a single fill event and returns the resulting trade snapshot.
//
// Filled orders on the entry side of the event's direction grow (or open) a
// trade; on the exit side they reduce the trade given by TradeID, or the open
// trade for Pair and direction. Canceled orders are attached to that same trade.
func (s *FillService) Apply(ctx context.Context, ev ports.FillEvent) (domain.Trade, error) {
	if !ev.Side.Valid() {
		return domain.Trade{}, fmt.Errorf("%w: unknown side %q", ports.ErrInvalidOrder, ev.Side)
	}
	entrySide := domain.Buy
	if ev.IsShort {
		entrySide = domain.Sell
	}
	order := ev.Order()

	switch order.Status {
	case domain.OrderStatusCanceled:
		tradeID, err := s.resolveTrade(ev)
		if err != nil {
			return domain.Trade{}, err
		}
		return s.book.RecordCanceledOrder(ctx, tradeID, order)

	case domain.OrderStatusFilled:
		if ev.Side == entrySide {
			lev := ev.Leverage
			if lev == 0 {
				lev = s.defaultLeverage
			}
			return s.book.RecordEntryFill(ctx, ledger.EntryIntent{
				TradeID:  ev.TradeID,
				Pair:     ev.Pair,
				IsShort:  ev.IsShort,
				Leverage: lev,
				EnterTag: ev.EnterTag,
			}, order)
		}
		tradeID, err := s.resolveTrade(ev)
		if err != nil {
			return domain.Trade{}, err
		}
		return s.book.RecordExitFill(ctx, tradeID, order, ev.ExitReason)

	default:
		return domain.Trade{}, fmt.Errorf("%w: unsupported order status %q", ports.ErrInvalidOrder, order.Status)
	}
}

// resolveTrade picks the trade an exit or cancel belongs to.
func (s *FillService) resolveTrade(ev ports.FillEvent) (int64, error) {
	if ev.TradeID != 0 {
		return ev.TradeID, nil
	}
	for _, t := range s.book.GetTrades(ledger.TradeFilter{Pair: ev.Pair, IsOpen: ledger.Bool(true)}) {
		if t.IsShort == ev.IsShort {
			return t.ID, nil
		}
	}
	dir := domain.DirectionLong
	if ev.IsShort {
		dir = domain.DirectionShort
	}
	return 0, fmt.Errorf("no open %s trade for %s: %w", dir, ev.Pair, ports.ErrNotFound)
}

// ProcessAll applies events in order. Rejected fills are logged and counted;
// processing only stops early when ctx is done.
func (s *FillService) ProcessAll(ctx context.Context, events []ports.FillEvent) (Summary, error) {
	var sum Summary
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		s.process(ctx, ev, &sum)
	}
	s.logger.Info(ctx, "Fill batch processed", map[string]interface{}{"processed": sum.Processed, "failed": sum.Failed})
	return sum, nil
}

// Run consumes events until the channel is closed or ctx is done.
func (s *FillService) Run(ctx context.Context, events <-chan ports.FillEvent) (Summary, error) {
	var sum Summary
	s.logger.Info(ctx, "Fill service started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Fill service stopping", map[string]interface{}{"processed": sum.Processed, "failed": sum.Failed})
			return sum, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.logger.Info(ctx, "Fill stream closed", map[string]interface{}{"processed": sum.Processed, "failed": sum.Failed})
				return sum, nil
			}
			s.process(ctx, ev, &sum)
		}
	}
}

func (s *FillService) process(ctx context.Context, ev ports.FillEvent, sum *Summary) {
	t, err := s.Apply(ctx, ev)
	if err != nil {
		sum.Failed++
		fields := map[string]interface{}{
			"pair": ev.Pair, "side": ev.Side, "orderID": ev.OrderID, "price": ev.Price, "amount": ev.Amount,
		}
		if errors.Is(err, ports.ErrInvalidOrder) || errors.Is(err, ports.ErrInconsistentState) || errors.Is(err, ports.ErrNotFound) {
			s.logger.Warn(ctx, "Fill rejected: "+err.Error(), fields)
		} else {
			s.logger.Error(ctx, err, "Failed to apply fill", fields)
		}
		return
	}
	sum.Processed++
	s.logger.Debug(ctx, "Fill applied", map[string]interface{}{"tradeID": t.ID, "isOpen": t.IsOpen})
}
