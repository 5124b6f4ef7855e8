package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/ledger"
	"tradeledger/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo, dbPath
}

func f64(v float64) *float64 { return &v }

func TestNewRepository(t *testing.T) {
	t.Run("requires logger", func(t *testing.T) {
		_, err := NewRepository(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
		assert.True(t, errors.Is(err, ports.ErrConfigurationError))
	})

	t.Run("creates nested data directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "dir", "ledger.db")
		repo, err := NewRepository(Config{DBPath: dbPath, Logger: &mockLogger{}})
		require.NoError(t, err)
		defer repo.Close()

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})
}

func TestRepository_SaveFillAndLoad(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	trade := &domain.Trade{
		ID: 1, Pair: "ETH/USDT", IsOpen: true, Leverage: 2, OpenRate: 100,
		StakeAmount: 100, MaxStakeAmount: 100, Amount: 2, OpenDate: t0, EnterTag: "breakout",
		FeeOpenCost: 0.2,
	}
	entry := domain.Order{
		ID: 1, TradeID: 1, OrderID: "abc", Pair: "ETH/USDT", Side: domain.Buy,
		Status: domain.OrderStatusFilled, Price: 100, Amount: 2, FillDate: t0,
	}
	trade.Orders = []domain.Order{entry}
	require.NoError(t, repo.SaveFill(ctx, trade, &entry))

	// Close the trade with a second order; the trade row is updated in place.
	closedAt := t0.Add(time.Hour)
	exit := domain.Order{
		ID: 2, TradeID: 1, OrderID: "def", Pair: "ETH/USDT", Side: domain.Sell,
		Status: domain.OrderStatusFilled, Price: 110, Amount: 2, FillDate: closedAt,
	}
	trade.Orders = append(trade.Orders, exit)
	trade.IsOpen = false
	trade.Amount = 0
	trade.StakeAmount = 0
	trade.CloseRate = f64(110)
	trade.CloseDate = &closedAt
	trade.CloseProfit = f64(0.198)
	trade.CloseProfitAbs = f64(19.8)
	trade.RealizedProfit = 19.8
	trade.ExitReason = domain.ExitReasonROI
	require.NoError(t, repo.SaveFill(ctx, trade, &exit))

	loaded, err := repo.LoadTrades(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "ETH/USDT", got.Pair)
	assert.False(t, got.IsOpen)
	assert.False(t, got.IsShort)
	assert.Equal(t, 2.0, got.Leverage)
	assert.Equal(t, 100.0, got.MaxStakeAmount)
	assert.Equal(t, 0.0, got.Amount)
	assert.WithinDuration(t, t0, got.OpenDate, 0)
	require.NotNil(t, got.CloseDate)
	assert.WithinDuration(t, closedAt, *got.CloseDate, 0)
	require.NotNil(t, got.CloseRate)
	assert.Equal(t, 110.0, *got.CloseRate)
	require.NotNil(t, got.CloseProfitAbs)
	assert.InDelta(t, 19.8, *got.CloseProfitAbs, 1e-9)
	assert.Equal(t, "breakout", got.EnterTag)
	assert.Equal(t, domain.ExitReasonROI, got.ExitReason)

	require.Len(t, got.Orders, 2)
	assert.Equal(t, "abc", got.Orders[0].OrderID)
	assert.Equal(t, domain.Buy, got.Orders[0].Side)
	assert.Equal(t, domain.OrderStatusFilled, got.Orders[0].Status)
	assert.Equal(t, domain.Sell, got.Orders[1].Side)
	assert.WithinDuration(t, closedAt, got.Orders[1].FillDate, 0)
}

func TestRepository_LoadTrades_Empty(t *testing.T) {
	repo, _ := setupTestDB(t)

	trades, err := repo.LoadTrades(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, trades)
	assert.Empty(t, trades)
}

func TestRepository_SaveFillIsAtomic(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	trade := &domain.Trade{ID: 1, Pair: "BTC/USDT", IsOpen: true, Leverage: 1, OpenRate: 100, Amount: 1, OpenDate: t0}
	order := domain.Order{ID: 1, TradeID: 1, OrderID: "x", Pair: "BTC/USDT", Side: domain.Buy,
		Status: domain.OrderStatusFilled, Price: 100, Amount: 1, FillDate: t0}
	require.NoError(t, repo.SaveFill(ctx, trade, &order))

	// Reusing the order ID fails the insert; the trade update must roll back.
	changed := *trade
	changed.Amount = 5
	err := repo.SaveFill(ctx, &changed, &order)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrUpdateFailed))

	loaded, err := repo.LoadTrades(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 1.0, loaded[0].Amount)
	assert.Len(t, loaded[0].Orders, 1)
}

func TestRepository_CanceledContext(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trade := &domain.Trade{ID: 1, Pair: "BTC/USDT", IsOpen: true, Leverage: 1, OpenRate: 100, Amount: 1, OpenDate: t0}
	order := domain.Order{ID: 1, TradeID: 1, Side: domain.Buy, Price: 100, Amount: 1, FillDate: t0}
	assert.Error(t, repo.SaveFill(ctx, trade, &order))
}

// A ledger backed by the repository can be rebuilt from disk after a restart.
func TestRepository_LedgerRestart(t *testing.T) {
	repo, dbPath := setupTestDB(t)
	ctx := context.Background()

	l, err := ledger.New(ledger.Config{
		Repository: repo,
		Fees:       domain.FeeModel{Kind: domain.FeePercentage, Rate: 0.001},
	})
	require.NoError(t, err)

	eth, err := l.RecordEntryFill(ctx, ledger.EntryIntent{Pair: "ETH/USDT", EnterTag: "dip"},
		domain.Order{Price: 100, Amount: 2, FillDate: t0})
	require.NoError(t, err)
	_, err = l.RecordEntryFill(ctx, ledger.EntryIntent{Pair: "ETH/USDT"},
		domain.Order{Price: 110, Amount: 2, FillDate: t0.Add(time.Minute)})
	require.NoError(t, err)
	_, err = l.RecordExitFill(ctx, eth.ID, domain.Order{Price: 120, Amount: 4, FillDate: t0.Add(time.Hour)}, domain.ExitReasonROI)
	require.NoError(t, err)

	btc, err := l.RecordEntryFill(ctx, ledger.EntryIntent{Pair: "BTC/USDT", IsShort: true, Leverage: 3},
		domain.Order{Price: 50000, Amount: 0.1, FillDate: t0})
	require.NoError(t, err)
	_, err = l.RecordCanceledOrder(ctx, btc.ID, domain.Order{Side: domain.Buy, Price: 49000, Amount: 0.1, FillDate: t0})
	require.NoError(t, err)

	before := l.GetTrades(ledger.TradeFilter{})
	require.NoError(t, repo.Close())

	reopened, err := NewRepository(Config{DBPath: dbPath, Logger: &mockLogger{}})
	require.NoError(t, err)
	defer reopened.Close()

	restored, err := ledger.New(ledger.Config{Repository: reopened})
	require.NoError(t, err)
	require.NoError(t, restored.Load(ctx))

	after := restored.GetTrades(ledger.TradeFilter{})
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].IsOpen, after[i].IsOpen)
		assert.InDelta(t, before[i].OpenRate, after[i].OpenRate, 1e-9)
		assert.InDelta(t, before[i].Amount, after[i].Amount, 1e-12)
		assert.Len(t, after[i].Orders, len(before[i].Orders))
	}
	assert.InDelta(t, l.GetTotalClosedProfit(), restored.GetTotalClosedProfit(), 1e-9)
	assert.Equal(t, 1, restored.GetOpenTradeCount())

	// New fills keep the sequences going after the restored maximum.
	next, err := restored.RecordEntryFill(ctx, ledger.EntryIntent{Pair: "SOL/USDT"},
		domain.Order{Price: 20, Amount: 1, FillDate: t0})
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.ID)
	assert.Equal(t, int64(6), next.Orders[0].ID)
}
