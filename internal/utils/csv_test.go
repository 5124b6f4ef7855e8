package utils

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

func TestReadFills(t *testing.T) {
	input := `timestamp,pair,side,price,amount,is_short,status,enter_tag,exit_reason,leverage,trade_id
2024-03-01T12:00:00Z,ETH/USDT,buy,100,2,false,,breakout,,3,
2024-03-01T13:00:00+01:00,ETH/USDT,SELL,110,2,,filled,,roi,,1
2024-03-02T00:00:00Z,BTC/USDT,buy,50000,0.1,true,cancelled,,,,
`
	events, err := ReadFills(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), events[0].Timestamp)
	assert.Equal(t, domain.Buy, events[0].Side)
	assert.Equal(t, domain.OrderStatusFilled, events[0].Status)
	assert.Equal(t, "breakout", events[0].EnterTag)
	assert.Equal(t, 3.0, events[0].Leverage)

	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), events[1].Timestamp)
	assert.Equal(t, domain.Sell, events[1].Side)
	assert.Equal(t, int64(1), events[1].TradeID)
	assert.Equal(t, "roi", events[1].ExitReason)

	assert.True(t, events[2].IsShort)
	assert.Equal(t, domain.OrderStatusCanceled, events[2].Status)
	assert.Equal(t, 0.1, events[2].Amount)
}

func TestReadFills_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "missing column", input: "timestamp,pair,side,price\n"},
		{name: "bad timestamp", input: "timestamp,pair,side,price,amount\nyesterday,ETH/USDT,buy,1,1\n"},
		{name: "bad side", input: "timestamp,pair,side,price,amount\n2024-03-01T12:00:00Z,ETH/USDT,hold,1,1\n"},
		{name: "bad price", input: "timestamp,pair,side,price,amount\n2024-03-01T12:00:00Z,ETH/USDT,buy,x,1\n"},
		{name: "bad status", input: "timestamp,pair,side,price,amount,status\n2024-03-01T12:00:00Z,ETH/USDT,buy,1,1,open\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFills(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
		})
	}
}

func TestWriteAndReadFillsFile(t *testing.T) {
	events := []ports.FillEvent{
		{Pair: "ETH/USDT", Side: domain.Buy, Price: 100.25, Amount: 1.5, Leverage: 2, EnterTag: "dip",
			OrderID: "a1", Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{TradeID: 1, Pair: "ETH/USDT", Side: domain.Sell, Status: domain.OrderStatusFilled, Price: 101, Amount: 1.5,
			ExitReason: "roi", OrderID: "a2", Timestamp: time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)},
	}
	path := filepath.Join(t.TempDir(), "fills.csv")
	require.NoError(t, WriteFillsToCSV(events, path))

	got, err := ReadFillsFromCSV(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	events[0].Status = domain.OrderStatusFilled
	assert.Equal(t, events, got)
}

func TestWriteAndReadFills_SubSecondTimestamps(t *testing.T) {
	events := []ports.FillEvent{
		{Pair: "ETH/USDT", Side: domain.Buy, Status: domain.OrderStatusFilled, Price: 100, Amount: 1,
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 750_000_000, time.UTC)},
		{Pair: "ETH/USDT", Side: domain.Sell, Status: domain.OrderStatusFilled, Price: 101, Amount: 1,
			Timestamp: time.Date(2024, 1, 1, 0, 0, 1, 123_456_789, time.UTC)},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteFills(&buf, events))

	got, err := ReadFills(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events[0].Timestamp, got[0].Timestamp)
	assert.Equal(t, events[1].Timestamp, got[1].Timestamp)
}

func TestWriteFillsToCSV_BadPath(t *testing.T) {
	err := WriteFillsToCSV(nil, filepath.Join(t.TempDir(), "missing", "fills.csv"))
	assert.Error(t, err)
}

func TestWriteFills_Header(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFills(&buf, nil))
	assert.Equal(t, strings.Join(FillCSVHeader, ",")+"\n", buf.String())
}
