package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/config"
	"tradeledger/internal/adapters/logger"
)

func TestFindFillFilesAndReplay(t *testing.T) {
	dir := t.TempDir()
	fills := "timestamp,pair,side,price,amount\n" +
		"2024-03-01T10:00:00Z,ETH/USDT,buy,100,1\n" +
		"2024-03-01T11:00:00Z,ETH/USDT,sell,90,1\n" +
		"2024-03-01T12:00:00Z,BTC/USDT,sell,1,1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_b.csv"), []byte(fills), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_a.csv"), []byte(fills), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "run_dir.csv"), 0o755))

	files, err := findFillFiles(dir, "run_")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "run_a.csv", filepath.Base(files[0]))

	cfg := &config.Config{AmountEpsilon: 1e-8, DefaultLeverage: 1}
	l, sum, err := replay(context.Background(), cfg, logger.NewWithWriter(logger.LevelError, os.Stderr), files[0])
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 1, sum.Failed)
	assert.InDelta(t, -10, l.GetTotalClosedProfit(), 1e-9)
}
