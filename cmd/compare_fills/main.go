// Command compare_fills replays every fills CSV in a directory into its own
// in-memory ledger and prints the resulting statistics side by side.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"tradeledger/config"
	"tradeledger/internal/adapters/logger"
	"tradeledger/internal/analytics"
	"tradeledger/internal/app"
	"tradeledger/internal/ledger"
	"tradeledger/internal/utils"
)

var (
	dir     = flag.String("dir", "data", "directory holding fills CSV files")
	prefix  = flag.String("prefix", "", "only files whose name starts with this prefix")
	balance = flag.Float64("balance", 1000, "starting balance for drawdown and return")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.New(cfg.LogLevel)
	ctx := context.Background()

	files, err := findFillFiles(*dir, *prefix)
	if err != nil {
		log.Fatalf("Error finding fill files: %v", err)
	}
	if len(files) == 0 {
		log.Println("No fill files found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "File\tTrades\tRejected\tWinRate\tAvgWin\tAvgLoss\tTotalPnL\tMaxDD\t")

	books := make(map[string]*ledger.Ledger, len(files))
	for _, file := range files {
		l, sum, err := replay(ctx, cfg, appLogger, file)
		if err != nil {
			log.Printf("Error replaying %s: %v", file, err)
			continue
		}
		books[file] = l

		m := analytics.AnalyzePerformance(l.GetTrades(ledger.TradeFilter{IsOpen: ledger.Bool(false)}), *balance)
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			filepath.Base(file),
			m.TotalTrades,
			sum.Failed,
			m.WinRate*100,
			m.AverageWin,
			m.AverageLoss,
			m.TotalProfit,
			m.MaxDrawdown*100,
		)
	}
	w.Flush()

	fmt.Println("\n## Exit Reason Breakdown")
	for _, file := range files {
		l, ok := books[file]
		if !ok {
			continue
		}
		fmt.Printf("\nFile: %s\n", filepath.Base(file))
		fmt.Println("Exit Reason\tCount\tTotal PnL\tAvg Profit %")
		for _, p := range l.GetExitReasonPerformance() {
			fmt.Printf("%s\t%d\t%.2f\t%.2f\n", p.Tag, p.Count, p.ProfitAbs, p.Profit*100)
		}
	}
}

// replay applies one file's fills to a fresh in-memory ledger.
func replay(ctx context.Context, cfg *config.Config, appLogger *logger.LogrusLogger, file string) (*ledger.Ledger, app.Summary, error) {
	events, err := utils.ReadFillsFromCSV(file)
	if err != nil {
		return nil, app.Summary{}, err
	}
	l, err := ledger.New(ledger.Config{Fees: cfg.Fees, AmountEpsilon: cfg.AmountEpsilon, Logger: appLogger})
	if err != nil {
		return nil, app.Summary{}, err
	}
	svc, err := app.NewFillService(app.Config{DefaultLeverage: cfg.DefaultLeverage}, l, appLogger)
	if err != nil {
		return nil, app.Summary{}, err
	}
	sum, err := svc.ProcessAll(ctx, events)
	return l, sum, err
}

// findFillFiles lists the CSV files in dir starting with prefix, sorted by name.
func findFillFiles(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) && strings.HasSuffix(entry.Name(), ".csv") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
