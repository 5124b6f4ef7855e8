package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tradeledger/internal/adapters/binanceclient"
	"tradeledger/internal/analytics"
	"tradeledger/internal/app"
	"tradeledger/internal/domain"
	"tradeledger/internal/ledger"
	"tradeledger/internal/ports"
	"tradeledger/internal/utils"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Apply fills from a CSV file or Binance futures order dump",
		Long: `Read fills and apply them to the ledger in file order.

Formats:
  csv     - header row with timestamp, pair, side, price, amount and optional
            is_short, status, order_id, trade_id, leverage, enter_tag, exit_reason
  binance - JSON array of USDⓈ-M futures order responses

Rejected fills are reported and skipped; the rest are still applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "binance" {
				return fmt.Errorf("%w: unknown format %q", ports.ErrInvalidRequest, format)
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var events []ports.FillEvent
			skipped := 0
			switch format {
			case "csv":
				events, err = utils.ReadFillsFromCSV(args[0])
				if err != nil {
					return fmt.Errorf("read fills: %w", err)
				}
			case "binance":
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open orders: %w", err)
				}
				orders, err := binanceclient.DecodeOrders(f)
				f.Close()
				if err != nil {
					return err
				}
				tr := binanceclient.New(binanceclient.Config{Logger: s.logger, Leverage: s.cfg.DefaultLeverage})
				events, skipped = tr.TranslateAll(cmd.Context(), orders)
			default:
				return fmt.Errorf("%w: unknown format %q", ports.ErrInvalidRequest, format)
			}

			svc, err := app.NewFillService(app.Config{DefaultLeverage: s.cfg.DefaultLeverage}, s.ledger, s.logger)
			if err != nil {
				return err
			}
			sum, err := svc.ProcessAll(cmd.Context(), events)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, importResult{Summary: sum, Skipped: skipped}, func(tw *tableWriter) {
				tw.row("PROCESSED", "FAILED", "SKIPPED")
				tw.row(sum.Processed, sum.Failed, skipped)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "input format: csv or binance")
	return cmd
}

// exportFills flattens every trade's orders back into fill events that
// re-import into an empty ledger as the same trades.
func exportFills(trades []domain.Trade) []ports.FillEvent {
	var events []ports.FillEvent
	for i := range trades {
		t := &trades[i]
		lastExit := -1
		if !t.IsOpen {
			for j, o := range t.Orders {
				if o.Side == t.ExitSide() && o.IsFilled() {
					lastExit = j
				}
			}
		}
		tagged := false
		for j, o := range t.Orders {
			ev := ports.FillEvent{
				Pair:      t.Pair,
				IsShort:   t.IsShort,
				Leverage:  t.Leverage,
				OrderID:   o.OrderID,
				Side:      o.Side,
				Status:    o.Status,
				Price:     o.Price,
				Amount:    o.Amount,
				Timestamp: o.FillDate,
			}
			if !tagged && o.Side == t.EntrySide() && o.IsFilled() {
				ev.EnterTag = t.EnterTag
				tagged = true
			}
			if j == lastExit {
				ev.ExitReason = t.ExitReason
			}
			events = append(events, ev)
		}
	}
	return events
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write all recorded orders as a fills CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			events := exportFills(s.ledger.GetTrades(ledger.TradeFilter{}))
			if err := utils.WriteFillsToCSV(events, args[0]); err != nil {
				return err
			}
			s.logger.Info(cmd.Context(), "Fills exported", map[string]interface{}{"file": args[0], "fills": len(events)})
			return nil
		},
	}
}

type importResult struct {
	app.Summary `yaml:",inline"`
	Skipped     int `yaml:"skipped"`
}

func newTradesCmd(opts *rootOptions) *cobra.Command {
	var (
		pair        string
		status      string
		since       string
		closedSince string
	)
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List trades",
		Long: `List trades in creation order. Filters combine with AND.

Examples:
  tradeledger trades --status open
  tradeledger trades --pair ETH/USDT --closed-since 2024-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ledger.TradeFilter{Pair: pair}
			switch status {
			case "", "all":
			case "open":
				filter.IsOpen = ledger.Bool(true)
			case "closed":
				filter.IsOpen = ledger.Bool(false)
			default:
				return fmt.Errorf("%w: --status must be open, closed or all", ports.ErrInvalidRequest)
			}
			var err error
			if filter.OpenDate, err = parseDate(since); err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			if filter.CloseDate, err = parseDate(closedSince); err != nil {
				return fmt.Errorf("--closed-since: %w", err)
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			trades := s.ledger.GetTrades(filter)
			views := make([]tradeView, 0, len(trades))
			for i := range trades {
				views = append(views, newTradeView(&trades[i], false))
			}
			return render(cmd.OutOrStdout(), opts.output, views, func(tw *tableWriter) {
				tw.row("ID", "PAIR", "DIR", "STATUS", "AMOUNT", "OPEN RATE", "CLOSE RATE", "PROFIT %", "PROFIT", "OPENED", "CLOSED")
				for _, v := range views {
					tw.row(v.ID, v.Pair, v.Direction, v.status(), v.Amount, v.OpenRate, optFloat(v.CloseRate),
						optPercent(v.CloseProfit), optFloat(v.CloseProfitAbs), v.OpenDate.Format(time.DateTime), optTime(v.CloseDate))
				}
			})
		},
	}
	cmd.Flags().StringVar(&pair, "pair", "", "only trades for this pair")
	cmd.Flags().StringVar(&status, "status", "all", "open, closed or all")
	cmd.Flags().StringVar(&since, "since", "", "only trades opened at or after this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&closedSince, "closed-since", "", "only trades closed at or after this date")
	return cmd
}

func newTradeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trade <trade-id>",
		Short: "Show a trade with its orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: trade id %q", ports.ErrInvalidRequest, args[0])
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := s.ledger.Trade(id)
			if err != nil {
				return err
			}
			v := newTradeView(&t, true)
			return render(cmd.OutOrStdout(), opts.output, v, func(tw *tableWriter) {
				tw.row("Trade", v.ID)
				tw.row("Pair", v.Pair)
				tw.row("Direction", v.Direction)
				tw.row("Status", v.status())
				tw.row("Leverage", v.Leverage)
				tw.row("Open rate", v.OpenRate)
				tw.row("Close rate", optFloat(v.CloseRate))
				tw.row("Amount", v.Amount)
				tw.row("Stake", v.StakeAmount)
				tw.row("Max stake", v.MaxStakeAmount)
				tw.row("Realized", v.RealizedProfit)
				tw.row("Profit %", optPercent(v.CloseProfit))
				tw.row("Profit", optFloat(v.CloseProfitAbs))
				tw.row("Fees", v.FeeOpenCost+v.FeeCloseCost)
				tw.row("Enter tag", v.EnterTag)
				tw.row("Exit reason", v.ExitReason)
				tw.row("Opened", v.OpenDate.Format(time.DateTime))
				tw.row("Closed", optTime(v.CloseDate))
				tw.row()
				tw.row("ORDER", "SIDE", "STATUS", "PRICE", "AMOUNT", "FILLED", "EXCHANGE ID")
				for _, o := range v.Orders {
					tw.row(o.ID, o.Side, o.Status, o.Price, o.Amount, o.FillDate.Format(time.DateTime), o.OrderID)
				}
			})
		},
	}
}

type summaryView struct {
	OpenTrades        int     `yaml:"open_trades"`
	OpenStake         float64 `yaml:"open_stake"`
	ClosedTrades      int     `yaml:"closed_trades"`
	TotalClosedProfit float64 `yaml:"total_closed_profit"`
	BestPair          string  `yaml:"best_pair,omitempty"`
	BestPairProfit    float64 `yaml:"best_pair_profit,omitempty"`
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show open exposure and realised profit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			l := s.ledger
			v := summaryView{
				OpenTrades:        l.GetOpenTradeCount(),
				OpenStake:         l.TotalOpenTradesStakes(),
				ClosedTrades:      len(l.GetTrades(ledger.TradeFilter{IsOpen: ledger.Bool(false)})),
				TotalClosedProfit: l.GetTotalClosedProfit(),
			}
			if best, ok := l.GetBestPair(); ok {
				v.BestPair = best.Pair
				v.BestPairProfit = best.Profit
			}
			return render(cmd.OutOrStdout(), opts.output, v, func(tw *tableWriter) {
				tw.row("Open trades", v.OpenTrades)
				tw.row("Open stake", v.OpenStake)
				tw.row("Closed trades", v.ClosedTrades)
				tw.row("Closed profit", v.TotalClosedProfit)
				if v.BestPair != "" {
					tw.row("Best pair", fmt.Sprintf("%s (%s)", v.BestPair, optPercent(&v.BestPairProfit)))
				}
			})
		},
	}
}

func newPerformanceCmd(opts *rootOptions) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Closed-trade performance grouped by pair, enter tag or exit reason",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if by != "pair" && by != "enter_tag" && by != "exit_reason" {
				return fmt.Errorf("%w: --by must be pair, enter_tag or exit_reason", ports.ErrInvalidRequest)
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if by == "pair" {
				rows := s.ledger.GetOverallPerformance()
				return render(cmd.OutOrStdout(), opts.output, rows, func(tw *tableWriter) {
					tw.row("PAIR", "TRADES", "AVG PROFIT %", "PROFIT")
					for _, r := range rows {
						tw.row(r.Pair, r.Count, optPercent(&r.Profit), r.ProfitAbs)
					}
				})
			}

			rows := s.ledger.GetEnterTagPerformance()
			header := "ENTER TAG"
			if by == "exit_reason" {
				rows = s.ledger.GetExitReasonPerformance()
				header = "EXIT REASON"
			}
			return render(cmd.OutOrStdout(), opts.output, rows, func(tw *tableWriter) {
				tw.row(header, "TRADES", "AVG PROFIT %", "PROFIT")
				for _, r := range rows {
					tw.row(r.Tag, r.Count, optPercent(&r.Profit), r.ProfitAbs)
				}
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "pair", "grouping: pair, enter_tag or exit_reason")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var balance float64
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Win rate, drawdown and return statistics over closed trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if balance <= 0 {
				return fmt.Errorf("%w: --balance must be positive", ports.ErrInvalidRequest)
			}
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			m := analytics.AnalyzePerformance(s.ledger.GetTrades(ledger.TradeFilter{IsOpen: ledger.Bool(false)}), balance)
			return render(cmd.OutOrStdout(), opts.output, m, func(tw *tableWriter) {
				tw.row("Trades", m.TotalTrades)
				tw.row("Win rate", optPercent(&m.WinRate))
				tw.row("Total profit", m.TotalProfit)
				tw.row("Final balance", m.FinalBalance)
				tw.row("Return", optPercent(&m.ReturnOnInvestment))
				tw.row("Max drawdown", optPercent(&m.MaxDrawdown))
				tw.row("Profit factor", m.ProfitFactor)
				tw.row("Expectancy", m.Expectancy)
				tw.row("Sharpe (per trade)", m.SharpeRatio)
				tw.row("Avg duration", m.AverageTradeDuration.String())
				tw.row("Max consecutive wins", m.MaxConsecutiveWins)
				tw.row("Max consecutive losses", m.MaxConsecutiveLosses)
				for _, mr := range m.GetMonthlyReturns() {
					tw.row("Month "+mr.Month.Format("2006-01"), mr.Return)
				}
			})
		},
	}
	cmd.Flags().Float64Var(&balance, "balance", 1000, "starting balance in stake currency")
	return cmd
}

// parseDate accepts YYYY-MM-DD (UTC midnight) or RFC3339. Empty means no constraint.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ports.ErrInvalidRequest, s)
	}
	return t.UTC(), nil
}
