package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"tradeledger/internal/domain"
)

// render writes v as YAML, or calls table to lay it out as aligned columns.
func render(w io.Writer, format string, v interface{}, table func(tw *tableWriter)) error {
	if format == outputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	tw := &tableWriter{w: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
	table(tw)
	return tw.w.Flush()
}

type tableWriter struct {
	w *tabwriter.Writer
}

func (t *tableWriter) row(cells ...interface{}) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = formatCell(c)
	}
	fmt.Fprintln(t.w, strings.Join(parts, "\t"))
}

func formatCell(c interface{}) string {
	switch v := c.(type) {
	case float64:
		return formatFloat(v)
	case string:
		if v == "" {
			return "-"
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat rounds to 8 decimals, enough for any exchange lot size.
func formatFloat(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e8)/1e8, 'f', -1, 64)
}

func optFloat(p *float64) string {
	if p == nil {
		return "-"
	}
	return formatFloat(*p)
}

func optPercent(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p*100, 'f', 2, 64) + "%"
}

func optTime(p *time.Time) string {
	if p == nil {
		return "-"
	}
	return p.Format(time.DateTime)
}

type orderView struct {
	ID       int64     `yaml:"id"`
	OrderID  string    `yaml:"order_id,omitempty"`
	Side     string    `yaml:"side"`
	Status   string    `yaml:"status"`
	Price    float64   `yaml:"price"`
	Amount   float64   `yaml:"amount"`
	FillDate time.Time `yaml:"fill_date"`
}

type tradeView struct {
	ID             int64       `yaml:"id"`
	Pair           string      `yaml:"pair"`
	IsOpen         bool        `yaml:"is_open"`
	Direction      string      `yaml:"direction"`
	Leverage       float64     `yaml:"leverage"`
	OpenRate       float64     `yaml:"open_rate"`
	CloseRate      *float64    `yaml:"close_rate,omitempty"`
	Amount         float64     `yaml:"amount"`
	StakeAmount    float64     `yaml:"stake_amount"`
	MaxStakeAmount float64     `yaml:"max_stake_amount"`
	OpenDate       time.Time   `yaml:"open_date"`
	CloseDate      *time.Time  `yaml:"close_date,omitempty"`
	CloseProfit    *float64    `yaml:"close_profit,omitempty"`
	CloseProfitAbs *float64    `yaml:"close_profit_abs,omitempty"`
	RealizedProfit float64     `yaml:"realized_profit"`
	FeeOpenCost    float64     `yaml:"fee_open_cost"`
	FeeCloseCost   float64     `yaml:"fee_close_cost"`
	EnterTag       string      `yaml:"enter_tag,omitempty"`
	ExitReason     string      `yaml:"exit_reason,omitempty"`
	Orders         []orderView `yaml:"orders,omitempty"`
}

func newTradeView(t *domain.Trade, withOrders bool) tradeView {
	v := tradeView{
		ID:             t.ID,
		Pair:           t.Pair,
		IsOpen:         t.IsOpen,
		Direction:      string(t.TradeDirection()),
		Leverage:       t.Leverage,
		OpenRate:       t.OpenRate,
		CloseRate:      t.CloseRate,
		Amount:         t.Amount,
		StakeAmount:    t.StakeAmount,
		MaxStakeAmount: t.MaxStakeAmount,
		OpenDate:       t.OpenDate,
		CloseDate:      t.CloseDate,
		CloseProfit:    t.CloseProfit,
		CloseProfitAbs: t.CloseProfitAbs,
		RealizedProfit: t.RealizedProfit,
		FeeOpenCost:    t.FeeOpenCost,
		FeeCloseCost:   t.FeeCloseCost,
		EnterTag:       t.EnterTag,
		ExitReason:     t.ExitReason,
	}
	if withOrders {
		v.Orders = make([]orderView, 0, len(t.Orders))
		for _, o := range t.Orders {
			v.Orders = append(v.Orders, orderView{
				ID:       o.ID,
				OrderID:  o.OrderID,
				Side:     string(o.Side),
				Status:   string(o.Status),
				Price:    o.Price,
				Amount:   o.Amount,
				FillDate: o.FillDate,
			})
		}
	}
	return v
}

func (v tradeView) status() string {
	if v.IsOpen {
		return "open"
	}
	return "closed"
}
