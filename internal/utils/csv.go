package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

// FillCSVHeader is the column layout written by WriteFills. ReadFills accepts
// the columns in any order; only timestamp, pair, side, price and amount are required.
var FillCSVHeader = []string{
	"timestamp", "pair", "side", "is_short", "price", "amount", "status",
	"order_id", "trade_id", "leverage", "enter_tag", "exit_reason",
}

var requiredFillColumns = []string{"timestamp", "pair", "side", "price", "amount"}

// ReadFillsFromCSV reads fill events from a CSV file.
func ReadFillsFromCSV(filename string) ([]ports.FillEvent, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFills(file)
}

// ReadFills parses fill events from CSV with a header row.
func ReadFills(r io.Reader) ([]ports.FillEvent, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty fills file", ports.ErrInvalidRequest)
		}
		return nil, fmt.Errorf("%w: read header: %v", ports.ErrInvalidRequest, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredFillColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ports.ErrInvalidRequest, c)
		}
	}

	events := make([]ports.FillEvent, 0)
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ports.ErrInvalidRequest, line, err)
		}
		ev, err := parseFillRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ports.ErrInvalidRequest, line, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseFillRecord(rec []string, cols map[string]int) (ports.FillEvent, error) {
	get := func(name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var ev ports.FillEvent
	var err error

	if ev.Timestamp, err = time.Parse(time.RFC3339, get("timestamp")); err != nil {
		return ev, fmt.Errorf("timestamp: %v", err)
	}
	ev.Timestamp = ev.Timestamp.UTC()
	ev.Pair = get("pair")
	ev.Side = domain.OrderSide(strings.ToLower(get("side")))
	if !ev.Side.Valid() {
		return ev, fmt.Errorf("unknown side %q", get("side"))
	}
	if ev.Price, err = strconv.ParseFloat(get("price"), 64); err != nil {
		return ev, fmt.Errorf("price: %v", err)
	}
	if ev.Amount, err = strconv.ParseFloat(get("amount"), 64); err != nil {
		return ev, fmt.Errorf("amount: %v", err)
	}
	if v := get("is_short"); v != "" {
		if ev.IsShort, err = strconv.ParseBool(v); err != nil {
			return ev, fmt.Errorf("is_short: %v", err)
		}
	}
	switch s := domain.OrderStatus(strings.ToLower(get("status"))); s {
	case "", domain.OrderStatusFilled:
		ev.Status = domain.OrderStatusFilled
	case domain.OrderStatusCanceled, "cancelled":
		ev.Status = domain.OrderStatusCanceled
	default:
		return ev, fmt.Errorf("unsupported status %q", s)
	}
	if v := get("trade_id"); v != "" {
		if ev.TradeID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return ev, fmt.Errorf("trade_id: %v", err)
		}
	}
	if v := get("leverage"); v != "" {
		if ev.Leverage, err = strconv.ParseFloat(v, 64); err != nil {
			return ev, fmt.Errorf("leverage: %v", err)
		}
	}
	ev.OrderID = get("order_id")
	ev.EnterTag = get("enter_tag")
	ev.ExitReason = get("exit_reason")
	return ev, nil
}

// WriteFillsToCSV writes fill events to a CSV file.
func WriteFillsToCSV(events []ports.FillEvent, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteFills(file, events); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteFills writes fill events as CSV with FillCSVHeader.
func WriteFills(w io.Writer, events []ports.FillEvent) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(FillCSVHeader); err != nil {
		return err
	}
	for _, ev := range events {
		status := ev.Status
		if status == "" {
			status = domain.OrderStatusFilled
		}
		tradeID := ""
		if ev.TradeID != 0 {
			tradeID = strconv.FormatInt(ev.TradeID, 10)
		}
		leverage := ""
		if ev.Leverage != 0 {
			leverage = strconv.FormatFloat(ev.Leverage, 'f', -1, 64)
		}
		if err := writer.Write([]string{
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			ev.Pair,
			string(ev.Side),
			strconv.FormatBool(ev.IsShort),
			strconv.FormatFloat(ev.Price, 'f', -1, 64),
			strconv.FormatFloat(ev.Amount, 'f', -1, 64),
			string(status),
			ev.OrderID,
			tradeID,
			leverage,
			ev.EnterTag,
			ev.ExitReason,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
