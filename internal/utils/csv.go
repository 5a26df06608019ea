package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"ichimokuBot/internal/domain"
)

var (
	klineHeader  = []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}
	signalHeader = []string{"timestamp", "open", "high", "low", "close", "volume",
		"tenkan_sen", "kijun_sen", "senkou_span_a", "senkou_span_b", "chikou_span", "buy_signal", "sell_signal"}
	tradeHeader = []string{"entry_time", "exit_time", "entry_price", "exit_price", "quantity",
		"profit", "profit_pct", "exit_reason", "fee_entry", "fee_exit"}
	equityHeader = []string{"timestamp", "equity"}
)

// Output file names used by the backtest runner.
func SignalsFileName(symbol, interval string) string {
	return fmt.Sprintf("%s_%s_ichimoku_signals.csv", symbol, interval)
}

func TradesFileName(symbol, interval string) string {
	return fmt.Sprintf("%s_%s_backtest_trades.csv", symbol, interval)
}

func EquityFileName(symbol, interval string) string {
	return fmt.Sprintf("%s_%s_backtest_equity.csv", symbol, interval)
}

func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	return writeCSV(filename, klineHeader, len(klines), func(i int) []string {
		k := klines[i]
		return []string{
			k.OpenTime.UTC().Format(time.RFC3339Nano),
			k.CloseTime.UTC().Format(time.RFC3339Nano),
			k.Symbol,
			k.Interval,
			formatFloat(k.Open),
			formatFloat(k.High),
			formatFloat(k.Low),
			formatFloat(k.Close),
			formatFloat(k.Volume),
		}
	})
}

// ReadKlinesFromCSV reads a file written by WriteKlinesToCSV. Klines are
// returned in file order.
func ReadKlinesFromCSV(filename string) ([]*domain.Kline, error) {
	var out []*domain.Kline
	err := readCSV(filename, klineHeader, func(r record) error {
		k := &domain.Kline{
			Symbol:   r.str("symbol"),
			Interval: r.str("interval"),
			IsFinal:  true,
		}
		k.OpenTime = r.time("open_time")
		k.CloseTime = r.time("close_time")
		k.Open = r.float("open")
		k.High = r.float("high")
		k.Low = r.float("low")
		k.Close = r.float("close")
		k.Volume = r.float("volume")
		if r.err != nil {
			return r.err
		}
		out = append(out, k)
		return nil
	})
	return out, err
}

// WriteSignalRowsToCSV writes the indicator table. Undefined indicator values
// are written as empty cells.
func WriteSignalRowsToCSV(rows []domain.SignalRow, filename string) error {
	return writeCSV(filename, signalHeader, len(rows), func(i int) []string {
		r := rows[i]
		return []string{
			r.OpenTime.UTC().Format(time.RFC3339),
			formatFloat(r.Open),
			formatFloat(r.High),
			formatFloat(r.Low),
			formatFloat(r.Close),
			formatFloat(r.Volume),
			r.TenkanSen.String(),
			r.KijunSen.String(),
			r.SenkouSpanA.String(),
			r.SenkouSpanB.String(),
			r.ChikouSpan.String(),
			strconv.FormatBool(r.BuySignal),
			strconv.FormatBool(r.SellSignal),
		}
	})
}

func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	return writeCSV(filename, tradeHeader, len(trades), func(i int) []string {
		t := trades[i]
		return []string{
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.Quantity),
			formatFloat(t.Profit),
			formatFloat(t.ProfitPct),
			string(t.ExitReason),
			formatFloat(t.FeeEntry),
			formatFloat(t.FeeExit),
		}
	})
}

// ReadTradesFromCSV reads a trade ledger written by WriteTradesToCSV.
func ReadTradesFromCSV(filename string) ([]*domain.Trade, error) {
	var out []*domain.Trade
	err := readCSV(filename, tradeHeader, func(r record) error {
		t := &domain.Trade{ExitReason: domain.ExitReason(r.str("exit_reason"))}
		t.EntryTime = r.time("entry_time")
		t.ExitTime = r.time("exit_time")
		t.EntryPrice = r.float("entry_price")
		t.ExitPrice = r.float("exit_price")
		t.Quantity = r.float("quantity")
		t.Profit = r.float("profit")
		t.ProfitPct = r.float("profit_pct")
		t.FeeEntry = r.float("fee_entry")
		t.FeeExit = r.float("fee_exit")
		if r.err != nil {
			return r.err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func WriteEquityCurveToCSV(points []domain.EquityPoint, filename string) error {
	return writeCSV(filename, equityHeader, len(points), func(i int) []string {
		return []string{points[i].Timestamp.UTC().Format(time.RFC3339), formatFloat(points[i].Equity)}
	})
}

func writeCSV(filename string, header []string, n int, row func(i int) []string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := writer.Write(row(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func readCSV(filename string, required []string, fn func(record) error) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("%s: reading header: %w", filename, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return fmt.Errorf("%s: missing column %q", filename, name)
		}
	}

	for line := 2; ; line++ {
		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s:%d: %w", filename, line, err)
		}
		if err := fn(record{index: index, fields: fields}); err != nil {
			return fmt.Errorf("%s:%d: %w", filename, line, err)
		}
	}
}

// record reads named columns and keeps the first parse error.
type record struct {
	index  map[string]int
	fields []string
	err    error
}

func (r *record) str(name string) string {
	return r.fields[r.index[name]]
}

func (r *record) float(name string) float64 {
	v, err := strconv.ParseFloat(r.str(name), 64)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}

func (r *record) time(name string) time.Time {
	v, err := time.Parse(time.RFC3339Nano, r.str(name))
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v.UTC()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
