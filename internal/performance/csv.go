package performance

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"tradesim/internal/domain"
)

// WriteTradesCSV writes the trade log with a header row.
func WriteTradesCSV(out io.Writer, trades []domain.Trade) error {
	w := csv.NewWriter(out)

	header := []string{
		"seq",
		"timestamp",
		"symbol",
		"side",
		"quantity",
		"price",
		"commission",
		"gross_pnl",
		"pnl",
		"reason",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, t := range trades {
		row := []string{
			strconv.Itoa(t.Seq),
			fmtTime(t.Timestamp),
			t.Symbol,
			string(t.Side),
			strconv.FormatInt(t.Qty, 10),
			fmtFloat(t.Price),
			fmtFloat(t.Commission),
			fmtFloat(t.GrossPnL),
			fmtFloat(t.PnL),
			string(t.Reason),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// WriteEquityCSV writes the equity curve with a header row.
func WriteEquityCSV(out io.Writer, curve []domain.EquityPoint) error {
	w := csv.NewWriter(out)

	header := []string{"date", "equity", "cash", "positions_value", "open_positions"}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, pt := range curve {
		row := []string{
			pt.Date.Format("2006-01-02"),
			fmtFloat(pt.Equity),
			fmtFloat(pt.Cash),
			fmtFloat(pt.PositionsValue),
			strconv.Itoa(pt.OpenPositions),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
