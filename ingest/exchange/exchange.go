// Package exchange resolves monthly currency conversion rates for the storage export.
package exchange

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	ccsv "gcp-billing-cost/connectors/csv"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/ingest/source"
)

// Rate is the number of currency units per US dollar for one month.
type Rate struct {
	Year  int
	Month int
	Value decimal.Decimal
}

// Table is an ordered list of monthly rates. Lookups require an exact (year, month) match.
type Table struct {
	Currency string
	Rates    []Rate
}

// Parse reads a CSV with headers year, month and the currency code (e.g. KRW).
func Parse(r io.Reader, currency string) (*Table, error) {
	rows, err := ccsv.ReadRecords(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exchange rate table: %w", err)
	}
	t := &Table{Currency: currency, Rates: make([]Rate, 0, len(rows))}
	for i, row := range rows {
		year, err := strconv.Atoi(strings.TrimSpace(row["year"]))
		if err != nil {
			return nil, fmt.Errorf("exchange rate row %d: invalid year %q", i+1, row["year"])
		}
		month, err := strconv.Atoi(strings.TrimSpace(row["month"]))
		if err != nil || month < 1 || month > 12 {
			return nil, fmt.Errorf("exchange rate row %d: invalid month %q", i+1, row["month"])
		}
		value, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(row[currency]), ",", ""))
		if err != nil {
			return nil, fmt.Errorf("exchange rate row %d: invalid %s rate %q", i+1, currency, row[currency])
		}
		if !value.IsPositive() {
			return nil, fmt.Errorf("exchange rate row %d: %s rate must be positive, got %s", i+1, currency, value)
		}
		t.Rates = append(t.Rates, Rate{Year: year, Month: month, Value: value})
	}
	return t, nil
}

// Load reads the rate table from the bucket. It is called once per task and never cached.
func Load(ctx context.Context, bucket source.Bucket, path, currency string) (*Table, error) {
	rc, err := bucket.Open(ctx, path)
	if err != nil {
		slog.Error("exchange.load.error", "path", path, "error", err)
		return nil, plugin.ExchangeRateDataNotFound(path, err)
	}
	defer rc.Close()

	t, err := Parse(rc, currency)
	if err != nil {
		slog.Error("exchange.parse.error", "path", path, "error", err)
		return nil, plugin.ExchangeRateDataNotFound(path, err)
	}
	slog.Info("exchange.load.done", "path", path, "currency", currency, "rates", len(t.Rates))
	return t, nil
}

// Lookup returns the first rate recorded for year/month. There is no fallback to nearby months.
func (t *Table) Lookup(year, month int) (decimal.Decimal, error) {
	for _, r := range t.Rates {
		if r.Year == year && r.Month == month {
			return r.Value, nil
		}
	}
	return decimal.Decimal{}, plugin.NotFoundExchangeRate(year, month)
}

// ToUSD divides amount by a rate obtained from Lookup.
func ToUSD(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Div(rate)
}
