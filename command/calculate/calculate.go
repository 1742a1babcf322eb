package calculate

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lo "github.com/samber/lo"
	"github.com/shopspring/decimal"

	ccsv "gcp-billing-cost/connectors/csv"
	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/cost"
)

// Output file names, relative to the data directory.
const (
	InputFile    = "costs.csv"
	MonthlyFile  = "cost_monthly.csv"
	ProductsFile = "cost_products.csv"
)

// costRow is the subset of a collected record the summaries need.
type costRow struct {
	Account  string
	Product  string
	Month    string
	Cost     decimal.Decimal
	Currency string
}

// Run summarizes <data>/costs.csv into monthly and per-product totals.
//
// Usage:
//
//	gcp-billing-cost calculate [-data ./data]
func Run(_ config.Config, args []string) error {
	fs := flag.NewFlagSet("calculate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	dataDir := fs.String("data", "data", "directory holding costs.csv and receiving the summaries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("calculate: unexpected arguments %v", fs.Args())
	}

	monthly, products, err := Summarize(*dataDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "calculate.done months=%d products=%d\n", len(monthly), len(products))
	return nil
}

// Summarize reads the collected records under dir and writes both summary files next to them.
func Summarize(dir string) ([]cost.MonthlyCost, []cost.ProductCost, error) {
	rows, err := readCosts(filepath.Join(dir, InputFile))
	if err != nil {
		return nil, nil, err
	}
	monthly := byMonth(rows)
	products := byProduct(rows)
	if err := writeMonthly(filepath.Join(dir, MonthlyFile), monthly); err != nil {
		return nil, nil, err
	}
	if err := writeProducts(filepath.Join(dir, ProductsFile), products); err != nil {
		return nil, nil, err
	}
	return monthly, products, nil
}

func readCosts(path string) ([]costRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ccsv.ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	rows := make([]costRow, 0, len(records))
	for i, r := range records {
		for _, col := range []string{"account", "product", "cost", "currency", "billed_date"} {
			if _, ok := r[col]; !ok {
				return nil, fmt.Errorf("%s missing column %s", filepath.Base(path), col)
			}
		}
		c, err := decimal.NewFromString(strings.TrimSpace(r["cost"]))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: invalid cost %q", filepath.Base(path), i+1, r["cost"])
		}
		day := strings.TrimSpace(r["billed_date"])
		if len(day) < len("2006-01") {
			return nil, fmt.Errorf("%s row %d: invalid billed_date %q", filepath.Base(path), i+1, day)
		}
		rows = append(rows, costRow{
			Account:  r["account"],
			Product:  r["product"],
			Month:    day[:len("2006-01")],
			Cost:     c,
			Currency: r["currency"],
		})
	}
	return rows, nil
}

// byMonth totals rows per (account, month, currency), ordered by month then account.
func byMonth(rows []costRow) []cost.MonthlyCost {
	groups := lo.GroupBy(rows, func(r costRow) string {
		return r.Month + "|" + r.Account + "|" + r.Currency
	})
	out := make([]cost.MonthlyCost, 0, len(groups))
	for _, g := range groups {
		out = append(out, cost.MonthlyCost{
			Account:  g[0].Account,
			Month:    g[0].Month,
			Cost:     sum(g),
			Currency: g[0].Currency,
			Records:  len(g),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		if out[i].Account != out[j].Account {
			return out[i].Account < out[j].Account
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}

// byProduct totals rows per (product, month, currency), ordered by month then descending cost.
func byProduct(rows []costRow) []cost.ProductCost {
	groups := lo.GroupBy(rows, func(r costRow) string {
		return r.Month + "|" + r.Product + "|" + r.Currency
	})
	out := make([]cost.ProductCost, 0, len(groups))
	for _, g := range groups {
		out = append(out, cost.ProductCost{
			Product:  g[0].Product,
			Month:    g[0].Month,
			Cost:     sum(g),
			Currency: g[0].Currency,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		if c := out[i].Cost.Cmp(out[j].Cost); c != 0 {
			return c > 0
		}
		return out[i].Product < out[j].Product
	})
	return out
}

func sum(rows []costRow) decimal.Decimal {
	return lo.Reduce(rows, func(acc decimal.Decimal, r costRow, _ int) decimal.Decimal {
		return acc.Add(r.Cost)
	}, decimal.Zero)
}

func writeMonthly(path string, rows []cost.MonthlyCost) error {
	return writeCSV(path, []string{"month", "account", "cost", "currency", "records"}, lo.Map(rows, func(r cost.MonthlyCost, _ int) []string {
		return []string{r.Month, r.Account, r.Cost.String(), r.Currency, fmt.Sprintf("%d", r.Records)}
	}))
}

func writeProducts(path string, rows []cost.ProductCost) error {
	return writeCSV(path, []string{"month", "product", "cost", "currency"}, lo.Map(rows, func(r cost.ProductCost, _ int) []string {
		return []string{r.Month, r.Product, r.Cost.String(), r.Currency}
	}))
}

func writeCSV(path string, headers []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}
