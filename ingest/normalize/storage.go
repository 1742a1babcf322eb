package normalize

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	ccsv "gcp-billing-cost/connectors/csv"
	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/cost"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/domain/task"
	"gcp-billing-cost/ingest/exchange"
	"gcp-billing-cost/ingest/paging"
	"gcp-billing-cost/ingest/source"
)

// MonthPrefix is the folder holding one month of a sub billing account's export.
func MonthPrefix(organization, subAccount string, month time.Time) string {
	return fmt.Sprintf("%s/%s/%04d/%02d/", organization, subAccount, month.Year(), int(month.Month()))
}

// Storage streams the monthly CSV exports of one organization/sub billing account folder,
// converting subtotals to USD. Every month ends with an empty batch, including months without a file.
func (n *Normalizer) Storage(ctx context.Context, secret plugin.SecretData, o task.StorageOptions) iter.Seq2[cost.Batch, error] {
	return func(yield func(cost.Batch, error) bool) {
		r := newRun("source", config.SourceStorage, "bucket", o.Bucket,
			"organization", o.Organization, "sub_billing_account", o.SubBillingAccount, "start", o.Start)

		r.enter(phaseSessionOpen)
		s := maps.Clone(secret)
		if s == nil {
			s = plugin.SecretData{}
		}
		if o.Bucket != "" {
			s["bucket"] = o.Bucket
		}
		bucket, err := n.opener.Bucket(ctx, s)
		if err != nil {
			yield(cost.Batch{}, r.fail(err))
			return
		}
		defer bucket.Close()

		r.enter(phaseValidating)
		if err := o.Validate(); err != nil {
			yield(cost.Batch{}, r.fail(err))
			return
		}
		start, err := task.ParsePeriod(o.Start)
		if err != nil {
			yield(cost.Batch{}, r.fail(err))
			return
		}
		rates, err := exchange.Load(ctx, bucket, n.cfg.Storage.ExchangeRatePath, n.cfg.Storage.Currency)
		if err != nil {
			yield(cost.Batch{}, r.fail(err))
			return
		}

		r.enter(phaseStreaming)
		months := task.Months(start, n.now())
		found := 0
		for _, month := range months {
			prefix := MonthPrefix(o.Organization, o.SubBillingAccount, month)
			names, err := bucket.List(ctx, prefix)
			if err != nil {
				yield(cost.Batch{}, r.fail(err))
				return
			}
			files := lo.Filter(names, func(name string, _ int) bool {
				return strings.HasSuffix(name, ".csv")
			})

			switch {
			case len(files) == 0:
				slog.Info("cost.csv.month.skip", "prefix", prefix)
			case len(files) > 1:
				yield(cost.Batch{}, r.fail(plugin.TooManyCSVFiles(prefix)))
				return
			default:
				found++
				rate, err := rates.Lookup(month.Year(), int(month.Month()))
				if err != nil {
					slog.Error("cost.csv.exchange.error", "file", files[0], "year", month.Year(), "month", int(month.Month()), "error", err)
					yield(cost.Batch{}, r.fail(err))
					return
				}
				count := 0
				for page, err := range n.monthPages(ctx, bucket, files[0], month, o, rate) {
					if err != nil {
						yield(cost.Batch{}, r.fail(err))
						return
					}
					count += len(page)
					if !yield(cost.Batch{Results: page}, nil) {
						return
					}
				}
				slog.Info("cost.csv.month.done", "file", files[0], "records", count)
			}

			if !yield(cost.EndOfStream(), nil) {
				return
			}
		}

		if found == 0 {
			slog.Warn("cost.csv.no_export", "organization", o.Organization,
				"sub_billing_account", o.SubBillingAccount, "start", o.Start)
		}
		r.enter(phaseDone)
		if len(months) == 0 {
			yield(cost.EndOfStream(), nil)
		}
	}
}

// monthPages reads one month's export row by row and emits a page each time the pager fills.
// Only one page of records is held at a time; a bad row ends the month with an error.
func (n *Normalizer) monthPages(ctx context.Context, bucket source.Bucket, name string, month time.Time, o task.StorageOptions, rate decimal.Decimal) iter.Seq2[[]cost.Record, error] {
	return func(yield func([]cost.Record, error) bool) {
		rc, err := bucket.Open(ctx, name)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rc.Close()

		m := monthRows{
			cols:        n.cfg.Storage.Columns,
			subtotalKey: fmt.Sprintf("Subtotal (%s)", n.cfg.Storage.Currency),
			billed:      cost.NewDate(task.MonthEnd(month)),
			rate:        rate,
			opts:        o,
		}
		pager := paging.New[cost.Record](n.cfg.Storage.PageSize)
		line := 0
		for row, err := range ccsv.Records(rc) {
			if err != nil {
				yield(nil, fmt.Errorf("failed to read %s: %w", name, err))
				return
			}
			line++
			rec, err := m.record(row)
			if err != nil {
				slog.Error("cost.csv.row.error", "file", name, "row", line, "error", err)
				yield(nil, err)
				return
			}
			if page, full := pager.Add(rec); full {
				if !yield(page, nil) {
					return
				}
			}
		}
		if page := pager.Flush(); len(page) > 0 {
			yield(page, nil)
		}
	}
}

// monthRows maps the rows of one month's export.
type monthRows struct {
	cols        config.Columns
	subtotalKey string
	billed      cost.Date
	rate        decimal.Decimal
	opts        task.StorageOptions
}

func (m monthRows) record(row map[string]string) (cost.Record, error) {
	subtotal, err := parseAmount(row, m.cols.Subtotal)
	if err != nil {
		return cost.Record{}, err
	}
	usage, err := parseAmount(row, m.cols.UsageQuantity)
	if err != nil {
		return cost.Record{}, err
	}

	costUSD, _ := exchange.ToUSD(subtotal, m.rate).Float64()
	quantity, _ := usage.Float64()
	return cost.Record{
		Cost:          costUSD,
		Currency:      "USD",
		Provider:      cost.Provider,
		RegionCode:    row[m.cols.Region],
		Product:       row[m.cols.Product],
		UsageType:     row[m.cols.UsageType],
		UsageUnit:     row[m.cols.UsageUnit],
		UsageQuantity: quantity,
		BilledDate:    m.billed,
		Account:       row[m.cols.ProjectID],
		AdditionalInfo: map[string]string{
			"Organization":        m.opts.Organization,
			"Sub Billing Account": m.opts.SubBillingAccount,
			"Project Name":        row[m.cols.ProjectName],
			"Billing Account ID":  row[m.cols.BillingAccountID],
			m.subtotalKey:         subtotal.String(),
		},
		Tags: map[string]string{},
	}, nil
}

// parseAmount reads a numeric column, dropping thousands separators.
func parseAmount(row map[string]string, column string) (decimal.Decimal, error) {
	raw, ok := row[column]
	if !ok {
		return decimal.Decimal{}, plugin.InvalidCostRow(nil, "missing column %q", column)
	}
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return decimal.Decimal{}, plugin.InvalidCostRow(nil, "empty %q", column)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, plugin.InvalidCostRow(err, "invalid %q value %q", column, raw)
	}
	return d, nil
}
