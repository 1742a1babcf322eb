package normalize

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/cost"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/domain/task"
	"gcp-billing-cost/ingest/paging"
)

// BigQuery streams the billing export table of o.BillingAccountID.
func (n *Normalizer) BigQuery(ctx context.Context, options plugin.Options, secret plugin.SecretData, o task.BigQueryOptions) iter.Seq2[cost.Batch, error] {
	return func(yield func(cost.Batch, error) bool) {
		r := newRun("source", config.SourceBigQuery, "dataset", o.BillingDataset,
			"billing_account_id", o.BillingAccountID, "project_id", o.ProjectID, "start", o.Start)

		r.enter(phaseSessionOpen)
		wh, err := n.opener.Warehouse(ctx, secret)
		if err != nil {
			yield(cost.Batch{}, r.fail(err))
			return
		}
		defer wh.Close()

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
		mode, err := n.costMode(options)
		if err != nil {
			yield(cost.Batch{}, r.fail(err))
			return
		}
		table := TableName(n.cfg.Defaults.TablePrefix, o.BillingAccountID)
		tables, err := wh.ListTables(ctx, o.BillingDataset)
		if err != nil {
			yield(cost.Batch{}, r.fail(err))
			return
		}
		if !lo.Contains(tables, table) {
			yield(cost.Batch{}, r.fail(plugin.NotFoundTable(table, o.BillingDataset)))
			return
		}
		q, err := CostQuery(secret.String("project_id"), o.BillingDataset, table, start, o.ProjectID)
		if err != nil {
			yield(cost.Batch{}, r.fail(err))
			return
		}

		r.enter(phaseStreaming)
		rows, err := wh.QueryCosts(ctx, q)
		if err != nil {
			yield(cost.Batch{}, r.fail(err))
			return
		}
		pager := paging.New[cost.Record](n.cfg.BigQuery.PageSize)
		var emitted, skipped int
		for {
			row, err := rows.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				yield(cost.Batch{}, r.fail(err))
				return
			}
			if lo.Contains(n.cfg.BigQuery.ExcludeProducts, row.Product) {
				skipped++
				continue
			}
			rec, err := MakeRecord(row, mode)
			if err != nil {
				slog.Error("cost.bigquery.row.error", "billed_at", row.BilledAt, "product", row.Product,
					"sku", row.SKUDescription, "project_id", lo.FromPtr(row.ProjectID), "error", err)
				yield(cost.Batch{}, r.fail(err))
				return
			}
			if page, full := pager.Add(rec); full {
				emitted += len(page)
				if !yield(cost.Batch{Results: page}, nil) {
					return
				}
			}
		}
		if page := pager.Flush(); len(page) > 0 {
			emitted += len(page)
			if !yield(cost.Batch{Results: page}, nil) {
				return
			}
		}

		r.enter(phaseDone)
		slog.Info("cost.bigquery.done", "table", table, "records", emitted, "excluded", skipped)
		yield(cost.EndOfStream(), nil)
	}
}

func (n *Normalizer) costMode(options plugin.Options) (string, error) {
	mode := options.String("cost_mode")
	if mode == "" {
		mode = n.cfg.BigQuery.CostMode
	}
	switch mode {
	case config.CostModeRaw, config.CostModeConverted:
		return mode, nil
	default:
		return "", plugin.InvalidParameterType("options.cost_mode", config.CostModeRaw+" | "+config.CostModeConverted)
	}
}

// MakeRecord maps one export row. In converted mode the cost is expressed in USD by applying
// 1/currency_conversion_rate; raw mode keeps the billing currency.
func MakeRecord(row cost.BillingRow, mode string) (cost.Record, error) {
	if row.Cost == nil {
		return cost.Record{}, plugin.InvalidCostRow(nil, "missing cost")
	}
	if row.UsageQuantity == nil {
		return cost.Record{}, plugin.InvalidCostRow(nil, "missing usage_quantity")
	}
	tags, err := ParseLabels(row.Labels)
	if err != nil {
		return cost.Record{}, err
	}

	projectID := lo.FromPtr(row.ProjectID)
	info := map[string]string{
		"Project ID":         projectID,
		"Project Name":       lo.FromPtr(row.ProjectName),
		"Billing Account ID": row.BillingAccountID,
		"Cost Type":          row.CostType,
		"Invoice Month":      row.InvoiceMonth,
	}

	amount, currency := *row.Cost, row.Currency
	if mode == config.CostModeConverted {
		rate := lo.FromPtr(row.CurrencyConversionRate)
		if rate == 0 {
			return cost.Record{}, plugin.InvalidCostRow(nil, "missing currency_conversion_rate")
		}
		info["Charged Cost"] = formatFloat(amount)
		amount = amount * (1 / rate)
		currency = "USD"
	}

	return cost.Record{
		Cost:           amount,
		Currency:       currency,
		Provider:       cost.Provider,
		RegionCode:     row.RegionCode,
		Product:        row.Product,
		UsageType:      row.SKUDescription,
		UsageUnit:      row.PricingUnit,
		UsageQuantity:  *row.UsageQuantity,
		BilledDate:     cost.NewDate(row.BilledAt.UTC()),
		Account:        projectID,
		AdditionalInfo: info,
		Tags:           tags,
	}, nil
}

// ParseLabels decodes the TO_JSON_STRING(labels) column into a flat tag map.
func ParseLabels(raw string) (map[string]string, error) {
	tags := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return tags, nil
	}
	var labels []cost.Label
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, plugin.InvalidCostRow(err, "cannot decode labels %q", raw)
	}
	for _, l := range labels {
		tags[l.Key] = l.Value
	}
	return tags, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
