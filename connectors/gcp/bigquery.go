package gcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"gcp-billing-cost/domain/cost"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/ingest/source"
)

// Warehouse runs billing export queries as the secret's service account, billed to its project.
type Warehouse struct {
	client *bigquery.Client
}

var _ source.Warehouse = (*Warehouse)(nil)

func NewWarehouse(ctx context.Context, secret plugin.SecretData) (*Warehouse, error) {
	opt, err := clientOption(ctx, secret, bigquery.Scope)
	if err != nil {
		return nil, err
	}
	client, err := bigquery.NewClient(ctx, secret.String("project_id"), opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	return &Warehouse{client: client}, nil
}

// ListTables returns the table ids of dataset in the client project.
func (w *Warehouse) ListTables(ctx context.Context, dataset string) ([]string, error) {
	var names []string
	it := w.client.Dataset(dataset).Tables(ctx)
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list tables of %s: %w", dataset, err)
		}
		names = append(names, t.TableID)
	}
	return names, nil
}

// costRow mirrors the columns selected by the cost query.
type costRow struct {
	BilledAt               time.Time            `bigquery:"billed_at"`
	BillingAccountID       bigquery.NullString  `bigquery:"billing_account_id"`
	Product                bigquery.NullString  `bigquery:"product"`
	SKUDescription         bigquery.NullString  `bigquery:"sku_description"`
	ProjectID              bigquery.NullString  `bigquery:"project_id"`
	ProjectName            bigquery.NullString  `bigquery:"project_name"`
	RegionCode             bigquery.NullString  `bigquery:"region_code"`
	Currency               bigquery.NullString  `bigquery:"currency"`
	CurrencyConversionRate bigquery.NullFloat64 `bigquery:"currency_conversion_rate"`
	PricingUnit            bigquery.NullString  `bigquery:"pricing_unit"`
	InvoiceMonth           bigquery.NullString  `bigquery:"invoice_month"`
	CostType               bigquery.NullString  `bigquery:"cost_type"`
	Labels                 bigquery.NullString  `bigquery:"labels"`
	Cost                   bigquery.NullFloat64 `bigquery:"cost"`
	UsageQuantity          bigquery.NullFloat64 `bigquery:"usage_quantity"`
}

func (r costRow) toBilling() cost.BillingRow {
	return cost.BillingRow{
		BilledAt:               r.BilledAt,
		BillingAccountID:       r.BillingAccountID.StringVal,
		Product:                r.Product.StringVal,
		SKUDescription:         r.SKUDescription.StringVal,
		ProjectID:              nullString(r.ProjectID),
		ProjectName:            nullString(r.ProjectName),
		RegionCode:             r.RegionCode.StringVal,
		Currency:               r.Currency.StringVal,
		CurrencyConversionRate: nullFloat(r.CurrencyConversionRate),
		PricingUnit:            r.PricingUnit.StringVal,
		InvoiceMonth:           r.InvoiceMonth.StringVal,
		CostType:               r.CostType.StringVal,
		Labels:                 r.Labels.StringVal,
		Cost:                   nullFloat(r.Cost),
		UsageQuantity:          nullFloat(r.UsageQuantity),
	}
}

type projectRow struct {
	ProjectID   bigquery.NullString `bigquery:"project_id"`
	ProjectName bigquery.NullString `bigquery:"project_name"`
}

func (r projectRow) toProject() cost.ProjectRow {
	return cost.ProjectRow{ProjectID: nullString(r.ProjectID), ProjectName: nullString(r.ProjectName)}
}

func nullString(v bigquery.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.StringVal
}

func nullFloat(v bigquery.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func (w *Warehouse) QueryCosts(ctx context.Context, q source.Query) (source.Rows[cost.BillingRow], error) {
	it, err := w.read(ctx, q)
	if err != nil {
		return nil, err
	}
	return &rows[costRow, cost.BillingRow]{it: it, convert: costRow.toBilling}, nil
}

func (w *Warehouse) QueryProjects(ctx context.Context, q source.Query) (source.Rows[cost.ProjectRow], error) {
	it, err := w.read(ctx, q)
	if err != nil {
		return nil, err
	}
	return &rows[projectRow, cost.ProjectRow]{it: it, convert: projectRow.toProject}, nil
}

func (w *Warehouse) read(ctx context.Context, q source.Query) (*bigquery.RowIterator, error) {
	query := w.client.Query(q.SQL)
	for _, p := range q.Params {
		query.Parameters = append(query.Parameters, bigquery.QueryParameter{Name: p.Name, Value: p.Value})
	}
	slog.Debug("gcp.bigquery.query", "sql", q.SQL)
	it, err := query.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run billing query: %w", err)
	}
	slog.Info("gcp.bigquery.query.done", "rows", it.TotalRows)
	return it, nil
}

func (w *Warehouse) Close() error { return w.client.Close() }

// rows decodes each result row into R and converts it. The iterator fetches further
// result pages on demand.
type rows[R, T any] struct {
	it      *bigquery.RowIterator
	convert func(R) T
}

func (r *rows[R, T]) Next() (T, error) {
	var raw R
	var zero T
	err := r.it.Next(&raw)
	if err == iterator.Done {
		return zero, io.EOF
	}
	if err != nil {
		return zero, fmt.Errorf("failed to read billing row: %w", err)
	}
	return r.convert(raw), nil
}
