package cost

import "time"

// BillingRow is one aggregated line of the BigQuery billing export query.
// Nullable columns are pointers so a missing value can be told apart from zero.
type BillingRow struct {
	BilledAt               time.Time
	BillingAccountID       string
	Product                string
	SKUDescription         string
	ProjectID              *string
	ProjectName            *string
	RegionCode             string
	Currency               string
	CurrencyConversionRate *float64
	PricingUnit            string
	InvoiceMonth           string
	CostType               string
	Labels                 string
	Cost                   *float64
	UsageQuantity          *float64
}

// Label is one element of the JSON-encoded labels column.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProjectRow is one line of the distinct-project query.
type ProjectRow struct {
	ProjectID   *string
	ProjectName *string
}
