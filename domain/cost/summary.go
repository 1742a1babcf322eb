package cost

import "github.com/shopspring/decimal"

// MonthlyCost is the aggregated cost of one account for one billed month.
type MonthlyCost struct {
	Account  string
	Month    string // YYYY-MM
	Cost     decimal.Decimal
	Currency string
	Records  int
}

// ProductCost is the aggregated cost of one product for one billed month, across accounts.
type ProductCost struct {
	Product  string
	Month    string // YYYY-MM
	Cost     decimal.Decimal
	Currency string
}
