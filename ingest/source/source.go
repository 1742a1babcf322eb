// Package source declares the billing data source capabilities the ingest pipeline depends on.
// Implementations live in connectors/gcp; sourcetest provides an in-memory one.
package source

import (
	"context"
	"io"

	"gcp-billing-cost/domain/cost"
	"gcp-billing-cost/domain/plugin"
)

// Query is a SQL statement plus its named parameters (@name in the SQL text).
type Query struct {
	SQL    string
	Params []Param
}

type Param struct {
	Name  string
	Value any
}

// Rows is a forward-only cursor. Next returns io.EOF once exhausted.
// Paging against the remote API happens behind Next.
type Rows[T any] interface {
	Next() (T, error)
}

// Warehouse reads the billing export dataset.
type Warehouse interface {
	ListTables(ctx context.Context, dataset string) ([]string, error)
	QueryCosts(ctx context.Context, q Query) (Rows[cost.BillingRow], error)
	QueryProjects(ctx context.Context, q Query) (Rows[cost.ProjectRow], error)
	io.Closer
}

// BillingInfo resolves which billing account pays for a project.
type BillingInfo interface {
	// BillingAccountName returns the resource name, e.g. "billingAccounts/0X0X0X-0X0X0X-0X0X0X".
	BillingAccountName(ctx context.Context, projectID string) (string, error)
}

// Bucket lists and reads objects of the bucket named in the secret data.
type Bucket interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	io.Closer
}

// Opener opens sessions from secret data. Each call fails with a required-parameter
// error when the secret lacks a field the session needs.
type Opener interface {
	Warehouse(ctx context.Context, secret plugin.SecretData) (Warehouse, error)
	BillingInfo(ctx context.Context, secret plugin.SecretData) (BillingInfo, error)
	Bucket(ctx context.Context, secret plugin.SecretData) (Bucket, error)
}

// Drain reads every row, for callers that need the whole result set.
func Drain[T any](rows Rows[T]) ([]T, error) {
	var out []T
	for {
		r, err := rows.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}
