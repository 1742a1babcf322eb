package gcp

import (
	"context"

	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/ingest/source"
)

// Opener creates Google Cloud sessions from secret data.
type Opener struct{}

var _ source.Opener = Opener{}

func (Opener) Warehouse(ctx context.Context, secret plugin.SecretData) (source.Warehouse, error) {
	w, err := NewWarehouse(ctx, secret)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (Opener) BillingInfo(ctx context.Context, secret plugin.SecretData) (source.BillingInfo, error) {
	b, err := NewBillingInfo(ctx, secret)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (Opener) Bucket(ctx context.Context, secret plugin.SecretData) (source.Bucket, error) {
	b, err := NewBucket(ctx, secret)
	if err != nil {
		return nil, err
	}
	return b, nil
}
