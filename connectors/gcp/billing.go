package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/cloudbilling/v1"

	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/ingest/source"
)

// BillingInfo looks up the billing account linked to a project.
type BillingInfo struct {
	svc *cloudbilling.APIService
}

var _ source.BillingInfo = (*BillingInfo)(nil)

func NewBillingInfo(ctx context.Context, secret plugin.SecretData) (*BillingInfo, error) {
	opt, err := clientOption(ctx, secret, cloudbilling.CloudBillingReadonlyScope)
	if err != nil {
		return nil, err
	}
	svc, err := cloudbilling.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud billing client: %w", err)
	}
	return &BillingInfo{svc: svc}, nil
}

// BillingAccountName returns e.g. "billingAccounts/012345-567890-ABCDEF".
func (b *BillingInfo) BillingAccountName(ctx context.Context, projectID string) (string, error) {
	info, err := b.svc.Projects.GetBillingInfo("projects/" + projectID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get billing info of %s: %w", projectID, err)
	}
	return info.BillingAccountName, nil
}
