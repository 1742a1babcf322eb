package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"

	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/ingest/source"
)

// MaxObjects bounds a single bucket listing.
const MaxObjects = 100000

var errListLimit = errors.New("object listing limit reached")

// Bucket reads the billing export bucket named in the secret data.
type Bucket struct {
	svc  *storage.Service
	name string
}

var _ source.Bucket = (*Bucket)(nil)

func NewBucket(ctx context.Context, secret plugin.SecretData) (*Bucket, error) {
	if err := secret.Require(plugin.StorageKeys...); err != nil {
		return nil, err
	}
	opt, err := clientOption(ctx, secret, storage.DevstorageReadOnlyScope)
	if err != nil {
		return nil, err
	}
	return newBucket(ctx, secret.String("bucket"), opt)
}

func newBucket(ctx context.Context, name string, opts ...option.ClientOption) (*Bucket, error) {
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Bucket{svc: svc, name: name}, nil
}

// List returns the names of the objects under prefix, following every result page.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	call := b.svc.Objects.List(b.name).Fields("items(name)", "nextPageToken")
	if prefix != "" {
		call = call.Prefix(prefix)
	}
	err := call.Pages(ctx, func(page *storage.Objects) error {
		for _, o := range page.Items {
			names = append(names, o.Name)
		}
		if len(names) >= MaxObjects {
			return errListLimit
		}
		return nil
	})
	if errors.Is(err, errListLimit) {
		slog.Warn("gcp.storage.list.truncated", "bucket", b.name, "prefix", prefix, "objects", len(names))
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list gs://%s/%s: %w", b.name, prefix, err)
	}
	return names, nil
}

// Open downloads the object content. The caller closes it.
func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := b.svc.Objects.Get(b.name, name).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download gs://%s/%s: %w", b.name, name, err)
	}
	return resp.Body, nil
}

func (b *Bucket) Close() error { return nil }
