// Package gcp implements the billing data source on top of the Google Cloud APIs:
// BigQuery for the billing export tables, Cloud Billing for account lookup and
// Cloud Storage for CSV exports.
package gcp

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"gcp-billing-cost/domain/plugin"
)

// keyFields are copied from the secret data into the service account key document.
var keyFields = []string{
	"project_id", "private_key_id", "private_key", "client_email", "client_id",
	"auth_uri", "token_uri", "auth_provider_x509_cert_url", "client_x509_cert_url",
}

// serviceAccountJSON rebuilds a service account key file from the secret data.
func serviceAccountJSON(secret plugin.SecretData) ([]byte, error) {
	key := map[string]string{"type": "service_account"}
	for _, f := range keyFields {
		if v := secret.String(f); v != "" {
			key[f] = v
		}
	}
	return json.Marshal(key)
}

// clientOption authenticates API clients as the service account described by secret.
// A token is fetched right away so a bad key or a rejected account fails when the session
// opens; later calls reuse that token until it expires.
func clientOption(ctx context.Context, secret plugin.SecretData, scopes ...string) (option.ClientOption, error) {
	if err := secret.Require(plugin.ServiceAccountKeys...); err != nil {
		return nil, err
	}
	b, err := serviceAccountJSON(secret)
	if err != nil {
		return nil, err
	}
	cfg, err := google.JWTConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account key: %w", err)
	}
	ts := cfg.TokenSource(ctx)
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate as %s: %w", cfg.Email, err)
	}
	return option.WithTokenSource(oauth2.ReuseTokenSource(tok, ts)), nil
}
