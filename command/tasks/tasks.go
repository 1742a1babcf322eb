package tasks

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	cconfig "gcp-billing-cost/connectors/config"
	"gcp-billing-cost/connectors/gcp"
	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/domain/task"
	"gcp-billing-cost/ingest/discovery"
	"gcp-billing-cost/ingest/service"
)

// Run prints the get_tasks document for one account.
//
// Usage:
//
//	gcp-billing-cost tasks -secret secret.json [-options options.json] [-start 2024-01] [-last-sync 2024-05-01T00:00:00]
func Run(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	secretPath := fs.String("secret", "", "JSON file holding the secret data (service account key and billing metadata)")
	optionsPath := fs.String("options", "", "JSON file holding the plugin options (optional)")
	start := fs.String("start", "", "first period to sync, YYYY-MM or YYYY-MM-DD (optional)")
	lastSync := fs.String("last-sync", "", "last synchronization time, e.g. 2024-05-01T00:00:00 (optional)")
	domainID := fs.String("domain", "", "domain id passed through to the logs (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secretPath == "" {
		slog.Error("tasks.validation.error", "reason", "missing -secret")
		return fmt.Errorf("missing required -secret")
	}

	req, err := BuildRequest(*secretPath, *optionsPath, *start, *lastSync, *domainID)
	if err != nil {
		return err
	}
	return Print(context.Background(), service.New(cfg, gcp.Opener{}), req, os.Stdout)
}

// BuildRequest reads the secret and option documents and parses the sync window flags.
func BuildRequest(secretPath, optionsPath, start, lastSync, domainID string) (discovery.Request, error) {
	secret, err := cconfig.LoadDocument(secretPath)
	if err != nil {
		return discovery.Request{}, err
	}
	options, err := cconfig.LoadDocument(optionsPath)
	if err != nil {
		return discovery.Request{}, err
	}
	req := discovery.Request{
		Options:  plugin.Options(options),
		Secret:   plugin.SecretData(secret),
		Start:    start,
		DomainID: domainID,
	}
	if lastSync != "" {
		t, err := ParseTimestamp(lastSync)
		if err != nil {
			return discovery.Request{}, err
		}
		req.LastSynchronizedAt = &t
	}
	return req, nil
}

// ParseTimestamp accepts RFC 3339 or a zone-less timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, task.NaiveLayout, task.DayLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, plugin.InvalidParameterType("last_synchronized_at", "RFC 3339 timestamp")
}

// Print writes the tasks document as indented JSON.
func Print(ctx context.Context, svc *service.Service, req discovery.Request, w io.Writer) error {
	tasks, err := svc.GetTasks(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tasks)
}
