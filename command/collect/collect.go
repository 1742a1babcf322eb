package collect

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gcp-billing-cost/command/tasks"
	ccsv "gcp-billing-cost/connectors/csv"
	"gcp-billing-cost/connectors/gcp"
	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/ingest/discovery"
	"gcp-billing-cost/ingest/service"
)

// Run discovers every task of one account and writes all of their cost records to a CSV file.
//
// Usage:
//
//	gcp-billing-cost collect -secret secret.json [-options options.json] [-start 2024-01] [-out data/costs.csv]
func Run(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	secretPath := fs.String("secret", "", "JSON file holding the secret data (service account key and billing metadata)")
	optionsPath := fs.String("options", "", "JSON file holding the plugin options (optional)")
	start := fs.String("start", "", "first period to sync, YYYY-MM or YYYY-MM-DD (optional)")
	lastSync := fs.String("last-sync", "", "last synchronization time (optional)")
	out := fs.String("out", filepath.Join("data", "costs.csv"), "output CSV file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secretPath == "" {
		fmt.Fprintln(os.Stderr, "-secret is required")
		slog.Error("collect.validation.error", "reason", "missing -secret")
		return fmt.Errorf("missing required -secret")
	}

	req, err := tasks.BuildRequest(*secretPath, *optionsPath, *start, *lastSync, "")
	if err != nil {
		return err
	}
	n, err := Collect(context.Background(), service.New(cfg, gcp.Opener{}), req, *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "collect.done records=%d out=%s\n", n, *out)
	return nil
}

// Collect runs get_tasks then get_data for each task, sequentially, appending every batch to out.
// It returns the number of records written.
func Collect(ctx context.Context, svc *service.Service, req discovery.Request, out string) (int, error) {
	slog.Info("collect.start", "out", out)
	ts, err := svc.GetTasks(ctx, req)
	if err != nil {
		slog.Error("collect.get_tasks.error", "error", err)
		return 0, err
	}

	w, err := ccsv.CreateRecordWriter(out)
	if err != nil {
		return 0, err
	}
	for i, t := range ts.Tasks {
		slog.Info("collect.task.start", "task", i, "kind", t.Options.Kind(), "start", t.Options.StartPeriod())
		before := w.Count()
		for batch, err := range svc.StreamTask(ctx, req.Options, req.Secret, t.Options) {
			if err != nil {
				w.Close()
				return w.Count(), fmt.Errorf("task %d: %w", i, err)
			}
			if err := w.WriteBatch(batch); err != nil {
				w.Close()
				return w.Count(), err
			}
		}
		slog.Info("collect.task.done", "task", i, "records", w.Count()-before)
	}
	if err := w.Close(); err != nil {
		return w.Count(), err
	}
	slog.Info("collect.done", "tasks", len(ts.Tasks), "records", w.Count(), "out", out)
	return w.Count(), nil
}
