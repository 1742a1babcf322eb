// Package discovery splits one billing account into independently resumable sync tasks.
package discovery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/cost"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/domain/task"
	"gcp-billing-cost/ingest/normalize"
	"gcp-billing-cost/ingest/source"
)

// Request carries the get_tasks inputs.
type Request struct {
	Options            plugin.Options
	Secret             plugin.SecretData
	Start              string
	LastSynchronizedAt *time.Time
	DomainID           string
}

type Discovery struct {
	cfg    config.Config
	opener source.Opener
	now    func() time.Time
}

func New(cfg config.Config, opener source.Opener) *Discovery {
	return &Discovery{cfg: cfg, opener: opener, now: time.Now}
}

// WithClock returns a copy reading the current time from now.
func (d *Discovery) WithClock(now func() time.Time) *Discovery {
	c := *d
	c.now = now
	return &c
}

// ResolveStartTime picks the first day to sync: the explicit start, else lookbackDays before the
// last sync snapped to the first of that month, else historyDays before now snapped the same way.
// The result is always midnight with no zone information.
func ResolveStartTime(start string, lastSynchronizedAt *time.Time, now time.Time, lookbackDays, historyDays int) (time.Time, error) {
	switch {
	case start != "":
		t, err := task.ParsePeriod(start)
		if err != nil {
			return time.Time{}, err
		}
		return task.Midnight(t), nil
	case lastSynchronizedAt != nil:
		return task.MonthStart(lastSynchronizedAt.AddDate(0, 0, -lookbackDays)), nil
	default:
		return task.MonthStart(now.AddDate(0, 0, -historyDays)), nil
	}
}

func (d *Discovery) startTime(req Request) (time.Time, error) {
	return ResolveStartTime(req.Start, req.LastSynchronizedAt, d.now().UTC(),
		d.cfg.Defaults.LookbackDays, d.cfg.Defaults.HistoryDays)
}

// secretType reports whether tasks should be emitted for the configured secret type.
func (d *Discovery) secretType(options plugin.Options) (bool, error) {
	secretType := options.String("secret_type")
	if secretType == "" {
		secretType = d.cfg.Defaults.SecretType
	}
	switch secretType {
	case config.SecretTypeServiceAccount:
		return true, nil
	case config.SecretTypeManual:
		slog.Warn("job.get_tasks.secret_type.unsupported", "secret_type", secretType)
		return false, nil
	default:
		return false, plugin.InvalidSecretType(secretType)
	}
}

func (d *Discovery) billingDataset(secret plugin.SecretData) string {
	if ds := secret.String("billing_dataset"); ds != "" {
		slog.Info("job.get_tasks.billing_dataset", "billing_dataset", ds)
		return ds
	}
	slog.Info("job.get_tasks.billing_dataset.default", "billing_dataset", d.cfg.Defaults.BillingDataset)
	return d.cfg.Defaults.BillingDataset
}

// billingAccountID returns the explicit override or the account paying for the secret's project.
func (d *Discovery) billingAccountID(ctx context.Context, secret plugin.SecretData) (string, error) {
	if id := secret.String("target_billing_account_id"); id != "" {
		return id, nil
	}
	info, err := d.opener.BillingInfo(ctx, secret)
	if err != nil {
		return "", err
	}
	name, err := info.BillingAccountName(ctx, secret.String("project_id"))
	if err != nil {
		return "", err
	}
	return ParseBillingAccountName(name)
}

// ParseBillingAccountName extracts the id from "billingAccounts/<id>".
func ParseBillingAccountName(name string) (string, error) {
	_, id, ok := strings.Cut(name, "/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", plugin.InvalidBillingAccount(name)
	}
	return id, nil
}

// requireTable fails when the export table of billingAccountID is missing from dataset.
func (d *Discovery) requireTable(ctx context.Context, wh source.Warehouse, dataset, billingAccountID string) (string, error) {
	table := normalize.TableName(d.cfg.Defaults.TablePrefix, billingAccountID)
	tables, err := wh.ListTables(ctx, dataset)
	if err != nil {
		return "", err
	}
	if !lo.Contains(tables, table) {
		return "", plugin.NotFoundTable(table, dataset)
	}
	return table, nil
}

// targetProjects returns the configured project ids, collapsing to the wildcard when present.
func targetProjects(secret plugin.SecretData) ([]string, error) {
	raw, ok := secret["target_project_id"]
	if !ok || raw == nil {
		return nil, plugin.RequiredParameter("secret_data.target_project_id")
	}
	projects := lo.Uniq(lo.Compact(lo.Map(secret.Strings("target_project_id"), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})))
	if len(projects) == 0 {
		return nil, plugin.NotExistTargetProjectID(raw)
	}
	if lo.Contains(projects, task.WildcardProject) {
		return []string{task.WildcardProject}, nil
	}
	return projects, nil
}

// BigQuery emits one task per target project, or a single wildcard task.
func (d *Discovery) BigQuery(ctx context.Context, req Request) (task.Tasks, error) {
	start, err := d.startTime(req)
	if err != nil {
		return task.Tasks{}, err
	}
	slog.Info("job.get_tasks.start", "source", config.SourceBigQuery, "start", start.Format(task.DayLayout), "domain_id", req.DomainID)

	wh, err := d.opener.Warehouse(ctx, req.Secret)
	if err != nil {
		return task.Tasks{}, err
	}
	defer wh.Close()

	emit, err := d.secretType(req.Options)
	if err != nil || !emit {
		return emptyTasks(), err
	}

	dataset := d.billingDataset(req.Secret)
	accountID, err := d.billingAccountID(ctx, req.Secret)
	if err != nil {
		return task.Tasks{}, err
	}
	if _, err := d.requireTable(ctx, wh, dataset, accountID); err != nil {
		return task.Tasks{}, err
	}
	projects, err := targetProjects(req.Secret)
	if err != nil {
		return task.Tasks{}, err
	}

	out := emptyTasks()
	for _, p := range projects {
		out.Tasks = append(out.Tasks, task.Task{Options: task.BigQueryOptions{
			Start:            start.Format(task.DayLayout),
			BillingDataset:   dataset,
			BillingAccountID: accountID,
			ProjectID:        p,
		}})
		out.Changed = append(out.Changed, task.Changed{Start: start})
	}
	if err := out.Validate(); err != nil {
		return task.Tasks{}, err
	}
	slog.Info("job.get_tasks.done", "source", config.SourceBigQuery, "billing_account_id", accountID, "tasks", len(out.Tasks))
	return out, nil
}

// LinkedAccounts lists the projects billed to the account since the start month.
func (d *Discovery) LinkedAccounts(ctx context.Context, secret plugin.SecretData, start string) ([]cost.LinkedAccount, error) {
	since, err := ResolveStartTime(start, nil, d.now().UTC(), d.cfg.Defaults.LookbackDays, d.cfg.Defaults.HistoryDays)
	if err != nil {
		return nil, err
	}
	wh, err := d.opener.Warehouse(ctx, secret)
	if err != nil {
		return nil, err
	}
	defer wh.Close()

	dataset := d.billingDataset(secret)
	accountID, err := d.billingAccountID(ctx, secret)
	if err != nil {
		return nil, err
	}
	table, err := d.requireTable(ctx, wh, dataset, accountID)
	if err != nil {
		return nil, err
	}
	q, err := normalize.ProjectsQuery(secret.String("project_id"), dataset, table, since)
	if err != nil {
		return nil, err
	}
	rows, err := wh.QueryProjects(ctx, q)
	if err != nil {
		return nil, err
	}
	projects, err := source.Drain(rows)
	if err != nil {
		return nil, err
	}

	accounts := lo.FilterMap(projects, func(p cost.ProjectRow, _ int) (cost.LinkedAccount, bool) {
		if p.ProjectID == nil || *p.ProjectID == "" {
			return cost.LinkedAccount{}, false
		}
		return cost.LinkedAccount{AccountID: *p.ProjectID, Name: lo.FromPtr(p.ProjectName)}, true
	})
	return lo.UniqBy(accounts, func(a cost.LinkedAccount) string { return a.AccountID }), nil
}

func emptyTasks() task.Tasks {
	return task.Tasks{Tasks: []task.Task{}, Changed: []task.Changed{}}
}
