package discovery

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"

	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/domain/task"
)

var subBillingAccountPattern = regexp.MustCompile(`^[A-Z0-9]{6}-[A-Z0-9]{6}-[A-Z0-9]{6}$`)

// Folders maps each organization to the sub billing account folders found under it.
// Object names with fewer than two path segments are not billing folders and are skipped.
func Folders(names []string) map[string][]string {
	folders := map[string][]string{}
	for _, name := range names {
		parts := strings.Split(name, "/")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		if !slices.Contains(folders[parts[0]], parts[1]) {
			folders[parts[0]] = append(folders[parts[0]], parts[1])
		}
	}
	return folders
}

// organization resolves the requested organization: options first, then secret data, else all.
func organization(options plugin.Options, secret plugin.SecretData) string {
	if org := options.String("organization"); org != "" {
		return org
	}
	if org := secret.String("organization"); org != "" {
		return org
	}
	return "*"
}

// Storage emits one task per (organization, sub billing account) folder of the export bucket.
func (d *Discovery) Storage(ctx context.Context, req Request) (task.Tasks, error) {
	start, err := d.startTime(req)
	if err != nil {
		return task.Tasks{}, err
	}
	org := organization(req.Options, req.Secret)
	slog.Info("job.get_tasks.start", "source", config.SourceStorage, "start", start.Format(task.DayLayout),
		"organization", org, "domain_id", req.DomainID)

	bucket, err := d.opener.Bucket(ctx, req.Secret)
	if err != nil {
		return task.Tasks{}, err
	}
	defer bucket.Close()

	emit, err := d.secretType(req.Options)
	if err != nil || !emit {
		return emptyTasks(), err
	}

	names, err := bucket.List(ctx, "")
	if err != nil {
		return task.Tasks{}, err
	}
	folders := Folders(names)

	orgs := lo.Keys(folders)
	if org != "*" {
		if _, ok := folders[org]; !ok {
			return task.Tasks{}, plugin.InvalidOrganization(org)
		}
		orgs = []string{org}
	}
	slices.Sort(orgs)

	out := emptyTasks()
	for _, o := range orgs {
		subs := slices.Clone(folders[o])
		slices.Sort(subs)
		for _, sub := range subs {
			if !subBillingAccountPattern.MatchString(sub) {
				slog.Info("job.get_tasks.sub_billing_account.skip", "organization", o, "sub_billing_account", sub)
				continue
			}
			out.Tasks = append(out.Tasks, task.Task{Options: task.StorageOptions{
				Start:             start.Format(task.DayLayout),
				Bucket:            req.Secret.String("bucket"),
				Organization:      o,
				SubBillingAccount: sub,
			}})
			out.Changed = append(out.Changed, task.Changed{Start: start})
		}
	}
	if err := out.Validate(); err != nil {
		return task.Tasks{}, err
	}
	slog.Info("job.get_tasks.done", "source", config.SourceStorage, "tasks", len(out.Tasks))
	return out, nil
}
