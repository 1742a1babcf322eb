package task

import (
	"encoding/json"
	"fmt"
	"time"

	"gcp-billing-cost/domain/plugin"
)

// Kind discriminates the task option variants.
type Kind string

const (
	KindBigQuery Kind = "bigquery"
	KindStorage  Kind = "storage"
)

// Options is the per-task parameter set, one of BigQueryOptions or StorageOptions.
type Options interface {
	Kind() Kind
	StartPeriod() string
	Validate() error
}

// BigQueryOptions scopes a task to one billing export table and one project (or "*").
type BigQueryOptions struct {
	Start            string `json:"start"`
	BillingDataset   string `json:"billing_dataset"`
	BillingAccountID string `json:"billing_account_id"`
	ProjectID        string `json:"target_project_id"`
}

// StorageOptions scopes a task to one organization/sub billing account folder of a bucket.
type StorageOptions struct {
	Start             string `json:"start"`
	Bucket            string `json:"bucket"`
	Organization      string `json:"organization"`
	SubBillingAccount string `json:"sub_billing_account"`
}

// WildcardProject selects every project billed to the account.
const WildcardProject = "*"

func (BigQueryOptions) Kind() Kind { return KindBigQuery }
func (o BigQueryOptions) StartPeriod() string { return o.Start }

func (o BigQueryOptions) Validate() error {
	return requireFields([][2]string{
		{"start", o.Start},
		{"billing_dataset", o.BillingDataset},
		{"billing_account_id", o.BillingAccountID},
		{"project_id", o.ProjectID},
	})
}

func (StorageOptions) Kind() Kind { return KindStorage }
func (o StorageOptions) StartPeriod() string { return o.Start }

func (o StorageOptions) Validate() error {
	return requireFields([][2]string{
		{"start", o.Start},
		{"bucket", o.Bucket},
		{"organization", o.Organization},
		{"sub_billing_account", o.SubBillingAccount},
	})
}

func requireFields(fields [][2]string) error {
	for _, f := range fields {
		if f[1] == "" {
			return plugin.RequiredParameter("task_options." + f[0])
		}
	}
	return nil
}

// Decode builds the typed options from the raw mapping the orchestrator sends back.
// The presence of a bucket key selects the storage variant. For BigQuery tasks the project
// may arrive as either project_id or target_project_id.
func Decode(raw map[string]any) (Options, error) {
	get := func(key string) string {
		v, ok := raw[key]
		if !ok || v == nil {
			return ""
		}
		if s, isStr := v.(string); isStr {
			return s
		}
		return fmt.Sprint(v)
	}

	if _, ok := raw["bucket"]; ok {
		o := StorageOptions{
			Start:             get("start"),
			Bucket:            get("bucket"),
			Organization:      get("organization"),
			SubBillingAccount: get("sub_billing_account"),
		}
		return o, o.Validate()
	}

	project := get("project_id")
	if project == "" {
		project = get("target_project_id")
	}
	o := BigQueryOptions{
		Start:            get("start"),
		BillingDataset:   get("billing_dataset"),
		BillingAccountID: get("billing_account_id"),
		ProjectID:        project,
	}
	return o, o.Validate()
}

// Task is one independently resumable unit of sync work.
type Task struct {
	Options Options `json:"task_options"`
}

// Changed is the watermark the orchestrator persists for the next incremental sync.
type Changed struct {
	Start  time.Time
	End    *time.Time
	Filter map[string]string
}

// NaiveLayout formats a midnight timestamp without any zone designator.
const NaiveLayout = "2006-01-02T15:04:05"

func (c Changed) MarshalJSON() ([]byte, error) {
	var end *string
	if c.End != nil {
		s := c.End.Format(NaiveLayout)
		end = &s
	}
	filter := c.Filter
	if filter == nil {
		filter = map[string]string{}
	}
	return json.Marshal(struct {
		Start  string            `json:"start"`
		End    *string           `json:"end"`
		Filter map[string]string `json:"filter"`
	}{c.Start.Format(NaiveLayout), end, filter})
}

// Tasks is the get_tasks response document.
type Tasks struct {
	Tasks   []Task    `json:"tasks"`
	Changed []Changed `json:"changed"`
}

// Validate checks every task before it is handed to the orchestrator.
func (t Tasks) Validate() error {
	for i, tk := range t.Tasks {
		if tk.Options == nil {
			return plugin.RequiredParameter(fmt.Sprintf("tasks[%d].task_options", i))
		}
		if err := tk.Options.Validate(); err != nil {
			return err
		}
	}
	for i, c := range t.Changed {
		if c.Start.IsZero() {
			return plugin.RequiredParameter(fmt.Sprintf("changed[%d].start", i))
		}
	}
	return nil
}
