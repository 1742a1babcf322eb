package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/cost"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/domain/task"
	"gcp-billing-cost/ingest/source/sourcetest"
)

func fixedNow() time.Time { return time.Date(2024, 6, 18, 15, 4, 5, 0, time.UTC) }

func bigQuerySecret(projects any) plugin.SecretData {
	s := sourcetest.Secret()
	s["billing_dataset"] = "ds"
	s["target_project_id"] = projects
	return s
}

func billingFake() *sourcetest.Fake {
	return &sourcetest.Fake{
		Tables:      map[string][]string{"ds": {"gcp_billing_export_v1_ABC_123"}},
		AccountName: "billingAccounts/ABC-123",
	}
}

func TestResolveStartTime(t *testing.T) {
	now := fixedNow()
	last := time.Date(2024, 5, 5, 13, 0, 0, 0, time.FixedZone("KST", 9*3600))

	for name, tc := range map[string]struct {
		start string
		last  *time.Time
		want  time.Time
	}{
		"explicit month": {start: "2024-02", want: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		"explicit day":   {start: "2024-02-10", want: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)},
		"last sync":      {last: &last, want: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		"default":        {want: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
	} {
		got, err := ResolveStartTime(tc.start, tc.last, now, 7, 365)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !got.Equal(tc.want) || got.Location() != time.UTC {
			t.Errorf("%s: expected %v, got %v", name, tc.want, got)
		}
		if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 || got.Nanosecond() != 0 {
			t.Errorf("%s: expected midnight, got %v", name, got)
		}
		again, _ := ResolveStartTime(got.Format(task.DayLayout), nil, now, 7, 365)
		if !again.Equal(got) {
			t.Errorf("%s: expected re-normalization to be stable, got %v", name, again)
		}
	}

	if _, err := ResolveStartTime("2024/02", nil, now, 7, 365); !errors.Is(err, plugin.ErrInvalidParameterType) {
		t.Errorf("Expected invalid parameter type, got %v", err)
	}
}

func TestBigQuery_WildcardCollapsesToOneTask(t *testing.T) {
	fake := billingFake()
	d := New(config.Default(), fake).WithClock(fixedNow)

	tasks, err := d.BigQuery(context.Background(), Request{Secret: bigQuerySecret([]any{"p1", "*"})})
	if err != nil {
		t.Fatalf("BigQuery failed: %v", err)
	}
	if len(tasks.Tasks) != 1 || len(tasks.Changed) != 1 {
		t.Fatalf("Expected one task, got %+v", tasks)
	}
	opts := tasks.Tasks[0].Options.(task.BigQueryOptions)
	if opts.ProjectID != "*" || opts.BillingAccountID != "ABC-123" || opts.BillingDataset != "ds" {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.Start != "2023-06-01" {
		t.Errorf("Expected default start 2023-06-01, got %s", opts.Start)
	}
	if fake.Closed != 1 {
		t.Errorf("Expected warehouse to be closed, got %d", fake.Closed)
	}
}

func TestBigQuery_OneTaskPerProject(t *testing.T) {
	d := New(config.Default(), billingFake()).WithClock(fixedNow)
	tasks, err := d.BigQuery(context.Background(), Request{
		Secret: bigQuerySecret([]any{"p1", "p2"}),
		Start:  "2024-01",
	})
	if err != nil {
		t.Fatalf("BigQuery failed: %v", err)
	}
	if len(tasks.Tasks) != 2 || len(tasks.Changed) != 2 {
		t.Fatalf("Expected two tasks, got %+v", tasks)
	}
	for i, want := range []string{"p1", "p2"} {
		opts := tasks.Tasks[i].Options.(task.BigQueryOptions)
		if opts.ProjectID != want || opts.BillingAccountID != "ABC-123" || opts.Start != "2024-01-01" {
			t.Errorf("task %d: unexpected options %+v", i, opts)
		}
	}
}

func TestBigQuery_BillingAccountOverride(t *testing.T) {
	fake := billingFake()
	fake.Tables["ds"] = []string{"gcp_billing_export_v1_XYZ_789"}
	secret := bigQuerySecret("p1")
	secret["target_billing_account_id"] = "XYZ-789"

	tasks, err := New(config.Default(), fake).WithClock(fixedNow).BigQuery(context.Background(), Request{Secret: secret})
	if err != nil {
		t.Fatalf("BigQuery failed: %v", err)
	}
	if got := tasks.Tasks[0].Options.(task.BigQueryOptions).BillingAccountID; got != "XYZ-789" {
		t.Errorf("Expected override XYZ-789, got %s", got)
	}
	if fake.BillingLookup != 0 {
		t.Errorf("Expected no billing info lookup, got %d", fake.BillingLookup)
	}
}

func TestBigQuery_DefaultDataset(t *testing.T) {
	fake := billingFake()
	fake.Tables = map[string][]string{"billing_export": {"gcp_billing_export_v1_ABC_123"}}
	secret := bigQuerySecret("*")
	delete(secret, "billing_dataset")

	tasks, err := New(config.Default(), fake).WithClock(fixedNow).BigQuery(context.Background(), Request{Secret: secret})
	if err != nil {
		t.Fatalf("BigQuery failed: %v", err)
	}
	if got := tasks.Tasks[0].Options.(task.BigQueryOptions).BillingDataset; got != "billing_export" {
		t.Errorf("Expected default dataset, got %s", got)
	}
}

func TestBigQuery_Errors(t *testing.T) {
	for name, tc := range map[string]struct {
		options plugin.Options
		secret  plugin.SecretData
		fake    func() *sourcetest.Fake
		want    error
		key     string
	}{
		"missing private key": {
			secret: func() plugin.SecretData { s := bigQuerySecret("*"); delete(s, "private_key"); return s }(),
			want:   plugin.ErrRequiredParameter,
			key:    "secret_data.private_key",
		},
		"missing target projects": {
			secret: func() plugin.SecretData { s := bigQuerySecret("*"); delete(s, "target_project_id"); return s }(),
			want:   plugin.ErrRequiredParameter,
			key:    "secret_data.target_project_id",
		},
		"empty target projects": {
			secret: bigQuerySecret([]any{}),
			want:   plugin.ErrNotExistTargetProjectID,
		},
		"unknown secret type": {
			options: plugin.Options{"secret_type": "OAUTH"},
			secret:  bigQuerySecret("*"),
			want:    plugin.ErrInvalidSecretType,
		},
		"missing table": {
			secret: bigQuerySecret("*"),
			fake:   func() *sourcetest.Fake { f := billingFake(); f.Tables = nil; return f },
			want:   plugin.ErrNotFoundTable,
		},
		"malformed billing account": {
			secret: bigQuerySecret("*"),
			fake:   func() *sourcetest.Fake { f := billingFake(); f.AccountName = "ABC-123"; return f },
			want:   plugin.ErrInvalidBillingAccount,
		},
	} {
		fake := billingFake()
		if tc.fake != nil {
			fake = tc.fake()
		}
		_, err := New(config.Default(), fake).WithClock(fixedNow).BigQuery(context.Background(),
			Request{Options: tc.options, Secret: tc.secret})
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", name, tc.want, err)
			continue
		}
		if tc.key != "" && !strings.Contains(err.Error(), tc.key) {
			t.Errorf("%s: expected error to name %s, got %v", name, tc.key, err)
		}
	}
}

func TestBigQuery_ManualSecretTypeEmitsNothing(t *testing.T) {
	tasks, err := New(config.Default(), billingFake()).WithClock(fixedNow).BigQuery(context.Background(), Request{
		Options: plugin.Options{"secret_type": config.SecretTypeManual},
		Secret:  bigQuerySecret("*"),
	})
	if err != nil {
		t.Fatalf("BigQuery failed: %v", err)
	}
	if len(tasks.Tasks) != 0 || len(tasks.Changed) != 0 {
		t.Errorf("Expected no tasks, got %+v", tasks)
	}
}

func TestParseBillingAccountName(t *testing.T) {
	if id, err := ParseBillingAccountName("billingAccounts/01AB23-CD45EF-678901"); err != nil || id != "01AB23-CD45EF-678901" {
		t.Errorf("unexpected %q %v", id, err)
	}
	for _, bad := range []string{"", "billingAccounts/", "a/b/c"} {
		if _, err := ParseBillingAccountName(bad); !errors.Is(err, plugin.ErrInvalidBillingAccount) {
			t.Errorf("%q: expected invalid billing account, got %v", bad, err)
		}
	}
}

func TestLinkedAccounts(t *testing.T) {
	fake := billingFake()
	fake.ProjectRows = []cost.ProjectRow{
		{ProjectID: sourcetest.Ptr("p1"), ProjectName: sourcetest.Ptr("Project One")},
		{ProjectID: nil, ProjectName: sourcetest.Ptr("credits")},
		{ProjectID: sourcetest.Ptr("p2")},
		{ProjectID: sourcetest.Ptr("p1"), ProjectName: sourcetest.Ptr("Project One")},
	}
	accounts, err := New(config.Default(), fake).WithClock(fixedNow).LinkedAccounts(context.Background(), bigQuerySecret("*"), "2024-03-15")
	if err != nil {
		t.Fatalf("LinkedAccounts failed: %v", err)
	}
	if len(accounts) != 2 || accounts[0].AccountID != "p1" || accounts[0].Name != "Project One" || accounts[1].AccountID != "p2" {
		t.Errorf("unexpected accounts %+v", accounts)
	}
	start := fake.Queries[0].Params[0].Value.(time.Time)
	if !start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected month start, got %v", start)
	}
}
