package config

import (
	"os"
	"path/filepath"
	"testing"

	"gcp-billing-cost/domain/config"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Defaults.TablePrefix != "gcp_billing_export_v1" || c.Storage.PageSize != 2000 {
		t.Errorf("Expected defaults, got %+v", c)
	}
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := `
defaults:
  billing_dataset: finance_export
bigquery:
  cost_mode: converted
  page_size: 500
storage:
  columns:
    subtotal: "Cost (KRW)"
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Defaults.BillingDataset != "finance_export" || c.BigQuery.CostMode != config.CostModeConverted || c.BigQuery.PageSize != 500 {
		t.Errorf("Expected file values, got %+v", c)
	}
	if c.Storage.Columns.Subtotal != "Cost (KRW)" || c.Storage.Columns.ProjectID != "Project ID" {
		t.Errorf("Expected column overlay to keep other defaults, got %+v", c.Storage.Columns)
	}
	if c.Defaults.TablePrefix != "gcp_billing_export_v1" || c.Log.Level != "debug" {
		t.Errorf("unexpected config %+v", c)
	}
}

func TestLoad_RejectsUnknownCostMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("bigquery:\n  cost_mode: estimated\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected an error for an unknown cost mode")
	}
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/billing/config.yml")
	if Path() != "/etc/billing/config.yml" {
		t.Errorf("Expected CONFIG_PATH, got %s", Path())
	}
	t.Setenv("CONFIG_PATH", "")
	if Path() != DefaultPath {
		t.Errorf("Expected default path, got %s", Path())
	}
}

func TestLoadDocument(t *testing.T) {
	doc, err := LoadDocument("")
	if err != nil || len(doc) != 0 {
		t.Errorf("Expected empty document, got %v %v", doc, err)
	}
	path := filepath.Join(t.TempDir(), "secret.json")
	if err := os.WriteFile(path, []byte(`{"project_id":"proj1","target_project_id":["*"]}`), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	doc, err = LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if doc["project_id"] != "proj1" {
		t.Errorf("unexpected document %v", doc)
	}
}
