package serve

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/cost"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/ingest/service"
	"gcp-billing-cost/ingest/source/sourcetest"
)

func fixedNow() time.Time { return time.Date(2024, 6, 18, 0, 0, 0, 0, time.UTC) }

func bigQueryFake() *sourcetest.Fake {
	return &sourcetest.Fake{
		Tables:      map[string][]string{"billing_export": {"gcp_billing_export_v1_ABC_123"}},
		AccountName: "billingAccounts/ABC-123",
		CostRows: []cost.BillingRow{{
			BilledAt:               time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
			ProjectID:              sourcetest.Ptr("p1"),
			Product:                "Compute Engine",
			Currency:               "USD",
			CurrencyConversionRate: sourcetest.Ptr(1.0),
			Cost:                   sourcetest.Ptr(3.5),
			UsageQuantity:          sourcetest.Ptr(7.0),
		}},
	}
}

func post(t *testing.T, e *echo.Echo, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(b)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func secretWithTargets() plugin.SecretData {
	s := sourcetest.Secret()
	s["target_project_id"] = "*"
	return s
}

func TestInit(t *testing.T) {
	e := NewServer(service.New(config.Default(), &sourcetest.Fake{}), t.TempDir())

	rec := post(t, e, "/v1/data-source/init", map[string]any{"options": map[string]any{}})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var got struct {
		Metadata plugin.Metadata `json:"metadata"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Metadata.Currency != "USD" || len(got.Metadata.DataSourceRules) == 0 {
		t.Errorf("unexpected metadata %+v", got.Metadata)
	}

	rec = post(t, e, "/v1/data-source/init", map[string]any{"options": map[string]any{"source_type": "ftp"}})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "ERROR_INVALID_SOURCE_TYPE") {
		t.Errorf("Expected 400 invalid source type, got %d: %s", rec.Code, rec.Body)
	}
}

func TestVerify_MissingSecretField(t *testing.T) {
	e := NewServer(service.New(config.Default(), &sourcetest.Fake{}), t.TempDir())
	s := sourcetest.Secret()
	delete(s, "client_email")

	rec := post(t, e, "/v1/data-source/verify", map[string]any{"secret_data": s})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "secret_data.client_email") {
		t.Errorf("Expected 400 naming client_email, got %d: %s", rec.Code, rec.Body)
	}
}

func TestGetTasksThenGetData(t *testing.T) {
	svc := service.New(config.Default(), bigQueryFake()).WithClock(fixedNow)
	e := NewServer(svc, t.TempDir())

	rec := post(t, e, "/v1/job/get-tasks", map[string]any{
		"secret_data":          secretWithTargets(),
		"last_synchronized_at": "2024-05-05T00:00:00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var ts struct {
		Tasks []struct {
			TaskOptions map[string]any `json:"task_options"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ts); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(ts.Tasks) != 1 || ts.Tasks[0].TaskOptions["start"] != "2024-04-01" {
		t.Fatalf("unexpected tasks %s", rec.Body)
	}

	rec = post(t, e, "/v1/cost/get-data", map[string]any{
		"secret_data":  secretWithTargets(),
		"task_options": ts.Tasks[0].TaskOptions,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/x-ndjson" {
		t.Errorf("unexpected content type %q", ct)
	}
	var batches []cost.Batch
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var b cost.Batch
		if err := json.Unmarshal(sc.Bytes(), &b); err != nil {
			t.Fatalf("Unmarshal line %q failed: %v", sc.Text(), err)
		}
		batches = append(batches, b)
	}
	if len(batches) != 2 || len(batches[0].Results) != 1 || !batches[1].Terminal() {
		t.Fatalf("Expected one record then the terminal batch, got %+v", batches)
	}
	if r := batches[0].Results[0]; r.Cost != 3.5 || r.Account != "p1" || r.BilledDate.String() != "2024-05-02" {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestGetData_ErrorBeforeFirstBatch(t *testing.T) {
	fake := bigQueryFake()
	fake.QueryErr = errors.New("bigquery: backend error")
	e := NewServer(service.New(config.Default(), fake).WithClock(fixedNow), t.TempDir())

	rec := post(t, e, "/v1/cost/get-data", map[string]any{
		"secret_data": secretWithTargets(),
		"task_options": map[string]any{
			"start":              "2024-05-01",
			"billing_dataset":    "billing_export",
			"billing_account_id": "ABC-123",
			"target_project_id":  "*",
		},
	})
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "ERROR_UPSTREAM") {
		t.Errorf("Expected 502, got %d: %s", rec.Code, rec.Body)
	}

	rec = post(t, e, "/v1/cost/get-data", map[string]any{
		"secret_data":  secretWithTargets(),
		"task_options": map[string]any{"start": "2024-05-01"},
	})
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "ERROR_REQUIRED_PARAMETER") {
		t.Errorf("Expected 400 required parameter, got %d: %s", rec.Code, rec.Body)
	}
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{plugin.RequiredParameter("secret_data.project_id"), http.StatusBadRequest},
		{plugin.NotFoundTable("t", "d"), http.StatusBadRequest},
		{plugin.NotFoundExchangeRate(2024, 1), http.StatusUnprocessableEntity},
		{errors.New("googleapi: Error 403"), http.StatusBadGateway},
	}
	for _, c := range cases {
		if got := StatusCode(c.err); got != c.want {
			t.Errorf("StatusCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestServeCSV(t *testing.T) {
	dir := t.TempDir()
	body := "month,account,cost,currency,records\n2024-01,p1,3.3,USD,2\n"
	if err := os.WriteFile(filepath.Join(dir, "cost_monthly.csv"), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	e := NewServer(service.New(config.Default(), &sourcetest.Fake{}), dir)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/costs/monthly", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var rows []map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["cost"] != "3.3" {
		t.Errorf("unexpected rows %v", rows)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/costs/products", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing file, got %d", rec.Code)
	}
	var missing map[string]errorDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &missing); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got := missing["error"]; got.Code != "ERROR_NOT_FOUND_FILE" || !strings.Contains(got.Message, "cost_products.csv") {
		t.Errorf("Expected the plugin error shape, got %+v", got)
	}
	if strings.Contains(rec.Body.String(), dir) {
		t.Errorf("Expected the data directory to stay private, got %s", rec.Body.String())
	}
}

func TestServeCSV_UnreadableFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "costs.csv"), []byte("account,cost\n\"p1,1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	e := NewServer(service.New(config.Default(), &sourcetest.Fake{}), dir)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/costs", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	var body map[string]errorDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if body["error"].Code != "ERROR_READ_FILE" {
		t.Errorf("Expected ERROR_READ_FILE, got %+v", body)
	}
}
