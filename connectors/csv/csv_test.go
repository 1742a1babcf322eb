package csv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gcp-billing-cost/domain/cost"
)

func TestReadRecords_TrimsHeaders(t *testing.T) {
	input := "\ufeff Project ID ,Subtotal  \np1,\"1,234\"\n\np2,5\n"
	rows, err := ReadRecords(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadRecords failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0]["Project ID"] != "p1" {
		t.Errorf("Expected Project ID p1, got %q", rows[0]["Project ID"])
	}
	if rows[0]["Subtotal"] != "1,234" {
		t.Errorf("Expected Subtotal 1,234, got %q", rows[0]["Subtotal"])
	}
}

func TestReadRecords_Empty(t *testing.T) {
	rows, err := ReadRecords(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ReadRecords failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}

func TestRecords_StopsWithCaller(t *testing.T) {
	// the third line has an unterminated quote; stopping after the first row never reaches it
	input := "Project ID,Subtotal\np1,1\np2,2\n\"p3,3\n"
	var seen []string
	for row, err := range Records(strings.NewReader(input)) {
		if err != nil {
			t.Fatalf("Records failed: %v", err)
		}
		seen = append(seen, row["Project ID"])
		break
	}
	if len(seen) != 1 || seen[0] != "p1" {
		t.Errorf("Expected only p1, got %v", seen)
	}

	if _, err := ReadRecords(strings.NewReader(input)); err == nil {
		t.Error("Expected the malformed line to fail a full read")
	}
}

func TestRecordWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "costs.csv")
	rw, err := CreateRecordWriter(path)
	if err != nil {
		t.Fatalf("CreateRecordWriter failed: %v", err)
	}
	batch := cost.Batch{Results: []cost.Record{{
		Cost:           10,
		Currency:       "USD",
		Provider:       cost.Provider,
		UsageQuantity:  5,
		BilledDate:     cost.NewDate(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
		Account:        "p1",
		AdditionalInfo: map[string]string{"Project ID": "p1"},
		Tags:           map[string]string{},
	}}}
	if err := rw.WriteBatch(batch); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}
	if err := rw.WriteBatch(cost.EndOfStream()); err != nil {
		t.Fatalf("WriteBatch failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if rw.Count() != 1 {
		t.Errorf("Expected 1 record written, got %d", rw.Count())
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected header and one row, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], "2024-01-02") || !strings.HasPrefix(lines[1], "google_cloud,p1,") {
		t.Errorf("Unexpected row: %s", lines[1])
	}
}
